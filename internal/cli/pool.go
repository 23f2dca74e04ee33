package cli

import (
	"fmt"
	"log/slog"

	"github.com/hupe1980/imgrank/codec"
	"github.com/hupe1980/imgrank/container"
	"github.com/hupe1980/imgrank/internal/errs"
	"github.com/hupe1980/imgrank/pooling"
	"github.com/spf13/cobra"
)

func newPoolCommand() *cobra.Command {
	var (
		in, out     string
		policy      string
		batchSize   int
		sigmoid     bool
		compression string
		codecName   string
	)
	cmd := &cobra.Command{
		Use:   "pool",
		Short: "Pool a channel-feature container into a vector container",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			p, err := pooling.ParsePolicy(policy)
			if err != nil {
				return err
			}
			comp, err := container.ParseCompression(compression)
			if err != nil {
				return err
			}
			c, err := codec.Lookup(codecName)
			if err != nil {
				return err
			}
			engine, err := pooling.NewEngine(func(o *pooling.Options) {
				o.Policy = p
				o.BatchSize = batchSize
				o.Sigmoid = sigmoid
				o.Logger = slog.Default()
			})
			if err != nil {
				return err
			}

			r, closeFn, err := openContainer(ctx, in)
			if err != nil {
				return err
			}
			defer closeFn()

			f, err := r.File()
			if err != nil {
				return err
			}
			t, err := f.Features.Tensor4()
			if err != nil {
				return fmt.Errorf("%s: %w", in, err)
			}
			if t.Len() != len(f.Names) {
				return fmt.Errorf("%w: %s: %d feature rows, %d names", errs.ErrDataIntegrity, in, t.Len(), len(f.Names))
			}

			m, err := engine.Pool(ctx, t)
			if err != nil {
				return err
			}

			pooled := &container.File{
				Names:    f.Names,
				Dirs:     f.Dirs,
				Features: container.ArrayFromMatrix(m),
				Weights:  f.Weights,
				Attributes: map[string]string{
					"pooling":   p.String(),
					"source":    in,
					"sigmoid":   fmt.Sprint(sigmoid),
					"pooled_by": "imgrank " + version,
				},
			}
			n, err := writeContainer(ctx, out, pooled, func(o *container.WriteOptions) {
				o.Compression = comp
				o.Codec = c
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pooled %d x %d (%s) into %s (%d bytes)\n", m.Rows(), m.Cols(), p, out, n)
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&in, "in", "", "channel-feature container to read")
	fl.StringVar(&out, "out", "", "container to write")
	fl.StringVar(&policy, "policy", pooling.PolicySum.String(), "pooling policy")
	fl.IntVar(&batchSize, "batch-size", pooling.DefaultOptions.BatchSize, "pooling batch size")
	fl.BoolVar(&sigmoid, "sigmoid", false, "apply a sigmoid before pooling")
	fl.StringVar(&compression, "compression", string(container.CompressionZstd), "feature compression (none, gzip, zstd, lz4)")
	fl.StringVar(&codecName, "codec", "", "header codec")
	_ = cmd.MarkFlagRequired("in")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}
