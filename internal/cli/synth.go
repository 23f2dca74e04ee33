package cli

import (
	"fmt"
	"math/rand/v2"

	"github.com/spf13/cobra"

	"github.com/hupe1980/imgrank/container"
	"github.com/hupe1980/imgrank/internal/errs"
	"github.com/hupe1980/imgrank/tensor"
)

// synthOptions describes a synthetic feature container.
type synthOptions struct {
	n, channels, height, width int
	classes                    int
	seed                       uint64
	prefix                     string
}

// synthesize draws ReLU-like activations: half-normal values with roughly
// half of them zeroed, the way backbone feature maps look.
func synthesize(o synthOptions) *container.File {
	rng := rand.New(rand.NewPCG(o.seed, o.seed^0x9e3779b97f4a7c15))

	t := tensor.ZerosTensor4(tensor.Shape4{N: o.n, C: o.channels, H: o.height, W: o.width})
	data := t.Data()
	for i := range data {
		if v := rng.NormFloat64(); v > 0 {
			data[i] = float32(v)
		}
	}

	names := make([]string, o.n)
	dirs := make([]string, o.n)
	for i := range names {
		names[i] = fmt.Sprintf("%s%d_1.jpg", o.prefix, i+1)
		dirs[i] = "synth"
	}

	f := &container.File{
		Names:      names,
		Dirs:       dirs,
		Features:   container.ArrayFromTensor4(t),
		Attributes: map[string]string{"generator": "imgrank synth", "seed": fmt.Sprint(o.seed)},
	}
	if o.classes > 0 {
		w := make([]float32, o.channels*o.classes)
		for i := range w {
			w[i] = float32(rng.NormFloat64() * 0.02)
		}
		f.Weights = &container.Array{Shape: []int{o.channels, o.classes}, Data: w}
	}
	return f
}

func newSynthCommand() *cobra.Command {
	var (
		o   synthOptions
		out string
	)
	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Write a synthetic channel-feature container",
		Long: `synth writes a container of random 4-D channel features, named
"<prefix><i>_1.jpg", for exercising pooling and ranking without a backbone.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if o.n <= 0 || o.channels <= 0 || o.height <= 0 || o.width <= 0 || o.classes < 0 {
				return fmt.Errorf("%w: synth: sizes must be positive", errs.ErrConfig)
			}
			n, err := writeContainer(cmd.Context(), out, synthesize(o))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d x %d x %d x %d to %s (%d bytes)\n",
				o.n, o.channels, o.height, o.width, out, n)
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&out, "out", "", "container to write")
	fl.IntVar(&o.n, "n", 100, "number of images")
	fl.IntVar(&o.channels, "channels", 64, "channels per image")
	fl.IntVar(&o.height, "height", 7, "feature map height")
	fl.IntVar(&o.width, "width", 7, "feature map width")
	fl.IntVar(&o.classes, "classes", 0, "classifier classes; > 0 adds weights_classifier")
	fl.Uint64Var(&o.seed, "seed", 1, "random seed")
	fl.StringVar(&o.prefix, "prefix", "", "name prefix")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}
