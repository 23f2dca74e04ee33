package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/hupe1980/imgrank/container"
)

func newInspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file>",
		Short: "Show the fields of a feature container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, closeFn, err := openContainer(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer closeFn()

			w := cmd.OutOrStdout()
			h := r.Header()
			fmt.Fprintf(w, "%s: version %d, codec %s\n\n", args[0], h.Version, h.Codec)
			if err := container.Describe(w, h); err != nil {
				return err
			}

			if len(h.Attributes) > 0 {
				keys := make([]string, 0, len(h.Attributes))
				for k := range h.Attributes {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				fmt.Fprintln(w)
				for _, k := range keys {
					fmt.Fprintf(w, "%s = %s\n", k, h.Attributes[k])
				}
			}
			return nil
		},
	}
}
