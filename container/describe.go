package container

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
)

// Describe writes a human readable summary of h.
func Describe(w io.Writer, h Header) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "version\t%d\n", h.Version)
	fmt.Fprintf(tw, "codec\t%s\n", h.Codec)

	keys := make([]string, 0, len(h.Attributes))
	for k := range h.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(tw, "attr %s\t%s\n", k, h.Attributes[k])
	}

	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "FIELD\tDTYPE\tSHAPE\tCOMPRESSION\tSTORED\tRAW\tCRC32C")
	for _, f := range h.Fields {
		fmt.Fprintf(tw, "%s\t%s\t%v\t%s\t%d\t%d\t%08x\n",
			f.Name, f.DType, f.Shape, f.Compression, f.Length, f.RawLength, f.CRC32)
	}
	return tw.Flush()
}
