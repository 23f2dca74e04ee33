package container

import (
	"bufio"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/hupe1980/imgrank/internal/errs"
	"github.com/hupe1980/imgrank/tensor"
)

// TextOptions controls ReadText.
type TextOptions struct {
	// FirstVariantOnly keeps only images named "*_1.jpg", the first view of
	// every item, as used for query sets.
	FirstVariantOnly bool
}

// ReadText parses "<image path>\t<comma separated floats>" lines. The id of a
// line is the base name of the path without its ".jpg" extension.
func ReadText(r io.Reader, opts TextOptions) (*tensor.Matrix, []string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)

	var (
		ids  []string
		data []float64
		dim  = -1
		line int
	)
	for sc.Scan() {
		line++
		text := strings.TrimRight(sc.Text(), "\r\n ")
		if text == "" {
			continue
		}

		imgPath, values, ok := strings.Cut(text, "\t")
		if !ok {
			return nil, nil, fmt.Errorf("%w: line %d: missing tab separator", errs.ErrDataIntegrity, line)
		}
		base := path.Base(strings.ReplaceAll(imgPath, "\\", "/"))
		if opts.FirstVariantOnly && !strings.HasSuffix(base, "_1.jpg") {
			continue
		}

		fields := strings.Split(strings.TrimSpace(values), ",")
		if dim == -1 {
			dim = len(fields)
		} else if len(fields) != dim {
			return nil, nil, fmt.Errorf("%w: line %d: %d values, want %d", errs.ErrDataIntegrity, line, len(fields), dim)
		}
		for _, f := range fields {
			v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: line %d: %v", errs.ErrDataIntegrity, line, err)
			}
			data = append(data, v)
		}
		ids = append(ids, strings.TrimSuffix(base, ".jpg"))
	}
	if err := sc.Err(); err != nil {
		return nil, nil, err
	}
	if len(ids) == 0 {
		return nil, nil, fmt.Errorf("%w: no feature lines", errs.ErrDataIntegrity)
	}

	m, err := tensor.NewMatrix(len(ids), dim, data)
	if err != nil {
		return nil, nil, err
	}
	return m, ids, nil
}

// WriteText writes m and ids in the text feature format. Values use the
// shortest representation that round-trips.
func WriteText(w io.Writer, m *tensor.Matrix, ids []string) error {
	if m.Rows() != len(ids) {
		return fmt.Errorf("%w: %d rows, %d ids", errs.ErrDataIntegrity, m.Rows(), len(ids))
	}
	bw := bufio.NewWriter(w)
	for i, id := range ids {
		bw.WriteString(id)
		bw.WriteString(".jpg\t")
		for j, v := range m.Row(i) {
			if j > 0 {
				bw.WriteByte(',')
			}
			bw.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}
