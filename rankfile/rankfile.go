package rankfile

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	// DefaultIteration is the literal of the second column.
	DefaultIteration = "Q0"
	// DefaultRunTag is the literal of the last column.
	DefaultRunTag = "CUR"
)

// Record is one line of a rank file.
type Record struct {
	Query int
	Doc   string
	Rank  int
	Score float64
}

// Options contains configuration options for Format.
type Options struct {
	RunTag    string
	Iteration string
}

// DefaultOptions contains the default configuration options.
var DefaultOptions = Options{
	RunTag:    DefaultRunTag,
	Iteration: DefaultIteration,
}

// WithRunTag sets the run tag column.
func WithRunTag(tag string) func(o *Options) {
	return func(o *Options) { o.RunTag = tag }
}

// WithIteration sets the iteration column.
func WithIteration(it string) func(o *Options) {
	return func(o *Options) { o.Iteration = it }
}

// AppendTo appends the tab separated line, with newline, to dst.
func (r Record) AppendTo(dst []byte, opts Options) []byte {
	dst = strconv.AppendInt(dst, int64(r.Query), 10)
	dst = append(dst, '\t')
	dst = append(dst, opts.Iteration...)
	dst = append(dst, '\t')
	dst = append(dst, r.Doc...)
	dst = append(dst, '\t')
	dst = strconv.AppendInt(dst, int64(r.Rank), 10)
	dst = append(dst, '\t')
	dst = AppendScore(dst, r.Score)
	dst = append(dst, '\t')
	dst = append(dst, opts.RunTag...)
	return append(dst, '\n')
}

// QueryKey returns the integer before the first "_" of a query id.
func QueryKey(id string) (int, bool) {
	prefix, _, _ := strings.Cut(id, "_")
	n, err := strconv.Atoi(prefix)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Records validates the search output and returns the rank records in
// output order. Query i must carry key i+1.
func Records(trainIDs, testIDs []string, positions [][]int, distances [][]float64) ([]Record, error) {
	if len(testIDs) != len(positions) || len(testIDs) != len(distances) {
		return nil, fmt.Errorf("%w: %d query ids, %d position lists, %d distance lists",
			ErrLengthMismatch, len(testIDs), len(positions), len(distances))
	}

	total := 0
	for i, id := range testIDs {
		if len(positions[i]) != len(distances[i]) {
			return nil, fmt.Errorf("%w: query %d (%s): %d positions, %d distances",
				ErrLengthMismatch, i, id, len(positions[i]), len(distances[i]))
		}
		want := i + 1
		got, ok := QueryKey(id)
		if !ok {
			return nil, &QueryKeyError{Index: i, ID: id, Want: want}
		}
		if got != want {
			return nil, &QueryKeyError{Index: i, ID: id, Want: want, Got: got, Parsed: true}
		}
		total += len(positions[i])
	}

	out := make([]Record, 0, total)
	for i := range testIDs {
		for j, p := range positions[i] {
			if p < 0 || p >= len(trainIDs) {
				return nil, fmt.Errorf("%w: query %d rank %d: position %d outside %d collection ids",
					ErrLengthMismatch, i, j+1, p, len(trainIDs))
			}
			out = append(out, Record{
				Query: i + 1,
				Doc:   trainIDs[p],
				Rank:  j + 1,
				Score: 1 - distances[i][j],
			})
		}
	}
	return out, nil
}

// Format validates the search output and writes the rank file to w. Nothing
// is written if validation fails.
func Format(w io.Writer, trainIDs, testIDs []string, positions [][]int, distances [][]float64, optFns ...func(o *Options)) error {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	recs, err := Records(trainIDs, testIDs, positions, distances)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	var line []byte
	for _, r := range recs {
		line = r.AppendTo(line[:0], opts)
		if _, err := bw.Write(line); err != nil {
			return err
		}
	}
	return bw.Flush()
}
