package rankfile

import (
	"math"
	"strconv"
	"strings"
)

// FormatScore renders v like Python's repr of a float: the shortest string
// that round-trips, fixed notation for decimal exponents in [-4, 16) with a
// trailing ".0" for integral values, scientific notation otherwise.
func FormatScore(v float64) string {
	return string(AppendScore(nil, v))
}

// AppendScore appends FormatScore(v) to dst.
func AppendScore(dst []byte, v float64) []byte {
	switch {
	case math.IsNaN(v):
		return append(dst, "nan"...)
	case math.IsInf(v, 1):
		return append(dst, "inf"...)
	case math.IsInf(v, -1):
		return append(dst, "-inf"...)
	case v == 0:
		if math.Signbit(v) {
			return append(dst, "-0.0"...)
		}
		return append(dst, "0.0"...)
	}

	sci := strconv.FormatFloat(v, 'e', -1, 64)
	exp, _ := strconv.Atoi(sci[strings.IndexByte(sci, 'e')+1:])
	if exp < -4 || exp >= 16 {
		return append(dst, sci...)
	}

	start := len(dst)
	dst = strconv.AppendFloat(dst, v, 'f', -1, 64)
	if !strings.Contains(string(dst[start:]), ".") {
		dst = append(dst, ".0"...)
	}
	return dst
}
