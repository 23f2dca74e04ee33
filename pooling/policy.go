package pooling

import (
	"fmt"
	"math"

	"github.com/hupe1980/imgrank/internal/errs"
)

// ErrUnknownPolicy is returned for a pooling policy name outside the closed set.
var ErrUnknownPolicy = fmt.Errorf("%w: unknown pooling policy", errs.ErrConfig)

// Policy selects how a channel map is reduced to a scalar.
type Policy int

const (
	PolicySum Policy = iota
	PolicyMax
	PolicyGeM
	PolicyChannelWise
	PolicySpatialWise
)

// Default GeM parameters.
const (
	DefaultGeMP   = 3.0
	DefaultGeMEps = 1e-6
)

var policyNames = [...]string{
	PolicySum:         "sum",
	PolicyMax:         "max",
	PolicyGeM:         "gem",
	PolicyChannelWise: "channel_wise_weighting",
	PolicySpatialWise: "spatial_wise_weighting",
}

func (p Policy) String() string {
	if p.Valid() {
		return policyNames[p]
	}
	return fmt.Sprintf("unknown(%d)", int(p))
}

// Valid reports whether p is one of the defined policies.
func (p Policy) Valid() bool {
	return p >= PolicySum && p <= PolicySpatialWise
}

// ParsePolicy maps a policy name to its Policy.
func ParsePolicy(name string) (Policy, error) {
	for p, n := range policyNames {
		if n == name {
			return Policy(p), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
}

// Policies returns all policy names in declaration order.
func Policies() []string {
	return append([]string(nil), policyNames[:]...)
}

// Func reduces one item laid out as C channel maps of sp values each into
// out (length C). h and w describe the spatial layout (h*w == sp).
type Func func(item []float64, c, h, w int, out []float64)

func reducer(p Policy, gemP, gemEps float64) Func {
	switch p {
	case PolicySum:
		return Sum
	case PolicyMax:
		return Max
	case PolicyGeM:
		return func(item []float64, c, h, w int, out []float64) {
			GeM(item, c, h, w, gemP, gemEps, out)
		}
	case PolicyChannelWise:
		return ChannelWise
	case PolicySpatialWise:
		return SpatialWise
	default:
		return nil
	}
}

// Sum writes the spatial sum of every channel.
func Sum(item []float64, c, h, w int, out []float64) {
	sp := h * w
	for ch := 0; ch < c; ch++ {
		var s float64
		for _, v := range item[ch*sp : (ch+1)*sp] {
			s += v
		}
		out[ch] = s
	}
}

// Max writes the spatial maximum of every channel.
func Max(item []float64, c, h, w int, out []float64) {
	sp := h * w
	for ch := 0; ch < c; ch++ {
		m := math.Inf(-1)
		for _, v := range item[ch*sp : (ch+1)*sp] {
			if v > m {
				m = v
			}
		}
		out[ch] = m
	}
}

// GeM writes the generalized mean (mean(max(x, eps)^p))^(1/p) of every channel.
func GeM(item []float64, c, h, w int, p, eps float64, out []float64) {
	sp := h * w
	for ch := 0; ch < c; ch++ {
		var s float64
		for _, v := range item[ch*sp : (ch+1)*sp] {
			s += math.Pow(math.Max(v, eps), p)
		}
		out[ch] = math.Pow(s/float64(sp), 1/p)
	}
}

// ChannelWise weights every channel by the softmax, taken over channels, of
// the channel sums, then writes the spatial mean of the weighted maps.
func ChannelWise(item []float64, c, h, w int, out []float64) {
	sp := h * w
	weights := make([]float64, c)
	Sum(item, c, h, w, weights)
	softmax(weights)

	for ch := 0; ch < c; ch++ {
		var s float64
		for _, v := range item[ch*sp : (ch+1)*sp] {
			s += v * weights[ch]
		}
		out[ch] = s / float64(sp)
	}
}

// SpatialWise builds a spatial importance map from the channel sum, applies a
// softmax along the H axis for every column and then a softmax along the W
// axis, for every row, of that already normalized map. Every channel map is
// multiplied by the result and averaged.
//
// The second softmax consumes the output of the first, not the raw sums.
// Existing rank files depend on this compounding.
func SpatialWise(item []float64, c, h, w int, out []float64) {
	sp := h * w
	m := make([]float64, sp)
	for ch := 0; ch < c; ch++ {
		for i, v := range item[ch*sp : (ch+1)*sp] {
			m[i] += v
		}
	}

	col := make([]float64, h)
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			col[y] = m[y*w+x]
		}
		softmax(col)
		for y := 0; y < h; y++ {
			m[y*w+x] = col[y]
		}
	}
	for y := 0; y < h; y++ {
		softmax(m[y*w : (y+1)*w])
	}

	for ch := 0; ch < c; ch++ {
		var s float64
		for i, v := range item[ch*sp : (ch+1)*sp] {
			s += v * m[i]
		}
		out[ch] = s / float64(sp)
	}
}

// Sigmoid applies the logistic function to every element of x in place.
func Sigmoid(x []float64) {
	for i, v := range x {
		x[i] = 1 / (1 + math.Exp(-v))
	}
}

func softmax(x []float64) {
	if len(x) == 0 {
		return
	}
	m := x[0]
	for _, v := range x[1:] {
		if v > m {
			m = v
		}
	}
	var s float64
	for i, v := range x {
		e := math.Exp(v - m)
		x[i] = e
		s += e
	}
	for i := range x {
		x[i] /= s
	}
}
