package pooling

import (
	"fmt"
	"math"

	"github.com/hupe1980/imgrank/internal/errs"
	"github.com/hupe1980/imgrank/tensor"
	"gonum.org/v1/gonum/mat"
)

// Normalizer is the final normalization stage of a pretrained model head.
// It transforms the C channel values of one item in place, which is the same
// as applying it to a (1, C, 1, 1) tensor and squeezing the result.
type Normalizer interface {
	Normalize(v []float64)
	Dim() int
}

// LayerNorm normalizes over channels with fixed affine parameters:
// y = (x - mean) / sqrt(var + eps) * weight + bias, with the biased variance.
type LayerNorm struct {
	Weight []float64
	Bias   []float64
	Eps    float64
}

// NewLayerNorm validates and returns a LayerNorm.
func NewLayerNorm(weight, bias []float64, eps float64) (*LayerNorm, error) {
	if len(weight) == 0 || len(weight) != len(bias) {
		return nil, fmt.Errorf("%w: layer norm weight/bias sizes %d/%d",
			errs.ErrDataIntegrity, len(weight), len(bias))
	}
	if eps <= 0 {
		eps = 1e-6
	}
	return &LayerNorm{Weight: weight, Bias: bias, Eps: eps}, nil
}

// Dim returns the number of channels.
func (l *LayerNorm) Dim() int { return len(l.Weight) }

// Normalize implements Normalizer.
func (l *LayerNorm) Normalize(v []float64) {
	n := float64(len(v))
	var mean float64
	for _, x := range v {
		mean += x
	}
	mean /= n

	var variance float64
	for _, x := range v {
		d := x - mean
		variance += d * d
	}
	variance /= n

	inv := 1 / math.Sqrt(variance+l.Eps)
	for i, x := range v {
		v[i] = (x-mean)*inv*l.Weight[i] + l.Bias[i]
	}
}

// Projection carries the head parameters used in architecture-matching mode.
type Projection struct {
	// Weights is the transposed classifier weight matrix (C, K). Optional.
	Weights *tensor.Matrix
	// Norm is the head normalization. Required.
	Norm Normalizer
}

// Validate checks the projection against the pooled channel count.
func (p *Projection) Validate(channels int) error {
	if p.Norm == nil {
		return fmt.Errorf("%w: projection without head normalization", errs.ErrConfig)
	}
	if p.Norm.Dim() != channels {
		return fmt.Errorf("%w: head normalization has %d channels, features have %d",
			errs.ErrDataIntegrity, p.Norm.Dim(), channels)
	}
	if p.Weights != nil && p.Weights.Rows() != channels {
		return fmt.Errorf("%w: classifier weights have %d rows, features have %d channels",
			errs.ErrDataIntegrity, p.Weights.Rows(), channels)
	}
	return nil
}

// Apply normalizes every row of m in place.
func (p *Projection) Apply(m *tensor.Matrix) {
	for i := 0; i < m.Rows(); i++ {
		p.Norm.Normalize(m.Row(i))
	}
}

// Logits projects normalized features (N, C) through the classifier weights
// (C, K), yielding (N, K) class scores.
func (p *Projection) Logits(m *tensor.Matrix) (*tensor.Matrix, error) {
	if p.Weights == nil {
		return nil, fmt.Errorf("%w: no classifier weights", errs.ErrConfig)
	}
	if m.Cols() != p.Weights.Rows() {
		return nil, fmt.Errorf("%w: features have %d channels, classifier expects %d",
			errs.ErrDataIntegrity, m.Cols(), p.Weights.Rows())
	}
	if m.Rows() == 0 {
		return tensor.Zeros(0, p.Weights.Cols()), nil
	}

	var out mat.Dense
	out.Mul(m.Dense(), p.Weights.Dense())
	return tensor.FromDense(&out), nil
}
