// Package pretrained supplies the parts of a pretrained model head that
// pooled features are passed through when the backbone architecture is
// followed: the final normalization layer.
package pretrained

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/imgrank/blobstore"
	"github.com/hupe1980/imgrank/codec"
	"github.com/hupe1980/imgrank/internal/errs"
	"github.com/hupe1980/imgrank/pooling"
)

// Head is a model handle exposing its head normalization.
type Head interface {
	Model() string
	Normalizer() pooling.Normalizer
}

// HeadProvider resolves model handles by name.
type HeadProvider interface {
	Head(ctx context.Context, model string) (Head, error)
}

// NormSpec is the serialized form of a LayerNorm.
type NormSpec struct {
	Weight []float64 `json:"weight"`
	Bias   []float64 `json:"bias"`
	Eps    float64   `json:"eps"`
}

// HeadSpec is the serialized head file.
type HeadSpec struct {
	Model string   `json:"model"`
	Norm  NormSpec `json:"norm"`
}

type layerNormHead struct {
	model string
	norm  *pooling.LayerNorm
}

func (h *layerNormHead) Model() string                  { return h.model }
func (h *layerNormHead) Normalizer() pooling.Normalizer { return h.norm }

// NewHead builds a head from its spec.
func NewHead(spec HeadSpec) (Head, error) {
	ln, err := pooling.NewLayerNorm(spec.Norm.Weight, spec.Norm.Bias, spec.Norm.Eps)
	if err != nil {
		return nil, fmt.Errorf("pretrained: head %q: %w", spec.Model, err)
	}
	return &layerNormHead{model: spec.Model, norm: ln}, nil
}

// LoadHead reads a head file from the store. The codec defaults to go-json.
func LoadHead(ctx context.Context, store blobstore.BlobStore, name string, c codec.Codec) (Head, error) {
	data, err := blobstore.ReadAll(ctx, store, name)
	if err != nil {
		return nil, fmt.Errorf("pretrained: read head %s: %w", name, err)
	}
	if c == nil {
		c = codec.Default
	}
	var spec HeadSpec
	if err := c.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("%w: pretrained: decode head %s: %v", errs.ErrDataIntegrity, name, err)
	}
	return NewHead(spec)
}

// Registry is an in-memory HeadProvider.
type Registry struct {
	mu    sync.RWMutex
	heads map[string]Head
}

// NewRegistry returns a registry holding heads.
func NewRegistry(heads ...Head) *Registry {
	r := &Registry{heads: make(map[string]Head)}
	for _, h := range heads {
		r.Register(h)
	}
	return r
}

// Register adds or replaces a head.
func (r *Registry) Register(h Head) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.heads[h.Model()] = h
}

// Head implements HeadProvider.
func (r *Registry) Head(_ context.Context, model string) (Head, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.heads[model]
	if !ok {
		return nil, fmt.Errorf("%w: no pretrained head for model %q (known: %v)", errs.ErrConfig, model, r.models())
	}
	return h, nil
}

func (r *Registry) models() []string {
	out := make([]string, 0, len(r.heads))
	for m := range r.heads {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}
