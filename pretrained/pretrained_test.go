package pretrained

import (
	"context"
	"testing"

	"github.com/hupe1980/imgrank/blobstore"
	"github.com/hupe1980/imgrank/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadHead(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	require.NoError(t, store.Put(ctx, "convnext.json", []byte(
		`{"model":"convnext_base","norm":{"weight":[2,2],"bias":[1,1],"eps":1e-6}}`)))

	h, err := LoadHead(ctx, store, "convnext.json", nil)
	require.NoError(t, err)
	assert.Equal(t, "convnext_base", h.Model())
	assert.Equal(t, 2, h.Normalizer().Dim())

	v := []float64{0, 2}
	h.Normalizer().Normalize(v)
	assert.InDelta(t, -1, v[0], 1e-5)
	assert.InDelta(t, 3, v[1], 1e-5)
}

func TestLoadHeadErrors(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	_, err := LoadHead(ctx, store, "missing.json", nil)
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	require.NoError(t, store.Put(ctx, "bad.json", []byte(`{"model":`)))
	_, err = LoadHead(ctx, store, "bad.json", nil)
	assert.ErrorIs(t, err, errs.ErrDataIntegrity)

	require.NoError(t, store.Put(ctx, "sizes.json", []byte(`{"model":"m","norm":{"weight":[1],"bias":[1,2]}}`)))
	_, err = LoadHead(ctx, store, "sizes.json", nil)
	assert.ErrorIs(t, err, errs.ErrDataIntegrity)
}

func TestRegistry(t *testing.T) {
	h, err := NewHead(HeadSpec{Model: "m", Norm: NormSpec{Weight: []float64{1}, Bias: []float64{0}}})
	require.NoError(t, err)

	r := NewRegistry(h)
	got, err := r.Head(context.Background(), "m")
	require.NoError(t, err)
	assert.Same(t, h, got)

	_, err = r.Head(context.Background(), "other")
	assert.ErrorIs(t, err, errs.ErrConfig)
}
