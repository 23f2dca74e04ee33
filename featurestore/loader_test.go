package featurestore

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/imgrank/blobstore"
	"github.com/hupe1980/imgrank/container"
	"github.com/hupe1980/imgrank/internal/errs"
	"github.com/hupe1980/imgrank/pooling"
	"github.com/hupe1980/imgrank/pretrained"
	"github.com/hupe1980/imgrank/tensor"
	"github.com/hupe1980/imgrank/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func putContainer(t *testing.T, store blobstore.BlobStore, name string, f *container.File) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, container.Write(&buf, f))
	require.NoError(t, store.Put(context.Background(), name, buf.Bytes()))
}

func channelFile(t *testing.T, n int) (*container.File, *tensor.Tensor4) {
	t.Helper()
	rng := testutil.NewRNG(11)
	feats := rng.Tensor4(tensor.Shape4{N: n, C: 3, H: 2, W: 2})
	names := make([]string, n)
	for i := range names {
		names[i] = string(rune('a'+i)) + "_1.jpg"
	}
	return &container.File{Names: names, Features: container.ArrayFromTensor4(feats)}, feats
}

func TestLoadPooled(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	f, feats := channelFile(t, 5)
	putContainer(t, store, "c.imgf", f)

	m, ids, err := Load(ctx, "c.imgf", func(o *Options) {
		o.Store = store
		o.WantsPooling = true
		o.Pooling.Policy = pooling.PolicyGeM
		o.Pooling.BatchSize = 2
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a_1", "b_1", "c_1", "d_1", "e_1"}, ids)

	want, err := pooling.Pool(ctx, feats, pooling.PolicyGeM)
	require.NoError(t, err)
	assert.Equal(t, want.Data(), m.Data())
}

func TestLoadPlainMatrix(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	putContainer(t, store, "m.imgf", &container.File{
		Names:    []string{"1_1.jpg", "2_1.jpg"},
		Features: container.Array{Shape: []int{2, 2}, Data: []float32{1, 2, 3, 4}},
	})

	// Pooling is not applied to 2-D features even when requested.
	m, ids, err := Load(ctx, "m.imgf", func(o *Options) {
		o.Store = store
		o.WantsPooling = true
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"1_1", "2_1"}, ids)
	assert.Equal(t, []float64{3, 4}, m.Row(1))
}

func TestLoadChannelTensorWithoutPooling(t *testing.T) {
	store := blobstore.NewMemoryStore()
	f, _ := channelFile(t, 2)
	putContainer(t, store, "c.imgf", f)

	_, _, err := Load(context.Background(), "c.imgf", func(o *Options) { o.Store = store })
	assert.ErrorIs(t, err, ErrChannelTensorWithoutPooling)
	assert.ErrorIs(t, err, errs.ErrConfig)
}

func TestLoadRowCountMismatch(t *testing.T) {
	store := blobstore.NewMemoryStore()
	f, _ := channelFile(t, 3)
	f.Names = f.Names[:2]
	putContainer(t, store, "bad.imgf", f)

	_, _, err := Load(context.Background(), "bad.imgf", func(o *Options) {
		o.Store = store
		o.WantsPooling = true
	})
	var rc *ErrRowCountMismatch
	require.True(t, errors.As(err, &rc))
	assert.Equal(t, "bad.imgf", rc.Path)
	assert.Equal(t, 3, rc.Rows)
	assert.Equal(t, 2, rc.IDs)
	assert.ErrorIs(t, err, errs.ErrDataIntegrity)
}

func TestLoadFollowArchitecture(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	f, feats := channelFile(t, 4)
	weights := container.Array{Shape: []int{3, 2}, Data: []float32{1, 0, 0, 1, 1, 1}}
	f.Weights = &weights
	putContainer(t, store, "c.imgf", f)

	head, err := pretrained.NewHead(pretrained.HeadSpec{
		Model: "convnext_base",
		Norm:  pretrained.NormSpec{Weight: []float64{1, 1, 1}, Bias: []float64{0, 0, 0}, Eps: 1e-6},
	})
	require.NoError(t, err)

	l, err := New(func(o *Options) {
		o.Store = store
		o.WantsPooling = true
		o.FollowArchitecture = true
		o.Head = head
	})
	require.NoError(t, err)

	res, err := l.Load(ctx, "c.imgf")
	require.NoError(t, err)
	require.NotNil(t, res.Projection)
	require.NotNil(t, res.Projection.Weights)

	want, err := pooling.Pool(ctx, feats, pooling.PolicySum)
	require.NoError(t, err)
	for i := 0; i < want.Rows(); i++ {
		head.Normalizer().Normalize(want.Row(i))
	}
	assert.True(t, testutil.AlmostEqual(want.Data(), res.Features.Data(), 1e-12))

	logits, err := res.Projection.Logits(res.Features)
	require.NoError(t, err)
	assert.Equal(t, 2, logits.Cols())
}

func TestNewValidation(t *testing.T) {
	_, err := New(func(o *Options) { o.FollowArchitecture = true })
	assert.ErrorIs(t, err, ErrMissingHead)

	_, err = New(func(o *Options) { o.FirstN, o.LastN = 1, 1 })
	assert.ErrorIs(t, err, errs.ErrConfig)

	_, err = New(func(o *Options) {
		o.WantsPooling = true
		o.Pooling.BatchSize = 0
	})
	assert.ErrorIs(t, err, errs.ErrConfig)
}

func TestLoadText(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	require.NoError(t, store.Put(ctx, "q.txt", []byte(
		"imgs/1_1.jpg\t1,0\nimgs/1_2.jpg\t0,1\nimgs/2_1.jpg\t1,1\n")))

	m, ids, err := Load(ctx, "q.txt", func(o *Options) {
		o.Store = store
		o.FirstVariantOnly = true
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"1_1", "2_1"}, ids)
	assert.Equal(t, []float64{1, 1}, m.Row(1))
}

func TestLimitsAndSelector(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	require.NoError(t, store.Put(ctx, "c.txt", []byte(
		"1_1.jpg\t1\n1_2.jpg\t2\n2_1.jpg\t3\n2_2.jpg\t4\n3_1.jpg\t5\n")))

	load := func(fn func(o *Options)) ([]string, []float64) {
		m, ids, err := Load(ctx, "c.txt", func(o *Options) {
			o.Store = store
			fn(o)
		})
		require.NoError(t, err)
		return ids, m.Data()
	}

	ids, data := load(func(o *Options) { o.FirstN = 2 })
	assert.Equal(t, []string{"1_1", "1_2"}, ids)
	assert.Equal(t, []float64{1, 2}, data)

	ids, data = load(func(o *Options) { o.LastN = 2 })
	assert.Equal(t, []string{"2_2", "3_1"}, ids)
	assert.Equal(t, []float64{4, 5}, data)

	sel, err := NewSelector(`variant == "1" && item >= 2`)
	require.NoError(t, err)
	ids, data = load(func(o *Options) { o.Select = sel })
	assert.Equal(t, []string{"2_1", "3_1"}, ids)
	assert.Equal(t, []float64{3, 5}, data)

	ids, _ = load(func(o *Options) {
		o.Select = sel
		o.FirstN = 1
	})
	assert.Equal(t, []string{"2_1"}, ids)
}

func TestSelectorErrors(t *testing.T) {
	_, err := NewSelector(`item +`)
	assert.ErrorIs(t, err, errs.ErrConfig)

	_, err = NewSelector(`item + 1`)
	assert.ErrorIs(t, err, errs.ErrConfig)

	sel, err := NewSelector(`row % 2 == 0 && id.startsWith("a")`)
	require.NoError(t, err)
	ok, err := sel.Match("abc", 2)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = sel.Match("abc", 1)
	require.NoError(t, err)
	assert.False(t, ok)

	sel, err = NewSelector(`item == -1`)
	require.NoError(t, err)
	ok, err = sel.Match("noprefix", 0)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLoadMissing(t *testing.T) {
	_, _, err := Load(context.Background(), "nope.imgf", func(o *Options) { o.Store = blobstore.NewMemoryStore() })
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}
