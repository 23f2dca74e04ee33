package pooling

import (
	"context"
	"math"
	"testing"

	"github.com/hupe1980/imgrank/internal/errs"
	"github.com/hupe1980/imgrank/resource"
	"github.com/hupe1980/imgrank/tensor"
	"github.com/hupe1980/imgrank/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePolicy(t *testing.T) {
	for _, name := range Policies() {
		p, err := ParsePolicy(name)
		require.NoError(t, err)
		assert.Equal(t, name, p.String())
	}

	_, err := ParsePolicy("avg")
	assert.ErrorIs(t, err, ErrUnknownPolicy)
	assert.ErrorIs(t, err, errs.ErrConfig)
}

func TestNewEngineValidation(t *testing.T) {
	_, err := NewEngine(func(o *Options) { o.BatchSize = 0 })
	assert.ErrorIs(t, err, errs.ErrConfig)

	_, err = NewEngine(func(o *Options) { o.Policy = Policy(42) })
	assert.ErrorIs(t, err, ErrUnknownPolicy)

	_, err = NewEngine(func(o *Options) { o.Projection = &Projection{} })
	assert.ErrorIs(t, err, errs.ErrConfig)
}

func TestPoolShape(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(1)
	in := rng.Tensor4(tensor.Shape4{N: 7, C: 5, H: 3, W: 4})

	for _, name := range Policies() {
		t.Run(name, func(t *testing.T) {
			p, err := ParsePolicy(name)
			require.NoError(t, err)

			out, err := Pool(ctx, in, p)
			require.NoError(t, err)
			assert.Equal(t, 7, out.Rows())
			assert.Equal(t, 5, out.Cols())
		})
	}
}

func TestPoolBatchInvariance(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(2)
	in := rng.Tensor4(tensor.Shape4{N: 11, C: 4, H: 2, W: 3})

	for _, name := range Policies() {
		p, _ := ParsePolicy(name)

		whole, err := Pool(ctx, in, p, func(o *Options) { o.BatchSize = 100 })
		require.NoError(t, err)

		for _, bs := range []int{1, 3, 4, 11} {
			batched, err := Pool(ctx, in, p, func(o *Options) { o.BatchSize = bs })
			require.NoError(t, err)
			assert.Equal(t, whole.Data(), batched.Data(), "%s batch=%d", name, bs)
		}
	}
}

func TestSum(t *testing.T) {
	in, err := tensor.NewTensor4(tensor.Shape4{N: 1, C: 2, H: 2, W: 2}, []float32{
		1, 2, 3, 4,
		-1, 0, 0.5, 0.5,
	})
	require.NoError(t, err)

	out, err := Pool(context.Background(), in, PolicySum)
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 0}, out.Row(0))
}

func TestMax(t *testing.T) {
	in, err := tensor.NewTensor4(tensor.Shape4{N: 1, C: 2, H: 1, W: 3}, []float32{
		-3, -1, -2,
		5, 9, 1,
	})
	require.NoError(t, err)

	out, err := Pool(context.Background(), in, PolicyMax)
	require.NoError(t, err)
	assert.Equal(t, []float64{-1, 9}, out.Row(0))
}

func TestGeMWithUnitExponentIsMean(t *testing.T) {
	rng := testutil.NewRNG(3)
	in := rng.Tensor4(tensor.Shape4{N: 2, C: 3, H: 4, W: 4})
	// Positive inputs keep the eps clamp out of the way.
	for i, v := range in.Data() {
		in.Data()[i] = float32(math.Abs(float64(v))) + 0.1
	}

	out, err := Pool(context.Background(), in, PolicyGeM, func(o *Options) { o.GeMP = 1 })
	require.NoError(t, err)

	sum, err := Pool(context.Background(), in, PolicySum)
	require.NoError(t, err)

	for i := range out.Data() {
		assert.InDelta(t, sum.Data()[i]/16, out.Data()[i], 1e-9)
	}
}

func TestGeMClampsNonPositive(t *testing.T) {
	in, err := tensor.NewTensor4(tensor.Shape4{N: 1, C: 1, H: 1, W: 2}, []float32{-5, 0})
	require.NoError(t, err)

	out, err := Pool(context.Background(), in, PolicyGeM)
	require.NoError(t, err)
	assert.InDelta(t, DefaultGeMEps, out.At(0, 0), 1e-12)
}

func TestChannelWise(t *testing.T) {
	in, err := tensor.NewTensor4(tensor.Shape4{N: 1, C: 2, H: 1, W: 2}, []float32{
		1, 1,
		0, 0,
	})
	require.NoError(t, err)

	out, err := Pool(context.Background(), in, PolicyChannelWise)
	require.NoError(t, err)

	// Channel sums are 2 and 0.
	w0 := math.Exp(2) / (math.Exp(2) + 1)
	assert.InDelta(t, w0, out.At(0, 0), 1e-12)
	assert.InDelta(t, 0, out.At(0, 1), 1e-12)
}

func TestSpatialWiseCompoundsSoftmax(t *testing.T) {
	in, err := tensor.NewTensor4(tensor.Shape4{N: 1, C: 1, H: 2, W: 2}, []float32{1, 2, 3, 4})
	require.NoError(t, err)

	out, err := Pool(context.Background(), in, PolicySpatialWise)
	require.NoError(t, err)

	// The softmax over H yields identical rows, so the softmax over W makes
	// every weight 0.5: mean([1 2 3 4] * 0.5).
	assert.InDelta(t, 1.25, out.At(0, 0), 1e-12)

	// A single softmax over H would give a different answer.
	lo := math.Exp(-2) / (1 + math.Exp(-2))
	hi := 1 - lo
	single := (1*lo + 2*lo + 3*hi + 4*hi) / 4
	assert.Greater(t, math.Abs(out.At(0, 0)-single), 0.1)
}

func TestSpatialWiseGeneral(t *testing.T) {
	in, err := tensor.NewTensor4(tensor.Shape4{N: 1, C: 2, H: 2, W: 3}, []float32{
		0.1, 0.2, 0.3,
		0.4, 0.5, 0.6,
		1, 0, 1,
		0, 1, 0,
	})
	require.NoError(t, err)

	out, err := Pool(context.Background(), in, PolicySpatialWise)
	require.NoError(t, err)

	m := [][]float64{{1.1, 0.2, 1.3}, {0.4, 1.5, 0.6}}
	for x := 0; x < 3; x++ {
		a, b := math.Exp(m[0][x]), math.Exp(m[1][x])
		m[0][x], m[1][x] = a/(a+b), b/(a+b)
	}
	for y := 0; y < 2; y++ {
		var s float64
		for x := 0; x < 3; x++ {
			s += math.Exp(m[y][x])
		}
		for x := 0; x < 3; x++ {
			m[y][x] = math.Exp(m[y][x]) / s
		}
	}

	for c := 0; c < 2; c++ {
		var want float64
		for y := 0; y < 2; y++ {
			for x := 0; x < 3; x++ {
				want += float64(in.At(0, c, y, x)) * m[y][x]
			}
		}
		assert.InDelta(t, want/6, out.At(0, c), 1e-6)
	}
}

func TestChannelPermutationEquivariance(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(4)
	shape := tensor.Shape4{N: 3, C: 6, H: 2, W: 2}
	in := rng.Tensor4(shape)
	perm := rng.Permutation(shape.C)

	permuted := tensor.ZerosTensor4(shape)
	for n := 0; n < shape.N; n++ {
		for c := 0; c < shape.C; c++ {
			copy(permuted.Channel(n, c), in.Channel(n, perm[c]))
		}
	}

	for _, name := range Policies() {
		p, _ := ParsePolicy(name)
		a, err := Pool(ctx, in, p)
		require.NoError(t, err)
		b, err := Pool(ctx, permuted, p)
		require.NoError(t, err)

		for n := 0; n < shape.N; n++ {
			for c := 0; c < shape.C; c++ {
				assert.InDelta(t, a.At(n, perm[c]), b.At(n, c), 1e-9, name)
			}
		}
	}
}

func TestSigmoid(t *testing.T) {
	in, err := tensor.NewTensor4(tensor.Shape4{N: 1, C: 1, H: 1, W: 2}, []float32{0, 0})
	require.NoError(t, err)

	out, err := Pool(context.Background(), in, PolicySum, func(o *Options) { o.Sigmoid = true })
	require.NoError(t, err)
	assert.InDelta(t, 1.0, out.At(0, 0), 1e-12)
}

func TestProjection(t *testing.T) {
	ln, err := NewLayerNorm([]float64{1, 1}, []float64{0, 0}, 1e-6)
	require.NoError(t, err)

	in, err := tensor.NewTensor4(tensor.Shape4{N: 1, C: 2, H: 1, W: 1}, []float32{1, 3})
	require.NoError(t, err)

	out, err := Pool(context.Background(), in, PolicySum, func(o *Options) {
		o.Projection = &Projection{Norm: ln}
	})
	require.NoError(t, err)
	assert.InDelta(t, -1, out.At(0, 0), 1e-5)
	assert.InDelta(t, 1, out.At(0, 1), 1e-5)

	bad, err := NewLayerNorm([]float64{1, 1, 1}, []float64{0, 0, 0}, 1e-6)
	require.NoError(t, err)
	_, err = Pool(context.Background(), in, PolicySum, func(o *Options) {
		o.Projection = &Projection{Norm: bad}
	})
	assert.ErrorIs(t, err, errs.ErrDataIntegrity)
}

func TestProjectionAcrossBatches(t *testing.T) {
	rng := testutil.NewRNG(11)
	in := rng.Tensor4(tensor.Shape4{N: 5, C: 4, H: 2, W: 3})
	ln, err := NewLayerNorm([]float64{1, 2, 0.5, 1}, []float64{0, 0.1, -0.1, 0}, 1e-6)
	require.NoError(t, err)
	proj := &Projection{Norm: ln}

	want, err := Pool(context.Background(), in, PolicyGeM)
	require.NoError(t, err)
	proj.Apply(want)

	got, err := Pool(context.Background(), in, PolicyGeM, func(o *Options) {
		o.BatchSize = 2
		o.Projection = proj
	})
	require.NoError(t, err)
	for i := 0; i < want.Rows(); i++ {
		assert.InDeltaSlice(t, want.Row(i), got.Row(i), 1e-12, "row %d", i)
	}
}

func TestLogits(t *testing.T) {
	ln, err := NewLayerNorm([]float64{1, 1}, []float64{0, 0}, 1e-6)
	require.NoError(t, err)
	weights, err := tensor.FromRows([][]float64{{1, 0, 2}, {0, 1, 2}})
	require.NoError(t, err)
	proj := &Projection{Weights: weights, Norm: ln}

	feats, err := tensor.FromRows([][]float64{{1, 2}, {3, 4}})
	require.NoError(t, err)

	logits, err := proj.Logits(feats)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 6}, logits.Row(0))
	assert.Equal(t, []float64{3, 4, 14}, logits.Row(1))

	_, err = (&Projection{Norm: ln}).Logits(feats)
	assert.ErrorIs(t, err, errs.ErrConfig)
}

func TestPoolRespectsController(t *testing.T) {
	rng := testutil.NewRNG(5)
	in := rng.Tensor4(tensor.Shape4{N: 9, C: 2, H: 2, W: 2})
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 1 << 20})

	e, err := NewEngine(func(o *Options) {
		o.BatchSize = 4
		o.Controller = rc
	})
	require.NoError(t, err)

	var batches []int
	e.OnBatch = func(s BatchStats) { batches = append(batches, s.Items) }

	_, err = e.Pool(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 4, 1}, batches)
	assert.Equal(t, int64(0), rc.MemoryUsage())
	assert.Equal(t, int64(4*8*8), rc.PeakMemoryUsage())
}

func TestPoolCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rng := testutil.NewRNG(6)
	_, err := Pool(ctx, rng.Tensor4(tensor.Shape4{N: 2, C: 1, H: 1, W: 1}), PolicySum)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPoolEmpty(t *testing.T) {
	out, err := Pool(context.Background(), tensor.ZerosTensor4(tensor.Shape4{N: 0, C: 3, H: 1, W: 1}), PolicyMax)
	require.NoError(t, err)
	assert.Equal(t, 0, out.Rows())
	assert.Equal(t, 3, out.Cols())
}
