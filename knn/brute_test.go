package knn

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/imgrank/distance"
	"github.com/hupe1980/imgrank/internal/errs"
	"github.com/hupe1980/imgrank/tensor"
	"github.com/hupe1980/imgrank/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustMatrix(t *testing.T, rows [][]float64) *tensor.Matrix {
	t.Helper()
	m, err := tensor.FromRows(rows)
	require.NoError(t, err)
	return m
}

func TestNew(t *testing.T) {
	for _, name := range []string{"angular", "euclidean", "hamming"} {
		bf, err := New(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, bf.Metric().String())
		assert.Equal(t, "BruteForce()", bf.Name())
	}

	_, err := New("manhattan")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownMetric)
	assert.ErrorIs(t, err, errs.ErrConfig)
}

func TestQuery(t *testing.T) {
	ctx := context.Background()
	ref := mustMatrix(t, [][]float64{
		{1, 2, 3},
		{4, 5, 6},
		{7, 8, 9},
	})

	t.Run("Euclidean", func(t *testing.T) {
		bf, err := New("euclidean")
		require.NoError(t, err)
		require.NoError(t, bf.Fit(ref))

		q := mustMatrix(t, [][]float64{{0, 0, 0}})
		pos, dist, err := bf.QueryWithDistances(ctx, q, 2)
		require.NoError(t, err)
		assert.Equal(t, [][]int{{0, 1}}, pos)
		assert.InDelta(t, 3.7416573867739413, dist[0][0], 1e-12)
		assert.InDelta(t, 8.774964387392123, dist[0][1], 1e-12)
	})

	t.Run("PositionsOnly", func(t *testing.T) {
		bf, err := New("euclidean")
		require.NoError(t, err)
		require.NoError(t, bf.Fit(ref))

		pos, err := bf.Query(ctx, mustMatrix(t, [][]float64{{10, 10, 10}}), 3)
		require.NoError(t, err)
		assert.Equal(t, [][]int{{2, 1, 0}}, pos)
	})

	t.Run("Hamming", func(t *testing.T) {
		bf, err := New("hamming")
		require.NoError(t, err)
		require.NoError(t, bf.Fit(mustMatrix(t, [][]float64{
			{1, 0, 1, 0},
			{1, 1, 1, 1},
			{1, 0, 1, 1},
		})))

		pos, dist, err := bf.QueryWithDistances(ctx, mustMatrix(t, [][]float64{{1, 0, 1, 1}}), 3)
		require.NoError(t, err)
		assert.Equal(t, []int{2, 0, 1}, pos[0])
		assert.Equal(t, []float64{0, 0.25, 0.25}, dist[0])
	})

	t.Run("AngularZeroQuery", func(t *testing.T) {
		bf, err := New("angular")
		require.NoError(t, err)
		require.NoError(t, bf.Fit(ref))

		pos, dist, err := bf.QueryWithDistances(ctx, mustMatrix(t, [][]float64{{0, 0, 0}}), 3)
		require.NoError(t, err)
		assert.Equal(t, []int{0, 1, 2}, pos[0])
		for _, d := range dist[0] {
			assert.InDelta(t, 1, d, 1e-12)
		}
	})

	t.Run("FitDoesNotMutateReference", func(t *testing.T) {
		bf, err := New("angular")
		require.NoError(t, err)
		before := append([]float64(nil), ref.Data()...)
		require.NoError(t, bf.Fit(ref))
		assert.Equal(t, before, ref.Data())
	})
}

func TestSelfMatch(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(42)
	ref := rng.Matrix(50, 16)
	q := ref.SelectRows([]int{7, 31})

	for _, metric := range []string{"euclidean", "angular"} {
		t.Run(metric, func(t *testing.T) {
			bf, err := New(metric)
			require.NoError(t, err)
			require.NoError(t, bf.Fit(ref))

			pos, dist, err := bf.QueryWithDistances(ctx, q, 5)
			require.NoError(t, err)
			assert.Equal(t, 7, pos[0][0])
			assert.Equal(t, 31, pos[1][0])
			assert.InDelta(t, 0, dist[0][0], 1e-9)
			assert.InDelta(t, 0, dist[1][0], 1e-9)
			for _, d := range dist {
				for j := 1; j < len(d); j++ {
					assert.LessOrEqual(t, d[j-1], d[j])
				}
			}
		})
	}
}

func TestTiesBreakByRow(t *testing.T) {
	bf, err := New("euclidean")
	require.NoError(t, err)
	require.NoError(t, bf.Fit(mustMatrix(t, [][]float64{
		{1, 0},
		{0, 1},
		{-1, 0},
		{0, -1},
		{5, 5},
	})))

	pos, dist, err := bf.QueryWithDistances(context.Background(), mustMatrix(t, [][]float64{{0, 0}}), 4)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, pos[0])
	assert.Equal(t, []float64{1, 1, 1, 1}, dist[0])
}

func TestDeterministicAcrossWorkers(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(7)
	ref := rng.QuantizedMatrix(200, 8, 3)
	q := rng.QuantizedMatrix(37, 8, 3)

	run := func(workers int) ([][]int, [][]float64) {
		bf, err := New("euclidean", func(o *Options) { o.Workers = workers })
		require.NoError(t, err)
		require.NoError(t, bf.Fit(ref))
		pos, dist, err := bf.QueryWithDistances(ctx, q, 20)
		require.NoError(t, err)
		return pos, dist
	}

	pos1, dist1 := run(1)
	for _, w := range []int{2, 3, 8, 64} {
		pos, dist := run(w)
		assert.Equal(t, pos1, pos, "workers=%d", w)
		assert.Equal(t, dist1, dist, "workers=%d", w)
	}
}

func TestExcludeDuplicates(t *testing.T) {
	ref := mustMatrix(t, [][]float64{
		{1, 1},
		{2, 2},
		{1, 1},
		{3, 3},
	})

	bf, err := New("euclidean", func(o *Options) { o.ExcludeDuplicates = true })
	require.NoError(t, err)
	require.NoError(t, bf.Fit(ref))
	assert.Equal(t, 3, bf.Size())
	assert.Equal(t, 1, bf.Excluded())

	pos, err := bf.Query(context.Background(), mustMatrix(t, [][]float64{{1, 1}}), 3)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 3}, pos[0])

	_, err = bf.Query(context.Background(), mustMatrix(t, [][]float64{{1, 1}}), 4)
	assert.ErrorIs(t, err, ErrInvalidK)
}

func TestErrors(t *testing.T) {
	ctx := context.Background()
	q := mustMatrix(t, [][]float64{{1, 2}})

	bf, err := New("euclidean")
	require.NoError(t, err)

	_, err = bf.Query(ctx, q, 1)
	assert.ErrorIs(t, err, ErrNotFitted)

	require.NoError(t, bf.Fit(mustMatrix(t, [][]float64{{1, 2}, {3, 4}})))

	for _, k := range []int{0, -1, 3} {
		_, err = bf.Query(ctx, q, k)
		assert.ErrorIs(t, err, ErrInvalidK, "k=%d", k)
		assert.ErrorIs(t, err, errs.ErrConfig, "k=%d", k)
	}

	_, err = bf.Query(ctx, mustMatrix(t, [][]float64{{1, 2, 3}}), 1)
	var dm *ErrDimensionMismatch
	require.True(t, errors.As(err, &dm))
	assert.Equal(t, 2, dm.Expected)
	assert.Equal(t, 3, dm.Actual)
	assert.ErrorIs(t, err, errs.ErrDataIntegrity)

	err = bf.Fit(tensor.Zeros(0, 2))
	assert.ErrorIs(t, err, errs.ErrDataIntegrity)
}

func TestStats(t *testing.T) {
	bf, err := New("euclidean")
	require.NoError(t, err)
	require.NoError(t, bf.Fit(mustMatrix(t, [][]float64{{0, 0}, {3, 4}})))

	_, err = bf.Query(context.Background(), mustMatrix(t, [][]float64{{0, 0}, {3, 4}, {0, 4}}), 1)
	require.NoError(t, err)

	st := bf.Stats()
	assert.Equal(t, 3, st.Queries)
	assert.Equal(t, 1, st.K)
	assert.InDelta(t, 1.0, st.MeanNearest, 1e-12) // (0 + 0 + 3) / 3
}

func TestCanceledContext(t *testing.T) {
	bf, err := New("euclidean")
	require.NoError(t, err)
	require.NoError(t, bf.Fit(mustMatrix(t, [][]float64{{0, 0}})))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = bf.Query(ctx, mustMatrix(t, [][]float64{{1, 1}}), 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMatchesExhaustiveSort(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(11)
	ref := rng.QuantizedMatrix(120, 6, 4)
	q := rng.QuantizedMatrix(15, 6, 4)

	for _, metric := range []string{"euclidean", "hamming"} {
		t.Run(metric, func(t *testing.T) {
			bf, err := New(metric, func(o *Options) { o.Workers = 4 })
			require.NoError(t, err)
			require.NoError(t, bf.Fit(ref))

			pos, dist, err := bf.QueryWithDistances(ctx, q, 10)
			require.NoError(t, err)

			fn := distance.Euclidean
			if metric == "hamming" {
				fn = distance.Hamming
			}
			for i := 0; i < q.Rows(); i++ {
				wantPos, wantDist := testutil.ExactTopK(q.Row(i), ref, 10, fn)
				assert.Equal(t, wantPos, pos[i], "query %d", i)
				assert.Equal(t, wantDist, dist[i], "query %d", i)
			}
		})
	}
}
