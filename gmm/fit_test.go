package gmm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

func TestNewFitter_Validation(t *testing.T) {

	type test struct {
		tol     float64
		maxIter int
		err     error
	}

	tests := map[string]test{
		"valid":         {tol: 1e-3, maxIter: 100},
		"zero-tol":      {tol: 0, maxIter: 100, err: ConfigurationErr},
		"negative-tol":  {tol: -1, maxIter: 100, err: ConfigurationErr},
		"zero-budget":   {tol: 1e-3, maxIter: 0, err: ConfigurationErr},
		"negative-iter": {tol: 1e-3, maxIter: -5, err: ConfigurationErr},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			fitter, err := NewFitter(tt.tol, tt.maxIter)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, fitter)
		})
	}
}

func TestFitter_Fit_RecoverWellSeparated(t *testing.T) {
	reference := twoComponents1D(t)
	x, err := reference.Sample(10000, rand.New(rand.NewSource(0)))
	require.NoError(t, err)

	initial, err := KMeansSeeded{}.Initialize(x, 2, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	fitter, err := NewFitter(1e-4, 50)
	require.NoError(t, err)

	fitted, report, err := fitter.Fit(x, initial)
	require.NoError(t, err)

	assert.Equal(t, Converged, report.State)
	assert.True(t, report.Iterations < 50)
	assert.False(t, math.IsNaN(report.LogLikelihood))

	means := fitted.Means()
	lo := math.Min(means.At(0, 0), means.At(1, 0))
	hi := math.Max(means.At(0, 0), means.At(1, 0))
	assert.InDelta(t, -5, lo, 0.2)
	assert.InDelta(t, 5, hi, 0.2)

	sum := 0.0
	for _, w := range fitted.Weights() {
		assert.True(t, w >= 0)
		assert.InDelta(t, 0.5, w, 0.1)
		sum += w
	}
	assert.InDelta(t, 1, sum, 1e-6)
}

func TestFitter_Fit_Monotonic(t *testing.T) {
	reference := twoComponents1D(t)
	x, err := reference.Sample(2000, rand.New(rand.NewSource(2)))
	require.NoError(t, err)

	model, err := RandomPartition{}.Initialize(x, 2, rand.New(rand.NewSource(3)))
	require.NoError(t, err)

	// single-step fits expose the log-likelihood after every iteration
	prev := math.Inf(-1)
	for step := 0; step < 15; step++ {
		fitter, err := NewFitter(1e-12, 1)
		require.NoError(t, err)
		next, report, err := fitter.Fit(x, model)
		require.NoError(t, err)

		assert.True(t, report.LogLikelihood >= prev-1e-6,
			"log-likelihood decreased from %f to %f at step %d", prev, report.LogLikelihood, step)
		prev = report.LogLikelihood
		model = next
	}
}

func TestFitter_Fit_SnapshotStability(t *testing.T) {
	reference := twoComponents1D(t)
	x, err := reference.Sample(1000, rand.New(rand.NewSource(4)))
	require.NoError(t, err)

	initial, err := RandomPartition{}.Initialize(x, 2, rand.New(rand.NewSource(5)))
	require.NoError(t, err)
	before, err := initial.Score(x)
	require.NoError(t, err)

	fitter, err := NewFitter(1e-4, 30)
	require.NoError(t, err)
	fitted, _, err := fitter.Fit(x, initial)
	require.NoError(t, err)

	// the input model keeps its parameters, the fit only produced new ones
	after, err := initial.Score(x)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.NotSame(t, initial, fitted)
}

func TestFitter_Fit_Deterministic(t *testing.T) {
	reference := twoComponents1D(t)
	x, err := reference.Sample(2000, rand.New(rand.NewSource(6)))
	require.NoError(t, err)

	run := func() *mat.Dense {
		initial, err := KMeansSeeded{}.Initialize(x, 2, rand.New(rand.NewSource(7)))
		require.NoError(t, err)
		fitter, err := NewFitter(1e-4, 50)
		require.NoError(t, err)
		fitted, _, err := fitter.Fit(x, initial)
		require.NoError(t, err)
		return fitted.Means()
	}

	assert.True(t, mat.Equal(run(), run()))
}

func TestFitter_Fit_ExcessComponents(t *testing.T) {
	reference := twoComponents1D(t)
	x, err := reference.Sample(2000, rand.New(rand.NewSource(8)))
	require.NoError(t, err)

	initial, err := RandomPartition{}.Initialize(x, 5, rand.New(rand.NewSource(9)))
	require.NoError(t, err)

	fitter, err := NewFitter(1e-4, 60)
	require.NoError(t, err)
	fitted, report, err := fitter.Fit(x, initial)

	// more components than clusters must not blow up the decomposition
	require.NoError(t, err)
	assert.NotEqual(t, Failed, report.State)

	sum := 0.0
	for _, w := range fitted.Weights() {
		assert.False(t, math.IsNaN(w))
		assert.True(t, w >= 0)
		sum += w
	}
	assert.InDelta(t, 1, sum, 1e-6)

	means := fitted.Means()
	k, d := means.Dims()
	for i := 0; i < k; i++ {
		for j := 0; j < d; j++ {
			assert.False(t, math.IsNaN(means.At(i, j)))
		}
	}
}

func TestFitter_Fit_RepeatedPoint(t *testing.T) {
	// a degenerate data set with zero spread
	x := mat.NewDense(50, 2, nil)
	for i := 0; i < 50; i++ {
		x.Set(i, 0, 1.5)
		x.Set(i, 1, -2.5)
	}

	initial, err := RandomPartition{}.Initialize(x, 2, rand.New(rand.NewSource(10)))
	require.NoError(t, err)

	fitter, err := NewFitter(1e-4, 20)
	require.NoError(t, err)
	fitted, report, err := fitter.Fit(x, initial)

	require.NoError(t, err)
	assert.NotEqual(t, Failed, report.State)
	assert.False(t, math.IsNaN(report.LogLikelihood))

	score, err := fitted.Score(x)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(score))
}

func TestFitter_Fit_Diagonal(t *testing.T) {
	reference := twoComponents1D(t)
	x, err := reference.Sample(5000, rand.New(rand.NewSource(12)))
	require.NoError(t, err)

	initial, err := KMeansSeeded{Kind: Diagonal}.Initialize(x, 2, rand.New(rand.NewSource(13)))
	require.NoError(t, err)

	fitter, err := NewFitter(1e-4, 50)
	require.NoError(t, err)
	fitted, report, err := fitter.Fit(x, initial)
	require.NoError(t, err)
	assert.Equal(t, Converged, report.State)
	assert.Equal(t, Diagonal, fitted.Kind())

	means := fitted.Means()
	lo := math.Min(means.At(0, 0), means.At(1, 0))
	hi := math.Max(means.At(0, 0), means.At(1, 0))
	assert.InDelta(t, -5, lo, 0.3)
	assert.InDelta(t, 5, hi, 0.3)
}

func TestFitter_Revival(t *testing.T) {
	// component 1 receives no responsibility mass at all
	n := 100
	x := mat.NewDense(n, 1, nil)
	resp := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		x.Set(i, 0, float64(i))
		resp.Set(i, 0, 1)
	}

	prev, err := RandomPartition{}.Initialize(x, 2, rand.New(rand.NewSource(14)))
	require.NoError(t, err)

	fitter, err := NewFitter(1e-4, 10)
	require.NoError(t, err)
	next, err := fitter.mStep(x, resp, prev, 1e-6, 1)
	require.NoError(t, err)

	weights := next.Weights()
	// the collapsed component is floored, not zeroed and not NaN
	assert.True(t, weights[1] > 0)
	assert.True(t, weights[1] < 1e-3)
	assert.InDelta(t, 1, weights[0]+weights[1], 1e-9)

	// its mean was re-seeded from one of the data points
	means := next.Means()
	seeded := means.At(1, 0)
	assert.False(t, math.IsNaN(seeded))
	assert.True(t, seeded == math.Trunc(seeded) && seeded >= 0 && seeded < float64(n))

	score, err := next.Score(x)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(score))
}

func TestFitter_Fit_InvalidShape(t *testing.T) {
	model := twoComponents1D(t)
	fitter, err := NewFitter(1e-4, 10)
	require.NoError(t, err)

	_, report, err := fitter.Fit(mat.NewDense(10, 3, nil), model)
	assert.ErrorIs(t, err, InvalidShapeErr)
	assert.Equal(t, Failed, report.State)
}
