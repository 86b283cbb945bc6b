package gmm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestCovariances_LogDet(t *testing.T) {

	type test struct {
		kind     CovKind
		values   []float64
		expected float64
	}

	tests := map[string]test{
		"full-identity": {
			kind:     Full,
			values:   []float64{1, 0, 0, 1},
			expected: 0,
		},
		"full-scaled": {
			kind:     Full,
			values:   []float64{2, 0, 0, 3},
			expected: math.Log(6),
		},
		"full-correlated": {
			kind:   Full,
			values: []float64{2, 1, 1, 2},
			// det = 2*2 - 1*1
			expected: math.Log(3),
		},
		"diagonal": {
			kind:     Diagonal,
			values:   []float64{2, 3},
			expected: math.Log(6),
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			cov, err := NewCovariances(tt.kind, 1, 2)
			require.NoError(t, err)
			require.NoError(t, cov.Update(0, tt.values, 0))

			logDet, err := cov.LogDet(0)
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, logDet, 1e-9)
		})
	}
}

func TestCovariances_MahalanobisSq(t *testing.T) {
	cov, err := NewCovariances(Full, 1, 2)
	require.NoError(t, err)
	require.NoError(t, cov.Update(0, []float64{4, 0, 0, 1}, 0))

	x := mat.NewDense(3, 2, []float64{
		0, 0,
		2, 0,
		2, 1,
	})
	maha, err := cov.MahalanobisSq(0, x, []float64{0, 0})
	require.NoError(t, err)

	// variances 4 and 1 : (2^2)/4 = 1 , plus (1^2)/1 = 1
	assert.InDelta(t, 0, maha[0], 1e-9)
	assert.InDelta(t, 1, maha[1], 1e-9)
	assert.InDelta(t, 2, maha[2], 1e-9)

	diag, err := NewCovariances(Diagonal, 1, 2)
	require.NoError(t, err)
	require.NoError(t, diag.Update(0, []float64{4, 1}, 0))
	mahaDiag, err := diag.MahalanobisSq(0, x, []float64{0, 0})
	require.NoError(t, err)
	for i := range maha {
		assert.InDelta(t, maha[i], mahaDiag[i], 1e-9)
	}
}

func TestCovariances_CacheInvalidation(t *testing.T) {
	cov, err := NewCovariances(Full, 2, 2)
	require.NoError(t, err)

	logDet, err := cov.LogDet(0)
	require.NoError(t, err)
	assert.InDelta(t, 0, logDet, 1e-9)

	// updating component 0 must invalidate its cached factor
	require.NoError(t, cov.Update(0, []float64{2, 0, 0, 3}, 0))
	logDet, err = cov.LogDet(0)
	require.NoError(t, err)
	assert.InDelta(t, math.Log(6), logDet, 1e-9)

	// component 1 keeps its identity
	logDet, err = cov.LogDet(1)
	require.NoError(t, err)
	assert.InDelta(t, 0, logDet, 1e-9)
}

func TestCovariances_Regularization(t *testing.T) {
	cov, err := NewCovariances(Full, 1, 2)
	require.NoError(t, err)

	// rank-deficient estimate becomes positive-definite through eps
	require.NoError(t, cov.Update(0, []float64{0, 0, 0, 0}, 1e-6))
	logDet, err := cov.LogDet(0)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(logDet))
	assert.InDelta(t, 2*math.Log(1e-6), logDet, 1e-6)
}

func TestCovariances_Singular(t *testing.T) {
	cov, err := NewCovariances(Full, 1, 2)
	require.NoError(t, err)
	require.NoError(t, cov.Update(0, []float64{0, 0, 0, 0}, 0))

	_, err = cov.LogDet(0)
	assert.ErrorIs(t, err, SingularCovarianceErr)

	diag, err := NewCovariances(Diagonal, 1, 2)
	require.NoError(t, err)
	require.NoError(t, diag.Update(0, []float64{0, 1}, 0))
	_, err = diag.LogDet(0)
	assert.ErrorIs(t, err, SingularCovarianceErr)
}

func TestCovariances_Errors(t *testing.T) {
	_, err := NewCovariances("spherical", 1, 2)
	assert.ErrorIs(t, err, ConfigurationErr)

	_, err = NewCovariances(Full, 0, 2)
	assert.ErrorIs(t, err, ConfigurationErr)

	cov, err := NewCovariances(Full, 1, 2)
	require.NoError(t, err)

	assert.ErrorIs(t, cov.Update(0, []float64{1, 2, 3}, 0), InvalidShapeErr)
	assert.ErrorIs(t, cov.Update(5, []float64{1, 0, 0, 1}, 0), InvalidShapeErr)
	_, err = cov.LogDet(-1)
	assert.ErrorIs(t, err, InvalidShapeErr)
}

func TestCovariances_ApplyFactor(t *testing.T) {
	cov, err := NewCovariances(Full, 1, 2)
	require.NoError(t, err)
	require.NoError(t, cov.Update(0, []float64{4, 0, 0, 9}, 0))

	out, err := cov.ApplyFactor(0, []float64{1, 1})
	require.NoError(t, err)
	assert.InDelta(t, 2, out[0], 1e-9)
	assert.InDelta(t, 3, out[1], 1e-9)
}
