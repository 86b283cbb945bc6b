package math

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogSumExp(t *testing.T) {

	type test struct {
		values   []float64
		expected float64
	}

	tests := map[string]test{
		"simple": {
			values:   []float64{math.Log(1), math.Log(2), math.Log(3)},
			expected: math.Log(6),
		},
		"single": {
			values:   []float64{-3.5},
			expected: -3.5,
		},
		"large-magnitude": {
			// naive exponentiation overflows here
			values:   []float64{1000, 1000},
			expected: 1000 + math.Log(2),
		},
		"small-magnitude": {
			// naive exponentiation underflows to zero here
			values:   []float64{-1000, -1000},
			expected: -1000 + math.Log(2),
		},
		"mixed-with-inf": {
			values:   []float64{math.Inf(-1), 0},
			expected: 0,
		},
		"all-inf": {
			values:   []float64{math.Inf(-1), math.Inf(-1)},
			expected: math.Inf(-1),
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got := LogSumExp(tt.values)
			if math.IsInf(tt.expected, -1) {
				assert.True(t, math.IsInf(got, -1))
				return
			}
			assert.InDelta(t, tt.expected, got, 1e-12)
			assert.False(t, math.IsNaN(got))
		})
	}
}

func TestMaxIdx(t *testing.T) {
	assert.Equal(t, 2, MaxIdx([]float64{0.1, 0.2, 0.7}))
	assert.Equal(t, 0, MaxIdx([]float64{0.5, 0.5}))
	assert.Equal(t, 1, MaxIdx([]float64{math.Inf(-1), -5}))
}
