package math

import (
	"math"
	"strconv"
)

// Format formats a float for compact log and report output
func Format(f float64) string {
	return strconv.FormatFloat(f, 'f', 4, 64)
}

// LogSumExp computes log(sum(exp(xx))) without overflowing for large values
// or underflowing to zero for very negative ones.
// NOTE : an input of only -Inf values yields -Inf and never NaN
func LogSumExp(xx []float64) float64 {
	max := math.Inf(-1)
	for _, x := range xx {
		if x > max {
			max = x
		}
	}
	if math.IsInf(max, 0) {
		return max
	}
	sum := 0.0
	for _, x := range xx {
		sum += math.Exp(x - max)
	}
	return max + math.Log(sum)
}

// MaxIdx returns the index of the largest value.
// NOTE : for equal values the first index wins
func MaxIdx(xx []float64) int {
	idx := 0
	max := math.Inf(-1)
	for i, x := range xx {
		if x > max {
			max = x
			idx = i
		}
	}
	return idx
}
