package stats

import "math"

// Stats is a set of statistical properties of a stream of numbers.
// It tracks mean and variance incrementally, so that a full data set
// can be summarised in one pass without keeping it in memory.
type Stats struct {
	count          int
	sum            float64
	min, max       float64
	mean, dSquared float64
}

// NewStats creates a new Stats.
func NewStats() *Stats {
	return &Stats{
		min: math.MaxFloat64,
		max: -math.MaxFloat64,
	}
}

// Push adds another element to the set.
func (s *Stats) Push(v float64) {
	s.count++
	s.sum += v
	diff := (v - s.mean) / float64(s.count)
	mean := s.mean + diff
	squaredDiff := (v - mean) * (v - s.mean)
	s.dSquared += squaredDiff
	s.mean = mean

	if s.min > v {
		s.min = v
	}

	if s.max < v {
		s.max = v
	}
}

// Avg returns the average value of the set.
func (s Stats) Avg() float64 {
	return s.mean
}

// Sum returns the sum of the set.
func (s Stats) Sum() float64 {
	return s.sum
}

// Count returns the number of elements.
func (s Stats) Count() int {
	return s.count
}

// Min returns the smallest encountered value.
func (s Stats) Min() float64 {
	return s.min
}

// Max returns the largest encountered value.
func (s Stats) Max() float64 {
	return s.max
}

// Variance is the mathematical variance of the set.
func (s Stats) Variance() float64 {
	if s.count == 0 {
		return 0
	}
	return s.dSquared / float64(s.count)
}

// StDev is the standard deviation of the set.
func (s Stats) StDev() float64 {
	return math.Sqrt(s.Variance())
}

// SampleVariance is the sample variance of the set.
func (s Stats) SampleVariance() float64 {
	if s.count < 2 {
		return 0
	}
	return s.dSquared / float64(s.count-1)
}

// Collector is a collection of Stats variables, one per feature dimension.
// This enables multi-dimensional tracking of a data set in a single pass.
type Collector struct {
	dim   int
	stats []*Stats
}

// NewCollector creates a new stats collector for the given dimension.
func NewCollector(dim int) *Collector {
	stats := make([]*Stats, dim)
	for i := 0; i < dim; i++ {
		stats[i] = NewStats()
	}
	return &Collector{
		dim:   dim,
		stats: stats,
	}
}

// Push pushes each value to the corresponding dimension.
func (c *Collector) Push(v ...float64) {
	for i := 0; i < c.dim; i++ {
		c.stats[i].Push(v[i])
	}
}

// Dim returns the tracked dimension.
func (c *Collector) Dim() int {
	return c.dim
}

// Stats returns the stats for the given dimension.
func (c *Collector) Stats(i int) *Stats {
	return c.stats[i]
}

// Variances returns the per dimension variance.
func (c *Collector) Variances() []float64 {
	vv := make([]float64, c.dim)
	for i, s := range c.stats {
		vv[i] = s.Variance()
	}
	return vv
}

// AvgVariance returns the variance averaged over all dimensions.
func (c *Collector) AvgVariance() float64 {
	if c.dim == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range c.stats {
		sum += s.Variance()
	}
	return sum / float64(c.dim)
}
