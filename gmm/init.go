package gmm

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// Initializer derives a starting model from raw data.
type Initializer interface {
	Initialize(x *mat.Dense, components int, rng *rand.Rand) (*Model, error)
}

// RandomPartition assigns every point to a uniformly random component and
// aggregates the partition into a starting model.
type RandomPartition struct {
	Kind CovKind
}

// KMeansSeeded seeds the components with k-means++ centers, runs a few
// rounds of lloyd iterations and aggregates the resulting partition.
type KMeansSeeded struct {
	Kind CovKind
	// Iterations is the number of lloyd rounds, defaulting to 10.
	Iterations int
}

func (rp RandomPartition) Initialize(x *mat.Dense, components int, rng *rand.Rand) (*Model, error) {
	n, err := checkInit(x, components)
	if err != nil {
		return nil, err
	}
	labels := make([]int, n)
	for i := range labels {
		labels[i] = rng.Intn(components)
	}
	ensureAllAssigned(labels, components, rng)
	return modelFromLabels(x, labels, components, kindOrDefault(rp.Kind))
}

func (km KMeansSeeded) Initialize(x *mat.Dense, components int, rng *rand.Rand) (*Model, error) {
	n, err := checkInit(x, components)
	if err != nil {
		return nil, err
	}
	_, d := x.Dims()

	centers := seedCenters(x, components, rng)

	iterations := km.Iterations
	if iterations <= 0 {
		iterations = 10
	}

	labels := make([]int, n)
	counts := make([]int, components)
	for it := 0; it < iterations; it++ {
		// assignment
		for i := 0; i < n; i++ {
			labels[i] = nearest(x.RawRowView(i), centers)
		}
		// empty clusters grab the point furthest from its center
		for k := 0; k < components; k++ {
			counts[k] = 0
		}
		for _, l := range labels {
			counts[l]++
		}
		for k := 0; k < components; k++ {
			if counts[k] > 0 {
				continue
			}
			far := furthest(x, labels, centers, counts)
			counts[labels[far]]--
			labels[far] = k
			counts[k]++
		}
		// update
		for k := range centers {
			for j := 0; j < d; j++ {
				centers[k][j] = 0
			}
		}
		for i, l := range labels {
			row := x.RawRowView(i)
			for j := 0; j < d; j++ {
				centers[l][j] += row[j]
			}
		}
		for k := range centers {
			for j := 0; j < d; j++ {
				centers[k][j] /= float64(counts[k])
			}
		}
	}
	log.Debug().Int("components", components).Int("iterations", iterations).Msg("k-means seeding done")
	return modelFromLabels(x, labels, components, kindOrDefault(km.Kind))
}

func kindOrDefault(kind CovKind) CovKind {
	if kind == "" {
		return Full
	}
	return kind
}

func checkInit(x *mat.Dense, components int) (int, error) {
	n, _ := x.Dims()
	if components <= 0 {
		return 0, fmt.Errorf("components must be positive, got %d: %w", components, ConfigurationErr)
	}
	if n < components {
		return 0, fmt.Errorf("cannot split %d samples into %d components: %w", n, components, ConfigurationErr)
	}
	return n, nil
}

// ensureAllAssigned re-labels random points until every component holds at
// least one, stealing only from components that can spare a point.
func ensureAllAssigned(labels []int, components int, rng *rand.Rand) {
	counts := make([]int, components)
	for _, l := range labels {
		counts[l]++
	}
	for k := 0; k < components; k++ {
		for counts[k] == 0 {
			i := rng.Intn(len(labels))
			if counts[labels[i]] < 2 {
				continue
			}
			counts[labels[i]]--
			labels[i] = k
			counts[k]++
		}
	}
}

// seedCenters picks k-means++ style centers : the first uniformly at random,
// every next one proportional to the squared distance from the chosen set.
func seedCenters(x *mat.Dense, components int, rng *rand.Rand) [][]float64 {
	n, d := x.Dims()
	centers := make([][]float64, 0, components)

	first := make([]float64, d)
	copy(first, x.RawRowView(rng.Intn(n)))
	centers = append(centers, first)

	d2 := make([]float64, n)
	for len(centers) < components {
		total := 0.0
		for i := 0; i < n; i++ {
			d2[i] = distSq(x.RawRowView(i), centers[nearest(x.RawRowView(i), centers)])
			total += d2[i]
		}
		var pick int
		if total == 0 {
			// all points coincide with a chosen center
			pick = rng.Intn(n)
		} else {
			target := rng.Float64() * total
			for i := 0; i < n; i++ {
				target -= d2[i]
				if target <= 0 {
					pick = i
					break
				}
			}
		}
		center := make([]float64, d)
		copy(center, x.RawRowView(pick))
		centers = append(centers, center)
	}
	return centers
}

func nearest(point []float64, centers [][]float64) int {
	best := 0
	bestDist := distSq(point, centers[0])
	for k := 1; k < len(centers); k++ {
		if dist := distSq(point, centers[k]); dist < bestDist {
			bestDist = dist
			best = k
		}
	}
	return best
}

// furthest returns the index of the point furthest from its assigned center,
// among points whose cluster can spare one.
func furthest(x *mat.Dense, labels []int, centers [][]float64, counts []int) int {
	n, _ := x.Dims()
	best := 0
	bestDist := -1.0
	for i := 0; i < n; i++ {
		if counts[labels[i]] < 2 {
			continue
		}
		if dist := distSq(x.RawRowView(i), centers[labels[i]]); dist > bestDist {
			bestDist = dist
			best = i
		}
	}
	return best
}

func distSq(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return sum
}

// modelFromLabels aggregates a hard partition into a starting model,
// running one m-step equivalent with one-hot responsibilities.
func modelFromLabels(x *mat.Dense, labels []int, components int, kind CovKind) (*Model, error) {
	n, d := x.Dims()

	counts := make([]float64, components)
	means := mat.NewDense(components, d, nil)
	for i, l := range labels {
		counts[l]++
		row := x.RawRowView(i)
		for j := 0; j < d; j++ {
			means.Set(l, j, means.At(l, j)+row[j])
		}
	}
	weights := make([]float64, components)
	for k := 0; k < components; k++ {
		weights[k] = counts[k] / float64(n)
		for j := 0; j < d; j++ {
			means.Set(k, j, means.At(k, j)/counts[k])
		}
	}

	avgVar, eps := dataScale(x, 1e-6)
	cov, err := NewCovariances(kind, components, d)
	if err != nil {
		return nil, err
	}
	for k := 0; k < components; k++ {
		values := labelCovariance(kind, x, labels, means.RawRowView(k), counts[k], k)
		if counts[k] < 2 {
			// a single point carries no spread
			values = identityScaled(kind, d, avgVar)
		}
		if err := cov.Update(k, values, eps); err != nil {
			return nil, err
		}
	}
	return NewModel(weights, means, cov)
}

func labelCovariance(kind CovKind, x *mat.Dense, labels []int, mean []float64, count float64, k int) []float64 {
	n, d := x.Dims()
	if kind == Diagonal {
		values := make([]float64, d)
		for i := 0; i < n; i++ {
			if labels[i] != k {
				continue
			}
			row := x.RawRowView(i)
			for j := 0; j < d; j++ {
				diff := row[j] - mean[j]
				values[j] += diff * diff
			}
		}
		for j := 0; j < d; j++ {
			values[j] /= count
		}
		return values
	}

	values := make([]float64, d*d)
	for i := 0; i < n; i++ {
		if labels[i] != k {
			continue
		}
		row := x.RawRowView(i)
		for a := 0; a < d; a++ {
			for b := 0; b < d; b++ {
				values[a*d+b] += (row[a] - mean[a]) * (row[b] - mean[b])
			}
		}
	}
	for i := range values {
		values[i] /= count
	}
	return values
}
