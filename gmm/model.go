package gmm

import (
	"fmt"
	"math"

	gmath "github.com/drakos74/gaussmix/internal/math"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

const log2Pi = 1.8378770664093453

// Model is a gaussian mixture over a fixed number of components and features.
// A model is a stable snapshot : the fitter never mutates one in place,
// it builds a replacement and swaps it wholesale.
type Model struct {
	weights []float64
	means   *mat.Dense
	cov     *Covariances
}

// New creates a random but valid model : means drawn uniformly in [-1,1],
// identity covariances and uniform weights.
func New(components, features int, seed uint64) (*Model, error) {
	if components <= 0 || features <= 0 {
		return nil, fmt.Errorf("components and features must be positive [ %d | %d ]: %w", components, features, ConfigurationErr)
	}
	rng := rand.New(rand.NewSource(seed))
	weights := make([]float64, components)
	means := mat.NewDense(components, features, nil)
	for k := 0; k < components; k++ {
		weights[k] = 1 / float64(components)
		for j := 0; j < features; j++ {
			means.Set(k, j, 2*rng.Float64()-1)
		}
	}
	cov, err := NewCovariances(Full, components, features)
	if err != nil {
		return nil, err
	}
	return NewModel(weights, means, cov)
}

// NewModel assembles a model from explicit parameters.
// The weights must be non-negative and sum to one.
func NewModel(weights []float64, means *mat.Dense, cov *Covariances) (*Model, error) {
	k, d := means.Dims()
	if len(weights) != k {
		return nil, fmt.Errorf("expected %d weights, got %d: %w", k, len(weights), InvalidShapeErr)
	}
	if cov.Components() != k || cov.Dim() != d {
		return nil, fmt.Errorf("covariances are [ %d | %d ], means are [ %d | %d ]: %w",
			cov.Components(), cov.Dim(), k, d, InvalidShapeErr)
	}
	sum := 0.0
	for _, w := range weights {
		if w < 0 || math.IsNaN(w) {
			return nil, fmt.Errorf("negative weight %f: %w", w, ConfigurationErr)
		}
		sum += w
	}
	if math.Abs(sum-1) > 1e-6 {
		return nil, fmt.Errorf("weights sum to %f instead of 1: %w", sum, ConfigurationErr)
	}
	ww := make([]float64, k)
	copy(ww, weights)
	return &Model{
		weights: ww,
		means:   mat.DenseCopyOf(means),
		cov:     cov,
	}, nil
}

// Components returns the number of mixture components.
func (m *Model) Components() int {
	return len(m.weights)
}

// Features returns the feature dimension.
func (m *Model) Features() int {
	_, d := m.means.Dims()
	return d
}

// Weights returns a copy of the mixture weights.
func (m *Model) Weights() []float64 {
	ww := make([]float64, len(m.weights))
	copy(ww, m.weights)
	return ww
}

// Means returns a copy of the component means as a KxD matrix.
func (m *Model) Means() *mat.Dense {
	return mat.DenseCopyOf(m.means)
}

// Kind returns the covariance parameterization of the model.
func (m *Model) Kind() CovKind {
	return m.cov.Kind()
}

// Covariance returns a copy of the raw covariance data of one component.
func (m *Model) Covariance(component int) ([]float64, error) {
	return m.cov.Raw(component)
}

func (m *Model) checkData(x *mat.Dense) (int, int, error) {
	n, d := x.Dims()
	if n == 0 {
		return 0, 0, fmt.Errorf("empty data set: %w", InvalidShapeErr)
	}
	if d != m.Features() {
		return 0, 0, fmt.Errorf("expected %d features, got %d: %w", m.Features(), d, InvalidShapeErr)
	}
	return n, d, nil
}

// LogDensity returns the NxK matrix of log(weight_k * N(x_i ; mean_k, cov_k)).
// A component with zero weight contributes -Inf for all points.
func (m *Model) LogDensity(x *mat.Dense) (*mat.Dense, error) {
	n, d, err := m.checkData(x)
	if err != nil {
		return nil, err
	}
	components := m.Components()
	out := mat.NewDense(n, components, nil)
	norm := float64(d) * log2Pi
	for k := 0; k < components; k++ {
		if m.weights[k] == 0 {
			for i := 0; i < n; i++ {
				out.Set(i, k, math.Inf(-1))
			}
			continue
		}
		logW := math.Log(m.weights[k])
		logDet, err := m.cov.LogDet(k)
		if err != nil {
			return nil, err
		}
		maha, err := m.cov.MahalanobisSq(k, x, m.means.RawRowView(k))
		if err != nil {
			return nil, err
		}
		for i := 0; i < n; i++ {
			out.Set(i, k, logW-0.5*(norm+logDet+maha[i]))
		}
	}
	return out, nil
}

// LogLikelihoods returns the per sample log-likelihood,
// the log-sum-exp over components of the log density.
func (m *Model) LogLikelihoods(x *mat.Dense) ([]float64, error) {
	density, err := m.LogDensity(x)
	if err != nil {
		return nil, err
	}
	n, _ := density.Dims()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = gmath.LogSumExp(density.RawRowView(i))
	}
	return out, nil
}

// Score returns the log-likelihood averaged over all samples.
func (m *Model) Score(x *mat.Dense) (float64, error) {
	ll, err := m.LogLikelihoods(x)
	if err != nil {
		return 0, err
	}
	sum := 0.0
	for _, l := range ll {
		sum += l
	}
	return sum / float64(len(ll)), nil
}

// Responsibilities returns the NxK posterior probabilities that sample i
// was generated by component k. Each row sums to one.
func (m *Model) Responsibilities(x *mat.Dense) (*mat.Dense, error) {
	density, err := m.LogDensity(x)
	if err != nil {
		return nil, err
	}
	responsibilities(density)
	return density, nil
}

// responsibilities turns a log density matrix into posterior probabilities in place.
func responsibilities(density *mat.Dense) {
	n, k := density.Dims()
	for i := 0; i < n; i++ {
		row := density.RawRowView(i)
		norm := gmath.LogSumExp(row)
		if math.IsInf(norm, -1) {
			// no component supports the point , fall back to a flat assignment
			for j := 0; j < k; j++ {
				row[j] = 1 / float64(k)
			}
			continue
		}
		for j := 0; j < k; j++ {
			row[j] = math.Exp(row[j] - norm)
		}
	}
}

// Predict returns the most probable component per sample.
func (m *Model) Predict(x *mat.Dense) ([]int, error) {
	density, err := m.LogDensity(x)
	if err != nil {
		return nil, err
	}
	n, _ := density.Dims()
	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = gmath.MaxIdx(density.RawRowView(i))
	}
	return out, nil
}

// Sample draws n feature vectors from the mixture.
// The draw is deterministic for a given rng state.
func (m *Model) Sample(n int, rng *rand.Rand) (*mat.Dense, error) {
	if n <= 0 {
		return nil, fmt.Errorf("sample size must be positive, got %d: %w", n, ConfigurationErr)
	}
	d := m.Features()
	choose := distuv.NewCategorical(m.weights, rng)
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: rng}

	out := mat.NewDense(n, d, nil)
	z := make([]float64, d)
	for i := 0; i < n; i++ {
		k := int(choose.Rand())
		for j := 0; j < d; j++ {
			z[j] = normal.Rand()
		}
		shaped, err := m.cov.ApplyFactor(k, z)
		if err != nil {
			return nil, err
		}
		mean := m.means.RawRowView(k)
		for j := 0; j < d; j++ {
			out.Set(i, j, mean[j]+shaped[j])
		}
	}
	return out, nil
}

// freeParameters is the number of free parameters of the parameterization,
// used by the information criteria.
func (m *Model) freeParameters() int {
	k := m.Components()
	d := m.Features()
	covParams := k * d
	if m.cov.Kind() == Full {
		covParams = k * d * (d + 1) / 2
	}
	return (k - 1) + k*d + covParams
}

// AIC returns the Akaike information criterion for the data. Lower is better.
func (m *Model) AIC(x *mat.Dense) (float64, error) {
	n, _, err := m.checkData(x)
	if err != nil {
		return 0, err
	}
	score, err := m.Score(x)
	if err != nil {
		return 0, err
	}
	return 2*float64(m.freeParameters()) - 2*score*float64(n), nil
}

// BIC returns the Bayesian information criterion for the data. Lower is better.
func (m *Model) BIC(x *mat.Dense) (float64, error) {
	n, _, err := m.checkData(x)
	if err != nil {
		return 0, err
	}
	score, err := m.Score(x)
	if err != nil {
		return 0, err
	}
	return float64(m.freeParameters())*math.Log(float64(n)) - 2*score*float64(n), nil
}
