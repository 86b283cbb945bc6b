package gmm

import (
	"fmt"
	"math"

	gmath "github.com/drakos74/gaussmix/internal/math"
	"github.com/drakos74/gaussmix/internal/metrics"
	"github.com/drakos74/gaussmix/internal/stats"
	"github.com/rs/zerolog/log"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// State is the terminal state of a fit.
type State int

const (
	// Converged means the log-likelihood improvement fell below the tolerance.
	Converged State = iota
	// IterationLimitReached means the iteration budget ran out before converging.
	// It is a legitimate outcome and not an error.
	IterationLimitReached
	// Failed means a covariance could not be factorized even after regularization.
	Failed
)

func (s State) String() string {
	switch s {
	case Converged:
		return "converged"
	case IterationLimitReached:
		return "iteration-limit"
	default:
		return "failed"
	}
}

// Report describes the outcome of a fit.
type Report struct {
	Iterations    int     `json:"iterations"`
	LogLikelihood float64 `json:"log_likelihood"`
	Diff          float64 `json:"diff"`
	State         State   `json:"state"`
}

// reviveFraction is the effective sample count floor, relative to the data size.
// A component that gathers less responsibility mass than this is considered
// collapsed and gets re-seeded from a random data point.
const reviveFraction = 1e-6

// Fitter runs expectation-maximization on a model until the mean
// log-likelihood improvement falls below tol, or maxIter is exhausted.
type Fitter struct {
	tol      float64
	maxIter  int
	regCovar float64
	rng      *rand.Rand
}

// NewFitter creates a fitter with the given tolerance and iteration budget.
func NewFitter(tol float64, maxIter int) (*Fitter, error) {
	if tol <= 0 {
		return nil, fmt.Errorf("tolerance must be positive, got %f: %w", tol, ConfigurationErr)
	}
	if maxIter <= 0 {
		return nil, fmt.Errorf("iteration budget must be positive, got %d: %w", maxIter, ConfigurationErr)
	}
	return &Fitter{
		tol:      tol,
		maxIter:  maxIter,
		regCovar: 1e-6,
		rng:      rand.New(rand.NewSource(0)),
	}, nil
}

// WithRegCovar overrides the covariance regularization constant.
func (f *Fitter) WithRegCovar(regCovar float64) *Fitter {
	f.regCovar = regCovar
	return f
}

// WithSeed re-seeds the rng used for component revival.
func (f *Fitter) WithSeed(seed uint64) *Fitter {
	f.rng = rand.New(rand.NewSource(seed))
	return f
}

// Fit runs EM starting from the given model and returns the fitted model
// together with a report of the terminal state. The input model is never
// mutated : every iteration produces a fresh parameter set, so callers
// holding older models keep a stable snapshot.
func (f *Fitter) Fit(x *mat.Dense, model *Model) (*Model, Report, error) {
	n, _, err := model.checkData(x)
	if err != nil {
		return model, Report{State: Failed}, err
	}

	avgVar, eps := dataScale(x, f.regCovar)
	log.Debug().
		Int("samples", n).
		Int("components", model.Components()).
		Float64("eps", eps).
		Msg("starting fit")

	report := Report{State: IterationLimitReached}
	prev := math.Inf(1)
	for iter := 1; iter <= f.maxIter; iter++ {
		ll, resp, err := eStep(model, x)
		if err != nil {
			report.State = Failed
			metrics.Observer.TrackFit(report.State.String(), report.Iterations)
			return model, report, fmt.Errorf("e-step failed at iteration %d: %w", iter, err)
		}
		next, err := f.mStep(x, resp, model, eps, avgVar)
		if err != nil {
			report.State = Failed
			metrics.Observer.TrackFit(report.State.String(), report.Iterations)
			return model, report, fmt.Errorf("m-step failed at iteration %d: %w", iter, err)
		}
		model = next

		diff := math.Abs(ll - prev)
		prev = ll
		report.Iterations = iter
		report.LogLikelihood = ll
		report.Diff = diff
		log.Debug().
			Int("iteration", iter).
			Str("log-likelihood", gmath.Format(ll)).
			Str("diff", gmath.Format(diff)).
			Msg("em iteration")

		if diff < f.tol {
			report.State = Converged
			break
		}
	}

	log.Info().
		Int("iterations", report.Iterations).
		Str("log-likelihood", gmath.Format(report.LogLikelihood)).
		Str("state", report.State.String()).
		Msg("fit finished")
	metrics.Observer.TrackFit(report.State.String(), report.Iterations)
	return model, report, nil
}

// dataScale summarises the data in one pass and derives the regularization
// epsilon from the average per feature variance. Zero-variance data falls
// back to the raw constant so that regularization never vanishes.
func dataScale(x *mat.Dense, regCovar float64) (avgVar, eps float64) {
	n, d := x.Dims()
	collector := stats.NewCollector(d)
	for i := 0; i < n; i++ {
		collector.Push(x.RawRowView(i)...)
	}
	avgVar = collector.AvgVariance()
	eps = regCovar * avgVar
	if eps <= 0 {
		eps = regCovar
	}
	return avgVar, eps
}

// eStep computes the mean log-likelihood and the responsibilities under the
// current model. The responsibilities are derived from the log density matrix
// in place to avoid a second pass over the data.
func eStep(m *Model, x *mat.Dense) (float64, *mat.Dense, error) {
	density, err := m.LogDensity(x)
	if err != nil {
		return 0, nil, err
	}
	n, k := density.Dims()
	total := 0.0
	for i := 0; i < n; i++ {
		row := density.RawRowView(i)
		norm := gmath.LogSumExp(row)
		total += norm
		if math.IsInf(norm, -1) {
			for j := 0; j < k; j++ {
				row[j] = 1 / float64(k)
			}
			continue
		}
		for j := 0; j < k; j++ {
			row[j] = math.Exp(row[j] - norm)
		}
	}
	return total / float64(n), density, nil
}

// mStep re-estimates all parameters from the responsibilities and assembles
// a fresh model. Collapsed components are re-seeded : mean from a random
// data point, covariance reset to the data-scaled identity and weight set
// to the floor before renormalization.
func (f *Fitter) mStep(x *mat.Dense, resp *mat.Dense, prev *Model, eps, avgVar float64) (*Model, error) {
	n, d := x.Dims()
	components := prev.Components()

	nk := make([]float64, components)
	for i := 0; i < n; i++ {
		row := resp.RawRowView(i)
		for k := 0; k < components; k++ {
			nk[k] += row[k]
		}
	}

	var means mat.Dense
	means.Mul(resp.T(), x)

	floor := reviveFraction * float64(n)
	revived := make(map[int]struct{})
	for k := 0; k < components; k++ {
		if nk[k] < floor {
			revived[k] = struct{}{}
			i := f.rng.Intn(n)
			means.SetRow(k, x.RawRowView(i))
			nk[k] = floor
			log.Warn().
				Int("component", k).
				Int("seed-sample", i).
				Msg("revived collapsed component")
			continue
		}
		scale := 1 / nk[k]
		for j := 0; j < d; j++ {
			means.Set(k, j, means.At(k, j)*scale)
		}
	}

	total := 0.0
	for _, v := range nk {
		total += v
	}
	weights := make([]float64, components)
	for k := 0; k < components; k++ {
		weights[k] = nk[k] / total
	}

	cov, err := NewCovariances(prev.Kind(), components, d)
	if err != nil {
		return nil, err
	}
	for k := 0; k < components; k++ {
		var values []float64
		if _, ok := revived[k]; ok {
			values = identityScaled(prev.Kind(), d, avgVar)
		} else {
			values = estimateCovariance(prev.Kind(), x, resp, &means, nk[k], k)
		}
		if err := cov.Update(k, values, eps); err != nil {
			return nil, err
		}
		// force the factorization here, so a degenerate component surfaces
		// at the m-step that produced it and not lazily on a later read
		if _, err := cov.factor(k); err != nil {
			return nil, err
		}
	}

	return NewModel(weights, &means, cov)
}

// estimateCovariance computes the responsibility-weighted covariance of one
// component in the layout Covariances.Update accepts.
func estimateCovariance(kind CovKind, x, resp *mat.Dense, means *mat.Dense, nk float64, k int) []float64 {
	n, d := x.Dims()
	mean := means.RawRowView(k)
	if kind == Diagonal {
		values := make([]float64, d)
		for i := 0; i < n; i++ {
			r := resp.At(i, k)
			row := x.RawRowView(i)
			for j := 0; j < d; j++ {
				diff := row[j] - mean[j]
				values[j] += r * diff * diff
			}
		}
		for j := 0; j < d; j++ {
			values[j] /= nk
		}
		return values
	}

	// full : C = centered' * (centered scaled by the responsibility column) / nk
	centered := mat.NewDense(n, d, nil)
	weighted := mat.NewDense(n, d, nil)
	for i := 0; i < n; i++ {
		r := resp.At(i, k)
		row := x.RawRowView(i)
		for j := 0; j < d; j++ {
			diff := row[j] - mean[j]
			centered.Set(i, j, diff)
			weighted.Set(i, j, r*diff)
		}
	}
	var c mat.Dense
	c.Mul(centered.T(), weighted)
	values := make([]float64, d*d)
	for i := 0; i < d; i++ {
		for j := 0; j < d; j++ {
			values[i*d+j] = c.At(i, j) / nk
		}
	}
	return values
}

// identityScaled builds the covariance values of a revived component.
func identityScaled(kind CovKind, d int, avgVar float64) []float64 {
	if kind == Diagonal {
		values := make([]float64, d)
		for j := 0; j < d; j++ {
			values[j] = avgVar
		}
		return values
	}
	values := make([]float64, d*d)
	for j := 0; j < d; j++ {
		values[j*d+j] = avgVar
	}
	return values
}
