package gmm

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// CovKind defines the covariance parameterization of a mixture.
type CovKind string

const (
	// Full keeps a complete DxD covariance matrix per component.
	Full CovKind = "full"
	// Diagonal keeps only the per feature variances per component.
	Diagonal CovKind = "diagonal"
)

func (k CovKind) valid() bool {
	return k == Full || k == Diagonal
}

// Covariances holds the per component covariance data of a mixture,
// together with the cholesky factor and log determinant each component needs
// for density evaluation. The derived quantities are computed lazily and
// cached, keyed by a generation counter that is bumped on every update of
// the raw data, so a stale factorization is never served.
type Covariances struct {
	kind  CovKind
	dim   int
	full  []*mat.SymDense
	diag  [][]float64
	cache []*factorCache
}

type factorCache struct {
	gen    uint64 // raw data generation
	fGen   uint64 // generation the cached factorization was computed for
	chol   mat.Cholesky
	lower  *mat.TriDense
	sqrt   []float64
	logDet float64
}

// NewCovariances creates identity covariances for the given number of components.
func NewCovariances(kind CovKind, components, dim int) (*Covariances, error) {
	if !kind.valid() {
		return nil, fmt.Errorf("unknown covariance kind '%s': %w", kind, ConfigurationErr)
	}
	if components <= 0 || dim <= 0 {
		return nil, fmt.Errorf("components and dimension must be positive [ %d | %d ]: %w", components, dim, ConfigurationErr)
	}
	c := &Covariances{
		kind:  kind,
		dim:   dim,
		cache: make([]*factorCache, components),
	}
	for k := 0; k < components; k++ {
		c.cache[k] = &factorCache{}
	}
	switch kind {
	case Full:
		c.full = make([]*mat.SymDense, components)
		for k := 0; k < components; k++ {
			eye := mat.NewSymDense(dim, nil)
			for i := 0; i < dim; i++ {
				eye.SetSym(i, i, 1)
			}
			c.full[k] = eye
			c.cache[k].gen = 1
		}
	case Diagonal:
		c.diag = make([][]float64, components)
		for k := 0; k < components; k++ {
			vv := make([]float64, dim)
			for i := range vv {
				vv[i] = 1
			}
			c.diag[k] = vv
			c.cache[k].gen = 1
		}
	}
	return c, nil
}

// Kind returns the covariance parameterization.
func (c *Covariances) Kind() CovKind {
	return c.kind
}

// Dim returns the feature dimension.
func (c *Covariances) Dim() int {
	return c.dim
}

// Components returns the number of components.
func (c *Covariances) Components() int {
	return len(c.cache)
}

// Update replaces the raw covariance data for one component and invalidates
// its cached factorization. For Full the values are the DxD matrix in
// row-major order, for Diagonal the D variances. The regularization eps is
// added to the diagonal before acceptance, to guard against rank-deficient
// estimates from under-populated components.
func (c *Covariances) Update(component int, values []float64, eps float64) error {
	if err := c.check(component); err != nil {
		return err
	}
	switch c.kind {
	case Full:
		if len(values) != c.dim*c.dim {
			return fmt.Errorf("expected %d covariance values, got %d: %w", c.dim*c.dim, len(values), InvalidShapeErr)
		}
		sym := mat.NewSymDense(c.dim, nil)
		for i := 0; i < c.dim; i++ {
			for j := i; j < c.dim; j++ {
				// average out asymmetries from accumulated rounding
				v := 0.5 * (values[i*c.dim+j] + values[j*c.dim+i])
				if i == j {
					v += eps
				}
				sym.SetSym(i, j, v)
			}
		}
		c.full[component] = sym
	case Diagonal:
		if len(values) != c.dim {
			return fmt.Errorf("expected %d variances, got %d: %w", c.dim, len(values), InvalidShapeErr)
		}
		vv := make([]float64, c.dim)
		for i, v := range values {
			vv[i] = v + eps
		}
		c.diag[component] = vv
	}
	c.cache[component].gen++
	return nil
}

// Raw returns a copy of the raw covariance data for one component,
// in the same layout that Update accepts.
func (c *Covariances) Raw(component int) ([]float64, error) {
	if err := c.check(component); err != nil {
		return nil, err
	}
	switch c.kind {
	case Full:
		values := make([]float64, c.dim*c.dim)
		for i := 0; i < c.dim; i++ {
			for j := 0; j < c.dim; j++ {
				values[i*c.dim+j] = c.full[component].At(i, j)
			}
		}
		return values, nil
	default:
		values := make([]float64, c.dim)
		copy(values, c.diag[component])
		return values, nil
	}
}

// LogDet returns log(det(cov)) for one component, computed from the cholesky
// factor to stay finite for poorly conditioned matrices.
func (c *Covariances) LogDet(component int) (float64, error) {
	f, err := c.factor(component)
	if err != nil {
		return 0, err
	}
	return f.logDet, nil
}

// MahalanobisSq returns (x_i - mean)' * cov^-1 * (x_i - mean) for every row of x.
// The quadratic form is evaluated by solving against the cholesky factor
// instead of forming the inverse.
func (c *Covariances) MahalanobisSq(component int, x *mat.Dense, mean []float64) ([]float64, error) {
	f, err := c.factor(component)
	if err != nil {
		return nil, err
	}
	n, d := x.Dims()
	if d != c.dim || len(mean) != c.dim {
		return nil, fmt.Errorf("expected %d features, got %d: %w", c.dim, d, InvalidShapeErr)
	}

	out := make([]float64, n)
	switch c.kind {
	case Full:
		centered := mat.NewDense(n, d, nil)
		for i := 0; i < n; i++ {
			row := x.RawRowView(i)
			for j := 0; j < d; j++ {
				centered.Set(i, j, row[j]-mean[j])
			}
		}
		// solve cov * Y = centered' for the whole batch at once
		var solved mat.Dense
		if err := f.chol.SolveTo(&solved, centered.T()); err != nil {
			return nil, fmt.Errorf("could not solve for component %d: %v: %w", component, err, SingularCovarianceErr)
		}
		for i := 0; i < n; i++ {
			sum := 0.0
			for j := 0; j < d; j++ {
				sum += centered.At(i, j) * solved.At(j, i)
			}
			out[i] = sum
		}
	case Diagonal:
		vv := c.diag[component]
		for i := 0; i < n; i++ {
			row := x.RawRowView(i)
			sum := 0.0
			for j := 0; j < d; j++ {
				diff := row[j] - mean[j]
				sum += diff * diff / vv[j]
			}
			out[i] = sum
		}
	}
	return out, nil
}

// ApplyFactor returns L * z for the lower cholesky factor L of one component.
// This maps a standard normal draw z onto the component's covariance shape.
func (c *Covariances) ApplyFactor(component int, z []float64) ([]float64, error) {
	f, err := c.factor(component)
	if err != nil {
		return nil, err
	}
	if len(z) != c.dim {
		return nil, fmt.Errorf("expected %d values, got %d: %w", c.dim, len(z), InvalidShapeErr)
	}
	out := make([]float64, c.dim)
	switch c.kind {
	case Full:
		var y mat.VecDense
		y.MulVec(f.lower, mat.NewVecDense(c.dim, z))
		for i := 0; i < c.dim; i++ {
			out[i] = y.AtVec(i)
		}
	case Diagonal:
		for i := 0; i < c.dim; i++ {
			out[i] = f.sqrt[i] * z[i]
		}
	}
	return out, nil
}

func (c *Covariances) check(component int) error {
	if component < 0 || component >= len(c.cache) {
		return fmt.Errorf("component %d out of range [0,%d): %w", component, len(c.cache), InvalidShapeErr)
	}
	return nil
}

// factor returns the cached factorization for the component,
// recomputing it on first access after an update.
func (c *Covariances) factor(component int) (*factorCache, error) {
	if err := c.check(component); err != nil {
		return nil, err
	}
	f := c.cache[component]
	if f.fGen == f.gen {
		return f, nil
	}
	switch c.kind {
	case Full:
		if ok := f.chol.Factorize(c.full[component]); !ok {
			return nil, fmt.Errorf("could not factorize component %d: %w", component, SingularCovarianceErr)
		}
		if f.lower == nil {
			f.lower = mat.NewTriDense(c.dim, mat.Lower, nil)
		}
		f.chol.LTo(f.lower)
		f.logDet = f.chol.LogDet()
	case Diagonal:
		if f.sqrt == nil {
			f.sqrt = make([]float64, c.dim)
		}
		logDet := 0.0
		for i, v := range c.diag[component] {
			if v <= 0 || math.IsNaN(v) {
				return nil, fmt.Errorf("non-positive variance %f in component %d: %w", v, component, SingularCovarianceErr)
			}
			f.sqrt[i] = math.Sqrt(v)
			logDet += math.Log(v)
		}
		f.logDet = logDet
	}
	f.fGen = f.gen
	return f, nil
}
