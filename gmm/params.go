package gmm

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Params is a serializable snapshot of a model's parameters.
// Covariances hold the raw per component data in the layout Update accepts :
// D*D row-major values for Full, D variances for Diagonal.
type Params struct {
	Kind        CovKind     `json:"kind"`
	Weights     []float64   `json:"weights"`
	Means       [][]float64 `json:"means"`
	Covariances [][]float64 `json:"covariances"`
}

// Params exports the model parameters.
func (m *Model) Params() Params {
	k := m.Components()
	d := m.Features()
	means := make([][]float64, k)
	covariances := make([][]float64, k)
	for i := 0; i < k; i++ {
		means[i] = make([]float64, d)
		copy(means[i], m.means.RawRowView(i))
		// Raw cannot fail for a component index within range
		covariances[i], _ = m.cov.Raw(i)
	}
	return Params{
		Kind:        m.cov.Kind(),
		Weights:     m.Weights(),
		Means:       means,
		Covariances: covariances,
	}
}

// FromParams rebuilds a model from a parameter snapshot.
func FromParams(p Params) (*Model, error) {
	k := len(p.Weights)
	if k == 0 || len(p.Means) != k || len(p.Covariances) != k {
		return nil, fmt.Errorf("inconsistent parameter counts [ %d | %d | %d ]: %w",
			k, len(p.Means), len(p.Covariances), InvalidShapeErr)
	}
	d := len(p.Means[0])
	means := mat.NewDense(k, d, nil)
	for i, row := range p.Means {
		if len(row) != d {
			return nil, fmt.Errorf("mean %d has %d features instead of %d: %w", i, len(row), d, InvalidShapeErr)
		}
		means.SetRow(i, row)
	}
	cov, err := NewCovariances(p.Kind, k, d)
	if err != nil {
		return nil, err
	}
	for i, values := range p.Covariances {
		// the snapshot is already regularized
		if err := cov.Update(i, values, 0); err != nil {
			return nil, err
		}
	}
	return NewModel(p.Weights, means, cov)
}
