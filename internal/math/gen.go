package math

import (
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Blobs draws n points from a mixture of spherical gaussians with the given
// means and standard deviations, split across the components according to the weights.
// It is meant for producing synthetic data sets for demos and tests.
func Blobs(n int, weights []float64, means [][]float64, sigmas []float64, rng *rand.Rand) *mat.Dense {
	dim := len(means[0])
	choose := distuv.NewCategorical(weights, rng)
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: rng}

	data := mat.NewDense(n, dim, nil)
	for i := 0; i < n; i++ {
		k := int(choose.Rand())
		for j := 0; j < dim; j++ {
			data.Set(i, j, means[k][j]+sigmas[k]*normal.Rand())
		}
	}
	return data
}
