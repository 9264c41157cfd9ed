package environment

import (
	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// CategoricalStarter samples starting state vectors with each
// dimension drawn from its own categorical distribution over
// {0, 1, ..., size-1}. Environments with discrete state features use
// it where UniformStarter covers the continuous case.
type CategoricalStarter struct {
	dists []distuv.Categorical
}

// NewCategoricalStarter returns a CategoricalStarter sampling
// dimension i uniformly from {0, 1, ..., sizes[i]-1}
func NewCategoricalStarter(sizes []int, seed uint64) CategoricalStarter {
	weights := make([][]float64, len(sizes))
	for i, size := range sizes {
		w := make([]float64, size)
		for j := range w {
			w[j] = 1.0
		}
		weights[i] = w
	}
	return NewWeightedCategoricalStarter(weights, seed)
}

// NewWeightedCategoricalStarter returns a CategoricalStarter sampling
// dimension i from {0, 1, ..., len(weights[i])-1} in proportion to
// weights[i]. Weights need not be normalized; a zero weight removes
// the value from the distribution's support.
func NewWeightedCategoricalStarter(weights [][]float64,
	seed uint64) CategoricalStarter {
	source := rand.NewSource(seed)

	dists := make([]distuv.Categorical, len(weights))
	for i, w := range weights {
		dists[i] = distuv.NewCategorical(w, source)
	}
	return CategoricalStarter{dists}
}

// Start returns a starting state vector
func (c CategoricalStarter) Start() *mat.VecDense {
	start := make([]float64, len(c.dists))
	for i := range c.dists {
		start[i] = c.dists[i].Rand()
	}
	return mat.NewVecDense(len(start), start)
}
