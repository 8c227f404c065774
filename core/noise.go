package core

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// NoiseSource draws samples from a fixed multivariate Gaussian. Both the
// process-noise and measurement-noise paths are NoiseSources fed from the
// same seeded random stream, so a run is reproducible from a single seed and
// no draw touches global rand state.
type NoiseSource struct {
	dist *distmv.Normal
	dim  int
}

// NewNoiseSource builds a Gaussian source with the given mean and covariance.
// The covariance must factorise (positive definite); a covariance that does
// not fails construction here instead of surfacing later as NaN samples.
func NewNoiseSource(mean []float64, cov mat.Symmetric, src rand.Source) (*NoiseSource, error) {
	if cov.SymmetricDim() != len(mean) {
		return nil, fmt.Errorf("%w: noise mean has dimension %d, covariance %d",
			ErrInvalidConfig, len(mean), cov.SymmetricDim())
	}
	dist, ok := distmv.NewNormal(mean, cov, src)
	if !ok {
		return nil, fmt.Errorf("%w: noise covariance is not positive definite", ErrInvalidConfig)
	}
	return &NoiseSource{dist: dist, dim: len(mean)}, nil
}

// Dim returns the sample dimension.
func (n *NoiseSource) Dim() int { return n.dim }

// Draw returns one sample from the distribution.
func (n *NoiseSource) Draw() []float64 {
	return n.dist.Rand(nil)
}

// broadcastMean expands a scalar mean into a vector of the given dimension.
func broadcastMean(mean float64, dim int) []float64 {
	v := make([]float64, dim)
	for i := range v {
		v[i] = mean
	}
	return v
}

// diagCovariance expands a scalar variance into a diagonal covariance matrix
// of the given dimension.
func diagCovariance(variance float64, dim int) *mat.SymDense {
	c := mat.NewSymDense(dim, nil)
	for i := 0; i < dim; i++ {
		c.SetSym(i, i, variance)
	}
	return c
}

// addVecInPlace adds the raw sample to v element-wise.
func addVecInPlace(v *mat.VecDense, sample []float64) {
	for i, s := range sample {
		v.SetVec(i, v.AtVec(i)+s)
	}
}
