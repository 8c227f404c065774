package core

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// MeasurementModel maps the current state to a simulated sensor reading,
// injecting one measurement-noise draw per observation. In this system the
// reading is the scalar distance-to-wall a scan-matching pipeline would
// produce, but the model is kept general over the measurement dimension.
type MeasurementModel interface {
	// Observe returns a fresh measurement vector; the state is read, never
	// modified.
	Observe(state *mat.VecDense) *mat.VecDense
	// MeasurementDim returns the measurement dimension.
	MeasurementDim() int
}

// linearMeasurementModel observes y = H·x + b + noise, with H built from the
// configured gain row over the position block and b the configured offset.
type linearMeasurementModel struct {
	gain    *mat.Dense
	offset  *mat.VecDense
	noise   *NoiseSource
	measDim int
}

// NewMeasurementModel builds the linear observation model. gain is one row
// of the observation matrix; it may cover just the position block, in which
// case velocity components are unobserved. Construction rejects a noise
// source whose dimension does not match measDim.
func NewMeasurementModel(gain []float64, offset float64, stateDim, measDim int, noise *NoiseSource) (MeasurementModel, error) {
	if measDim < 1 {
		return nil, fmt.Errorf("%w: measurement dimension must be at least 1, got %d",
			ErrInvalidConfig, measDim)
	}
	if noise.Dim() != measDim {
		return nil, fmt.Errorf("%w: measurement noise has dimension %d, measurement dimension is %d",
			ErrInvalidConfig, noise.Dim(), measDim)
	}
	if len(gain) == 0 || len(gain) > stateDim {
		return nil, fmt.Errorf("%w: measurement gain has %d entries for a %d-dimensional state",
			ErrInvalidConfig, len(gain), stateDim)
	}

	h := mat.NewDense(measDim, stateDim, nil)
	for j, g := range gain {
		h.Set(0, j, g)
	}
	b := mat.NewVecDense(measDim, nil)
	b.SetVec(0, offset)

	return &linearMeasurementModel{
		gain:    h,
		offset:  b,
		noise:   noise,
		measDim: measDim,
	}, nil
}

func (m *linearMeasurementModel) MeasurementDim() int { return m.measDim }

func (m *linearMeasurementModel) Observe(state *mat.VecDense) *mat.VecDense {
	y := mat.NewVecDense(m.measDim, nil)
	y.MulVec(m.gain, state)
	y.AddVec(y, m.offset)
	addVecInPlace(y, m.noise.Draw())
	return y
}
