package core

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestMeasurementModelObservesLinearFunction(t *testing.T) {
	noise := quietNoise(t, 1)
	m, err := NewMeasurementModel([]float64{2, 0, 0}, 0.5, 3, 1, noise)
	if err != nil {
		t.Fatalf("NewMeasurementModel: %v", err)
	}

	state := mat.NewVecDense(3, []float64{1.5, -3, 0.7})
	y := m.Observe(state)

	if y.Len() != 1 {
		t.Fatalf("measurement dimension = %d, want 1", y.Len())
	}
	// y = 2*x + 0.5
	if got, want := y.AtVec(0), 2*1.5+0.5; math.Abs(got-want) > 1e-3 {
		t.Fatalf("Observe = %v, want ~%v", got, want)
	}
}

func TestMeasurementModelDoesNotMutateState(t *testing.T) {
	m, err := NewMeasurementModel([]float64{1, 0, 0}, 0, 3, 1, quietNoise(t, 1))
	if err != nil {
		t.Fatalf("NewMeasurementModel: %v", err)
	}

	state := mat.NewVecDense(3, []float64{0.4, 0.2, 0.1})
	before := vecSnapshot(state)
	for i := 0; i < 50; i++ {
		m.Observe(state)
	}
	after := vecSnapshot(state)

	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("state mutated at %d: %v -> %v", i, before[i], after[i])
		}
	}
}

func TestMeasurementMeanConvergesToNoiselessValue(t *testing.T) {
	noise, err := NewNoiseSource([]float64{0}, diagCovariance(0.01, 1), rand.NewPCG(99, 99))
	if err != nil {
		t.Fatalf("NewNoiseSource: %v", err)
	}
	m, err := NewMeasurementModel([]float64{1, 0, 0}, 0.25, 3, 1, noise)
	if err != nil {
		t.Fatalf("NewMeasurementModel: %v", err)
	}

	state := mat.NewVecDense(3, []float64{0.1, 0, 0})
	const draws = 20000
	sum := 0.0
	for i := 0; i < draws; i++ {
		sum += m.Observe(state).AtVec(0)
	}
	mean := sum / draws

	// Standard error is sqrt(0.01/20000) ~ 7e-4; a 1e-2 tolerance leaves
	// a wide margin.
	if want := 0.1 + 0.25; math.Abs(mean-want) > 1e-2 {
		t.Fatalf("measurement mean over %d draws = %v, want ~%v", draws, mean, want)
	}
}

func TestNewMeasurementModelRejectsBadDimensions(t *testing.T) {
	cases := []struct {
		name     string
		gain     []float64
		stateDim int
		measDim  int
		noiseDim int
	}{
		{"noise covariance order mismatch", []float64{1}, 3, 1, 2},
		{"zero measurement dimension", []float64{1}, 3, 0, 1},
		{"empty gain", nil, 3, 1, 1},
		{"gain longer than state", []float64{1, 0, 0, 0}, 3, 1, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewMeasurementModel(tc.gain, 0, tc.stateDim, tc.measDim, quietNoise(t, tc.noiseDim))
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("NewMeasurementModel error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}
