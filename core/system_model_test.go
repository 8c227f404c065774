package core

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/signalsfoundry/rover-simulator/model"
)

// quietNoise builds a noise source whose draws are negligible, so kinematic
// expectations can be checked against the deterministic part of the update.
func quietNoise(t *testing.T, dim int) *NoiseSource {
	t.Helper()
	n, err := NewNoiseSource(broadcastMean(0, dim), diagCovariance(1e-12, dim), rand.NewPCG(1, 1))
	if err != nil {
		t.Fatalf("NewNoiseSource: %v", err)
	}
	return n
}

func TestFactorial(t *testing.T) {
	cases := []struct {
		n    int
		want int
	}{
		{0, 1},
		{1, 1},
		{3, 6},
		{5, 120},
		{10, 3628800},
	}
	for _, tc := range cases {
		got, err := Factorial(tc.n)
		if err != nil {
			t.Fatalf("Factorial(%d): %v", tc.n, err)
		}
		if got != tc.want {
			t.Fatalf("Factorial(%d) = %d, want %d", tc.n, got, tc.want)
		}
	}
}

func TestFactorialRejectsNegative(t *testing.T) {
	_, err := Factorial(-1)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("Factorial(-1) error = %v, want ErrInvalidInput", err)
	}
}

func TestPositionModelStraightLine(t *testing.T) {
	m, err := NewSystemModel(1, 3, 0.1, quietNoise(t, 3))
	if err != nil {
		t.Fatalf("NewSystemModel: %v", err)
	}

	state := mat.NewVecDense(3, nil)
	m.Step(state, model.Twist{Linear: 1.0, Angular: 0})

	if got := state.AtVec(0); math.Abs(got-0.1) > 1e-3 {
		t.Fatalf("x after one step = %v, want ~0.1", got)
	}
	if got := state.AtVec(1); math.Abs(got) > 1e-3 {
		t.Fatalf("y after one step = %v, want ~0", got)
	}
	if got := state.AtVec(2); math.Abs(got) > 1e-3 {
		t.Fatalf("theta after one step = %v, want ~0", got)
	}
}

func TestPositionModelTurnsHeadingFirst(t *testing.T) {
	m, err := NewSystemModel(1, 3, 0.5, quietNoise(t, 3))
	if err != nil {
		t.Fatalf("NewSystemModel: %v", err)
	}

	// Face 90 degrees, then drive forward: motion should be along y.
	state := mat.NewVecDense(3, []float64{0, 0, math.Pi / 2})
	m.Step(state, model.Twist{Linear: 2.0, Angular: 0})

	if got := state.AtVec(0); math.Abs(got) > 1e-3 {
		t.Fatalf("x = %v, want ~0 when heading is pi/2", got)
	}
	if got := state.AtVec(1); math.Abs(got-1.0) > 1e-3 {
		t.Fatalf("y = %v, want ~1.0", got)
	}
}

func TestPositionVelocityModelRampsToCommand(t *testing.T) {
	const dt = 0.1
	m, err := NewSystemModel(2, 3, dt, quietNoise(t, 6))
	if err != nil {
		t.Fatalf("NewSystemModel: %v", err)
	}
	if m.StateDim() != 6 {
		t.Fatalf("StateDim = %d, want 6", m.StateDim())
	}

	state := mat.NewVecDense(6, nil)
	m.Step(state, model.Twist{Linear: 1.0, Angular: 0})

	// The velocity block reaches the command in one period; the position
	// block integrates the ramp, covering half the distance of a full-speed
	// period.
	if got := state.AtVec(3); math.Abs(got-1.0) > 1e-3 {
		t.Fatalf("vx after one step = %v, want ~1.0", got)
	}
	if got := state.AtVec(0); math.Abs(got-dt/2) > 1e-3 {
		t.Fatalf("x after one step = %v, want ~%v", got, dt/2)
	}

	// A second step at the same command holds full speed.
	m.Step(state, model.Twist{Linear: 1.0, Angular: 0})
	if got := state.AtVec(0); math.Abs(got-(dt/2+dt)) > 1e-3 {
		t.Fatalf("x after two steps = %v, want ~%v", got, dt/2+dt)
	}
}

func TestNewSystemModelRejectsInconsistentConfig(t *testing.T) {
	cases := []struct {
		name     string
		level    int
		posDim   int
		dt       float64
		noiseDim int
	}{
		{"level zero", 0, 3, 0.1, 3},
		{"level too high", 3, 3, 0.1, 9},
		{"wrong position dimension", 1, 4, 0.1, 4},
		{"zero period", 1, 3, 0, 3},
		{"noise dim mismatch", 2, 3, 0.1, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewSystemModel(tc.level, tc.posDim, tc.dt, quietNoise(t, tc.noiseDim))
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("NewSystemModel error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}
