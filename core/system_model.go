package core

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/signalsfoundry/rover-simulator/model"
)

// posStateDim is the position block of the state: x, y, theta. The kinematic
// variants below are written for a planar velocity-commanded base, so any
// other configured position dimension is rejected.
const posStateDim = 3

// maxLevel caps the kinematic order: 1 = position only, 2 = position and
// velocity.
const maxLevel = 2

// SystemModel advances the platform state one update period under the most
// recent velocity command, injecting one process-noise draw per step. The
// kinematic order is baked into the concrete variant, selected once at
// configuration.
type SystemModel interface {
	// Step mutates state in place to the next state. The command is read,
	// never modified.
	Step(state *mat.VecDense, cmd model.Twist)
	// StateDim returns the state dimension the model was built for.
	StateDim() int
}

// NewSystemModel selects the kinematic variant for the requested level of
// continuity. It rejects level/dimension combinations the velocity-command
// interface cannot drive.
func NewSystemModel(level, posDim int, dt float64, noise *NoiseSource) (SystemModel, error) {
	if posDim != posStateDim {
		return nil, fmt.Errorf("%w: position state dimension must be %d (x, y, theta), got %d",
			ErrInvalidConfig, posStateDim, posDim)
	}
	if level < 1 || level > maxLevel {
		return nil, fmt.Errorf("%w: kinematic level must be in [1, %d], got %d",
			ErrInvalidConfig, maxLevel, level)
	}
	if dt <= 0 {
		return nil, fmt.Errorf("%w: update period must be positive, got %v", ErrInvalidConfig, dt)
	}
	dim := posDim * level
	if noise.Dim() != dim {
		return nil, fmt.Errorf("%w: process noise has dimension %d, level-%d state needs %d",
			ErrInvalidConfig, noise.Dim(), level, dim)
	}

	switch level {
	case 1:
		return &positionModel{dt: dt, noise: noise}, nil
	default:
		c1, err := taylorCoeff(dt, 1)
		if err != nil {
			return nil, err
		}
		c2, err := taylorCoeff(dt, 2)
		if err != nil {
			return nil, err
		}
		return &positionVelocityModel{dt: dt, c1: c1, c2: c2, noise: noise}, nil
	}
}

// positionModel is the level-1 variant: the command is taken as the platform
// velocity over the whole period and integrated directly into the pose.
type positionModel struct {
	dt    float64
	noise *NoiseSource
}

func (m *positionModel) StateDim() int { return posStateDim }

func (m *positionModel) Step(state *mat.VecDense, cmd model.Twist) {
	theta := state.AtVec(2)
	state.SetVec(0, state.AtVec(0)+cmd.Linear*math.Cos(theta)*m.dt)
	state.SetVec(1, state.AtVec(1)+cmd.Linear*math.Sin(theta)*m.dt)
	state.SetVec(2, theta+cmd.Angular*m.dt)
	addVecInPlace(state, m.noise.Draw())
}

// positionVelocityModel is the level-2 variant: state (x, y, theta, vx, vy,
// vtheta). The velocity block ramps to the commanded body velocity (rotated
// into the world frame) over one period, and the position block integrates
// that ramp with Taylor coefficients dt^k/k!.
type positionVelocityModel struct {
	dt     float64
	c1, c2 float64
	noise  *NoiseSource
}

func (m *positionVelocityModel) StateDim() int { return 2 * posStateDim }

func (m *positionVelocityModel) Step(state *mat.VecDense, cmd model.Twist) {
	theta := state.AtVec(2)
	target := [posStateDim]float64{
		cmd.Linear * math.Cos(theta),
		cmd.Linear * math.Sin(theta),
		cmd.Angular,
	}
	for i := 0; i < posStateDim; i++ {
		v := state.AtVec(posStateDim + i)
		accel := (target[i] - v) / m.dt
		state.SetVec(i, state.AtVec(i)+v*m.c1+accel*m.c2)
		state.SetVec(posStateDim+i, v+accel*m.c1)
	}
	addVecInPlace(state, m.noise.Draw())
}

// Factorial returns n! for n >= 0 and rejects negative input.
func Factorial(n int) (int, error) {
	if n < 0 {
		return 0, fmt.Errorf("%w: factorial of negative number %d", ErrInvalidInput, n)
	}
	f := 1
	for i := 2; i <= n; i++ {
		f *= i
	}
	return f, nil
}

// taylorCoeff returns dt^k / k!, the k-th coefficient of the Taylor expansion
// used to integrate the kinematic chain.
func taylorCoeff(dt float64, k int) (float64, error) {
	f, err := Factorial(k)
	if err != nil {
		return 0, err
	}
	return math.Pow(dt, float64(k)) / float64(f), nil
}
