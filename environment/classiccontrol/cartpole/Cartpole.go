// Package cartpole implements the Cartpole classic control environment
package cartpole

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
	env "sfneuman.com/govec/environment"
	"sfneuman.com/govec/spec"
	ts "sfneuman.com/govec/timestep"
	"sfneuman.com/govec/utils/floatutils"
)

const (
	// Physical constants
	Gravity        float64 = 9.8
	CartMass       float64 = 1.0
	PoleMass       float64 = 0.1
	HalfPoleLength float64 = 0.5
	ForceMag       float64 = 10.0 // Magnification of force applied
	Dt             float64 = 0.02 // Seconds between state updates

	// Bounds (+/-) on state variables
	PositionBounds        float64 = 4.8
	SpeedBounds           float64 = math.MaxFloat64
	AngleBounds           float64 = math.Pi
	AngularVelocityBounds float64 = math.MaxFloat64

	// Discrete actions
	MinDiscreteAction int = 0
	MaxDiscreteAction int = 2
)

// Cartpole implements the classic control environment Cartpole. In
// this environment, a pole is attached to a cart, which can move
// horizontally. The agent must keep the pole upright for as long as
// possible.
//
// The state features are continuous and consist of the cart's x
// position and speed, as well as the pole's angle from the positive
// y-axis and the pole's angular velocity. All state features are
// bounded by the constants defined in this file.
//
// Actions are discrete and determine the force applied to the cart:
//
//	Action	Meaning
//	  0		Accelerate left
//	  1		Do nothing
//	  2		Accelerate right
type Cartpole struct {
	env.Task
	lastStep              ts.TimeStep
	discount              float64
	closed                bool
	positionBounds        r1.Interval
	speedBounds           r1.Interval
	angleBounds           r1.Interval
	angularVelocityBounds r1.Interval
}

// New constructs a new Cartpole environment with a given task. The
// environment starts unreset; Reset must be called before Step.
func New(t env.Task, discount float64) *Cartpole {
	positionBounds := r1.Interval{Min: -PositionBounds, Max: PositionBounds}
	speedBounds := r1.Interval{Min: -SpeedBounds, Max: SpeedBounds}
	angleBounds := r1.Interval{Min: -AngleBounds, Max: AngleBounds}
	angularVelocityBounds := r1.Interval{Min: -AngularVelocityBounds,
		Max: AngularVelocityBounds}

	return &Cartpole{
		Task:                  t,
		discount:              discount,
		positionBounds:        positionBounds,
		speedBounds:           speedBounds,
		angleBounds:           angleBounds,
		angularVelocityBounds: angularVelocityBounds,
	}
}

// Reset resets the environment and returns a starting timestep drawn
// from the environment Starter
func (c *Cartpole) Reset() (ts.TimeStep, error) {
	if c.closed {
		return ts.TimeStep{}, fmt.Errorf("reset: environment closed")
	}

	state := c.Start()
	if err := c.validateState(state); err != nil {
		return ts.TimeStep{}, fmt.Errorf("reset: %v", err)
	}

	startStep := ts.New(ts.First, mat.NewVecDense(1, nil), c.discount,
		spec.Scalar(state), 0)
	c.lastStep = startStep

	return startStep, nil
}

// Step takes one environmental step given an action and returns the
// resulting timestep. The action must hold a single discrete action
// index in [MinDiscreteAction, MaxDiscreteAction].
func (c *Cartpole) Step(action spec.Value) (ts.TimeStep, error) {
	if c.closed {
		return ts.TimeStep{}, fmt.Errorf("step: environment closed")
	}

	if err := c.ActionSpace().Validate(action); err != nil {
		return ts.TimeStep{}, fmt.Errorf("step: %v", err)
	}

	a := action.Vector().AtVec(0)
	intAction := int(a)
	if intAction < MinDiscreteAction || intAction > MaxDiscreteAction {
		return ts.TimeStep{}, fmt.Errorf("step: illegal action %v ∉ "+
			"(0, 1, 2)", intAction)
	}

	// Get state variables
	state := c.lastStep.Observation.Vector()
	x, xDot := state.AtVec(0), state.AtVec(1)
	th, thDot := state.AtVec(2), state.AtVec(3)

	// Magnify the action force in the appropriate direction
	var force float64
	switch intAction {
	case 0:
		force = -ForceMag
	case 2:
		force = ForceMag
	default:
		force = 0.0 // No action taken
	}

	// Calculate physical variables to determine the next state
	cosTheta := math.Cos(th)
	sinTheta := math.Sin(th)

	totalMass := PoleMass + CartMass
	poleMassOverLength := PoleMass / HalfPoleLength

	temp := (force + poleMassOverLength*thDot*thDot*sinTheta) / totalMass
	thAcc := (Gravity*sinTheta - cosTheta*temp) / (HalfPoleLength *
		(4.0/3.0 - PoleMass*cosTheta*cosTheta/totalMass))
	xAcc := temp - poleMassOverLength*thAcc*cosTheta/totalMass

	// Update state variables using Euler kinematic integration
	x += Dt * xDot
	x = floatutils.ClipInterval(x, c.positionBounds)

	xDot += Dt * xAcc

	th += Dt * thDot
	th = floatutils.WrapInterval(th, c.angleBounds)

	thDot += Dt * thAcc

	newState := mat.NewVecDense(4, []float64{x, xDot, th, thDot})
	reward := c.GetReward(state, action.Vector(), newState)
	nextStep := ts.New(ts.Mid, mat.NewVecDense(1, []float64{reward}),
		c.discount, spec.Scalar(newState), c.lastStep.Number+1)

	// Check if the step ends the episode
	c.End(&nextStep)

	c.lastStep = nextStep
	return nextStep, nil
}

// Close releases the environment. Subsequent Reset or Step calls fail.
func (c *Cartpole) Close() error {
	if c.closed {
		return fmt.Errorf("close: environment already closed")
	}
	c.closed = true
	return nil
}

// ObservationSpace returns the observation space of the environment
func (c *Cartpole) ObservationSpace() spec.Space {
	lower := []float64{c.positionBounds.Min, c.speedBounds.Min,
		c.angleBounds.Min, c.angularVelocityBounds.Min}
	upper := []float64{c.positionBounds.Max, c.speedBounds.Max,
		c.angleBounds.Max, c.angularVelocityBounds.Max}

	return spec.NewScalarSpace(spec.NewSubSpace(4,
		mat.NewVecDense(4, lower), mat.NewVecDense(4, upper),
		spec.Continuous))
}

// ActionSpace returns the action space of the environment
func (c *Cartpole) ActionSpace() spec.Space {
	lower := mat.NewVecDense(1, []float64{float64(MinDiscreteAction)})
	upper := mat.NewVecDense(1, []float64{float64(MaxDiscreteAction)})

	return spec.NewScalarSpace(spec.NewSubSpace(1, lower, upper,
		spec.Discrete))
}

// validateState ensures that a state observation is within the
// physical bounds of the Cartpole environment
func (c *Cartpole) validateState(obs mat.Vector) error {
	bounds := []r1.Interval{c.positionBounds, c.speedBounds, c.angleBounds,
		c.angularVelocityBounds}
	names := []string{"position", "speed", "angle", "angular velocity"}

	for i, interval := range bounds {
		if obs.AtVec(i) > interval.Max || obs.AtVec(i) < interval.Min {
			return fmt.Errorf("%v %v is not within bounds %v", names[i],
				obs.AtVec(i), interval)
		}
	}
	return nil
}

func (c *Cartpole) String() string {
	msg := "Cartpole  |  Position: %v  | Speed: %v  |  Angle: %v" +
		"  |  Angular Velocity: %v"

	state := c.lastStep.Observation.Vector()
	position, speed := state.AtVec(0), state.AtVec(1)
	angle, velocity := state.AtVec(2), state.AtVec(3)

	return fmt.Sprintf(msg, position, speed, angle, velocity)
}
