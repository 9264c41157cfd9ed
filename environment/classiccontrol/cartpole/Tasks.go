package cartpole

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
	env "sfneuman.com/govec/environment"
	ts "sfneuman.com/govec/timestep"
)

const (
	FailAngle float64 = 12 * 2 * math.Pi / 360
)

// Balance implements the classic control Cartpole Balance task. In
// this task, the goal of the agent is to balance the pole on the cart
// in an upright position for as long as possible.
//
// The rewards are +1 for every timestep and -1 when the pole has
// fallen below some set angle threshold θ.
//
// Episodes end after a step limit or after the pole has fallen below
// some angle threshold θ.
type Balance struct {
	env.Starter
	stepLimiter  env.StepLimit
	angleLimiter env.Ender
	failAngle    float64
}

// NewBalance creates and returns a new Balance task
func NewBalance(s env.Starter, episodeSteps int, failAngle float64) *Balance {
	stepLimiter := env.NewStepLimit(episodeSteps)

	legalAngles := []r1.Interval{{Min: -failAngle, Max: failAngle}}
	angleFeatureIndex := []int{2}

	angleLimiter := env.NewIntervalLimit(legalAngles, angleFeatureIndex,
		ts.TerminalStateReached)

	return &Balance{s, stepLimiter, angleLimiter, failAngle}
}

// End checks if a TimeStep is the last in an episode. If so, it
// adjusts the TimeStep's StepType to timestep.Last and returns true.
// Otherwise, the function does not adjust the TimeStep and returns
// false.
func (b *Balance) End(t *ts.TimeStep) bool {
	if end := b.angleLimiter.End(t); end {
		return true
	}
	if end := b.stepLimiter.End(t); end {
		return true
	}
	return false
}

// GetReward returns the reward for an action taken in some state,
// resulting in a transition to the state nextState
func (b *Balance) GetReward(_ mat.Vector, _ mat.Vector,
	nextState mat.Vector) float64 {
	angle := math.Abs(nextState.AtVec(2))

	// Angle of 0 is pointing straight up, so we want angles to be
	// less than the failAngle
	if angle < b.failAngle {
		return 1.0
	}
	return -1.0
}

// AtGoal returns whether or not the pole is still balanced upright
func (b *Balance) AtGoal(state mat.Vector) bool {
	return math.Abs(state.AtVec(2)) < b.failAngle
}

// Min returns the minimum possible reward that can be received in the
// environment
func (b *Balance) Min() float64 {
	return -1.0
}

// Max returns the maximum possible reward that can be received in the
// environment
func (b *Balance) Max() float64 {
	return 1.0
}

// NewMaker returns an environment.Maker that constructs a balanced
// Cartpole per environment slot. Each slot's starting state
// distribution is seeded with the slot's own seed, so different slots
// own disjoint deterministic random streams.
func NewMaker(episodeSteps int, discount float64) env.Maker {
	return func(seed uint64) (env.Environment, error) {
		bounds := r1.Interval{Min: -0.05, Max: 0.05}
		starter := env.NewUniformStarter([]r1.Interval{bounds, bounds,
			bounds, bounds}, seed)

		task := NewBalance(starter, episodeSteps, FailAngle)
		return New(task, discount), nil
	}
}
