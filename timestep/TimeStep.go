// Package timestep implements timesteps of the agent-environment
// interaction
package timestep

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"sfneuman.com/govec/spec"
)

// StepType denotes the type of step that a TimeStep can be, either a
// first environmental step, a middle step, or a last step
type StepType int

const (
	First StepType = iota
	Mid
	Last
)

func (s StepType) String() string {
	switch s {
	case First:
		return "First"
	case Last:
		return "Last"
	default:
		return "Mid"
	}
}

// EndType denotes the reason an episode ended. Episodes may end
// because the environment reached a terminal state or because a step
// limit cut the episode off.
type EndType int

const (
	// TerminalStateReached indicates the episode ended in a true
	// terminal state
	TerminalStateReached EndType = iota

	// Timeout indicates the episode was cut off by a step limit
	Timeout

	// Nil indicates the episode has not ended
	Nil
)

func (e EndType) String() string {
	switch e {
	case TerminalStateReached:
		return "TerminalStateReached"
	case Timeout:
		return "Timeout"
	default:
		return "Nil"
	}
}

// TimeStep packages together a single timestep in an environment.
//
// The Reward field holds one reward per agent acting in the
// environment and has length 1 for single-agent environments. The
// Observation field is a normalized key to vector mapping; non-dict
// observation spaces store their single vector under spec.DefaultKey.
// Info carries opaque per-step metadata from the environment.
type TimeStep struct {
	StepType    StepType
	Reward      *mat.VecDense
	Discount    float64
	Observation spec.Value
	Number      int
	EndType     EndType
	Info        map[string]interface{}
}

// New constructs a new TimeStep with no Info attached
func New(t StepType, reward *mat.VecDense, discount float64,
	obs spec.Value, number int) TimeStep {
	return TimeStep{t, reward, discount, obs, number, Nil, nil}
}

// First returns whether a TimeStep is the first in an environment
func (t TimeStep) First() bool {
	return t.StepType == First
}

// Mid returns whether a TimeStep is a middle step in an environment
func (t TimeStep) Mid() bool {
	return t.StepType == Mid
}

// Last returns whether a TimeStep is the last step in an environment
func (t TimeStep) Last() bool {
	return t.StepType == Last
}

// SetEnd records the reason the episode ended and marks the TimeStep
// as the last of its episode
func (t *TimeStep) SetEnd(e EndType) {
	t.StepType = Last
	t.EndType = e
}

// TotalReward returns the sum of all agents' rewards on this TimeStep.
// For single-agent environments this is the single reward value.
func (t TimeStep) TotalReward() float64 {
	if t.Reward == nil {
		return 0
	}
	return floats.Sum(t.Reward.RawVector().Data)
}

func (t TimeStep) String() string {
	str := "TimeStep | Type: %v  |  Reward:  %.2f  |  Discount: %.2f  |  " +
		"Step Number:  %v"

	return fmt.Sprintf(str, t.StepType, t.TotalReward(), t.Discount, t.Number)
}
