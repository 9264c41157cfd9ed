// Package environment outlines the interfaces and structs needed to
// implement concrete environments
package environment

import (
	"gonum.org/v1/gonum/mat"
	"sfneuman.com/govec/spec"
	"sfneuman.com/govec/timestep"
)

// Starter implements a distribution of starting states and samples
// starting states for environments
type Starter interface {
	Start() *mat.VecDense
}

// Ender determines when an episode ends. Enders inspect a timestep
// and, if the episode should end, mark the timestep as the last of its
// episode.
type Ender interface {
	End(t *timestep.TimeStep) bool
}

// Task implements the reward scheme for taking actions in some
// environment, as well as the starting state distribution and the
// episode termination conditions.
type Task interface {
	Starter
	Ender
	GetReward(state, action, nextState mat.Vector) float64
	AtGoal(state mat.Vector) bool
	Min() float64 // Minimum possible reward
	Max() float64 // Maximum possible reward
}

// Environment implements a simulated environment, which includes a
// Task to complete.
//
// Reset starts a new episode and returns its first timestep. Step
// advances the environment by one action and returns the resulting
// timestep; once that timestep is the last of its episode, the
// environment must not be stepped again until Reset is called. Close
// releases any resources held by the environment; the environment is
// unusable afterwards.
//
// Environments are not safe for concurrent use. The vectorized
// execution engine guarantees each instance is only ever driven from
// a single goroutine.
type Environment interface {
	Reset() (timestep.TimeStep, error)
	Step(action spec.Value) (timestep.TimeStep, error)
	Close() error
	ObservationSpace() spec.Space
	ActionSpace() spec.Space
}

// Maker constructs one environment instance seeded with a given seed.
// The vectorized execution engine calls a Maker once per environment
// slot with a per-slot seed, so that every slot owns a private,
// deterministic random stream regardless of how slots are partitioned
// across workers.
type Maker func(seed uint64) (Environment, error)
