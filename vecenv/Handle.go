package vecenv

import (
	"fmt"

	"sfneuman.com/govec/environment"
	"sfneuman.com/govec/spec"
	"sfneuman.com/govec/timestep"
)

// handle wraps one environment instance in a slot and keeps its
// episode bookkeeping. A handle never auto-resets: once the wrapped
// environment reports the last step of an episode, the handle refuses
// further steps until reset is called. Auto-reset policy lives in
// VecEnv so that the serial and parallel backends share identical
// episode-boundary behaviour.
//
// A handle is only ever driven from a single goroutine: the serial
// executor's control flow or the one worker goroutine owning its slot.
type handle struct {
	slot      int
	env       environment.Environment
	numAgents int

	started bool
	done    bool
	faulted bool

	episodeSteps  int
	episodeReturn float64
}

func newHandle(slot int, env environment.Environment, numAgents int) *handle {
	return &handle{slot: slot, env: env, numAgents: numAgents}
}

// fault wraps an underlying environment error with the handle's slot
// identity
func (h *handle) fault(err error) *EnvironmentFault {
	return &EnvironmentFault{Slot: h.slot, Cause: err}
}

// reset starts a new episode. It clears any done or faulted latch.
func (h *handle) reset() (t timestep.TimeStep, err error) {
	defer func() {
		if r := recover(); r != nil {
			h.faulted = true
			err = h.fault(fmt.Errorf("reset: panic: %v", r))
		}
	}()

	t, envErr := h.env.Reset()
	if envErr != nil {
		h.faulted = true
		return timestep.TimeStep{}, h.fault(envErr)
	}

	h.started = true
	h.done = false
	h.faulted = false
	h.episodeSteps = 0
	h.episodeReturn = 0
	return t, nil
}

// step advances the episode by one action. Stepping an unreset, done,
// or faulted handle is illegal and reports a fault without touching
// the wrapped environment. A step result whose reward vector does not
// hold one entry per agent breaches the environment contract and
// faults the slot.
func (h *handle) step(action spec.Value) (t timestep.TimeStep, err error) {
	if !h.started {
		return timestep.TimeStep{}, h.fault(
			fmt.Errorf("step: slot not reset"))
	}
	if h.faulted {
		return timestep.TimeStep{}, h.fault(
			fmt.Errorf("step: slot faulted and not yet reset"))
	}
	if h.done {
		return timestep.TimeStep{}, h.fault(
			fmt.Errorf("step: episode finished and slot not yet reset"))
	}

	defer func() {
		if r := recover(); r != nil {
			h.faulted = true
			err = h.fault(fmt.Errorf("step: panic: %v", r))
		}
	}()

	t, envErr := h.env.Step(action)
	if envErr != nil {
		h.faulted = true
		return timestep.TimeStep{}, h.fault(envErr)
	}
	if t.Reward == nil || t.Reward.Len() != h.numAgents {
		h.faulted = true
		got := 0
		if t.Reward != nil {
			got = t.Reward.Len()
		}
		return timestep.TimeStep{}, h.fault(fmt.Errorf(
			"step: got reward for %v agents, expected %v", got, h.numAgents))
	}

	h.episodeSteps++
	h.episodeReturn += t.TotalReward()

	if t.Last() {
		h.done = true
		if t.Info == nil {
			t.Info = make(map[string]interface{})
		}
		t.Info[EpisodeReturnKey] = h.episodeReturn
		t.Info[EpisodeLengthKey] = h.episodeSteps
	}
	return t, nil
}

// close releases the wrapped environment
func (h *handle) close() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = h.fault(fmt.Errorf("close: panic: %v", r))
		}
	}()

	if envErr := h.env.Close(); envErr != nil {
		return h.fault(envErr)
	}
	return nil
}
