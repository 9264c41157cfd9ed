package vecenv

import (
	"gonum.org/v1/gonum/mat"
	"sfneuman.com/govec/spec"
	"sfneuman.com/govec/timestep"
)

// Info keys set by the engine
const (
	// TerminalObservationKey stores a slot's terminal observation in
	// its info map when auto-reset replaces the observation with a
	// fresh one
	TerminalObservationKey string = "terminal_observation"

	// EpisodeReturnKey and EpisodeLengthKey store episode statistics
	// in a slot's info map on the last step of its episode
	EpisodeReturnKey string = "episode_return"
	EpisodeLengthKey string = "episode_length"
)

// Batch is one synchronized step result across all environment slots.
// Every field is slot-indexed with ascending slot order; field i
// always belongs to global slot i regardless of which worker produced
// it or when that worker replied.
//
// A Batch is only valid until the next Reset or Step call on the
// vectorized environment that produced it.
type Batch struct {
	// Observations holds the current observation per slot. For a slot
	// whose episode ended this step with auto-reset enabled, this is
	// already the fresh post-reset observation; the terminal
	// observation is kept in Infos under TerminalObservationKey.
	Observations []spec.Value

	// Rewards holds one reward vector per slot, with one entry per
	// agent
	Rewards []*mat.VecDense

	// Dones flags slots whose episode ended on this step
	Dones []bool

	// Infos holds opaque per-slot metadata; nil for slots without any
	Infos []map[string]interface{}

	// Faults holds the per-slot error, or nil for healthy slots.
	// Faulted slots have zero-valued observations and rewards; sibling
	// slots are unaffected.
	Faults []error
}

func newBatch(numSlots, numAgents int) *Batch {
	b := &Batch{
		Observations: make([]spec.Value, numSlots),
		Rewards:      make([]*mat.VecDense, numSlots),
		Dones:        make([]bool, numSlots),
		Infos:        make([]map[string]interface{}, numSlots),
		Faults:       make([]error, numSlots),
	}
	for i := range b.Rewards {
		b.Rewards[i] = mat.NewVecDense(numAgents, nil)
	}
	return b
}

// NumSlots returns the number of environment slots in the Batch
func (b *Batch) NumSlots() int {
	return len(b.Observations)
}

// FirstFault returns the lowest-slot fault in the Batch, or nil if
// every slot is healthy
func (b *Batch) FirstFault() error {
	for _, err := range b.Faults {
		if err != nil {
			return err
		}
	}
	return nil
}

// Faulted returns whether any slot in the Batch carries a fault
func (b *Batch) Faulted() bool {
	return b.FirstFault() != nil
}

// set fills slot's fields from a timestep
func (b *Batch) set(slot int, t timestep.TimeStep) {
	b.Observations[slot] = t.Observation
	if t.Reward != nil {
		b.Rewards[slot] = t.Reward
	}
	b.Dones[slot] = t.Last()
	b.Infos[slot] = t.Info
}

// setFault marks slot as faulted
func (b *Batch) setFault(slot int, err error) {
	b.Faults[slot] = err
}

// info returns slot's info map, creating it if needed
func (b *Batch) info(slot int) map[string]interface{} {
	if b.Infos[slot] == nil {
		b.Infos[slot] = make(map[string]interface{})
	}
	return b.Infos[slot]
}
