package rollout

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"
	"sfneuman.com/govec/spec"
)

// Buffer is a fixed-horizon, fixed-width rollout buffer indexed by
// (timestep, slot). All storage is allocated once at construction and
// reused across rollouts; filling the buffer never allocates.
//
// Observations and actions are stored per space key as rank-3 tensors
// of shape (horizon, numEnvs, dim). Rewards have shape (horizon,
// numEnvs, numAgents); done flags, value estimates, and log
// probabilities have shape (horizon, numEnvs), with done flags stored
// as 0/1.
type Buffer struct {
	horizon   int
	numEnvs   int
	numAgents int
	obsSpace  spec.Space
	actSpace  spec.Space

	pos int // Next free row

	obs     map[string]*tensor.Dense
	obsData map[string][]float64
	acts    map[string]*tensor.Dense
	actData map[string][]float64

	rewards  *tensor.Dense
	dones    *tensor.Dense
	values   *tensor.Dense
	logProbs *tensor.Dense

	rewardData  []float64
	doneData    []float64
	valueData   []float64
	logProbData []float64
}

// newBuffer creates and returns a new rollout Buffer
func newBuffer(horizon, numEnvs, numAgents int, obsSpace,
	actSpace spec.Space) *Buffer {
	b := &Buffer{
		horizon:   horizon,
		numEnvs:   numEnvs,
		numAgents: numAgents,
		obsSpace:  obsSpace,
		actSpace:  actSpace,
		obs:       make(map[string]*tensor.Dense),
		obsData:   make(map[string][]float64),
		acts:      make(map[string]*tensor.Dense),
		actData:   make(map[string][]float64),
	}

	for _, key := range obsSpace.Keys() {
		sub, _ := obsSpace.Sub(key)
		b.obsData[key] = make([]float64, horizon*numEnvs*sub.Dim)
		b.obs[key] = tensor.New(tensor.WithShape(horizon, numEnvs, sub.Dim),
			tensor.WithBacking(b.obsData[key]))
	}
	for _, key := range actSpace.Keys() {
		sub, _ := actSpace.Sub(key)
		b.actData[key] = make([]float64, horizon*numEnvs*sub.Dim)
		b.acts[key] = tensor.New(tensor.WithShape(horizon, numEnvs, sub.Dim),
			tensor.WithBacking(b.actData[key]))
	}

	b.rewardData = make([]float64, horizon*numEnvs*numAgents)
	b.rewards = tensor.New(tensor.WithShape(horizon, numEnvs, numAgents),
		tensor.WithBacking(b.rewardData))

	b.doneData = make([]float64, horizon*numEnvs)
	b.dones = tensor.New(tensor.WithShape(horizon, numEnvs),
		tensor.WithBacking(b.doneData))

	b.valueData = make([]float64, horizon*numEnvs)
	b.values = tensor.New(tensor.WithShape(horizon, numEnvs),
		tensor.WithBacking(b.valueData))

	b.logProbData = make([]float64, horizon*numEnvs)
	b.logProbs = tensor.New(tensor.WithShape(horizon, numEnvs),
		tensor.WithBacking(b.logProbData))

	return b
}

// store writes one synchronized timestep across all slots into the
// next free row. The obs argument holds the pre-step observations the
// decision was computed from; rewards and dones come from the step's
// results.
func (b *Buffer) store(obs []spec.Value, dec *Decision,
	rewards []*mat.VecDense, dones []bool) error {
	if b.pos >= b.horizon {
		return fmt.Errorf("store: cannot add new row, buffer at horizon")
	}

	row := b.pos
	for slot := 0; slot < b.numEnvs; slot++ {
		for _, key := range b.obsSpace.Keys() {
			sub, _ := b.obsSpace.Sub(key)
			start := (row*b.numEnvs + slot) * sub.Dim
			copy(b.obsData[key][start:start+sub.Dim],
				obs[slot][key].RawVector().Data)
		}
		for _, key := range b.actSpace.Keys() {
			sub, _ := b.actSpace.Sub(key)
			start := (row*b.numEnvs + slot) * sub.Dim
			copy(b.actData[key][start:start+sub.Dim],
				dec.Actions[slot][key].RawVector().Data)
		}

		start := (row*b.numEnvs + slot) * b.numAgents
		copy(b.rewardData[start:start+b.numAgents],
			rewards[slot].RawVector().Data)

		flat := row*b.numEnvs + slot
		if dones[slot] {
			b.doneData[flat] = 1
		} else {
			b.doneData[flat] = 0
		}
		if dec.Values != nil {
			b.valueData[flat] = dec.Values[slot]
		} else {
			b.valueData[flat] = 0
		}
		if dec.LogProbs != nil {
			b.logProbData[flat] = dec.LogProbs[slot]
		} else {
			b.logProbData[flat] = 0
		}
	}

	b.pos++
	return nil
}

// full returns whether the horizon has been filled
func (b *Buffer) full() bool {
	return b.pos == b.horizon
}

// reset rewinds the buffer for reuse. Storage is retained and
// overwritten by the next rollout.
func (b *Buffer) reset() {
	b.pos = 0
}

// view returns the trainer-facing view of the filled buffer
func (b *Buffer) view() *Rollout {
	obs := make(map[string]*tensor.Dense, len(b.obs))
	for key, t := range b.obs {
		obs[key] = t
	}
	acts := make(map[string]*tensor.Dense, len(b.acts))
	for key, t := range b.acts {
		acts[key] = t
	}

	return &Rollout{
		Observations: obs,
		Actions:      acts,
		Rewards:      b.rewards,
		Dones:        b.dones,
		Values:       b.values,
		LogProbs:     b.logProbs,
		Horizon:      b.horizon,
		NumEnvs:      b.numEnvs,
	}
}

// Rollout is a filled rollout handed to the trainer. It is a read-only
// view over the collector's reused storage: it remains valid only
// until collection is started again, and must never be mutated.
type Rollout struct {
	// Observations and Actions map space keys to (horizon, numEnvs,
	// dim) tensors
	Observations map[string]*tensor.Dense
	Actions      map[string]*tensor.Dense

	// Rewards has shape (horizon, numEnvs, numAgents)
	Rewards *tensor.Dense

	// Dones, Values, and LogProbs have shape (horizon, numEnvs)
	Dones    *tensor.Dense
	Values   *tensor.Dense
	LogProbs *tensor.Dense

	Horizon int
	NumEnvs int
}
