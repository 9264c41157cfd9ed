package vecenv

import (
	"fmt"
	"strings"

	"sfneuman.com/govec/spec"
	"sfneuman.com/govec/timestep"
)

// slotResult is the outcome of one command for one slot. Exactly one
// of step and err is meaningful.
type slotResult struct {
	slot int
	step timestep.TimeStep
	err  error
}

// executor drives a fixed set of environment handles. reset with a nil
// slot list resets every slot; otherwise only the given slots. step
// takes one action per slot in ascending slot order. Both return one
// result per affected slot.
type executor interface {
	reset(slots []int) []slotResult
	step(actions []spec.Value) []slotResult
	close() error
}

// serialExecutor steps all slots in ascending slot order within a
// single control flow. Batches it produces use the identity
// permutation of slots, and repeated runs with identical seeds and
// actions are bit-for-bit reproducible.
type serialExecutor struct {
	handles []*handle
}

func newSerialExecutor(handles []*handle) *serialExecutor {
	return &serialExecutor{handles: handles}
}

func (s *serialExecutor) reset(slots []int) []slotResult {
	if slots == nil {
		slots = make([]int, len(s.handles))
		for i := range slots {
			slots[i] = i
		}
	}

	results := make([]slotResult, len(slots))
	for i, slot := range slots {
		t, err := s.handles[slot].reset()
		results[i] = slotResult{slot: slot, step: t, err: err}
	}
	return results
}

func (s *serialExecutor) step(actions []spec.Value) []slotResult {
	results := make([]slotResult, len(s.handles))
	for slot, h := range s.handles {
		t, err := h.step(actions[slot])
		results[slot] = slotResult{slot: slot, step: t, err: err}
	}
	return results
}

func (s *serialExecutor) close() error {
	var failures []string
	for _, h := range s.handles {
		if err := h.close(); err != nil {
			failures = append(failures, err.Error())
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("close: %v", strings.Join(failures, "; "))
	}
	return nil
}
