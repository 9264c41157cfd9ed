package vecenv

import (
	"github.com/sirupsen/logrus"
	"sfneuman.com/govec/spec"
)

// cmdKind is the kind of command a worker can receive
type cmdKind int

const (
	cmdReset cmdKind = iota
	cmdStep
	cmdClose
)

func (c cmdKind) String() string {
	switch c {
	case cmdReset:
		return "RESET"
	case cmdStep:
		return "STEP"
	default:
		return "CLOSE"
	}
}

// command is one request from the coordinator to a worker. For
// cmdStep, actions holds one action per slot owned by the worker, in
// ascending slot order. For cmdReset, slots holds the global indices
// of the slots to reset, or nil for all of the worker's slots.
type command struct {
	kind    cmdKind
	actions []spec.Value
	slots   []int
}

// workerReply is a worker's response to one command. Results are
// tagged with global slot indices so the coordinator can reassemble
// them into global slot order no matter when the reply arrives.
type workerReply struct {
	worker  int
	results []slotResult
}

// worker owns a contiguous, disjoint range of slots [lo, hi) and
// drives their handles from a private goroutine. All communication is
// synchronous request/response over the command channel; the worker
// never initiates traffic.
//
// Slot-to-worker assignment is static. A worker's environments are
// stepped in ascending slot order within one command, so a given
// slot's environment observes exactly the same call sequence as it
// would under the serial backend.
type worker struct {
	id      int
	lo, hi  int
	handles []*handle

	cmds    chan command
	replies chan<- workerReply

	log logrus.FieldLogger
}

func newWorker(id, lo, hi int, handles []*handle,
	replies chan<- workerReply, log logrus.FieldLogger) *worker {
	return &worker{
		id:      id,
		lo:      lo,
		hi:      hi,
		handles: handles,
		cmds:    make(chan command, 1),
		replies: replies,
		log:     log.WithField("worker", id),
	}
}

// numSlots returns how many slots the worker owns
func (w *worker) numSlots() int {
	return w.hi - w.lo
}

// owns returns whether the worker owns a global slot index
func (w *worker) owns(slot int) bool {
	return slot >= w.lo && slot < w.hi
}

// run is the worker's goroutine body. It processes commands until a
// cmdClose arrives, then closes its environments, acknowledges, and
// returns. Environment faults never escape the loop: the handles
// convert panics and errors into per-slot results.
func (w *worker) run() {
	w.log.Debug("worker started")

	for cmd := range w.cmds {
		var results []slotResult

		switch cmd.kind {
		case cmdReset:
			results = w.resetSlots(cmd.slots)

		case cmdStep:
			results = make([]slotResult, len(w.handles))
			for i, h := range w.handles {
				t, err := h.step(cmd.actions[i])
				results[i] = slotResult{slot: h.slot, step: t, err: err}
			}

		case cmdClose:
			for _, h := range w.handles {
				if err := h.close(); err != nil {
					w.log.WithField("slot", h.slot).WithError(err).
						Warn("environment close failed")
					results = append(results,
						slotResult{slot: h.slot, err: err})
				}
			}
			w.replies <- workerReply{worker: w.id, results: results}
			w.log.Debug("worker stopped")
			return
		}

		w.replies <- workerReply{worker: w.id, results: results}
	}
}

// resetSlots resets the given global slots, or all owned slots when
// slots is nil
func (w *worker) resetSlots(slots []int) []slotResult {
	if slots == nil {
		slots = make([]int, 0, w.numSlots())
		for slot := w.lo; slot < w.hi; slot++ {
			slots = append(slots, slot)
		}
	}

	results := make([]slotResult, 0, len(slots))
	for _, slot := range slots {
		if !w.owns(slot) {
			continue
		}
		t, err := w.handles[slot-w.lo].reset()
		results = append(results, slotResult{slot: slot, step: t, err: err})
	}
	return results
}
