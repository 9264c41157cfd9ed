package vecenv

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"sfneuman.com/govec/spec"
)

// parallelExecutor coordinates a pool of workers. Every command is
// fanned out to all involved workers, and the executor blocks until
// all of them reply or the liveness window expires. Replies arrive in
// arbitrary order; results are reassembled into ascending global slot
// order before being returned, so a Batch produced by the parallel
// backend is structurally identical to the serial backend's.
//
// The slot partition is computed once at construction and never
// rebalanced. A worker that misses its liveness window is marked dead
// for the remainder of the run: its slots report WorkerTimeout on
// every subsequent command, and only reconstruction brings them back.
// Dead worker goroutines cannot be forcibly killed; they are abandoned
// and their eventual late replies discarded.
type parallelExecutor struct {
	n       int
	workers []*worker
	dead    []bool
	replies chan workerReply

	liveness     time.Duration
	closeTimeout time.Duration

	log logrus.FieldLogger
}

// newParallelExecutor partitions handles contiguously across
// numWorkers workers and starts one goroutine per worker
func newParallelExecutor(handles []*handle, numWorkers int,
	liveness, closeTimeout time.Duration,
	log logrus.FieldLogger) *parallelExecutor {
	n := len(handles)
	p := &parallelExecutor{
		n:            n,
		workers:      make([]*worker, numWorkers),
		dead:         make([]bool, numWorkers),
		replies:      make(chan workerReply, numWorkers),
		liveness:     liveness,
		closeTimeout: closeTimeout,
		log:          log,
	}

	// Contiguous static partition: the first n%numWorkers workers own
	// one extra slot
	base := n / numWorkers
	extra := n % numWorkers
	lo := 0
	for i := 0; i < numWorkers; i++ {
		hi := lo + base
		if i < extra {
			hi++
		}
		p.workers[i] = newWorker(i, lo, hi, handles[lo:hi], p.replies, log)
		go p.workers[i].run()
		lo = hi
	}

	return p
}

func (p *parallelExecutor) reset(slots []int) []slotResult {
	results := make(map[int]slotResult, p.n)
	involved := make(map[int][]int, len(p.workers))

	for _, w := range p.workers {
		mine := p.slotsFor(w, slots)
		if len(mine) == 0 {
			continue
		}
		if p.dead[w.id] {
			p.timeoutSlots(w.id, mine, results)
			continue
		}
		w.cmds <- command{kind: cmdReset, slots: mine}
		involved[w.id] = mine
	}

	p.collect(involved, results)
	return flatten(results)
}

func (p *parallelExecutor) step(actions []spec.Value) []slotResult {
	results := make(map[int]slotResult, p.n)
	involved := make(map[int][]int, len(p.workers))

	for _, w := range p.workers {
		mine := p.slotsFor(w, nil)
		if p.dead[w.id] {
			p.timeoutSlots(w.id, mine, results)
			continue
		}
		w.cmds <- command{kind: cmdStep, actions: actions[w.lo:w.hi]}
		involved[w.id] = mine
	}

	p.collect(involved, results)
	return flatten(results)
}

func (p *parallelExecutor) close() error {
	var failures []string

	involved := make(map[int][]int, len(p.workers))
	for _, w := range p.workers {
		if p.dead[w.id] {
			failures = append(failures, fmt.Sprintf(
				"worker %v already unresponsive", w.id))
			continue
		}
		w.cmds <- command{kind: cmdClose}
		involved[w.id] = nil
	}

	timer := time.NewTimer(p.closeTimeout)
	defer timer.Stop()

	remaining := len(involved)
	for remaining > 0 {
		select {
		case r := <-p.replies:
			if _, ok := involved[r.worker]; !ok {
				continue // Stale reply from an abandoned worker
			}
			delete(involved, r.worker)
			remaining--
			for _, res := range r.results {
				if res.err != nil {
					failures = append(failures, res.err.Error())
				}
			}

		case <-timer.C:
			for id := range involved {
				p.dead[id] = true
				p.log.WithField("worker", id).Error(
					"worker did not acknowledge close; abandoning")
				failures = append(failures, fmt.Sprintf(
					"worker %v did not acknowledge close within %v", id,
					p.closeTimeout))
			}
			remaining = 0
		}
	}

	if len(failures) > 0 {
		return fmt.Errorf("close: %v", strings.Join(failures, "; "))
	}
	return nil
}

// slotsFor returns the subset of the requested global slots owned by
// w, or all of w's slots when requested is nil
func (p *parallelExecutor) slotsFor(w *worker, requested []int) []int {
	if requested == nil {
		all := make([]int, 0, w.numSlots())
		for slot := w.lo; slot < w.hi; slot++ {
			all = append(all, slot)
		}
		return all
	}

	var mine []int
	for _, slot := range requested {
		if w.owns(slot) {
			mine = append(mine, slot)
		}
	}
	return mine
}

// collect performs the fan-in for one command: it blocks until every
// involved worker replies or the liveness window expires. Workers that
// miss the window are marked dead and their slots filled with
// WorkerTimeout results. Early-arriving replies are buffered into the
// result map keyed by global slot, which makes reassembly into
// ascending slot order independent of arrival order.
func (p *parallelExecutor) collect(involved map[int][]int,
	results map[int]slotResult) {
	timer := time.NewTimer(p.liveness)
	defer timer.Stop()

	remaining := len(involved)
	for remaining > 0 {
		select {
		case r := <-p.replies:
			if _, ok := involved[r.worker]; !ok || p.dead[r.worker] {
				p.log.WithField("worker", r.worker).Debug(
					"discarding stale worker reply")
				continue
			}
			for _, res := range r.results {
				results[res.slot] = res
			}
			delete(involved, r.worker)
			remaining--

		case <-timer.C:
			for id, slots := range involved {
				p.dead[id] = true
				workerTimeoutsTotal.Inc()
				p.log.WithFields(logrus.Fields{
					"worker":  id,
					"timeout": p.liveness,
				}).Error("worker unresponsive; marking dead for run")
				p.timeoutSlots(id, slots, results)
			}
			remaining = 0
		}
	}
}

// timeoutSlots fills results for slots owned by a dead worker
func (p *parallelExecutor) timeoutSlots(workerID int, slots []int,
	results map[int]slotResult) {
	for _, slot := range slots {
		results[slot] = slotResult{
			slot: slot,
			err: &WorkerTimeout{
				Worker:  workerID,
				Slot:    slot,
				Timeout: p.liveness,
			},
		}
	}
}

// flatten orders a slot-keyed result map into ascending slot order
func flatten(results map[int]slotResult) []slotResult {
	slots := make([]int, 0, len(results))
	for slot := range results {
		slots = append(slots, slot)
	}
	sort.Ints(slots)

	ordered := make([]slotResult, len(slots))
	for i, slot := range slots {
		ordered[i] = results[slot]
	}
	return ordered
}
