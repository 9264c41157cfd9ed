// Package vecenv implements vectorized execution of environment
// instances.
//
// A VecEnv runs N independent environments behind a single
// step-batched interface, either serially in one control flow or in
// parallel across a pool of worker goroutines. The two backends
// produce structurally identical Batches: same slot ordering, same
// episode-boundary semantics, and, because every slot's random stream
// is seeded by slot index rather than by worker, identical per-slot
// trajectories for identical seeds and action sequences.
package vecenv

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"sfneuman.com/govec/environment"
	"sfneuman.com/govec/spec"
)

// VecEnv is a vectorized environment over a fixed set of environment
// slots. The environment count, slot partition, and space metadata are
// fixed at construction; changing any of them requires constructing a
// new VecEnv.
//
// VecEnv owns the auto-reset policy: with auto-reset enabled, a slot
// whose episode ends is reset before its Batch is returned, so callers
// always receive a live observation per slot. The terminal observation
// is preserved in the slot's info map under TerminalObservationKey.
//
// A VecEnv is not safe for concurrent use.
type VecEnv struct {
	cfg      Config
	exec     executor
	obsSpace spec.Space
	actSpace spec.Space
	closed   bool
	log      logrus.FieldLogger
}

// New constructs a vectorized environment from a per-slot environment
// factory. The maker is called once per slot with the slot's seed
// (cfg.Seed + slot). With cfg.NumWorkers greater than 1 the slots are
// partitioned contiguously across that many worker goroutines;
// otherwise all slots run serially in the caller's goroutine.
func New(maker environment.Maker, cfg Config,
	log logrus.FieldLogger) (*VecEnv, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if maker == nil {
		return nil, fmt.Errorf("new: environment maker cannot be nil")
	}
	cfg = cfg.withDefaults()
	if log == nil {
		log = logrus.StandardLogger()
	}

	handles := make([]*handle, cfg.NumEnvs)
	for slot := 0; slot < cfg.NumEnvs; slot++ {
		env, err := maker(cfg.Seed + uint64(slot))
		if err != nil {
			for _, h := range handles[:slot] {
				_ = h.close()
			}
			return nil, fmt.Errorf("new: constructing slot %v: %w", slot, err)
		}
		handles[slot] = newHandle(slot, env, cfg.NumAgents)
	}

	obsSpace := handles[0].env.ObservationSpace()
	actSpace := handles[0].env.ActionSpace()
	for _, h := range handles[1:] {
		if !obsSpace.Equal(h.env.ObservationSpace()) ||
			!actSpace.Equal(h.env.ActionSpace()) {
			for _, h := range handles {
				_ = h.close()
			}
			return nil, fmt.Errorf("new: slot %v has mismatched spaces",
				h.slot)
		}
	}

	v := &VecEnv{
		cfg:      cfg,
		obsSpace: obsSpace,
		actSpace: actSpace,
		log:      log,
	}

	if cfg.serial() {
		v.exec = newSerialExecutor(handles)
	} else {
		v.exec = newParallelExecutor(handles, cfg.NumWorkers,
			cfg.LivenessTimeout, cfg.CloseTimeout, log)
	}

	log.WithFields(logrus.Fields{
		"numEnvs":    cfg.NumEnvs,
		"numWorkers": cfg.NumWorkers,
		"autoReset":  cfg.AutoReset,
		"seed":       cfg.Seed,
	}).Info("vectorized environment constructed")

	return v, nil
}

// NumEnvs returns the number of environment slots N
func (v *VecEnv) NumEnvs() int {
	return v.cfg.NumEnvs
}

// NumAgents returns the number of agents acting in every slot
func (v *VecEnv) NumAgents() int {
	return v.cfg.NumAgents
}

// ObservationSpace returns the per-slot observation space
func (v *VecEnv) ObservationSpace() spec.Space {
	return v.obsSpace
}

// ActionSpace returns the per-slot action space
func (v *VecEnv) ActionSpace() spec.Space {
	return v.actSpace
}

// Reset starts a new episode in every slot and returns the Batch of
// first observations. Rewards and done flags in the returned Batch are
// zero-valued.
func (v *VecEnv) Reset() (*Batch, error) {
	if v.closed {
		return nil, ErrClosed
	}

	batch := newBatch(v.cfg.NumEnvs, v.cfg.NumAgents)
	for _, res := range v.exec.reset(nil) {
		if res.err != nil {
			v.countFault(res.err)
			batch.setFault(res.slot, res.err)
			continue
		}
		batch.Observations[res.slot] = res.step.Observation
		batch.Infos[res.slot] = res.step.Info
	}

	return batch, batch.FirstFault()
}

// Step advances every slot by one action and returns the synchronized
// Batch of results. The actions slice must hold exactly one action per
// slot, in ascending slot order, each matching the action space.
//
// Slots whose episode ends on this step are flagged done; with
// auto-reset enabled they are immediately reset, their fresh first
// observation replaces the terminal one in the Batch, and the terminal
// observation moves to the slot's info map. Faults are isolated:
// a faulted slot carries its error in Batch.Faults while sibling slots
// remain valid. The first fault, if any, is also returned as the
// error.
func (v *VecEnv) Step(actions []spec.Value) (*Batch, error) {
	if v.closed {
		return nil, ErrClosed
	}
	if len(actions) != v.cfg.NumEnvs {
		return nil, fmt.Errorf("step: got %v actions for %v slots",
			len(actions), v.cfg.NumEnvs)
	}
	for slot, action := range actions {
		if err := v.actSpace.Validate(action); err != nil {
			return nil, fmt.Errorf("step: action for slot %v: %w", slot, err)
		}
	}

	batch := newBatch(v.cfg.NumEnvs, v.cfg.NumAgents)
	var resetSlots []int

	for _, res := range v.exec.step(actions) {
		if res.err != nil {
			v.countFault(res.err)
			batch.setFault(res.slot, res.err)
			continue
		}

		batch.set(res.slot, res.step)
		stepsTotal.Inc()

		if res.step.Last() {
			episodesTotal.Inc()
			if v.cfg.AutoReset {
				resetSlots = append(resetSlots, res.slot)
			}
		}
	}

	// Auto-reset finished slots so the Batch never exposes a used-up
	// terminal observation without the reset having already happened
	if len(resetSlots) > 0 {
		for _, res := range v.exec.reset(resetSlots) {
			if res.err != nil {
				v.countFault(res.err)
				batch.setFault(res.slot, res.err)
				continue
			}
			info := batch.info(res.slot)
			info[TerminalObservationKey] = batch.Observations[res.slot]
			batch.Observations[res.slot] = res.step.Observation
		}
	}

	return batch, batch.FirstFault()
}

// Close sends CLOSE to every worker and releases every environment.
// Workers that do not acknowledge within the configured close timeout
// are abandoned and reported in the returned error.
func (v *VecEnv) Close() error {
	if v.closed {
		return ErrClosed
	}
	v.closed = true

	err := v.exec.close()
	if err != nil {
		v.log.WithError(err).Warn("vectorized environment close failed")
		return err
	}

	v.log.Info("vectorized environment closed")
	return nil
}

func (v *VecEnv) countFault(err error) {
	if IsEnvironmentFault(err) {
		environmentFaultsTotal.Inc()
	}
}
