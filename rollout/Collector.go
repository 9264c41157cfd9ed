// Package rollout implements fixed-horizon rollout collection over a
// vectorized environment
package rollout

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"sfneuman.com/govec/spec"
	"sfneuman.com/govec/vecenv"
)

// State is the collector's lifecycle state
type State int

const (
	// Idle means no rollout is in progress or waiting
	Idle State = iota

	// Collecting means a rollout is being filled
	Collecting

	// Ready means a filled rollout is waiting to be consumed
	Ready
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Collecting:
		return "Collecting"
	default:
		return "Ready"
	}
}

// Env is the vectorized environment surface the collector drives.
// *vecenv.VecEnv satisfies it.
type Env interface {
	Reset() (*vecenv.Batch, error)
	Step(actions []spec.Value) (*vecenv.Batch, error)
	NumEnvs() int
	NumAgents() int
	ObservationSpace() spec.Space
	ActionSpace() spec.Space
}

// Config configures a rollout collector
type Config struct {
	// Horizon is the fixed number of timesteps collected per rollout
	Horizon int
}

// Validate checks the configuration for illegal values
func (c Config) Validate() error {
	if c.Horizon <= 0 {
		return fmt.Errorf("config: Horizon must be positive, got %v",
			c.Horizon)
	}
	return nil
}

// Collector drives a vectorized environment for a fixed horizon,
// filling a reused rollout buffer with observations, actions, rewards,
// done flags, and auxiliary policy outputs.
//
// The collector moves Idle to Collecting on Start, fills the buffer to
// the horizon, and parks in Ready; Consume returns the filled rollout
// and re-arms to Idle. Starting while a filled rollout waits fails
// with ErrUnconsumed; consuming before the horizon is filled fails
// with ErrHorizonUnderrun.
//
// A Collector is not safe for concurrent use.
type Collector struct {
	env    Env
	policy Policy
	buf    *Buffer

	horizon int
	state   State

	lastObs        []spec.Value
	recurrentState []interface{}

	log logrus.FieldLogger
}

// NewCollector creates a new Collector over a vectorized environment
// and a policy collaborator. The rollout buffer is allocated once here
// and reused for every rollout.
func NewCollector(env Env, policy Policy, cfg Config,
	log logrus.FieldLogger) (*Collector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if env == nil {
		return nil, fmt.Errorf("new: environment cannot be nil")
	}
	if policy == nil {
		return nil, fmt.Errorf("new: policy cannot be nil")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Collector{
		env:    env,
		policy: policy,
		buf: newBuffer(cfg.Horizon, env.NumEnvs(), env.NumAgents(),
			env.ObservationSpace(), env.ActionSpace()),
		horizon: cfg.Horizon,
		state:   Idle,
		log:     log,
	}, nil
}

// State returns the collector's current lifecycle state
func (c *Collector) State() State {
	return c.state
}

// Start collects one full rollout: horizon synchronized steps of
// policy decision, environment step, and buffer write. On success the
// collector is left in Ready with the buffer filled.
//
// Starting while a filled rollout waits to be consumed fails with
// ErrUnconsumed. Any environment fault, worker timeout, or policy
// contract violation aborts collection, discards the partial rollout,
// and leaves the collector Idle; recovery, if any, is the caller's
// decision between rollouts.
func (c *Collector) Start() error {
	if c.state == Ready {
		return fmt.Errorf("start: %w", ErrUnconsumed)
	}
	if c.state == Collecting {
		return fmt.Errorf("start: collection already in progress")
	}

	id := uuid.NewString()
	log := c.log.WithField("rollout", id)

	if c.lastObs == nil {
		batch, err := c.env.Reset()
		if err != nil {
			return fmt.Errorf("start: reset: %w", err)
		}
		c.lastObs = batch.Observations
		c.recurrentState = make([]interface{}, c.env.NumEnvs())
	}

	c.state = Collecting
	log.WithField("horizon", c.horizon).Debug("collection started")

	for t := 0; t < c.horizon; t++ {
		dec, err := c.policy.SelectActions(c.lastObs, c.recurrentState)
		if err != nil {
			c.abort(log)
			return fmt.Errorf("start: policy: %w", err)
		}
		if err := c.checkDecision(dec); err != nil {
			c.abort(log)
			return fmt.Errorf("start: %w", err)
		}

		batch, err := c.env.Step(dec.Actions)
		if err != nil {
			c.abort(log)
			return fmt.Errorf("start: step %v: %w", t, err)
		}

		if err := c.buf.store(c.lastObs, dec, batch.Rewards,
			batch.Dones); err != nil {
			c.abort(log)
			return fmt.Errorf("start: %w", err)
		}

		c.lastObs = batch.Observations
		c.advanceRecurrentState(dec, batch)
	}

	c.state = Ready
	log.Debug("collection finished")
	return nil
}

// Consume returns the filled rollout and re-arms the collector. The
// returned Rollout is a read-only view over reused storage: it is
// valid until the next Start call and must not be mutated by the
// trainer. Consuming before a rollout has been filled fails with
// ErrHorizonUnderrun.
func (c *Collector) Consume() (*Rollout, error) {
	if c.state != Ready {
		return nil, fmt.Errorf("consume: %w", ErrHorizonUnderrun)
	}

	view := c.buf.view()
	c.buf.reset()
	c.state = Idle
	return view, nil
}

// abort discards a partial rollout so that no buffer row mixes
// partially-stepped and freshly-reset state
func (c *Collector) abort(log logrus.FieldLogger) {
	log.Warn("collection aborted; discarding partial rollout")
	c.buf.reset()
	c.state = Idle
}

// checkDecision validates the policy decision against the
// environment's slot count and action space
func (c *Collector) checkDecision(dec *Decision) error {
	n := c.env.NumEnvs()

	if dec == nil {
		return &PolicyContractViolation{Cause: "nil decision"}
	}
	if len(dec.Actions) != n {
		return &PolicyContractViolation{Cause: fmt.Sprintf(
			"got %v actions for %v slots", len(dec.Actions), n)}
	}
	for slot, action := range dec.Actions {
		if err := c.env.ActionSpace().Validate(action); err != nil {
			return &PolicyContractViolation{Cause: fmt.Sprintf(
				"action for slot %v: %v", slot, err)}
		}
	}
	if dec.Values != nil && len(dec.Values) != n {
		return &PolicyContractViolation{Cause: fmt.Sprintf(
			"got %v value estimates for %v slots", len(dec.Values), n)}
	}
	if dec.LogProbs != nil && len(dec.LogProbs) != n {
		return &PolicyContractViolation{Cause: fmt.Sprintf(
			"got %v log probabilities for %v slots", len(dec.LogProbs), n)}
	}
	if dec.State != nil && len(dec.State) != n {
		return &PolicyContractViolation{Cause: fmt.Sprintf(
			"got recurrent state for %v slots, want %v", len(dec.State), n)}
	}
	return nil
}

// advanceRecurrentState threads the policy's opaque recurrent state
// forward, clearing slots whose episode ended this step
func (c *Collector) advanceRecurrentState(dec *Decision, b *vecenv.Batch) {
	if dec.State != nil {
		copy(c.recurrentState, dec.State)
	}
	for slot, done := range b.Dones {
		if done {
			c.recurrentState[slot] = nil
		}
	}
}
