package vecenv

import (
	"fmt"
	"time"
)

const (
	// DefaultLivenessTimeout is the default window a worker has to
	// answer one command before it is considered unresponsive
	DefaultLivenessTimeout time.Duration = 30 * time.Second

	// DefaultCloseTimeout is the default window workers have to
	// acknowledge a close command
	DefaultCloseTimeout time.Duration = 5 * time.Second
)

// Config configures a vectorized environment. All fields are fixed at
// construction; changing the environment count or worker layout
// requires constructing a new VecEnv.
type Config struct {
	// NumEnvs is the number of environment instances N. Slots are
	// indexed 0 to N-1.
	NumEnvs int

	// NumWorkers is the number of worker goroutines the slots are
	// partitioned across. A value of 1 or less selects the serial
	// backend, which steps all slots in one control flow.
	NumWorkers int

	// NumAgents is the number of agents acting in every environment.
	// Zero selects the single-agent default of 1.
	NumAgents int

	// Seed is the base seed. Slot i's environment is constructed with
	// seed Seed+i, so per-slot random streams are identical across
	// serial and parallel backends.
	Seed uint64

	// AutoReset determines whether a slot is reset by the engine
	// immediately after its episode ends. When disabled, stepping a
	// finished slot fails until Reset is called.
	AutoReset bool

	// LivenessTimeout bounds how long the coordinator waits for all
	// workers to answer one command. Zero selects
	// DefaultLivenessTimeout. Ignored by the serial backend.
	LivenessTimeout time.Duration

	// CloseTimeout bounds how long Close waits for workers to
	// acknowledge. Zero selects DefaultCloseTimeout.
	CloseTimeout time.Duration
}

// Validate checks the configuration for illegal values
func (c Config) Validate() error {
	if c.NumEnvs <= 0 {
		return fmt.Errorf("config: NumEnvs must be positive, got %v",
			c.NumEnvs)
	}
	if c.NumWorkers > c.NumEnvs {
		return fmt.Errorf("config: NumWorkers (%v) cannot exceed NumEnvs "+
			"(%v)", c.NumWorkers, c.NumEnvs)
	}
	if c.NumAgents < 0 {
		return fmt.Errorf("config: NumAgents cannot be negative, got %v",
			c.NumAgents)
	}
	if c.LivenessTimeout < 0 || c.CloseTimeout < 0 {
		return fmt.Errorf("config: timeouts cannot be negative")
	}
	return nil
}

// withDefaults returns a copy of the Config with zero values replaced
// by defaults
func (c Config) withDefaults() Config {
	if c.NumWorkers <= 0 {
		c.NumWorkers = 1
	}
	if c.NumAgents == 0 {
		c.NumAgents = 1
	}
	if c.LivenessTimeout == 0 {
		c.LivenessTimeout = DefaultLivenessTimeout
	}
	if c.CloseTimeout == 0 {
		c.CloseTimeout = DefaultCloseTimeout
	}
	return c
}

// serial returns whether the configuration selects the serial backend
func (c Config) serial() bool {
	return c.NumWorkers <= 1
}
