package vecenv

import (
	"errors"
	"fmt"
	"time"
)

// ErrClosed is returned when a vectorized environment is used after
// Close
var ErrClosed = errors.New("operation on closed vectorized environment")

// EnvironmentFault reports a failure inside a single environment
// instance. A fault is isolated to its slot: sibling slots keep
// flowing, and their results in the same Batch remain valid. The
// faulted slot refuses further steps until it is explicitly reset.
type EnvironmentFault struct {
	Slot  int
	Cause error
}

func (e *EnvironmentFault) Error() string {
	return fmt.Sprintf("environment fault in slot %v: %v", e.Slot, e.Cause)
}

func (e *EnvironmentFault) Unwrap() error {
	return e.Cause
}

// WorkerTimeout reports a worker that failed to respond within the
// liveness window. The worker's slots are lost for the remainder of
// the run; the engine never restarts a worker mid-run. Reconstructing
// the vectorized environment is the only recovery.
type WorkerTimeout struct {
	Worker  int
	Slot    int
	Timeout time.Duration
}

func (e *WorkerTimeout) Error() string {
	return fmt.Sprintf("worker %v owning slot %v unresponsive after %v",
		e.Worker, e.Slot, e.Timeout)
}

// IsEnvironmentFault returns whether an error reports a fault inside
// a single environment instance
func IsEnvironmentFault(err error) bool {
	var fault *EnvironmentFault
	return errors.As(err, &fault)
}

// IsWorkerTimeout returns whether an error reports an unresponsive
// worker
func IsWorkerTimeout(err error) bool {
	var timeout *WorkerTimeout
	return errors.As(err, &timeout)
}
