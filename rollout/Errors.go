package rollout

import (
	"errors"
	"fmt"
)

// ErrHorizonUnderrun is returned when a rollout buffer is consumed
// before the collection horizon has been filled. This indicates a
// caller bug, not a transient condition.
var ErrHorizonUnderrun = errors.New("rollout consumed before horizon filled")

// ErrUnconsumed is returned when collection is started while a filled
// rollout is still waiting to be consumed
var ErrUnconsumed = errors.New("previous rollout not yet consumed")

// PolicyContractViolation reports that the policy collaborator
// returned a decision whose slot count or action shapes disagree with
// the vectorized environment. It is fatal and aborts collection
// immediately.
type PolicyContractViolation struct {
	Cause string
}

func (e *PolicyContractViolation) Error() string {
	return fmt.Sprintf("policy contract violation: %v", e.Cause)
}

// IsPolicyContractViolation returns whether an error reports a policy
// contract violation
func IsPolicyContractViolation(err error) bool {
	var violation *PolicyContractViolation
	return errors.As(err, &violation)
}
