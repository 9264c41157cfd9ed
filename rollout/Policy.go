package rollout

import "sfneuman.com/govec/spec"

// Policy computes actions for a batch of observations. A Policy must
// be stateless across calls except for the recurrent state it is
// explicitly handed: the collector passes the previous decision's
// State back on the next call, per slot and without inspecting it, and
// clears a slot's entry whenever that slot's episode ends.
type Policy interface {
	SelectActions(obs []spec.Value, state []interface{}) (*Decision, error)
}

// Decision is the result of one policy call across all slots. Actions
// must hold exactly one action per slot in ascending slot order, each
// matching the environment's action space. Values and LogProbs are
// auxiliary per-slot outputs recorded into the rollout buffer for the
// trainer; either may be nil, in which case zeros are recorded. State
// is opaque per-slot recurrent state threaded through by the
// collector; it may be nil for stateless policies.
type Decision struct {
	Actions  []spec.Value
	Values   []float64
	LogProbs []float64
	State    []interface{}
}
