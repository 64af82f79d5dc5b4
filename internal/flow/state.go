package flow

// State is a step in a single invocation.
//
//	Validating -> RateChecking -> Prompting -> ModelCalling -> Succeeded
//	                           \-> Rejected                 \-> Failed
//
// Flows that validate after the rate check run RateChecking first.
type State int

const (
	StateValidating State = iota
	StateRateChecking
	StateRejected
	StatePrompting
	StateModelCalling
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateValidating:
		return "validating"
	case StateRateChecking:
		return "rate_checking"
	case StateRejected:
		return "rejected"
	case StatePrompting:
		return "prompting"
	case StateModelCalling:
		return "model_calling"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can follow s.
func (s State) Terminal() bool {
	return s == StateRejected || s == StateSucceeded || s == StateFailed
}

// Transition is reported to Deps.Observer on every state change.
type Transition struct {
	Flow string
	From State
	To   State
}
