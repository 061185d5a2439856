package transfer

import "github.com/pkg/errors"

// ExistingPolicy tells the engine what to do with a unit whose
// destination already exists.
type ExistingPolicy int

const (
	PolicyError ExistingPolicy = iota
	PolicySkip
	PolicyOverwrite
)

func (p ExistingPolicy) String() string {
	switch p {
	case PolicyError:
		return "error"
	case PolicySkip:
		return "skip"
	case PolicyOverwrite:
		return "overwrite"
	default:
		return "unknown"
	}
}

var ErrConflictingPolicy = errors.New("--skip-existing and --overwrite are mutually exclusive")

// PolicyFromFlags maps the two CLI switches onto a policy. Both set at
// once is rejected before any unit is enumerated.
func PolicyFromFlags(skipExisting, overwrite bool) (ExistingPolicy, error) {
	switch {
	case skipExisting && overwrite:
		return PolicyError, ErrConflictingPolicy
	case skipExisting:
		return PolicySkip, nil
	case overwrite:
		return PolicyOverwrite, nil
	default:
		return PolicyError, nil
	}
}

// Action is the planned handling of one unit.
type Action int

const (
	ActionCreate Action = iota
	ActionSkip
	ActionOverwrite
	ActionFail
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionSkip:
		return "skip"
	case ActionOverwrite:
		return "overwrite"
	case ActionFail:
		return "fail"
	default:
		return "unknown"
	}
}

// Decide maps destination existence and policy onto an action. Both the
// live run and the dry-run analysis call this one function, so the two
// can never disagree about a unit.
func Decide(destExists bool, policy ExistingPolicy) Action {
	if !destExists {
		return ActionCreate
	}
	switch policy {
	case PolicySkip:
		return ActionSkip
	case PolicyOverwrite:
		return ActionOverwrite
	default:
		return ActionFail
	}
}
