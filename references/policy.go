package references

import "github.com/schemabounce/waterfall-bridge/types"

// Action is what the importer does with a foreign key after resolution.
type Action int

const (
	// ActionRewrite replaces the field with the resolved identifier.
	ActionRewrite Action = iota
	// ActionNull sets the field to null.
	ActionNull
	// ActionKeep leaves the original identifier in place.
	ActionKeep
	// ActionAbort stops the whole import before anything is created.
	ActionAbort
)

func (a Action) String() string {
	switch a {
	case ActionRewrite:
		return "rewrite"
	case ActionNull:
		return "null"
	case ActionKeep:
		return "keep"
	case ActionAbort:
		return "abort"
	default:
		return "unknown"
	}
}

// Decide applies the ambiguous and missing policies to a resolution.
// StatusError never aborts: the stale identifier is kept and only tallied.
func Decide(res types.Resolution, onAmbiguous, onMissing types.Policy) Action {
	switch res.Status {
	case types.StatusResolved:
		return ActionRewrite
	case types.StatusAmbiguous:
		if onAmbiguous == types.PolicyFail {
			return ActionAbort
		}
		return ActionNull
	case types.StatusMissing:
		if onMissing == types.PolicyFail {
			return ActionAbort
		}
		return ActionNull
	default:
		return ActionKeep
	}
}
