package nvue

import "fmt"

// Operation selects what Do performs for a Request
type Operation int

const (
	// OpGet reads a path from the applied revision
	OpGet Operation = iota
	// OpSet stages a payload and, unless a revision id is supplied, applies it
	OpSet
	// OpCreateRevision opens a new revision
	OpCreateRevision
	// OpApplyRevision commits an open revision and waits for completion
	OpApplyRevision
)

// String returns the name used on the command line and in logs
func (o Operation) String() string {
	switch o {
	case OpGet:
		return "get"
	case OpSet:
		return "set"
	case OpCreateRevision:
		return "new"
	case OpApplyRevision:
		return "apply"
	default:
		return fmt.Sprintf("Operation(%d)", int(o))
	}
}

// ParseOperation converts an operation name into an Operation
func ParseOperation(s string) (Operation, error) {
	switch s {
	case "get":
		return OpGet, nil
	case "set":
		return OpSet, nil
	case "new":
		return OpCreateRevision, nil
	case "apply":
		return OpApplyRevision, nil
	default:
		return 0, NewValidationError(fmt.Sprintf("unknown operation %q (expected get, set, new or apply)", s))
	}
}

// Options tune a set or apply operation
type Options struct {
	// RevisionID reuses an existing open revision instead of creating one.
	// When set, Set only patches and leaves the revision open.
	RevisionID string

	// Force answers "yes" to confirmation prompts raised during apply
	Force bool

	// Wait is the number of seconds to poll for apply completion (>= 0)
	Wait int
}

// Request is a single caller request for Do
type Request struct {
	// Path is a slash-separated resource path below the API prefix
	Path string

	// Operation selects the action
	Operation Operation

	// Payload is the configuration tree to stage (OpSet only)
	Payload any

	// Options tune set and apply
	Options Options
}
