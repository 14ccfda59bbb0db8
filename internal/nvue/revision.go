package nvue

import "strings"

// RevisionState is the lifecycle state of a revision as reported by the server
type RevisionState int

const (
	// StateUnknown covers every server state string other than "open" and "applied"
	StateUnknown RevisionState = iota
	// StateOpen is the state right after creation or patching
	StateOpen
	// StateApplied is reported once the commit has completed on the device
	StateApplied
)

// String returns the wire form of the state
func (s RevisionState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateApplied:
		return "applied"
	default:
		return "unknown"
	}
}

// ParseRevisionState maps a server state string to a RevisionState
func ParseRevisionState(s string) RevisionState {
	switch s {
	case "open":
		return StateOpen
	case "applied":
		return StateApplied
	default:
		return StateUnknown
	}
}

// Revision is a server-side staging area for configuration changes.
// A Revision belongs to the single transaction that created it.
type Revision struct {
	// ID is the opaque identifier assigned by the server (may contain "/")
	ID string

	// State is the last observed lifecycle state
	State RevisionState

	// RawState is the state string exactly as the server reported it
	RawState string
}

// EscapeRevisionID prepares a revision id for use as a single path segment.
// Only "/" is escaped; the server expects the rest of the id verbatim.
func EscapeRevisionID(id string) string {
	return strings.ReplaceAll(id, "/", "%2F")
}
