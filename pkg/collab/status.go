package collab

import (
	"fmt"
	"strings"
)

// InviteStatus is the lifecycle state of an invitation.
type InviteStatus int

const (
	StatusUnspecified InviteStatus = iota
	StatusPending
	StatusAccepted
	StatusRejected
)

// transitions lists the legal next states. Accepted and rejected are
// terminal.
var transitions = map[InviteStatus][]InviteStatus{
	StatusPending: {StatusAccepted, StatusRejected},
}

// CanTransition reports whether an invitation may move from s to next.
func (s InviteStatus) CanTransition(next InviteStatus) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s InviteStatus) Terminal() bool {
	return s != StatusUnspecified && len(transitions[s]) == 0
}

// String returns the stored label of s.
func (s InviteStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusAccepted:
		return "accepted"
	case StatusRejected:
		return "rejected"
	default:
		return "unspecified"
	}
}

// ParseInviteStatus parses a stored status label.
func ParseInviteStatus(s string) (InviteStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return StatusPending, nil
	case "accepted":
		return StatusAccepted, nil
	case "rejected":
		return StatusRejected, nil
	default:
		return StatusUnspecified, fmt.Errorf("unknown invitation status %q", s)
	}
}
