package collab

import (
	"fmt"
	"strings"
)

// Role is the level of access a user holds on a design.
type Role int

const (
	RoleUnspecified Role = iota
	RoleCollaborator
	RoleOwner
)

// Capability is an action gated by role.
type Capability int

const (
	CapRead Capability = iota
	CapWrite
	CapInvite
	CapManageCollaborators
	CapDelete
	CapRebase
)

var roleCapabilities = map[Role][]Capability{
	RoleCollaborator: {CapRead, CapWrite},
	RoleOwner:        {CapRead, CapWrite, CapInvite, CapManageCollaborators, CapDelete, CapRebase},
}

// Can reports whether r grants c. Owners hold every collaborator capability.
func (r Role) Can(c Capability) bool {
	for _, have := range roleCapabilities[r] {
		if have == c {
			return true
		}
	}
	return false
}

// Includes reports whether r grants at least the capabilities of other.
func (r Role) Includes(other Role) bool {
	for _, c := range roleCapabilities[other] {
		if !r.Can(c) {
			return false
		}
	}
	return true
}

// Grantable reports whether r may be handed out through an invitation or a
// role change. A design has exactly one owner, its creator.
func (r Role) Grantable() bool {
	return r == RoleCollaborator
}

func (r Role) String() string {
	switch r {
	case RoleOwner:
		return "owner"
	case RoleCollaborator:
		return "collaborator"
	default:
		return "unspecified"
	}
}

// ParseRole parses a stored role label.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "owner":
		return RoleOwner, nil
	case "collaborator":
		return RoleCollaborator, nil
	default:
		return RoleUnspecified, fmt.Errorf("unknown role %q", s)
	}
}
