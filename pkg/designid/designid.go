// Package designid provides the identifier type for API designs, invitations
// and editing sessions.
package designid

import (
	"fmt"

	"github.com/google/uuid"
)

// ID is a canonical lowercase UUID string. It is immutable once assigned to
// a design.
type ID string

// New generates a random (v4) ID.
func New() ID {
	return ID(uuid.New().String())
}

// Parse validates s and returns it in canonical form.
func Parse(s string) (ID, error) {
	if s == "" {
		return "", fmt.Errorf("id cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid id %q: %w", s, err)
	}
	return ID(u.String()), nil
}

// MustParse is like Parse but panics on error. Intended for fixtures.
func MustParse(s string) ID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (id ID) String() string {
	return string(id)
}

// IsZero reports whether id is unset.
func (id ID) IsZero() bool {
	return id == ""
}
