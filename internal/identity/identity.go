package identity

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Role is the coarse authorization level attached to every actor.
type Role string

const (
	RolePatient    Role = "patient"
	RoleSpecialist Role = "specialist"
	RoleAdmin      Role = "admin"
)

var ErrUnknownRole = errors.New("unknown role")

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RolePatient, RoleSpecialist, RoleAdmin:
		return Role(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

// Actor is the authenticated caller as seen by the scheduling engine.
// It is an opaque (id, role) pair; profile data lives elsewhere.
type Actor struct {
	ID   uuid.UUID
	Role Role
}
