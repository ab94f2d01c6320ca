package scheduling

import (
	"github.com/clinicaonline/scheduling/internal/identity"
)

// Action is one of the legal appointment lifecycle operations. Requesting a
// new appointment is not an Action: it creates the record instead of
// transitioning it, and lives on the booking path.
type Action string

const (
	ActionAccept   Action = "accept"
	ActionReject   Action = "reject"
	ActionCancel   Action = "cancel"
	ActionComplete Action = "complete"
)

// ownerScope says which party must own the appointment for the transition
// to apply. The ownership check happens inside the conditional write, never
// as a separate read.
type ownerScope int

const (
	ownerAny ownerScope = iota
	ownerSpecialist
	ownerPatient
)

type transitionRule struct {
	from        []Status
	to          Status
	scope       ownerScope
	needsReason bool
	needsNote   bool
}

// ruleFor is the whole transition table. A (action, role) pair outside the
// table is not currently legal, same as a wrong-status or wrong-owner
// failure at write time.
func ruleFor(action Action, role identity.Role) (transitionRule, error) {
	switch action {
	case ActionAccept:
		if role == identity.RoleSpecialist {
			return transitionRule{
				from:  []Status{StatusRequested},
				to:    StatusAccepted,
				scope: ownerSpecialist,
			}, nil
		}
	case ActionReject:
		if role == identity.RoleSpecialist {
			return transitionRule{
				from:        []Status{StatusRequested},
				to:          StatusRejected,
				scope:       ownerSpecialist,
				needsReason: true,
			}, nil
		}
	case ActionCancel:
		r := transitionRule{
			from:        []Status{StatusRequested, StatusAccepted},
			to:          StatusCancelled,
			needsReason: true,
		}
		switch role {
		case identity.RolePatient:
			r.scope = ownerPatient
			return r, nil
		case identity.RoleSpecialist:
			r.scope = ownerSpecialist
			return r, nil
		case identity.RoleAdmin:
			r.scope = ownerAny
			return r, nil
		}
	case ActionComplete:
		if role == identity.RoleSpecialist {
			return transitionRule{
				from:      []Status{StatusAccepted},
				to:        StatusCompleted,
				scope:     ownerSpecialist,
				needsNote: true,
			}, nil
		}
	}
	return transitionRule{}, ErrActionNotAllowed
}
