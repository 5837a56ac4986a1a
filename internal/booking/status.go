package booking

import (
	"fmt"

	"busbooking/internal/session"
)

type Status string

const (
	StatusPending           Status = "PENDING"
	StatusDeputyApproved    Status = "DEPUTY_APPROVED"
	StatusPrincipalApproved Status = "PRINCIPAL_APPROVED"
	StatusRejected          Status = "REJECTED"
	StatusCanceled          Status = "CANCELED"
)

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusDeputyApproved, StatusPrincipalApproved, StatusRejected, StatusCanceled:
		return Status(s), nil
	default:
		return "", fmt.Errorf("unknown status: %s", s)
	}
}

// Terminal statuses admit no further transitions.
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusCanceled
}

// HoldsBuses reports whether a booking in s keeps its reserved buses.
func (s Status) HoldsBuses() bool {
	return s == StatusDeputyApproved || s == StatusPrincipalApproved
}

// Party is the capacity in which an actor drives a transition. The requester is a
// party of its own since cancellation depends on ownership, not role.
type Party string

const (
	PartyDeputy    Party = "deputy"
	PartyPrincipal Party = "principal"
	PartyRequester Party = "requester"
)

// allowedTransitions is the only place the workflow graph is defined.
var allowedTransitions = map[Party]map[Status]map[Status]bool{
	PartyDeputy: {
		StatusPending: {StatusDeputyApproved: true, StatusRejected: true},
	},
	PartyPrincipal: {
		StatusDeputyApproved: {StatusPrincipalApproved: true, StatusRejected: true},
	},
	PartyRequester: {
		StatusPending:           {StatusCanceled: true},
		StatusDeputyApproved:    {StatusCanceled: true},
		StatusPrincipalApproved: {StatusCanceled: true},
	},
}

func CanTransition(p Party, from, to Status) bool {
	return allowedTransitions[p][from][to]
}

// Drives reports whether p may ever move a booking into to, from any state.
func Drives(p Party, to Status) bool {
	for _, edges := range allowedTransitions[p] {
		if edges[to] {
			return true
		}
	}
	return false
}

// IsEdge reports whether any party may move a booking from one status to another.
func IsEdge(from, to Status) bool {
	for p := range allowedTransitions {
		if CanTransition(p, from, to) {
			return true
		}
	}
	return false
}

// PartyForRole maps an approver role to its party. Other roles act only as requesters.
func PartyForRole(r session.Role) (Party, bool) {
	switch r {
	case session.RoleDeputy:
		return PartyDeputy, true
	case session.RolePrincipal:
		return PartyPrincipal, true
	default:
		return "", false
	}
}
