package booking

import (
	"busbooking/internal/notify"
	"busbooking/internal/session"
)

// audienceFor decides who hears about an event: the next approver in line, and the
// requester whenever their booking changes hands.
func audienceFor(kind string, b *Booking, releasedBuses bool) notify.Audience {
	requester := []string{b.RequesterID}
	switch kind {
	case notify.KindCreated:
		return notify.Audience{Roles: []session.Role{session.RoleDeputy}}
	case notify.KindAcknowledged, notify.KindExtraBus:
		return notify.Audience{UserIDs: requester}
	case notify.KindReassigned:
		return notify.Audience{Roles: []session.Role{session.RolePrincipal}, UserIDs: requester}
	}

	switch b.Status {
	case StatusDeputyApproved:
		return notify.Audience{Roles: []session.Role{session.RolePrincipal}, UserIDs: requester}
	case StatusPrincipalApproved:
		return notify.Audience{Roles: []session.Role{session.RoleDriver}, UserIDs: requester}
	case StatusRejected, StatusCanceled:
		a := notify.Audience{UserIDs: requester}
		if releasedBuses {
			a.Roles = []session.Role{session.RoleDriver}
		}
		return a
	}
	return notify.Audience{}
}
