// Package approval is the role-gated entry point for booking mutations. Each
// operation checks the caller's role before touching the booking, so a caller
// in the wrong role gets FORBIDDEN even for a booking that does not exist.
package approval

import (
	"context"
	"fmt"

	"busbooking/internal/apperr"
	"busbooking/internal/booking"
	"busbooking/internal/session"
)

type Coordinator struct {
	machine *booking.Machine
}

func NewCoordinator(m *booking.Machine) *Coordinator {
	return &Coordinator{machine: m}
}

// Submit creates a booking. Drivers execute trips and cannot request them.
func (c *Coordinator) Submit(ctx context.Context, actor session.Actor, d booking.Details) (*booking.Booking, error) {
	if actor.Role == session.RoleDriver {
		return nil, apperr.Forbidden("drivers cannot request trips")
	}
	return c.machine.Create(ctx, actor, d)
}

func (c *Coordinator) DeputyApprove(ctx context.Context, actor session.Actor, id string, buses []string, comment string) (*booking.Booking, error) {
	if err := requireRole(actor, session.RoleDeputy); err != nil {
		return nil, err
	}
	return c.machine.Transition(ctx, actor, id, booking.StatusDeputyApproved, booking.Payload{Buses: buses, Comment: comment})
}

func (c *Coordinator) DeputyReject(ctx context.Context, actor session.Actor, id, comment string) (*booking.Booking, error) {
	if err := requireRole(actor, session.RoleDeputy); err != nil {
		return nil, err
	}
	return c.machine.Transition(ctx, actor, id, booking.StatusRejected, booking.Payload{Comment: comment})
}

// ReassignBuses replaces the buses a deputy assigned before the principal has ruled.
func (c *Coordinator) ReassignBuses(ctx context.Context, actor session.Actor, id string, buses []string, comment string) (*booking.Booking, error) {
	if err := requireRole(actor, session.RoleDeputy); err != nil {
		return nil, err
	}
	return c.machine.ReassignBuses(ctx, actor, id, booking.Payload{Buses: buses, Comment: comment})
}

func (c *Coordinator) PrincipalApprove(ctx context.Context, actor session.Actor, id, comment string) (*booking.Booking, error) {
	if err := requireRole(actor, session.RolePrincipal); err != nil {
		return nil, err
	}
	return c.machine.Transition(ctx, actor, id, booking.StatusPrincipalApproved, booking.Payload{Comment: comment})
}

func (c *Coordinator) PrincipalReject(ctx context.Context, actor session.Actor, id, comment string) (*booking.Booking, error) {
	if err := requireRole(actor, session.RolePrincipal); err != nil {
		return nil, err
	}
	return c.machine.Transition(ctx, actor, id, booking.StatusRejected, booking.Payload{Comment: comment})
}

func (c *Coordinator) Acknowledge(ctx context.Context, actor session.Actor, id string) (*booking.Booking, error) {
	if err := requireRole(actor, session.RoleDriver); err != nil {
		return nil, err
	}
	return c.machine.Acknowledge(ctx, actor, id)
}

func (c *Coordinator) AddExtraBus(ctx context.Context, actor session.Actor, id string, in booking.ExtraBusInput) (*booking.Booking, error) {
	if err := requireRole(actor, session.RoleDriver); err != nil {
		return nil, err
	}
	return c.machine.AddExtraBus(ctx, actor, id, in)
}

// Cancel is open to any role; ownership is checked against the booking itself.
func (c *Coordinator) Cancel(ctx context.Context, actor session.Actor, id, comment string) (*booking.Booking, error) {
	return c.machine.Cancel(ctx, actor, id, comment)
}

func requireRole(actor session.Actor, want session.Role) error {
	if actor.Role != want {
		return apperr.Forbidden(fmt.Sprintf("requires role %s", want))
	}
	return nil
}
