// Package dashboard computes per-role read-only summaries. Nothing here writes.
package dashboard

import (
	"context"
	"fmt"
	"time"

	"busbooking/internal/apperr"
	"busbooking/internal/booking"
	"busbooking/internal/bus"
	"busbooking/internal/calendar"
	"busbooking/internal/session"
	"busbooking/internal/user"
)

// DriverScope decides which principal-approved trips a driver sees.
type DriverScope string

const (
	ScopeAll      DriverScope = "all"
	ScopeAssigned DriverScope = "assigned"
)

func ParseDriverScope(s string) (DriverScope, error) {
	switch DriverScope(s) {
	case ScopeAll, ScopeAssigned:
		return DriverScope(s), nil
	default:
		return "", fmt.Errorf("unknown driver scope: %s", s)
	}
}

type Bookings interface {
	ListBookings(ctx context.Context, f booking.Filter) ([]booking.Booking, error)
	CountBookings(ctx context.Context, f booking.Filter) (int, error)
}

type Buses interface {
	ListBuses(ctx context.Context) ([]bus.Bus, error)
	CountActiveBuses(ctx context.Context) (int, error)
}

type TeacherView struct {
	TotalBookings    int               `json:"totalBookings"`
	UpcomingBookings []booking.Booking `json:"upcomingBookings"`
}

type AdminView struct {
	TeachersCount int `json:"teachersCount"`
	BusesCount    int `json:"busesCount"`
	BookingsCount int `json:"bookingsCount"`
}

type DeputyView struct {
	PendingBookings []booking.Booking `json:"pendingBookings"`
	TotalPending    int               `json:"totalPending"`
}

type PrincipalView struct {
	DeputyApprovedBookings []booking.Booking `json:"deputyApprovedBookings"`
	TotalDeputyApproved    int               `json:"totalDeputyApproved"`
}

type DriverView struct {
	Trips      []booking.Booking `json:"trips"`
	ExtraBuses []booking.Booking `json:"extraBuses"`
}

type Aggregator struct {
	bookings Bookings
	buses    Buses
	users    user.Directory
	scope    DriverScope
	loc      *time.Location
	now      func() time.Time
}

func NewAggregator(bookings Bookings, buses Buses, users user.Directory, scope DriverScope, loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{bookings: bookings, buses: buses, users: users, scope: scope, loc: loc, now: time.Now}
}

func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	a.now = now
	return a
}

// For returns the projection for actor's role. The actor must exist in the directory.
func (a *Aggregator) For(ctx context.Context, actor session.Actor) (any, error) {
	if _, err := a.users.Get(ctx, actor.ID); err != nil {
		return nil, apperr.FromStore(err)
	}

	var (
		view any
		err  error
	)
	switch actor.Role {
	case session.RoleAdmin:
		view, err = a.admin(ctx)
	case session.RoleDeputy:
		view, err = a.queue(ctx, booking.StatusPending)
	case session.RolePrincipal:
		view, err = a.queue(ctx, booking.StatusDeputyApproved)
	case session.RoleDriver:
		view, err = a.driver(ctx, actor)
	default:
		view, err = a.teacher(ctx, actor)
	}
	if err != nil {
		return nil, apperr.FromStore(err)
	}
	return view, nil
}

func (a *Aggregator) teacher(ctx context.Context, actor session.Actor) (TeacherView, error) {
	total, err := a.bookings.CountBookings(ctx, booking.Filter{RequesterID: actor.ID})
	if err != nil {
		return TeacherView{}, err
	}
	today := calendar.Day(a.now(), a.loc)
	upcoming, err := a.bookings.ListBookings(ctx, booking.Filter{RequesterID: actor.ID, TripDateFrom: &today})
	if err != nil {
		return TeacherView{}, err
	}
	return TeacherView{TotalBookings: total, UpcomingBookings: upcoming}, nil
}

func (a *Aggregator) admin(ctx context.Context) (AdminView, error) {
	var v AdminView
	var err error
	if v.TeachersCount, err = a.users.CountActive(ctx, session.RoleTeacher); err != nil {
		return AdminView{}, err
	}
	if v.BusesCount, err = a.buses.CountActiveBuses(ctx); err != nil {
		return AdminView{}, err
	}
	if v.BookingsCount, err = a.bookings.CountBookings(ctx, booking.Filter{}); err != nil {
		return AdminView{}, err
	}
	return v, nil
}

// queue lists the bookings waiting on one approval stage.
func (a *Aggregator) queue(ctx context.Context, status booking.Status) (any, error) {
	items, err := a.bookings.ListBookings(ctx, booking.Filter{Statuses: []booking.Status{status}})
	if err != nil {
		return nil, err
	}
	if status == booking.StatusPending {
		return DeputyView{PendingBookings: items, TotalPending: len(items)}, nil
	}
	return PrincipalView{DeputyApprovedBookings: items, TotalDeputyApproved: len(items)}, nil
}

func (a *Aggregator) driver(ctx context.Context, actor session.Actor) (DriverView, error) {
	approved := []booking.Status{booking.StatusPrincipalApproved}
	trips := booking.Filter{Statuses: approved}
	extra := booking.Filter{Statuses: approved, HasExtraBuses: true}

	if a.scope == ScopeAssigned {
		fleet, err := a.buses.ListBuses(ctx)
		if err != nil {
			return DriverView{}, err
		}
		mine := []string{}
		for _, b := range fleet {
			if b.DriverID == actor.ID {
				mine = append(mine, b.ID)
			}
		}
		trips.BusIDs = mine
		extra.BusIDs = mine
	}

	t, err := a.bookings.ListBookings(ctx, trips)
	if err != nil {
		return DriverView{}, err
	}
	x, err := a.bookings.ListBookings(ctx, extra)
	if err != nil {
		return DriverView{}, err
	}
	return DriverView{Trips: t, ExtraBuses: x}, nil
}
