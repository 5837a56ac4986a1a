package booking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"busbooking/internal/apperr"
	"busbooking/internal/bus"
	"busbooking/internal/calendar"
	"busbooking/internal/notify"
	"busbooking/internal/session"
	"busbooking/pkg/logger"
	"busbooking/pkg/metrics"
)

// Payload carries the optional inputs of a transition.
type Payload struct {
	Buses   []string `json:"buses"`
	Comment string   `json:"comment"`
}

// Machine owns every mutation of a booking. Each operation runs in one store
// transaction that locks the booking row, so concurrent calls on the same booking
// are serialized and at most one of them can move it out of a given status.
type Machine struct {
	store   Store
	buses   *bus.Registry
	sink    notify.Sink
	log     logger.Logger
	metrics *metrics.Metrics
	loc     *time.Location
	now     func() time.Time
}

// NewMachine builds a Machine. loc is the school's time zone; it decides which
// calendar day is "today".
func NewMachine(store Store, buses *bus.Registry, sink notify.Sink, log logger.Logger, m *metrics.Metrics, loc *time.Location) *Machine {
	if sink == nil {
		sink = notify.Nop{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Machine{store: store, buses: buses, sink: sink, log: log, metrics: m, loc: loc, now: time.Now}
}

// WithClock replaces the time source.
func (m *Machine) WithClock(now func() time.Time) *Machine {
	m.now = now
	return m
}

// Today is the current calendar day in the school's time zone.
func (m *Machine) Today() time.Time {
	return calendar.Day(m.now(), m.loc)
}

// Create validates d and stores a new PENDING booking requested by actor.
func (m *Machine) Create(ctx context.Context, actor session.Actor, d Details) (_ *Booking, err error) {
	start := time.Now()
	defer func() { m.metrics.Observe("create", start, apperr.Label(err)) }()

	if strings.TrimSpace(actor.ID) == "" {
		return nil, apperr.Validation("requesterId", "is required")
	}
	v, err := d.validate(m.Today())
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	b := &Booking{
		ID:                   uuid.NewString(),
		RequesterID:          actor.ID,
		Purpose:              v.purpose,
		Venue:                v.venue,
		TripDate:             v.tripDate,
		DepartureTime:        v.departure,
		ReturnTime:           v.ret,
		Headcounts:           v.headcounts,
		AccompanyingTeachers: v.teachers,
		Status:               StatusPending,
		Buses:                []string{},
		ExtraBuses:           []ExtraBus{},
		Comments:             []Comment{},
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	a := m.action(b.ID, actor, ActionCreate, nil, StatusPending, "", nil, now)

	err = m.store.WithTx(ctx, func(tx Tx) error {
		if err := tx.InsertBooking(ctx, b); err != nil {
			return err
		}
		return tx.InsertAction(ctx, a)
	})
	if err != nil {
		return nil, apperr.FromStore(err)
	}

	m.metrics.BookingsCreated.Inc()
	m.log.Info("booking created",
		"booking_id", b.ID,
		"actor_id", actor.ID,
		"role", actor.Role,
		"trip_date", calendar.Format(b.TripDate),
		"headcount", b.TotalHeadcount(),
	)
	m.emit(ctx, b, a, notify.KindCreated, false)
	return b, nil
}

// Transition moves booking id to target on behalf of actor. Deputy approval reserves
// p.Buses for the trip date in the same transaction; entering a terminal status
// releases whatever the booking holds.
func (m *Machine) Transition(ctx context.Context, actor session.Actor, id string, target Status, p Payload) (_ *Booking, err error) {
	start := time.Now()
	defer func() { m.metrics.Observe("transition", start, apperr.Label(err)) }()

	var (
		out      *Booking
		act      *Action
		released []string
	)
	err = m.store.WithTx(ctx, func(tx Tx) error {
		b, err := tx.LockBooking(ctx, id)
		if err != nil {
			return err
		}
		party, err := authorize(actor, b, target)
		if err != nil {
			return err
		}
		if !CanTransition(party, b.Status, target) {
			return apperr.InvalidTransition(fmt.Sprintf("%s cannot move a booking from %s to %s", party, b.Status, target))
		}
		if target == StatusCanceled && !m.Today().Before(b.TripDate) {
			return apperr.InvalidTransition("a booking can only be canceled before its trip date")
		}

		from := b.Status
		now := m.now().UTC()
		data := map[string]any{}

		if target == StatusDeputyApproved {
			held, err := m.buses.ReserveTx(ctx, tx, p.Buses, b.TripDate, b.ID)
			if err != nil {
				return err
			}
			b.Buses = busIDs(held)
			data["buses"] = b.Buses
			if seats, heads := bus.TotalCapacity(held), b.TotalHeadcount(); seats < heads {
				m.log.Warn("assigned capacity below headcount",
					"booking_id", b.ID,
					"capacity", seats,
					"headcount", heads,
				)
			}
		}
		if target.Terminal() && len(b.Buses) > 0 {
			if err := m.buses.ReleaseTx(ctx, tx, b.Buses, b.ID); err != nil {
				return err
			}
			released = b.Buses
			data["releasedBuses"] = released
			b.Buses = []string{}
		}

		b.Status = target
		b.UpdatedAt = now
		b.addComment(actor.ID, string(actor.Role), p.Comment, now)
		if err := tx.UpdateBooking(ctx, b, from); err != nil {
			return err
		}

		act = m.action(b.ID, actor, ActionTransition, &from, target, p.Comment, data, now)
		if err := tx.InsertAction(ctx, act); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, apperr.FromStore(err)
	}

	m.metrics.Transitions.WithLabelValues(string(actor.Role), string(target)).Inc()
	m.log.Info("booking transitioned",
		"booking_id", out.ID,
		"actor_id", actor.ID,
		"role", actor.Role,
		"from", *act.From,
		"to", target,
		"released", len(released),
	)
	m.emit(ctx, out, act, notify.KindTransitioned, len(released) > 0)
	return out, nil
}

// Cancel is the requester's withdrawal of a booking before its trip date.
func (m *Machine) Cancel(ctx context.Context, actor session.Actor, id, comment string) (*Booking, error) {
	return m.Transition(ctx, actor, id, StatusCanceled, Payload{Comment: comment})
}

// Acknowledge records the driver's confirmation of a principal-approved trip. It can
// happen once, up to and including the trip date.
func (m *Machine) Acknowledge(ctx context.Context, actor session.Actor, id string) (_ *Booking, err error) {
	start := time.Now()
	defer func() { m.metrics.Observe("acknowledge", start, apperr.Label(err)) }()

	if actor.Role != session.RoleDriver {
		return nil, apperr.Forbidden("only a driver can acknowledge a trip")
	}

	var (
		out *Booking
		act *Action
	)
	err = m.store.WithTx(ctx, func(tx Tx) error {
		b, err := tx.LockBooking(ctx, id)
		if err != nil {
			return err
		}
		switch {
		case b.Status != StatusPrincipalApproved:
			return apperr.InvalidState(fmt.Sprintf("a %s booking cannot be acknowledged", b.Status))
		case b.Acknowledged:
			return apperr.InvalidState("trip already acknowledged")
		case b.TripDate.Before(m.Today()):
			return apperr.InvalidState("trip date has passed")
		}

		now := m.now().UTC()
		b.Acknowledged = true
		b.AcknowledgedBy = actor.ID
		b.AcknowledgedAt = &now
		b.UpdatedAt = now
		if err := tx.UpdateBooking(ctx, b, b.Status); err != nil {
			return err
		}

		from := b.Status
		act = m.action(b.ID, actor, ActionAcknowledge, &from, b.Status, "", nil, now)
		if err := tx.InsertAction(ctx, act); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, apperr.FromStore(err)
	}

	m.log.Info("trip acknowledged", "booking_id", out.ID, "actor_id", actor.ID, "role", actor.Role)
	m.emit(ctx, out, act, notify.KindAcknowledged, false)
	return out, nil
}

// AddExtraBus appends a driver-supplied bus. Extra buses come from outside the
// registry, so no reservation is made for them.
func (m *Machine) AddExtraBus(ctx context.Context, actor session.Actor, id string, in ExtraBusInput) (_ *Booking, err error) {
	start := time.Now()
	defer func() { m.metrics.Observe("add_extra_bus", start, apperr.Label(err)) }()

	if actor.Role != session.RoleDriver {
		return nil, apperr.Forbidden("only a driver can add extra buses")
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var (
		out *Booking
		act *Action
	)
	err = m.store.WithTx(ctx, func(tx Tx) error {
		b, err := tx.LockBooking(ctx, id)
		if err != nil {
			return err
		}
		if b.Status != StatusPrincipalApproved {
			return apperr.InvalidState(fmt.Sprintf("extra buses cannot be added to a %s booking", b.Status))
		}

		now := m.now().UTC()
		extra := ExtraBus{
			ID:          uuid.NewString(),
			Number:      bus.NormalizeNumber(in.Number),
			Capacity:    in.Capacity,
			Description: strings.TrimSpace(in.Description),
			AddedBy:     actor.ID,
			AddedAt:     now,
		}
		b.ExtraBuses = append(b.ExtraBuses, extra)
		b.UpdatedAt = now
		if err := tx.UpdateBooking(ctx, b, b.Status); err != nil {
			return err
		}

		from := b.Status
		act = m.action(b.ID, actor, ActionExtraBus, &from, b.Status, "", map[string]any{
			"busNumber": extra.Number,
			"capacity":  extra.Capacity,
		}, now)
		if err := tx.InsertAction(ctx, act); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, apperr.FromStore(err)
	}

	m.log.Info("extra bus added", "booking_id", out.ID, "actor_id", actor.ID, "bus_number", bus.NormalizeNumber(in.Number))
	m.emit(ctx, out, act, notify.KindExtraBus, false)
	return out, nil
}

// ReassignBuses swaps the buses of a deputy-approved booking. Buses dropped from the
// set are released and new ones reserved in the same transaction, so a lost
// reservation leaves the original assignment attached.
func (m *Machine) ReassignBuses(ctx context.Context, actor session.Actor, id string, p Payload) (_ *Booking, err error) {
	start := time.Now()
	defer func() { m.metrics.Observe("reassign_buses", start, apperr.Label(err)) }()

	if actor.Role != session.RoleDeputy {
		return nil, apperr.Forbidden("only a deputy can reassign buses")
	}

	var (
		out      *Booking
		act      *Action
		released []string
	)
	err = m.store.WithTx(ctx, func(tx Tx) error {
		b, err := tx.LockBooking(ctx, id)
		if err != nil {
			return err
		}
		if b.Status != StatusDeputyApproved {
			return apperr.InvalidState(fmt.Sprintf("buses of a %s booking cannot be reassigned", b.Status))
		}

		released = nil
		next := bus.NormalizeIDs(p.Buses)
		keep := make(map[string]bool, len(next))
		for _, busID := range next {
			keep[busID] = true
		}
		for _, busID := range b.Buses {
			if !keep[busID] {
				released = append(released, busID)
			}
		}
		if err := m.buses.ReleaseTx(ctx, tx, released, b.ID); err != nil {
			return err
		}
		held, err := m.buses.ReserveTx(ctx, tx, next, b.TripDate, b.ID)
		if err != nil {
			return err
		}
		if seats, heads := bus.TotalCapacity(held), b.TotalHeadcount(); seats < heads {
			m.log.Warn("assigned capacity below headcount",
				"booking_id", b.ID,
				"capacity", seats,
				"headcount", heads,
			)
		}

		now := m.now().UTC()
		b.Buses = busIDs(held)
		b.UpdatedAt = now
		b.addComment(actor.ID, string(actor.Role), p.Comment, now)
		if err := tx.UpdateBooking(ctx, b, b.Status); err != nil {
			return err
		}

		from := b.Status
		data := map[string]any{"buses": b.Buses}
		if len(released) > 0 {
			data["releasedBuses"] = released
		}
		act = m.action(b.ID, actor, ActionReassign, &from, b.Status, p.Comment, data, now)
		if err := tx.InsertAction(ctx, act); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, apperr.FromStore(err)
	}

	m.log.Info("buses reassigned",
		"booking_id", out.ID,
		"actor_id", actor.ID,
		"role", actor.Role,
		"buses", len(out.Buses),
		"released", len(released),
	)
	m.emit(ctx, out, act, notify.KindReassigned, len(released) > 0)
	return out, nil
}

func (m *Machine) Get(ctx context.Context, actor session.Actor, id string) (*Booking, error) {
	b, err := m.store.GetBooking(ctx, id)
	if err != nil {
		return nil, apperr.FromStore(err)
	}
	if !canView(actor, b) {
		return nil, apperr.Forbidden("not allowed to view this booking")
	}
	return b, nil
}

// ListMine returns the actor's own requests.
func (m *Machine) ListMine(ctx context.Context, actor session.Actor) ([]Booking, error) {
	out, err := m.store.ListBookings(ctx, Filter{RequesterID: actor.ID})
	return out, apperr.FromStore(err)
}

// ListAll returns every booking, optionally narrowed to statuses. Admin only.
func (m *Machine) ListAll(ctx context.Context, actor session.Actor, statuses []Status) ([]Booking, error) {
	if actor.Role != session.RoleAdmin {
		return nil, apperr.Forbidden("only an admin can list all bookings")
	}
	out, err := m.store.ListBookings(ctx, Filter{Statuses: statuses})
	return out, apperr.FromStore(err)
}

// Actions returns the approval trail, oldest first.
func (m *Machine) Actions(ctx context.Context, actor session.Actor, id string) ([]Action, error) {
	if _, err := m.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	out, err := m.store.ListActions(ctx, id)
	return out, apperr.FromStore(err)
}

// Capacity reports seats against headcount. Buses that no longer exist are skipped.
func (m *Machine) Capacity(ctx context.Context, actor session.Actor, id string) (*CapacityReport, error) {
	b, err := m.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	assigned := make([]bus.Bus, 0, len(b.Buses))
	for _, busID := range b.Buses {
		v, err := m.buses.Get(ctx, busID)
		if apperr.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		assigned = append(assigned, *v)
	}
	r := BuildCapacityReport(b, assigned)
	return &r, nil
}

func (m *Machine) action(bookingID string, actor session.Actor, kind ActionKind, from *Status, to Status, comment string, data map[string]any, at time.Time) *Action {
	if len(data) == 0 {
		data = nil
	}
	return &Action{
		ID:         uuid.NewString(),
		BookingID:  bookingID,
		Kind:       kind,
		ActorID:    actor.ID,
		ActorRole:  string(actor.Role),
		From:       from,
		To:         to,
		Comment:    strings.TrimSpace(comment),
		Data:       data,
		OccurredAt: at,
	}
}

// emit runs after commit. A sink failure is logged and counted, never returned.
func (m *Machine) emit(ctx context.Context, b *Booking, a *Action, kind string, releasedBuses bool) {
	ev := notify.Event{
		Kind:       kind,
		BookingID:  b.ID,
		TripDate:   calendar.Format(b.TripDate),
		ActorID:    a.ActorID,
		ActorRole:  a.ActorRole,
		To:         string(a.To),
		Comment:    a.Comment,
		Audience:   audienceFor(kind, b, releasedBuses),
		OccurredAt: a.OccurredAt,
	}
	if a.From != nil {
		ev.From = string(*a.From)
	}
	if ev.Audience.Empty() {
		return
	}
	if err := m.sink.Notify(ctx, ev); err != nil {
		m.metrics.NotifyFailures.Inc()
		m.log.Warn("notification failed", "booking_id", b.ID, "kind", kind, "error", err)
	}
}

func authorize(actor session.Actor, b *Booking, target Status) (Party, error) {
	if target == StatusCanceled {
		if actor.ID != b.RequesterID {
			return "", apperr.Forbidden("only the requester can cancel a booking")
		}
		return PartyRequester, nil
	}
	party, ok := PartyForRole(actor.Role)
	if !ok || !Drives(party, target) {
		return "", apperr.Forbidden(fmt.Sprintf("role %s cannot move a booking to %s", actor.Role, target))
	}
	return party, nil
}

func canView(actor session.Actor, b *Booking) bool {
	switch actor.Role {
	case session.RoleAdmin, session.RoleDeputy, session.RolePrincipal, session.RoleDriver:
		return true
	}
	return b.IsParticipant(actor.ID)
}

func busIDs(buses []bus.Bus) []string {
	out := make([]string, len(buses))
	for i, b := range buses {
		out[i] = b.ID
	}
	return out
}
