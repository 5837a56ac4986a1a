package bus

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"busbooking/internal/apperr"
	"busbooking/internal/audit"
	"busbooking/internal/calendar"
	"busbooking/internal/session"
	"busbooking/pkg/logger"
	"busbooking/pkg/metrics"
)

// Registry tracks buses and which booking holds each one on a given date.
type Registry struct {
	store   Store
	log     logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	loc     *time.Location
}

func NewRegistry(store Store, log logger.Logger, m *metrics.Metrics) *Registry {
	return &Registry{store: store, log: log, metrics: m, now: time.Now, loc: time.UTC}
}

// WithClock sets the time source and the school's time zone, which together decide
// which reservations are still upcoming.
func (r *Registry) WithClock(now func() time.Time, loc *time.Location) *Registry {
	r.now = now
	if loc != nil {
		r.loc = loc
	}
	return r
}

// Store exposes the underlying store so callers can open a transaction that spans
// bookings and buses.
func (r *Registry) Store() Store { return r.store }

func (r *Registry) Get(ctx context.Context, id string) (*Bus, error) {
	b, err := r.store.GetBus(ctx, id)
	return b, apperr.FromStore(err)
}

func (r *Registry) List(ctx context.Context) ([]Bus, error) {
	out, err := r.store.ListBuses(ctx)
	return out, apperr.FromStore(err)
}

// ListAvailable returns active buses with no booking attached on date.
func (r *Registry) ListAvailable(ctx context.Context, date time.Time) ([]Bus, error) {
	out, err := r.store.ListFree(ctx, calendar.Normalize(date))
	return out, apperr.FromStore(err)
}

func (r *Registry) CountActive(ctx context.Context) (int, error) {
	n, err := r.store.CountActiveBuses(ctx)
	return n, apperr.FromStore(err)
}

// Reserve attaches every bus to bookingID on date, or none of them.
func (r *Registry) Reserve(ctx context.Context, busIDs []string, date time.Time, bookingID string) ([]Bus, error) {
	var held []Bus
	err := r.store.WithTx(ctx, func(tx Tx) error {
		var err error
		held, err = r.ReserveTx(ctx, tx, busIDs, date, bookingID)
		return err
	})
	if err != nil {
		return nil, apperr.FromStore(err)
	}
	return held, nil
}

// ReserveTx is Reserve inside a caller's transaction. Unknown or inactive buses are a
// validation failure; a bus held by another booking is a conflict. Buses already held
// by bookingID on date are left in place.
func (r *Registry) ReserveTx(ctx context.Context, tx Tx, busIDs []string, date time.Time, bookingID string) ([]Bus, error) {
	ids := NormalizeIDs(busIDs)
	if len(ids) == 0 {
		return nil, apperr.Validation("buses", "at least one bus is required")
	}
	date = calendar.Normalize(date)

	locked, err := tx.LockBuses(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]Bus, len(locked))
	for _, b := range locked {
		byID[b.ID] = b
	}

	var f apperr.Fields
	for _, id := range ids {
		b, ok := byID[id]
		switch {
		case !ok:
			f.Add("buses", fmt.Sprintf("bus %s does not exist", id))
		case !b.Active:
			f.Add("buses", fmt.Sprintf("bus %s is not in service", b.Number))
		}
	}
	if err := f.Err(); err != nil {
		return nil, err
	}

	holders, err := tx.Holders(ctx, ids, date)
	if err != nil {
		return nil, err
	}
	var taken []string
	attach := make([]string, 0, len(ids))
	for _, id := range ids {
		holder, ok := holders[id]
		switch {
		case !ok:
			attach = append(attach, id)
		case holder != bookingID:
			taken = append(taken, byID[id].Number)
		}
	}
	if len(taken) > 0 {
		sort.Strings(taken)
		r.metrics.ReservationConflicts.Inc()
		return nil, apperr.Conflict(fmt.Sprintf("already reserved on %s: %s", calendar.Format(date), strings.Join(taken, ", ")))
	}

	if err := tx.Attach(ctx, bookingID, date, attach); err != nil {
		if apperr.IsConflict(err) {
			r.metrics.ReservationConflicts.Inc()
		}
		return nil, err
	}

	out := make([]Bus, 0, len(ids))
	for _, id := range ids {
		out = append(out, byID[id])
	}
	return out, nil
}

// Release detaches buses from bookingID. Releasing buses it does not hold is a no-op.
func (r *Registry) Release(ctx context.Context, busIDs []string, bookingID string) error {
	return apperr.FromStore(r.store.WithTx(ctx, func(tx Tx) error {
		return r.ReleaseTx(ctx, tx, busIDs, bookingID)
	}))
}

func (r *Registry) ReleaseTx(ctx context.Context, tx Tx, busIDs []string, bookingID string) error {
	ids := NormalizeIDs(busIDs)
	if len(ids) == 0 {
		return nil
	}
	return tx.Detach(ctx, bookingID, ids)
}

func (r *Registry) Create(ctx context.Context, actor session.Actor, in Input) (*Bus, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	now := r.now().UTC()
	b := &Bus{ID: uuid.NewString(), Active: true, CreatedAt: now, UpdatedAt: now}
	in.apply(b)

	err := r.store.WithTx(ctx, func(tx Tx) error {
		if err := tx.InsertBus(ctx, b); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, r.entry(actor, b.ID, "bus.create", map[string]any{
			"busNumber": b.Number,
			"capacity":  b.Capacity,
		}))
	})
	if err != nil {
		return nil, apperr.FromStore(err)
	}
	r.log.Info("bus created", "bus_id", b.ID, "bus_number", b.Number, "actor_id", actor.ID)
	return b, nil
}

// Update replaces a bus's attributes. Taking a bus out of service is a conflict while
// it is reserved for today or a later trip; holdings of finished trips stay on record.
func (r *Registry) Update(ctx context.Context, actor session.Actor, id string, in Input) (*Bus, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var out Bus
	err := r.store.WithTx(ctx, func(tx Tx) error {
		cur, err := lockOne(ctx, tx, id)
		if err != nil {
			return err
		}
		next := cur
		in.apply(&next)
		if cur.Active && !next.Active {
			held, err := tx.IsHeld(ctx, id, calendar.Day(r.now(), r.loc))
			if err != nil {
				return err
			}
			if held {
				return apperr.Conflict(fmt.Sprintf("bus %s is reserved for an upcoming trip", cur.Number))
			}
		}
		next.UpdatedAt = r.now().UTC()
		if err := tx.UpdateBus(ctx, &next); err != nil {
			return err
		}
		out = next
		return tx.RecordAudit(ctx, r.entry(actor, id, "bus.update", map[string]any{
			"before": map[string]any{"busNumber": cur.Number, "capacity": cur.Capacity, "active": cur.Active},
			"after":  map[string]any{"busNumber": next.Number, "capacity": next.Capacity, "active": next.Active},
		}))
	})
	if err != nil {
		return nil, apperr.FromStore(err)
	}
	r.log.Info("bus updated", "bus_id", id, "actor_id", actor.ID)
	return &out, nil
}

// Delete removes a bus that no booking has ever held. A bus that served past trips
// stays on their record and can only be taken out of service.
func (r *Registry) Delete(ctx context.Context, actor session.Actor, id string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	err := r.store.WithTx(ctx, func(tx Tx) error {
		cur, err := lockOne(ctx, tx, id)
		if err != nil {
			return err
		}
		held, err := tx.IsHeld(ctx, id, time.Time{})
		if err != nil {
			return err
		}
		if held {
			return apperr.Conflict(fmt.Sprintf("bus %s is on the record of a booking; take it out of service instead", cur.Number))
		}
		if err := tx.DeleteBus(ctx, id); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, r.entry(actor, id, "bus.delete", map[string]any{"busNumber": cur.Number}))
	})
	if err != nil {
		return apperr.FromStore(err)
	}
	r.log.Info("bus deleted", "bus_id", id, "actor_id", actor.ID)
	return nil
}

func (r *Registry) AuditTrail(ctx context.Context, actor session.Actor, id string) ([]audit.Entry, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	out, err := r.store.AuditTrail(ctx, id)
	return out, apperr.FromStore(err)
}

func (r *Registry) entry(actor session.Actor, busID, action string, meta map[string]any) audit.Entry {
	return audit.Entry{
		ID:         uuid.NewString(),
		Entity:     "bus",
		EntityID:   busID,
		Action:     action,
		ActorID:    actor.ID,
		ActorRole:  string(actor.Role),
		Metadata:   meta,
		OccurredAt: r.now().UTC(),
	}
}

func lockOne(ctx context.Context, tx Tx, id string) (Bus, error) {
	locked, err := tx.LockBuses(ctx, []string{id})
	if err != nil {
		return Bus{}, err
	}
	if len(locked) == 0 {
		return Bus{}, apperr.NotFound("bus", id)
	}
	return locked[0], nil
}

func requireAdmin(actor session.Actor) error {
	if actor.Role != session.RoleAdmin {
		return apperr.Forbidden("only an administrator can manage buses")
	}
	return nil
}
