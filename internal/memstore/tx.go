package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"busbooking/internal/apperr"
	"busbooking/internal/audit"
	"busbooking/internal/booking"
	"busbooking/internal/bus"
	"busbooking/internal/calendar"
)

// tx mutates state in place; the enclosing withTx restores the snapshot on error.
type tx struct {
	st *state
}

var (
	_ bus.Tx     = (*tx)(nil)
	_ booking.Tx = (*tx)(nil)
)

func (t *tx) LockBuses(_ context.Context, ids []string) ([]bus.Bus, error) {
	out := []bus.Bus{}
	for _, id := range ids {
		if b, ok := t.st.buses[id]; ok {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) Holders(_ context.Context, ids []string, date time.Time) (map[string]string, error) {
	day := calendar.Format(date)
	out := make(map[string]string)
	for _, id := range ids {
		if holder, ok := t.st.held[holding{busID: id, date: day}]; ok {
			out[id] = holder
		}
	}
	return out, nil
}

func (t *tx) IsHeld(_ context.Context, busID string, from time.Time) (bool, error) {
	day := calendar.Format(from)
	for h := range t.st.held {
		if h.busID == busID && h.date >= day {
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) Attach(_ context.Context, bookingID string, date time.Time, ids []string) error {
	day := calendar.Format(date)
	for _, id := range ids {
		key := holding{busID: id, date: day}
		if holder, ok := t.st.held[key]; ok && holder != bookingID {
			return apperr.Conflict(fmt.Sprintf("bus %s was reserved concurrently", id))
		}
		t.st.held[key] = bookingID
	}
	return nil
}

func (t *tx) Detach(_ context.Context, bookingID string, ids []string) error {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	for h, holder := range t.st.held {
		if holder == bookingID && drop[h.busID] {
			delete(t.st.held, h)
		}
	}
	return nil
}

func (t *tx) InsertBus(_ context.Context, b *bus.Bus) error {
	if err := t.checkNumber(b); err != nil {
		return err
	}
	t.st.buses[b.ID] = *b
	return nil
}

func (t *tx) UpdateBus(_ context.Context, b *bus.Bus) error {
	if _, ok := t.st.buses[b.ID]; !ok {
		return apperr.NotFound("bus", b.ID)
	}
	if err := t.checkNumber(b); err != nil {
		return err
	}
	t.st.buses[b.ID] = *b
	return nil
}

func (t *tx) checkNumber(b *bus.Bus) error {
	for _, other := range t.st.buses {
		if other.ID != b.ID && other.Number == b.Number {
			return apperr.Conflict(fmt.Sprintf("bus number %s already exists", b.Number))
		}
	}
	return nil
}

func (t *tx) DeleteBus(_ context.Context, id string) error {
	delete(t.st.buses, id)
	return nil
}

func (t *tx) RecordAudit(_ context.Context, e audit.Entry) error {
	t.st.audit = append(t.st.audit, e)
	return nil
}

func (t *tx) LockBooking(_ context.Context, id string) (*booking.Booking, error) {
	return t.st.booking(id)
}

func (t *tx) InsertBooking(_ context.Context, b *booking.Booking) error {
	if _, ok := t.st.bookings[b.ID]; ok {
		return apperr.Conflict(fmt.Sprintf("booking %s already exists", b.ID))
	}
	t.st.bookings[b.ID] = cloneBooking(*b)
	return nil
}

func (t *tx) UpdateBooking(_ context.Context, b *booking.Booking, expected booking.Status) error {
	cur, ok := t.st.bookings[b.ID]
	if !ok {
		return apperr.NotFound("booking", b.ID)
	}
	if cur.Status != expected {
		return apperr.Conflict(fmt.Sprintf("booking %s changed concurrently", b.ID))
	}
	next := cloneBooking(*b)
	next.Buses = nil
	t.st.bookings[b.ID] = next
	return nil
}

func (t *tx) InsertAction(_ context.Context, a *booking.Action) error {
	a.Seq = len(t.st.actions[a.BookingID]) + 1
	t.st.actions[a.BookingID] = append(t.st.actions[a.BookingID], *a)
	return nil
}
