// Package memstore is an in-process record store for development and tests. A
// transaction holds the store's write lock for its whole duration and rolls back
// by restoring a snapshot, which gives the same guarantees as the row locks and
// unique attachment index of the Postgres store.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"busbooking/internal/apperr"
	"busbooking/internal/audit"
	"busbooking/internal/booking"
	"busbooking/internal/bus"
	"busbooking/internal/calendar"
	"busbooking/internal/session"
	"busbooking/internal/user"
)

type holding struct {
	busID string
	date  string
}

type state struct {
	buses    map[string]bus.Bus
	bookings map[string]booking.Booking
	held     map[holding]string
	actions  map[string][]booking.Action
	audit    []audit.Entry
	users    map[string]user.User
}

func (s *state) clone() *state {
	c := &state{
		buses:    make(map[string]bus.Bus, len(s.buses)),
		bookings: make(map[string]booking.Booking, len(s.bookings)),
		held:     make(map[holding]string, len(s.held)),
		actions:  make(map[string][]booking.Action, len(s.actions)),
		audit:    append([]audit.Entry(nil), s.audit...),
		users:    make(map[string]user.User, len(s.users)),
	}
	for k, v := range s.buses {
		c.buses[k] = v
	}
	for k, v := range s.bookings {
		c.bookings[k] = cloneBooking(v)
	}
	for k, v := range s.held {
		c.held[k] = v
	}
	for k, v := range s.actions {
		c.actions[k] = append([]booking.Action(nil), v...)
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	return c
}

type Store struct {
	mu sync.RWMutex
	st *state
}

func New() *Store {
	return &Store{st: &state{
		buses:    map[string]bus.Bus{},
		bookings: map[string]booking.Booking{},
		held:     map[holding]string{},
		actions:  map[string][]booking.Action{},
		users:    map[string]user.User{},
	}}
}

// Buses returns the bus.Store view.
func (s *Store) Buses() bus.Store { return busView{s} }

// Bookings returns the booking.Store view.
func (s *Store) Bookings() booking.Store { return bookingView{s} }

// Users returns the directory view.
func (s *Store) Users() user.Directory { return userView{s} }

// PutUser adds or replaces a directory entry.
func (s *Store) PutUser(u user.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.users[u.ID] = u
}

func (s *Store) withTx(ctx context.Context, fn func(t *tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(&tx{st: s.st}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func (s *Store) read(ctx context.Context, fn func(st *state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.st)
}

// busesOf derives a booking's held buses from the holdings table.
func (st *state) busesOf(bookingID string) []string {
	out := []string{}
	for h, id := range st.held {
		if id == bookingID {
			out = append(out, h.busID)
		}
	}
	sort.Strings(out)
	return out
}

func (st *state) booking(id string) (*booking.Booking, error) {
	b, ok := st.bookings[id]
	if !ok {
		return nil, apperr.NotFound("booking", id)
	}
	c := cloneBooking(b)
	c.Buses = st.busesOf(id)
	return &c, nil
}

func cloneBooking(b booking.Booking) booking.Booking {
	c := b
	c.Headcounts = make(map[string]int, len(b.Headcounts))
	for k, v := range b.Headcounts {
		c.Headcounts[k] = v
	}
	c.AccompanyingTeachers = append([]string{}, b.AccompanyingTeachers...)
	c.Buses = append([]string{}, b.Buses...)
	c.ExtraBuses = append([]booking.ExtraBus{}, b.ExtraBuses...)
	c.Comments = append([]booking.Comment{}, b.Comments...)
	if b.AcknowledgedAt != nil {
		at := *b.AcknowledgedAt
		c.AcknowledgedAt = &at
	}
	return c
}

type busView struct{ s *Store }

func (v busView) WithTx(ctx context.Context, fn func(tx bus.Tx) error) error {
	return v.s.withTx(ctx, func(t *tx) error { return fn(t) })
}

func (v busView) GetBus(ctx context.Context, id string) (*bus.Bus, error) {
	var out *bus.Bus
	err := v.s.read(ctx, func(st *state) error {
		b, ok := st.buses[id]
		if !ok {
			return apperr.NotFound("bus", id)
		}
		out = &b
		return nil
	})
	return out, err
}

func (v busView) ListBuses(ctx context.Context) ([]bus.Bus, error) {
	var out []bus.Bus
	err := v.s.read(ctx, func(st *state) error {
		for _, b := range st.buses {
			out = append(out, b)
		}
		return nil
	})
	sortBuses(out)
	return out, err
}

func (v busView) ListFree(ctx context.Context, date time.Time) ([]bus.Bus, error) {
	day := calendar.Format(date)
	var out []bus.Bus
	err := v.s.read(ctx, func(st *state) error {
		for _, b := range st.buses {
			if _, taken := st.held[holding{busID: b.ID, date: day}]; b.Active && !taken {
				out = append(out, b)
			}
		}
		return nil
	})
	sortBuses(out)
	return out, err
}

func (v busView) CountActiveBuses(ctx context.Context) (int, error) {
	n := 0
	err := v.s.read(ctx, func(st *state) error {
		for _, b := range st.buses {
			if b.Active {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (v busView) AuditTrail(ctx context.Context, busID string) ([]audit.Entry, error) {
	var out []audit.Entry
	err := v.s.read(ctx, func(st *state) error {
		for _, e := range st.audit {
			if e.Entity == "bus" && e.EntityID == busID {
				out = append(out, e)
			}
		}
		return nil
	})
	return out, err
}

func sortBuses(bs []bus.Bus) {
	sort.Slice(bs, func(i, j int) bool { return bs[i].Number < bs[j].Number })
}

type bookingView struct{ s *Store }

func (v bookingView) WithTx(ctx context.Context, fn func(tx booking.Tx) error) error {
	return v.s.withTx(ctx, func(t *tx) error { return fn(t) })
}

func (v bookingView) GetBooking(ctx context.Context, id string) (*booking.Booking, error) {
	var out *booking.Booking
	err := v.s.read(ctx, func(st *state) error {
		var err error
		out, err = st.booking(id)
		return err
	})
	return out, err
}

func (v bookingView) ListBookings(ctx context.Context, f booking.Filter) ([]booking.Booking, error) {
	out := []booking.Booking{}
	err := v.s.read(ctx, func(st *state) error {
		for id := range st.bookings {
			b, _ := st.booking(id)
			if matches(b, f) {
				out = append(out, *b)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].TripDate.Equal(out[j].TripDate) {
			return out[i].TripDate.Before(out[j].TripDate)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, err
}

func (v bookingView) CountBookings(ctx context.Context, f booking.Filter) (int, error) {
	list, err := v.ListBookings(ctx, f)
	return len(list), err
}

func (v bookingView) ListActions(ctx context.Context, bookingID string) ([]booking.Action, error) {
	var out []booking.Action
	err := v.s.read(ctx, func(st *state) error {
		out = append([]booking.Action{}, st.actions[bookingID]...)
		return nil
	})
	return out, err
}

func matches(b *booking.Booking, f booking.Filter) bool {
	if f.RequesterID != "" && b.RequesterID != f.RequesterID {
		return false
	}
	if len(f.Statuses) > 0 {
		ok := false
		for _, s := range f.Statuses {
			if b.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.TripDateFrom != nil && b.TripDate.Before(*f.TripDateFrom) {
		return false
	}
	if f.HasExtraBuses && len(b.ExtraBuses) == 0 {
		return false
	}
	if f.BusIDs != nil {
		ok := false
		for _, want := range f.BusIDs {
			for _, have := range b.Buses {
				if want == have {
					ok = true
				}
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

type userView struct{ s *Store }

func (v userView) Get(ctx context.Context, id string) (*user.User, error) {
	var out *user.User
	err := v.s.read(ctx, func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return apperr.NotFound("user", id)
		}
		out = &u
		return nil
	})
	return out, err
}

func (v userView) CountActive(ctx context.Context, role session.Role) (int, error) {
	n := 0
	err := v.s.read(ctx, func(st *state) error {
		for _, u := range st.users {
			if u.Role == role && u.Active {
				n++
			}
		}
		return nil
	})
	return n, err
}
