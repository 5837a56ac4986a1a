package booking

import (
	"context"
	"time"

	"busbooking/internal/bus"
)

// Filter selects bookings. Zero fields do not constrain, except that a non-nil empty
// BusIDs matches nothing.
type Filter struct {
	RequesterID   string
	Statuses      []Status
	TripDateFrom  *time.Time
	HasExtraBuses bool
	// BusIDs keeps bookings holding at least one of these buses.
	BusIDs []string
}

type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	GetBooking(ctx context.Context, id string) (*Booking, error)
	// ListBookings orders by trip date, then creation time.
	ListBookings(ctx context.Context, f Filter) ([]Booking, error)
	CountBookings(ctx context.Context, f Filter) (int, error)
	ListActions(ctx context.Context, bookingID string) ([]Action, error)
}

// Tx spans bookings and buses so a transition and its reservation commit together.
// A booking's Buses are derived from its attachments and are never written directly.
type Tx interface {
	bus.Tx

	// LockBooking reads a booking and holds it until the transaction ends.
	LockBooking(ctx context.Context, id string) (*Booking, error)
	InsertBooking(ctx context.Context, b *Booking) error
	// UpdateBooking writes b only if its stored status is still expected; otherwise it
	// fails with a conflict.
	UpdateBooking(ctx context.Context, b *Booking, expected Status) error
	// InsertAction assigns the next Seq for the booking.
	InsertAction(ctx context.Context, a *Action) error
}
