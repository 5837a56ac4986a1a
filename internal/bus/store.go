package bus

import (
	"context"
	"time"

	"busbooking/internal/audit"
)

// Store is the record store view of the fleet. Reads are never cached: bus holdings
// change with every booking transition.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	GetBus(ctx context.Context, id string) (*Bus, error)
	ListBuses(ctx context.Context) ([]Bus, error)
	// ListFree returns active buses not held by any booking on date.
	ListFree(ctx context.Context, date time.Time) ([]Bus, error)
	CountActiveBuses(ctx context.Context) (int, error)
	AuditTrail(ctx context.Context, busID string) ([]audit.Entry, error)
}

// Tx is the transactional view used for check-and-attach. Implementations must hold
// the bus rows returned by LockBuses until the transaction ends, and must reject a
// second holder of the same (bus, date) pair with a conflict.
type Tx interface {
	LockBuses(ctx context.Context, ids []string) ([]Bus, error)
	// Holders maps each held bus id to the booking holding it on date.
	Holders(ctx context.Context, ids []string, date time.Time) (map[string]string, error)
	// IsHeld reports whether any booking holds busID on a trip date on or after from.
	IsHeld(ctx context.Context, busID string, from time.Time) (bool, error)
	Attach(ctx context.Context, bookingID string, date time.Time, ids []string) error
	Detach(ctx context.Context, bookingID string, ids []string) error

	InsertBus(ctx context.Context, b *Bus) error
	UpdateBus(ctx context.Context, b *Bus) error
	DeleteBus(ctx context.Context, id string) error
	RecordAudit(ctx context.Context, e audit.Entry) error
}
