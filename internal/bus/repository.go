package bus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"busbooking/internal/apperr"
	"busbooking/internal/audit"
	"busbooking/internal/calendar"
	"busbooking/pkg/db"
)

const (
	attachmentKey = "booking_buses_bus_date_key"
	numberKey     = "buses_bus_number_key"
)

const busColumns = `b.id, b.bus_number, b.capacity, b.description, b.active, COALESCE(b.driver_id, ''), b.created_at, b.updated_at`

// Repository is the Postgres Store.
type Repository struct {
	pool  *pgxpool.Pool
	audit *audit.Repository
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, audit: audit.NewRepository(pool)}
}

func (r *Repository) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(NewPGTx(tx))
	})
}

func (r *Repository) GetBus(ctx context.Context, id string) (*Bus, error) {
	q := `SELECT ` + busColumns + ` FROM buses b WHERE b.id = $1`
	b, err := scanBus(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("bus", id)
		}
		return nil, err
	}
	return &b, nil
}

func (r *Repository) ListBuses(ctx context.Context) ([]Bus, error) {
	q := `SELECT ` + busColumns + ` FROM buses b ORDER BY b.bus_number`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	return collectBuses(rows)
}

func (r *Repository) ListFree(ctx context.Context, date time.Time) ([]Bus, error) {
	q := `
SELECT ` + busColumns + `
FROM buses b
WHERE b.active
  AND NOT EXISTS (
    SELECT 1 FROM booking_buses bb
    WHERE bb.bus_id = b.id AND bb.trip_date = $1
  )
ORDER BY b.bus_number
`
	rows, err := r.pool.Query(ctx, q, date)
	if err != nil {
		return nil, err
	}
	return collectBuses(rows)
}

func (r *Repository) CountActiveBuses(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM buses WHERE active`).Scan(&n)
	return n, err
}

func (r *Repository) AuditTrail(ctx context.Context, busID string) ([]audit.Entry, error) {
	return r.audit.ListForEntity(ctx, "bus", busID)
}

// PGTx implements Tx on a pgx transaction. Booking transactions embed it.
type PGTx struct {
	tx pgx.Tx
}

func NewPGTx(tx pgx.Tx) PGTx {
	return PGTx{tx: tx}
}

func (t PGTx) LockBuses(ctx context.Context, ids []string) ([]Bus, error) {
	q := `SELECT ` + busColumns + ` FROM buses b WHERE b.id = ANY($1) ORDER BY b.id FOR UPDATE`
	rows, err := t.tx.Query(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	return collectBuses(rows)
}

func (t PGTx) Holders(ctx context.Context, ids []string, date time.Time) (map[string]string, error) {
	const q = `SELECT bus_id, booking_id FROM booking_buses WHERE trip_date = $1 AND bus_id = ANY($2)`
	rows, err := t.tx.Query(ctx, q, date, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var busID, bookingID string
		if err := rows.Scan(&busID, &bookingID); err != nil {
			return nil, err
		}
		out[busID] = bookingID
	}
	return out, rows.Err()
}

func (t PGTx) IsHeld(ctx context.Context, busID string, from time.Time) (bool, error) {
	var held bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM booking_buses WHERE bus_id = $1 AND trip_date >= $2)`,
		busID, calendar.Normalize(from),
	).Scan(&held)
	return held, err
}

func (t PGTx) Attach(ctx context.Context, bookingID string, date time.Time, ids []string) error {
	const q = `
INSERT INTO booking_buses (booking_id, bus_id, trip_date)
VALUES ($1, $2, $3)
ON CONFLICT (booking_id, bus_id) DO NOTHING
`
	for _, id := range ids {
		if _, err := t.tx.Exec(ctx, q, bookingID, id, date); err != nil {
			if db.IsUniqueViolation(err, attachmentKey) {
				return apperr.Conflict(fmt.Sprintf("bus %s was reserved concurrently", id))
			}
			return err
		}
	}
	return nil
}

func (t PGTx) Detach(ctx context.Context, bookingID string, ids []string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM booking_buses WHERE booking_id = $1 AND bus_id = ANY($2)`, bookingID, ids)
	return err
}

func (t PGTx) InsertBus(ctx context.Context, b *Bus) error {
	const q = `
INSERT INTO buses (id, bus_number, capacity, description, active, driver_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8)
`
	_, err := t.tx.Exec(ctx, q, b.ID, b.Number, b.Capacity, b.Description, b.Active, b.DriverID, b.CreatedAt, b.UpdatedAt)
	return numberConflict(err, b.Number)
}

func (t PGTx) UpdateBus(ctx context.Context, b *Bus) error {
	const q = `
UPDATE buses
SET bus_number = $1, capacity = $2, description = $3, active = $4, driver_id = NULLIF($5, ''), updated_at = $6
WHERE id = $7
`
	_, err := t.tx.Exec(ctx, q, b.Number, b.Capacity, b.Description, b.Active, b.DriverID, b.UpdatedAt, b.ID)
	return numberConflict(err, b.Number)
}

func (t PGTx) DeleteBus(ctx context.Context, id string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM buses WHERE id = $1`, id)
	return err
}

func (t PGTx) RecordAudit(ctx context.Context, e audit.Entry) error {
	return audit.Insert(ctx, t.tx, e)
}

func numberConflict(err error, number string) error {
	if db.IsUniqueViolation(err, numberKey) {
		return apperr.Conflict(fmt.Sprintf("bus number %s already exists", number))
	}
	return err
}

func scanBus(row pgx.Row) (Bus, error) {
	var b Bus
	err := row.Scan(&b.ID, &b.Number, &b.Capacity, &b.Description, &b.Active, &b.DriverID, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

func collectBuses(rows pgx.Rows) ([]Bus, error) {
	defer rows.Close()
	var out []Bus
	for rows.Next() {
		b, err := scanBus(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
