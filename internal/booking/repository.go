package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"busbooking/internal/apperr"
	"busbooking/internal/bus"
	"busbooking/pkg/db"
)

const bookingColumns = `
b.id, b.requester_id, b.purpose, b.venue, b.trip_date, b.departure_time, b.return_time,
b.headcounts, b.accompanying_teachers, b.status,
COALESCE((SELECT array_agg(bb.bus_id ORDER BY bb.bus_id) FROM booking_buses bb WHERE bb.booking_id = b.id), '{}'),
b.extra_buses, b.comments, b.driver_acknowledged, COALESCE(b.acknowledged_by, ''), b.acknowledged_at,
b.created_at, b.updated_at`

// Repository is the Postgres Store.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(pgTx{PGTx: bus.NewPGTx(tx), tx: tx})
	})
}

func (r *Repository) GetBooking(ctx context.Context, id string) (*Booking, error) {
	q := `SELECT ` + bookingColumns + ` FROM bookings b WHERE b.id = $1`
	b, err := scanBooking(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("booking", id)
		}
		return nil, err
	}
	return b, nil
}

func (r *Repository) ListBookings(ctx context.Context, f Filter) ([]Booking, error) {
	where, args := f.sql()
	q := `SELECT ` + bookingColumns + ` FROM bookings b` + where + ` ORDER BY b.trip_date, b.created_at`
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (r *Repository) CountBookings(ctx context.Context, f Filter) (int, error) {
	where, args := f.sql()
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM bookings b`+where, args...).Scan(&n)
	return n, err
}

func (r *Repository) ListActions(ctx context.Context, bookingID string) ([]Action, error) {
	const q = `
SELECT id, booking_id, seq, kind, actor_id, actor_role, from_status, to_status, comment, data, occurred_at
FROM booking_actions
WHERE booking_id = $1
ORDER BY seq
`
	rows, err := r.pool.Query(ctx, q, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Action{}
	for rows.Next() {
		var (
			a    Action
			from *string
			data []byte
		)
		if err := rows.Scan(&a.ID, &a.BookingID, &a.Seq, &a.Kind, &a.ActorID, &a.ActorRole, &from, &a.To, &a.Comment, &data, &a.OccurredAt); err != nil {
			return nil, err
		}
		if from != nil {
			s := Status(*from)
			a.From = &s
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &a.Data); err != nil {
				return nil, err
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type pgTx struct {
	bus.PGTx
	tx pgx.Tx
}

func (t pgTx) LockBooking(ctx context.Context, id string) (*Booking, error) {
	q := `SELECT ` + bookingColumns + ` FROM bookings b WHERE b.id = $1 FOR UPDATE OF b`
	b, err := scanBooking(t.tx.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("booking", id)
		}
		return nil, err
	}
	return b, nil
}

func (t pgTx) InsertBooking(ctx context.Context, b *Booking) error {
	docs, err := marshalDocs(b)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO bookings (
  id, requester_id, purpose, venue, trip_date, departure_time, return_time,
  headcounts, accompanying_teachers, status, extra_buses, comments,
  driver_acknowledged, created_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7,
        CAST($8 AS jsonb), CAST($9 AS jsonb), $10, CAST($11 AS jsonb), CAST($12 AS jsonb),
        $13, $14, $15)
`
	_, err = t.tx.Exec(ctx, q,
		b.ID, b.RequesterID, b.Purpose, b.Venue, b.TripDate, b.DepartureTime, b.ReturnTime,
		docs.headcounts, docs.teachers, string(b.Status), docs.extra, docs.comments,
		b.Acknowledged, b.CreatedAt, b.UpdatedAt,
	)
	return err
}

func (t pgTx) UpdateBooking(ctx context.Context, b *Booking, expected Status) error {
	docs, err := marshalDocs(b)
	if err != nil {
		return err
	}
	const q = `
UPDATE bookings
SET status = $1, extra_buses = CAST($2 AS jsonb), comments = CAST($3 AS jsonb),
    driver_acknowledged = $4, acknowledged_by = NULLIF($5, ''), acknowledged_at = $6, updated_at = $7
WHERE id = $8 AND status = $9
`
	tag, err := t.tx.Exec(ctx, q,
		string(b.Status), docs.extra, docs.comments,
		b.Acknowledged, b.AcknowledgedBy, b.AcknowledgedAt, b.UpdatedAt,
		b.ID, string(expected),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict(fmt.Sprintf("booking %s changed concurrently", b.ID))
	}
	return nil
}

func (t pgTx) InsertAction(ctx context.Context, a *Action) error {
	var data *string
	if a.Data != nil {
		raw, err := json.Marshal(a.Data)
		if err != nil {
			return err
		}
		s := string(raw)
		data = &s
	}
	var from *string
	if a.From != nil {
		s := string(*a.From)
		from = &s
	}
	const q = `
INSERT INTO booking_actions (id, booking_id, seq, kind, actor_id, actor_role, from_status, to_status, comment, data, occurred_at)
VALUES ($1, $2,
        (SELECT COALESCE(MAX(seq), 0) + 1 FROM booking_actions WHERE booking_id = $2),
        $3, $4, $5, $6, $7, $8, CAST($9 AS jsonb), $10)
RETURNING seq
`
	return t.tx.QueryRow(ctx, q,
		a.ID, a.BookingID, string(a.Kind), a.ActorID, a.ActorRole, from, string(a.To), a.Comment, data, a.OccurredAt,
	).Scan(&a.Seq)
}

type docs struct {
	headcounts string
	teachers   string
	extra      string
	comments   string
}

func marshalDocs(b *Booking) (docs, error) {
	var d docs
	for _, f := range []struct {
		dst *string
		v   any
	}{
		{&d.headcounts, b.Headcounts},
		{&d.teachers, nonNil(b.AccompanyingTeachers)},
		{&d.extra, nonNil(b.ExtraBuses)},
		{&d.comments, nonNil(b.Comments)},
	} {
		raw, err := json.Marshal(f.v)
		if err != nil {
			return docs{}, err
		}
		*f.dst = string(raw)
	}
	return d, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var (
		b                                   Booking
		heads, teachers, extra, commentsRaw []byte
	)
	err := row.Scan(
		&b.ID, &b.RequesterID, &b.Purpose, &b.Venue, &b.TripDate, &b.DepartureTime, &b.ReturnTime,
		&heads, &teachers, &b.Status,
		&b.Buses,
		&extra, &commentsRaw, &b.Acknowledged, &b.AcknowledgedBy, &b.AcknowledgedAt,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	for _, f := range []struct {
		raw []byte
		dst any
	}{
		{heads, &b.Headcounts},
		{teachers, &b.AccompanyingTeachers},
		{extra, &b.ExtraBuses},
		{commentsRaw, &b.Comments},
	} {
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return nil, err
		}
	}
	return &b, nil
}

// sql renders the filter as a WHERE clause over bookings aliased b.
func (f Filter) sql() (string, []any) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.RequesterID != "" {
		conds = append(conds, "b.requester_id = "+arg(f.RequesterID))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		conds = append(conds, "b.status = ANY("+arg(statuses)+")")
	}
	if f.TripDateFrom != nil {
		conds = append(conds, "b.trip_date >= "+arg(*f.TripDateFrom))
	}
	if f.HasExtraBuses {
		conds = append(conds, "jsonb_array_length(b.extra_buses) > 0")
	}
	switch {
	case f.BusIDs == nil:
	case len(f.BusIDs) == 0:
		// an empty, non-nil set matches nothing
		conds = append(conds, "FALSE")
	default:
		conds = append(conds, "EXISTS (SELECT 1 FROM booking_buses bb WHERE bb.booking_id = b.id AND bb.bus_id = ANY("+arg(f.BusIDs)+"))")
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
