package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Entry is one administrative change. Entries are append-only.
type Entry struct {
	ID         string         `json:"id"`
	Entity     string         `json:"entity"`
	EntityID   string         `json:"entityId"`
	Action     string         `json:"action"`
	ActorID    string         `json:"actorId"`
	ActorRole  string         `json:"actorRole"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func Insert(ctx context.Context, tx pgx.Tx, e Entry) error {
	var s *string
	if e.Metadata != nil {
		b, _ := json.Marshal(e.Metadata)
		str := string(b)
		s = &str
	}
	const q = `
INSERT INTO audit_logs (id, entity, entity_id, action, actor_id, actor_role, metadata, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, CAST($7 AS jsonb), $8)
`
	_, err := tx.Exec(ctx, q, e.ID, e.Entity, e.EntityID, e.Action, e.ActorID, e.ActorRole, s, e.OccurredAt)
	return err
}

// ListForEntity returns the trail of one entity, oldest first.
func (r *Repository) ListForEntity(ctx context.Context, entity, entityID string) ([]Entry, error) {
	const q = `
SELECT id, entity, entity_id, action, actor_id, actor_role, metadata, occurred_at
FROM audit_logs
WHERE entity = $1 AND entity_id = $2
ORDER BY occurred_at, id
`
	rows, err := r.db.Query(ctx, q, entity, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var raw []byte
		if err := rows.Scan(&e.ID, &e.Entity, &e.EntityID, &e.Action, &e.ActorID, &e.ActorRole, &raw, &e.OccurredAt); err != nil {
			return nil, err
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &e.Metadata); err != nil {
				return nil, err
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
