package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository reads the activity log with PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository builds a PGRepository instance.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const timelineQuery = `
	SELECT al.id, al.actor_id, COALESCE(u.name, ''), al.action, al.entity, al.entity_id, al.meta, al.occurred_at
	FROM activity_logs al
	LEFT JOIN users u ON u.id = al.actor_id
	WHERE ($1::timestamptz IS NULL OR al.occurred_at >= $1)
	  AND ($2::timestamptz IS NULL OR al.occurred_at <= $2)
	  AND ($3::bigint = 0 OR al.actor_id = $3)
	  AND ($4::text = '' OR al.entity = $4)
	  AND ($5::text = '' OR al.action = $5)
	ORDER BY al.occurred_at DESC, al.id DESC`

// Window returns one page of the filtered timeline, newest first.
func (r *PGRepository) Window(ctx context.Context, f TimelineFilters, limit, offset int32) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, timelineQuery+` LIMIT $6 OFFSET $7`,
		nullableTime(f.From), nullableTime(f.To), f.ActorID, f.Entity, f.Action, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

// All returns the whole filtered timeline for export.
func (r *PGRepository) All(ctx context.Context, f TimelineFilters) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, timelineQuery,
		nullableTime(f.From), nullableTime(f.To), f.ActorID, f.Entity, f.Action)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

func collectEntries(rows pgx.Rows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		var e Entry
		var rawMeta []byte
		if err := rows.Scan(&e.ID, &e.ActorID, &e.ActorName, &e.Action, &e.Entity, &e.EntityID, &rawMeta, &e.OccurredAt); err != nil {
			return nil, err
		}
		if len(rawMeta) > 0 {
			_ = json.Unmarshal(rawMeta, &e.Meta)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
