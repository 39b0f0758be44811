package actionlog

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/homeconf/regbot/internal/models"
)

// Repository handles action_logs persistence. Entries are never updated.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an action log repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Append inserts an entry and fills ID.
func (r *Repository) Append(ctx context.Context, entry *models.ActionLog) error {
	const q = `INSERT INTO action_logs (event_id, user_id, username, action, details, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	return r.pool.QueryRow(ctx, q, entry.EventID, entry.UserID, entry.Username, entry.Action, entry.Details, entry.Timestamp).
		Scan(&entry.ID)
}

// ListByEvent returns the newest entries of an event first.
func (r *Repository) ListByEvent(ctx context.Context, eventID int64, limit int) ([]*models.ActionLog, error) {
	const q = `SELECT id, event_id, user_id, username, action, details, timestamp
		FROM action_logs
		WHERE event_id = $1
		ORDER BY id DESC
		LIMIT $2`
	rows, err := r.pool.Query(ctx, q, eventID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.ActionLog
	for rows.Next() {
		var al models.ActionLog
		if err := rows.Scan(&al.ID, &al.EventID, &al.UserID, &al.Username, &al.Action, &al.Details, &al.Timestamp); err != nil {
			return nil, err
		}
		list = append(list, &al)
	}
	return list, rows.Err()
}
