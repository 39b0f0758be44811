package speakers

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/homeconf/regbot/internal/models"
)

// Repository handles the manual speaker list. Usernames are stored normalized.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a speakers repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Exists reports whether username is listed for the event.
func (r *Repository) Exists(ctx context.Context, eventID int64, username string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM speakers WHERE event_id = $1 AND username = $2)`
	var ok bool
	err := r.pool.QueryRow(ctx, q, eventID, models.NormalizeUsername(username)).Scan(&ok)
	return ok, err
}

// Count returns the number of listed speakers.
func (r *Repository) Count(ctx context.Context, eventID int64) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM speakers WHERE event_id = $1`, eventID).Scan(&n)
	return n, err
}

// Add lists username; it returns false if it was already there.
func (r *Repository) Add(ctx context.Context, eventID int64, username string) (bool, error) {
	const q = `INSERT INTO speakers (event_id, username) VALUES ($1, $2) ON CONFLICT (event_id, username) DO NOTHING`
	tag, err := r.pool.Exec(ctx, q, eventID, models.NormalizeUsername(username))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// List returns the listed speakers, alphabetically.
func (r *Repository) List(ctx context.Context, eventID int64) ([]models.Speaker, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, event_id, username FROM speakers WHERE event_id = $1 ORDER BY username`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Speaker
	for rows.Next() {
		var sp models.Speaker
		if err := rows.Scan(&sp.ID, &sp.EventID, &sp.Username); err != nil {
			return nil, err
		}
		list = append(list, sp)
	}
	return list, rows.Err()
}
