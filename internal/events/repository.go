package events

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/homeconf/regbot/internal/models"
	"github.com/homeconf/regbot/pkg/database"
)

const eventColumns = `id, chat_id, status, total_places, speakers_group_id, waitlist_timeout_hours,
	registration_duration_hours, end_time, lottery_drawn_at, created_at`

// Repository handles events persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an events repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanEvent(row pgx.Row) (*models.Event, error) {
	var e models.Event
	var status string
	err := row.Scan(&e.ID, &e.ChatID, &status, &e.TotalPlaces, &e.SpeakersGroupID, &e.WaitlistTimeoutHours,
		&e.RegistrationDurationHours, &e.EndTime, &e.LotteryDrawnAt, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.Status = models.EventStatus(status)
	return &e, nil
}

// one maps "no rows" to nil, nil.
func one(row pgx.Row) (*models.Event, error) {
	e, err := scanEvent(row)
	if database.IsNoRows(err) {
		return nil, nil
	}
	return e, err
}

// Create inserts an event and fills ID and CreatedAt.
func (r *Repository) Create(ctx context.Context, e *models.Event) error {
	const q = `INSERT INTO events (chat_id, status, total_places, speakers_group_id, waitlist_timeout_hours, registration_duration_hours, end_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`
	return r.pool.QueryRow(ctx, q, e.ChatID, string(e.Status), e.TotalPlaces, e.SpeakersGroupID,
		e.WaitlistTimeoutHours, e.RegistrationDurationHours, e.EndTime).Scan(&e.ID, &e.CreatedAt)
}

// GetByID returns an event by ID.
func (r *Repository) GetByID(ctx context.Context, id int64) (*models.Event, error) {
	return one(r.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
}

// Latest returns the most recently created event.
func (r *Repository) Latest(ctx context.Context) (*models.Event, error) {
	return one(r.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events ORDER BY id DESC LIMIT 1`))
}

// GetActive returns the PRE_OPEN or OPEN event.
func (r *Repository) GetActive(ctx context.Context) (*models.Event, error) {
	const q = `SELECT ` + eventColumns + ` FROM events WHERE status IN ('PRE_OPEN', 'OPEN') ORDER BY id DESC LIMIT 1`
	return one(r.pool.QueryRow(ctx, q))
}

// ListByStatus returns events in status, oldest first.
func (r *Repository) ListByStatus(ctx context.Context, status models.EventStatus) ([]models.Event, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+eventColumns+` FROM events WHERE status = $1 ORDER BY id`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *e)
	}
	return list, rows.Err()
}

// UpdateStatus sets status and end_time together.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, status models.EventStatus, endTime *time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE events SET status = $2, end_time = $3 WHERE id = $1`, id, string(status), endTime)
	return err
}

// MarkDrawn records that the closure draw of event id has completed.
func (r *Repository) MarkDrawn(ctx context.Context, id int64, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE events SET lottery_drawn_at = $2 WHERE id = $1`, id, at)
	return err
}
