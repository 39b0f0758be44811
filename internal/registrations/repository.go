package registrations

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/homeconf/regbot/internal/models"
	"github.com/homeconf/regbot/pkg/database"
)

const regColumns = `id, event_id, user_id, chat_id, username, first_name, status, priority,
	signup_time, notified_at, expires_at, guest_of_user_id`

// Repository handles registration persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a registrations repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanRegistration(row pgx.Row) (*models.Registration, error) {
	var reg models.Registration
	var status string
	err := row.Scan(&reg.ID, &reg.EventID, &reg.UserID, &reg.ChatID, &reg.Username, &reg.FirstName, &status,
		&reg.Priority, &reg.SignupTime, &reg.NotifiedAt, &reg.ExpiresAt, &reg.GuestOfUserID)
	if err != nil {
		return nil, err
	}
	reg.Status = models.RegistrationStatus(status)
	return &reg, nil
}

func (r *Repository) one(ctx context.Context, q string, args ...any) (*models.Registration, error) {
	reg, err := scanRegistration(r.pool.QueryRow(ctx, q, args...))
	if database.IsNoRows(err) {
		return nil, nil
	}
	return reg, err
}

func (r *Repository) list(ctx context.Context, q string, args ...any) ([]models.Registration, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *reg)
	}
	return list, rows.Err()
}

// Create inserts a registration and fills ID.
func (r *Repository) Create(ctx context.Context, reg *models.Registration) error {
	const q = `INSERT INTO registrations (event_id, user_id, chat_id, username, first_name, status, priority, signup_time, guest_of_user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`
	return r.pool.QueryRow(ctx, q, reg.EventID, reg.UserID, reg.ChatID, reg.Username, reg.FirstName,
		string(reg.Status), reg.Priority, reg.SignupTime, reg.GuestOfUserID).Scan(&reg.ID)
}

// Delete removes a registration outright. Used to roll back an unconfirmed signup.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM registrations WHERE id = $1`, id)
	return err
}

// GetByID returns a registration by ID.
func (r *Repository) GetByID(ctx context.Context, id int64) (*models.Registration, error) {
	return r.one(ctx, `SELECT `+regColumns+` FROM registrations WHERE id = $1`, id)
}

// GetActiveByUser returns the user's non-UNREGISTERED registration.
func (r *Repository) GetActiveByUser(ctx context.Context, eventID, userID int64) (*models.Registration, error) {
	const q = `SELECT ` + regColumns + ` FROM registrations
		WHERE event_id = $1 AND user_id = $2 AND status <> 'UNREGISTERED'
		ORDER BY id DESC LIMIT 1`
	return r.one(ctx, q, eventID, userID)
}

// GetLatestByUser returns the user's newest registration in any status.
func (r *Repository) GetLatestByUser(ctx context.Context, eventID, userID int64) (*models.Registration, error) {
	const q = `SELECT ` + regColumns + ` FROM registrations WHERE event_id = $1 AND user_id = $2 ORDER BY id DESC LIMIT 1`
	return r.one(ctx, q, eventID, userID)
}

// FindActiveByUsername matches username case-insensitively.
func (r *Repository) FindActiveByUsername(ctx context.Context, eventID int64, username string) (*models.Registration, error) {
	const q = `SELECT ` + regColumns + ` FROM registrations
		WHERE event_id = $1 AND LOWER(username) = $2 AND status <> 'UNREGISTERED'
		ORDER BY id DESC LIMIT 1`
	return r.one(ctx, q, eventID, models.NormalizeUsername(username))
}

// FindActiveGuestOf returns the guest sponsored by a speaker.
func (r *Repository) FindActiveGuestOf(ctx context.Context, eventID, speakerUserID int64) (*models.Registration, error) {
	const q = `SELECT ` + regColumns + ` FROM registrations
		WHERE event_id = $1 AND guest_of_user_id = $2 AND status <> 'UNREGISTERED'
		ORDER BY id DESC LIMIT 1`
	return r.one(ctx, q, eventID, speakerUserID)
}

// ListByStatus returns the event's registrations in status ordered by priority, then id.
func (r *Repository) ListByStatus(ctx context.Context, eventID int64, status models.RegistrationStatus) ([]models.Registration, error) {
	const q = `SELECT ` + regColumns + ` FROM registrations WHERE event_id = $1 AND status = $2 ORDER BY priority NULLS LAST, id`
	return r.list(ctx, q, eventID, string(status))
}

// ListAllByStatus returns registrations in status across all events.
func (r *Repository) ListAllByStatus(ctx context.Context, status models.RegistrationStatus) ([]models.Registration, error) {
	const q = `SELECT ` + regColumns + ` FROM registrations WHERE status = $1 ORDER BY id`
	return r.list(ctx, q, string(status))
}

// CountByStatus counts the event's registrations in status.
func (r *Repository) CountByStatus(ctx context.Context, eventID int64, status models.RegistrationStatus) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM registrations WHERE event_id = $1 AND status = $2`, eventID, string(status)).Scan(&n)
	return n, err
}

// CountAcceptedGuests counts ACCEPTED guest places, claimed or not.
func (r *Repository) CountAcceptedGuests(ctx context.Context, eventID int64) (int, error) {
	const q = `SELECT COUNT(*) FROM registrations WHERE event_id = $1 AND status = 'ACCEPTED' AND guest_of_user_id IS NOT NULL`
	var n int
	err := r.pool.QueryRow(ctx, q, eventID).Scan(&n)
	return n, err
}

// CountWaitlistAhead counts WAITLIST entries ahead of priority.
func (r *Repository) CountWaitlistAhead(ctx context.Context, eventID int64, priority int) (int, error) {
	const q = `SELECT COUNT(*) FROM registrations WHERE event_id = $1 AND status = 'WAITLIST' AND priority < $2`
	var n int
	err := r.pool.QueryRow(ctx, q, eventID, priority).Scan(&n)
	return n, err
}

// MaxWaitlistPriority returns the tail priority of the waitlist.
func (r *Repository) MaxWaitlistPriority(ctx context.Context, eventID int64) (int, bool, error) {
	const q = `SELECT MAX(priority) FROM registrations WHERE event_id = $1 AND status = 'WAITLIST'`
	var top *int
	if err := r.pool.QueryRow(ctx, q, eventID).Scan(&top); err != nil {
		return 0, false, err
	}
	if top == nil {
		return 0, false, nil
	}
	return *top, true, nil
}

// ShiftWaitlist moves every WAITLIST entry back by `by` places.
func (r *Repository) ShiftWaitlist(ctx context.Context, eventID int64, by int) error {
	const q = `UPDATE registrations SET priority = priority + $2 WHERE event_id = $1 AND status = 'WAITLIST'`
	_, err := r.pool.Exec(ctx, q, eventID, by)
	return err
}

// CloseWaitlistGap moves every WAITLIST entry behind vacated forward by one place.
func (r *Repository) CloseWaitlistGap(ctx context.Context, eventID int64, vacated int) error {
	const q = `UPDATE registrations SET priority = priority - 1 WHERE event_id = $1 AND status = 'WAITLIST' AND priority > $2`
	_, err := r.pool.Exec(ctx, q, eventID, vacated)
	return err
}

// UpdateStatus sets status; nil fields in change keep their stored value.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, status models.RegistrationStatus, change models.StatusChange) error {
	const q = `UPDATE registrations SET status = $2,
		priority = COALESCE($3, priority),
		notified_at = COALESCE($4, notified_at),
		expires_at = COALESCE($5, expires_at)
		WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id, string(status), change.Priority, change.NotifiedAt, change.ExpiresAt)
	return err
}

// ClaimGuest binds an unclaimed guest place to the registering user.
func (r *Repository) ClaimGuest(ctx context.Context, id, userID, chatID int64, firstName string) error {
	const q = `UPDATE registrations SET user_id = $2, chat_id = $3, first_name = $4 WHERE id = $1 AND user_id IS NULL`
	_, err := r.pool.Exec(ctx, q, id, userID, chatID, firstName)
	return err
}

// MakeGuest turns an existing registration into an ACCEPTED guest place.
func (r *Repository) MakeGuest(ctx context.Context, id, speakerUserID int64) error {
	const q = `UPDATE registrations SET status = 'ACCEPTED', guest_of_user_id = $2, priority = NULL WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id, speakerUserID)
	return err
}

// ListByEvent returns every registration of the event, oldest first.
func (r *Repository) ListByEvent(ctx context.Context, eventID int64) ([]models.Registration, error) {
	return r.list(ctx, `SELECT `+regColumns+` FROM registrations WHERE event_id = $1 ORDER BY id`, eventID)
}
