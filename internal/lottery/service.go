// Package lottery implements the registration state machine: event lifecycle,
// speaker/guest exemptions, the closure-time draw and waitlist promotion.
package lottery

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/homeconf/regbot/internal/models"
)

// EventStore persists events.
type EventStore interface {
	Create(ctx context.Context, e *models.Event) error
	GetByID(ctx context.Context, id int64) (*models.Event, error)
	// Latest returns the most recently created event, or nil when none exists.
	Latest(ctx context.Context) (*models.Event, error)
	// GetActive returns the event in PRE_OPEN or OPEN, or nil.
	GetActive(ctx context.Context) (*models.Event, error)
	ListByStatus(ctx context.Context, status models.EventStatus) ([]models.Event, error)
	UpdateStatus(ctx context.Context, id int64, status models.EventStatus, endTime *time.Time) error
	MarkDrawn(ctx context.Context, id int64, at time.Time) error
}

// RegistrationStore persists registrations. Lookups return nil, nil when nothing matches.
type RegistrationStore interface {
	Create(ctx context.Context, r *models.Registration) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*models.Registration, error)
	// GetActiveByUser returns the non-UNREGISTERED registration of userID in eventID.
	GetActiveByUser(ctx context.Context, eventID, userID int64) (*models.Registration, error)
	// GetLatestByUser returns the newest registration of userID in eventID regardless of status.
	GetLatestByUser(ctx context.Context, eventID, userID int64) (*models.Registration, error)
	// FindActiveByUsername matches username case-insensitively among non-UNREGISTERED rows.
	FindActiveByUsername(ctx context.Context, eventID int64, username string) (*models.Registration, error)
	// FindActiveGuestOf returns the non-UNREGISTERED guest sponsored by speakerUserID.
	FindActiveGuestOf(ctx context.Context, eventID, speakerUserID int64) (*models.Registration, error)
	// ListByStatus orders by priority then id.
	ListByStatus(ctx context.Context, eventID int64, status models.RegistrationStatus) ([]models.Registration, error)
	ListAllByStatus(ctx context.Context, status models.RegistrationStatus) ([]models.Registration, error)
	CountByStatus(ctx context.Context, eventID int64, status models.RegistrationStatus) (int, error)
	CountAcceptedGuests(ctx context.Context, eventID int64) (int, error)
	// CountWaitlistAhead counts WAITLIST rows with a lower priority.
	CountWaitlistAhead(ctx context.Context, eventID int64, priority int) (int, error)
	// MaxWaitlistPriority returns ok=false when the waitlist is empty.
	MaxWaitlistPriority(ctx context.Context, eventID int64) (max int, ok bool, err error)
	ShiftWaitlist(ctx context.Context, eventID int64, by int) error
	// CloseWaitlistGap decrements every WAITLIST priority above the vacated one.
	CloseWaitlistGap(ctx context.Context, eventID int64, vacated int) error
	UpdateStatus(ctx context.Context, id int64, status models.RegistrationStatus, change models.StatusChange) error
	ClaimGuest(ctx context.Context, id, userID, chatID int64, firstName string) error
	MakeGuest(ctx context.Context, id, speakerUserID int64) error
}

// SpeakerStore holds the manual speaker list.
type SpeakerStore interface {
	Exists(ctx context.Context, eventID int64, username string) (bool, error)
	Count(ctx context.Context, eventID int64) (int, error)
	// Add reports false when the username was already listed.
	Add(ctx context.Context, eventID int64, username string) (bool, error)
}

// ActionLogger appends to the audit trail.
type ActionLogger interface {
	Append(ctx context.Context, entry *models.ActionLog) error
}

// MembershipOracle answers group membership questions. Every error is treated
// by the caller as "not a member" or "unknown size".
type MembershipOracle interface {
	// ResolveGroup turns an admin-supplied group reference into a committed group id.
	ResolveGroup(ctx context.Context, ref string) (int64, error)
	IsMember(ctx context.Context, groupID, userID int64) (bool, error)
	GroupSize(ctx context.Context, groupID int64) (int, error)
	// BotUserID is the id of the bot's own account, subtracted from group sizes.
	BotUserID() int64
}

// noGroups is used when no oracle is configured; group-backed speaker lists
// then contribute nothing.
type noGroups struct{}

var errNoOracle = errors.New("membership oracle not configured")

func (noGroups) ResolveGroup(context.Context, string) (int64, error) { return 0, errNoOracle }
func (noGroups) IsMember(context.Context, int64, int64) (bool, error) { return false, errNoOracle }
func (noGroups) GroupSize(context.Context, int64) (int, error) { return 0, errNoOracle }
func (noGroups) BotUserID() int64 { return 0 }

// Button is an inline reply option attached to a prompt.
type Button struct {
	Label string
	Data  string
}

// Notifier delivers messages to users and chats.
type Notifier interface {
	Notify(ctx context.Context, chatID int64, text string) error
	Prompt(ctx context.Context, chatID int64, text string, buttons []Button) error
}

// Scheduler runs delayed jobs by deterministic id. Schedule replaces any job with the same id.
type Scheduler interface {
	ScheduleClose(ctx context.Context, eventID int64, runAt time.Time) error
	ScheduleInviteTimeout(ctx context.Context, registrationID int64, runAt time.Time) error
	CancelClose(ctx context.Context, eventID int64) error
	CancelInviteTimeout(ctx context.Context, registrationID int64) error
}

// ResultArchiver stores a copy of each draw outside the database.
type ResultArchiver interface {
	ArchiveLottery(ctx context.Context, res *models.LotteryResult) error
}

// Deps are the collaborators a Service is built from.
type Deps struct {
	Events        EventStore
	Registrations RegistrationStore
	Speakers      SpeakerStore
	Actions       ActionLogger
	Oracle        MembershipOracle
	Notifier      Notifier
	Scheduler     Scheduler
	// Archiver is optional.
	Archiver ResultArchiver
	// AdminIDs is the static admin allow-list.
	AdminIDs []int64
	// DefaultWaitlistTimeoutHours applies when an event is created without one.
	DefaultWaitlistTimeoutHours int
	// Now and Shuffle default to time.Now and math/rand/v2.
	Now     func() time.Time
	Shuffle func(n int, swap func(i, j int))
}

// Service is the event-processing context shared by every operation. All mutating
// operations run one at a time under mu.
type Service struct {
	events        EventStore
	registrations RegistrationStore
	speakers      SpeakerStore
	actions       ActionLogger
	oracle        MembershipOracle
	notifier      Notifier
	scheduler     Scheduler
	archiver      ResultArchiver
	admins        map[int64]struct{}
	timeoutHours  int
	now           func() time.Time
	shuffle       func(n int, swap func(i, j int))
	logger        *zap.Logger

	mu sync.Mutex
}

// NewService creates the lottery service.
func NewService(deps Deps, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		events:        deps.Events,
		registrations: deps.Registrations,
		speakers:      deps.Speakers,
		actions:       deps.Actions,
		oracle:        deps.Oracle,
		notifier:      deps.Notifier,
		scheduler:     deps.Scheduler,
		archiver:      deps.Archiver,
		admins:        make(map[int64]struct{}, len(deps.AdminIDs)),
		timeoutHours:  deps.DefaultWaitlistTimeoutHours,
		now:           deps.Now,
		shuffle:       deps.Shuffle,
		logger:        logger,
	}
	for _, id := range deps.AdminIDs {
		s.admins[id] = struct{}{}
	}
	if s.timeoutHours <= 0 {
		s.timeoutHours = 24
	}
	if s.oracle == nil {
		s.oracle = noGroups{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.shuffle == nil {
		s.shuffle = rand.Shuffle
	}
	return s
}

// Identity is the acting chat user.
type Identity struct {
	UserID    int64
	ChatID    int64
	Username  string
	FirstName string
}

// IsAdmin reports whether userID is on the admin allow-list.
func (s *Service) IsAdmin(userID int64) bool {
	_, ok := s.admins[userID]
	return ok
}

func (s *Service) logAction(ctx context.Context, eventID *int64, actor *Identity, action, details string) {
	entry := &models.ActionLog{
		EventID:   eventID,
		Action:    action,
		Details:   details,
		Timestamp: s.now(),
	}
	if actor != nil {
		uid := actor.UserID
		entry.UserID = &uid
		entry.Username = actor.Username
	}
	if err := s.actions.Append(ctx, entry); err != nil {
		s.logger.Warn("append action log failed", zap.String("action", action), zap.Error(err))
	}
}

// notify delivers text and logs failures; delivery problems never abort a transition.
func (s *Service) notify(ctx context.Context, chatID int64, text string) {
	if err := s.notifier.Notify(ctx, chatID, text); err != nil {
		s.logger.Warn("notify failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// recipient returns the chat to message for a registration: the private chat if
// known, otherwise the user id (equal to the private chat id in Telegram).
func recipient(r *models.Registration) (int64, bool) {
	if r.ChatID != nil {
		return *r.ChatID, true
	}
	if r.UserID != nil {
		return *r.UserID, true
	}
	return 0, false
}

func eventRef(e *models.Event) *int64 {
	id := e.ID
	return &id
}

func intPtr(v int) *int { return &v }

func timePtr(t time.Time) *time.Time { return &t }
