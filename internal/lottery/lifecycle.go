package lottery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/homeconf/regbot/internal/messages"
	"github.com/homeconf/regbot/internal/models"
)

// ConfirmToken must be passed to CancelEvent.
const ConfirmToken = "confirm"

// CreateEventRequest describes a new event.
type CreateEventRequest struct {
	ChatID      int64
	TotalPlaces int
	// GroupRef is an optional speakers group id or @username, resolved once at creation.
	GroupRef                  string
	WaitlistTimeoutHours      int
	RegistrationDurationHours int
}

// CreateAndOpenRequest is the direct-open flow: no PRE_OPEN phase, duration given explicitly.
type CreateAndOpenRequest struct {
	ChatID               int64
	TotalPlaces          int
	GroupRef             string
	WaitlistTimeoutHours int
	Duration             time.Duration
}

// CreateEvent creates a PRE_OPEN event. Speakers may invite guests until it opens.
func (s *Service) CreateEvent(ctx context.Context, actor Identity, req CreateEventRequest) (*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.RegistrationDurationHours <= 0 {
		return nil, fmt.Errorf("%w: registration duration must be positive", ErrInvalidArgument)
	}
	e, err := s.createEvent(ctx, actor, req.ChatID, req.TotalPlaces, req.GroupRef, req.WaitlistTimeoutHours, req.RegistrationDurationHours)
	if err != nil {
		return nil, err
	}
	s.logAction(ctx, eventRef(e), &actor, models.ActionCreateEvent,
		fmt.Sprintf("places=%d duration_hours=%d timeout_hours=%d", e.TotalPlaces, e.RegistrationDurationHours, e.WaitlistTimeoutHours))
	return e, nil
}

// CreateAndOpen creates an event and opens it immediately for the given duration.
func (s *Service) CreateAndOpen(ctx context.Context, actor Identity, req CreateAndOpenRequest) (*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.Duration <= 0 {
		return nil, fmt.Errorf("%w: registration duration must be positive", ErrInvalidArgument)
	}
	hours := int(req.Duration.Round(time.Hour) / time.Hour)
	e, err := s.createEvent(ctx, actor, req.ChatID, req.TotalPlaces, req.GroupRef, req.WaitlistTimeoutHours, hours)
	if err != nil {
		return nil, err
	}
	s.logAction(ctx, eventRef(e), &actor, models.ActionCreateEvent,
		fmt.Sprintf("places=%d duration=%s timeout_hours=%d", e.TotalPlaces, req.Duration, e.WaitlistTimeoutHours))
	if err := s.openEvent(ctx, actor, e, req.Duration); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Service) createEvent(ctx context.Context, actor Identity, chatID int64, places int, groupRef string, timeoutHours, durationHours int) (*models.Event, error) {
	if !s.IsAdmin(actor.UserID) {
		return nil, ErrNotAdmin
	}
	if places < 0 {
		return nil, fmt.Errorf("%w: total places must not be negative", ErrInvalidArgument)
	}
	if timeoutHours < 0 {
		return nil, fmt.Errorf("%w: waitlist timeout must not be negative", ErrInvalidArgument)
	}
	if timeoutHours == 0 {
		timeoutHours = s.timeoutHours
	}

	active, err := s.events.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("get active event: %w", err)
	}
	if active != nil {
		return nil, ErrEventAlreadyActive
	}

	var groupID *int64
	if ref := strings.TrimSpace(groupRef); ref != "" {
		id, err := s.oracle.ResolveGroup(ctx, ref)
		if err != nil {
			s.logger.Warn("resolve speakers group failed", zap.String("group_ref", ref), zap.Error(err))
			return nil, ErrGroupUnreachable
		}
		groupID = &id
	}

	e := &models.Event{
		ChatID:                    chatID,
		Status:                    models.EventStatusPreOpen,
		TotalPlaces:               places,
		SpeakersGroupID:           groupID,
		WaitlistTimeoutHours:      timeoutHours,
		RegistrationDurationHours: durationHours,
	}
	if err := s.events.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	s.logger.Info("event created", zap.Int64("event_id", e.ID), zap.Int("total_places", places))
	return e, nil
}

// OpenEvent moves the PRE_OPEN event to OPEN and arms automatic closure.
func (s *Service) OpenEvent(ctx context.Context, actor Identity) (*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.IsAdmin(actor.UserID) {
		return nil, ErrNotAdmin
	}
	e, err := s.events.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("get active event: %w", err)
	}
	if e == nil || e.Status != models.EventStatusPreOpen {
		return nil, ErrNoPreOpenEvent
	}
	if err := s.openEvent(ctx, actor, e, time.Duration(e.RegistrationDurationHours)*time.Hour); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Service) openEvent(ctx context.Context, actor Identity, e *models.Event, d time.Duration) error {
	end := s.now().Add(d)
	if err := s.events.UpdateStatus(ctx, e.ID, models.EventStatusOpen, &end); err != nil {
		return fmt.Errorf("open event: %w", err)
	}
	e.Status = models.EventStatusOpen
	e.EndTime = &end
	if err := s.scheduler.ScheduleClose(ctx, e.ID, end); err != nil {
		// end_time is persisted; Recover re-arms the job on the next start.
		s.logger.Error("schedule automatic close failed", zap.Int64("event_id", e.ID), zap.Error(err))
	}
	s.logAction(ctx, eventRef(e), &actor, models.ActionOpenEvent, "end_time="+end.Format(time.RFC3339))
	s.logger.Info("registration opened", zap.Int64("event_id", e.ID), zap.Time("end_time", end))
	return nil
}

// CloseEvent closes the OPEN event ahead of its deadline and runs the draw synchronously.
func (s *Service) CloseEvent(ctx context.Context, actor Identity) (*models.LotteryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.IsAdmin(actor.UserID) {
		return nil, ErrNotAdmin
	}
	e, err := s.events.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("get active event: %w", err)
	}
	if e == nil || e.Status != models.EventStatusOpen {
		return nil, ErrNoOpenEvent
	}
	if err := s.scheduler.CancelClose(ctx, e.ID); err != nil {
		s.logger.Warn("cancel automatic close failed", zap.Int64("event_id", e.ID), zap.Error(err))
	}
	return s.closeEvent(ctx, e.ID, &actor)
}

// CloseByTimer is the scheduled closure callback. It closes an OPEN event and
// finishes a draw left incomplete by an earlier failure; otherwise it is a no-op.
func (s *Service) CloseByTimer(ctx context.Context, eventID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.closeEvent(ctx, eventID, nil)
	return err
}

// closeEvent re-reads the event. An OPEN event is moved to CLOSED and drawn; a
// CLOSED event whose draw never completed is drawn again over what is left.
func (s *Service) closeEvent(ctx context.Context, eventID int64, actor *Identity) (*models.LotteryResult, error) {
	e, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("get event %d: %w", eventID, err)
	}
	switch {
	case e == nil:
		s.logger.Info("close skipped, event not found", zap.Int64("event_id", eventID))
		return nil, nil
	case e.Status == models.EventStatusOpen:
		if err := s.events.UpdateStatus(ctx, e.ID, models.EventStatusClosed, e.EndTime); err != nil {
			return nil, fmt.Errorf("close event: %w", err)
		}
		e.Status = models.EventStatusClosed
		trigger := "timer"
		if actor != nil {
			trigger = "manual"
		}
		s.logAction(ctx, eventRef(e), actor, models.ActionCloseEvent, "trigger="+trigger)
	case e.DrawPending():
		s.logger.Warn("resuming unfinished lottery", zap.Int64("event_id", e.ID))
	default:
		s.logger.Info("close skipped, event not open", zap.Int64("event_id", eventID), zap.String("status", string(e.Status)))
		return nil, nil
	}

	res, err := s.runLottery(ctx, e)
	if err == nil {
		err = s.events.MarkDrawn(ctx, e.ID, res.DrawnAt)
	}
	if err != nil {
		if actor != nil {
			// A manual close has no timer behind it; arm one so the draw is retried.
			if serr := s.scheduler.ScheduleClose(ctx, e.ID, s.now()); serr != nil {
				s.logger.Error("schedule lottery retry failed", zap.Int64("event_id", e.ID), zap.Error(serr))
			}
		}
		return nil, fmt.Errorf("lottery for event %d: %w", e.ID, err)
	}
	e.LotteryDrawnAt = &res.DrawnAt
	if e.ChatID != 0 {
		if len(res.Winners) == 0 && len(res.Waitlisted) == 0 {
			s.notify(ctx, e.ChatID, messages.RegistrationClosedNoReg)
		} else {
			s.notify(ctx, e.ChatID, fmt.Sprintf(messages.RegistrationClosedSummary, len(res.Winners), len(res.Waitlisted)))
		}
	}
	return res, nil
}

// CancelEvent cancels the latest non-terminal event. Registrations are retained.
func (s *Service) CancelEvent(ctx context.Context, actor Identity, confirm string) (*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.IsAdmin(actor.UserID) {
		return nil, ErrNotAdmin
	}
	if strings.TrimSpace(strings.ToLower(confirm)) != ConfirmToken {
		return nil, ErrConfirmationRequired
	}
	e, err := s.events.Latest(ctx)
	if err != nil {
		return nil, fmt.Errorf("get latest event: %w", err)
	}
	if e == nil || e.Status.Terminal() {
		return nil, ErrNoEvent
	}
	if err := s.events.UpdateStatus(ctx, e.ID, models.EventStatusCancelled, nil); err != nil {
		return nil, fmt.Errorf("cancel event: %w", err)
	}
	prev := e.Status
	e.Status = models.EventStatusCancelled
	e.EndTime = nil
	if err := s.scheduler.CancelClose(ctx, e.ID); err != nil {
		s.logger.Warn("cancel automatic close failed", zap.Int64("event_id", e.ID), zap.Error(err))
	}
	invited, err := s.registrations.ListByStatus(ctx, e.ID, models.RegistrationStatusInvited)
	if err != nil {
		s.logger.Warn("list pending invitations failed", zap.Int64("event_id", e.ID), zap.Error(err))
	}
	for _, r := range invited {
		if err := s.scheduler.CancelInviteTimeout(ctx, r.ID); err != nil {
			s.logger.Warn("cancel invitation timeout failed", zap.Int64("registration_id", r.ID), zap.Error(err))
		}
	}
	s.logAction(ctx, eventRef(e), &actor, models.ActionResetEvent, "previous_status="+string(prev))
	s.logger.Info("event cancelled", zap.Int64("event_id", e.ID), zap.String("previous_status", string(prev)))
	return e, nil
}

// Recover re-primes deadlines from persisted timestamps after a restart: overdue
// closures and expiries run now, future ones are re-armed.
func (s *Service) Recover(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	open, err := s.events.ListByStatus(ctx, models.EventStatusOpen)
	if err != nil {
		return fmt.Errorf("list open events: %w", err)
	}
	for _, e := range open {
		switch {
		case e.EndTime == nil:
			s.logger.Warn("open event has no end time, waiting for manual close", zap.Int64("event_id", e.ID))
		case !e.EndTime.After(now):
			s.logger.Info("event expired while down, closing now", zap.Int64("event_id", e.ID))
			if _, err := s.closeEvent(ctx, e.ID, nil); err != nil {
				s.logger.Error("recover close failed", zap.Int64("event_id", e.ID), zap.Error(err))
			}
		default:
			if err := s.scheduler.ScheduleClose(ctx, e.ID, *e.EndTime); err != nil {
				s.logger.Error("re-arm close failed", zap.Int64("event_id", e.ID), zap.Error(err))
			}
		}
	}

	closed, err := s.events.ListByStatus(ctx, models.EventStatusClosed)
	if err != nil {
		return fmt.Errorf("list closed events: %w", err)
	}
	promoting := make(map[int64]bool, len(closed))
	for _, e := range closed {
		if e.DrawPending() {
			if _, err := s.closeEvent(ctx, e.ID, nil); err != nil {
				s.logger.Error("recover lottery failed", zap.Int64("event_id", e.ID), zap.Error(err))
			}
		}
		promoting[e.ID] = true
	}

	invited, err := s.registrations.ListAllByStatus(ctx, models.RegistrationStatusInvited)
	if err != nil {
		return fmt.Errorf("list invited registrations: %w", err)
	}
	for _, r := range invited {
		// Invitations of cancelled events stay frozen, as CancelEvent left them.
		if !promoting[r.EventID] {
			continue
		}
		if r.ExpiresAt == nil || !r.ExpiresAt.After(now) {
			if err := s.expireInvitation(ctx, r.ID); err != nil {
				s.logger.Error("recover expiry failed", zap.Int64("registration_id", r.ID), zap.Error(err))
			}
			continue
		}
		if err := s.scheduler.ScheduleInviteTimeout(ctx, r.ID, *r.ExpiresAt); err != nil {
			s.logger.Error("re-arm invitation timeout failed", zap.Int64("registration_id", r.ID), zap.Error(err))
		}
	}
	s.logger.Info("deadlines recovered", zap.Int("open_events", len(open)), zap.Int("pending_invitations", len(invited)))
	return nil
}
