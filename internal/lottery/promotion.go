package lottery

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/homeconf/regbot/internal/messages"
	"github.com/homeconf/regbot/internal/models"
)

// Callback data prefixes used on invitation buttons.
const (
	AcceptPrefix  = "acc_"
	DeclinePrefix = "dec_"
)

// inviteNext offers a place to the lowest-priority WAITLIST entry. It returns nil
// when the waitlist is empty or the event no longer takes promotions.
func (s *Service) inviteNext(ctx context.Context, e *models.Event) (*models.Registration, error) {
	if e.Status != models.EventStatusClosed {
		return nil, nil
	}
	waiting, err := s.registrations.ListByStatus(ctx, e.ID, models.RegistrationStatusWaitlist)
	if err != nil {
		return nil, fmt.Errorf("list waitlist: %w", err)
	}
	if len(waiting) == 0 {
		return nil, nil
	}
	next := waiting[0]

	hours := e.WaitlistTimeoutHours
	if hours <= 0 {
		hours = s.timeoutHours
	}
	now := s.now()
	expires := now.Add(time.Duration(hours) * time.Hour)
	change := models.StatusChange{Priority: next.Priority, NotifiedAt: timePtr(now), ExpiresAt: timePtr(expires)}
	if err := s.registrations.UpdateStatus(ctx, next.ID, models.RegistrationStatusInvited, change); err != nil {
		return nil, fmt.Errorf("invite registration %d: %w", next.ID, err)
	}
	next.Status = models.RegistrationStatusInvited
	next.NotifiedAt = change.NotifiedAt
	next.ExpiresAt = change.ExpiresAt

	if err := s.scheduler.ScheduleInviteTimeout(ctx, next.ID, expires); err != nil {
		s.logger.Error("schedule invitation timeout failed", zap.Int64("registration_id", next.ID), zap.Error(err))
	}
	if chatID, ok := recipient(&next); ok {
		id := strconv.FormatInt(next.ID, 10)
		buttons := []Button{
			{Label: messages.ButtonAccept, Data: AcceptPrefix + id},
			{Label: messages.ButtonDecline, Data: DeclinePrefix + id},
		}
		if err := s.notifier.Prompt(ctx, chatID, fmt.Sprintf(messages.SpotOpenedInvite, hours), buttons); err != nil {
			s.logger.Warn("send invitation failed", zap.Int64("registration_id", next.ID), zap.Error(err))
		}
	}
	s.logAction(ctx, eventRef(e), nil, models.ActionInviteNext,
		fmt.Sprintf("registration=%d expires_at=%s", next.ID, expires.Format(time.RFC3339)))
	s.logger.Info("waitlist invitation sent", zap.Int64("event_id", e.ID), zap.Int64("registration_id", next.ID))
	return &next, nil
}

// pendingInvitation loads registration id and checks it is an open invitation owned by who.
func (s *Service) pendingInvitation(ctx context.Context, who Identity, id int64) (*models.Registration, error) {
	reg, err := s.registrations.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get registration %d: %w", id, err)
	}
	if reg == nil || reg.Status != models.RegistrationStatusInvited || !reg.BelongsTo(who.UserID) {
		return nil, ErrInvalidInvitation
	}
	return reg, nil
}

// AcceptInvitation turns an open invitation into a place. A second call fails
// with ErrInvalidInvitation and changes nothing.
func (s *Service) AcceptInvitation(ctx context.Context, who Identity, registrationID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, err := s.pendingInvitation(ctx, who, registrationID)
	if err != nil {
		return err
	}
	if err := s.registrations.UpdateStatus(ctx, reg.ID, models.RegistrationStatusAccepted, models.StatusChange{}); err != nil {
		return fmt.Errorf("accept invitation: %w", err)
	}
	if err := s.scheduler.CancelInviteTimeout(ctx, reg.ID); err != nil {
		s.logger.Warn("cancel invitation timeout failed", zap.Int64("registration_id", reg.ID), zap.Error(err))
	}
	eid := reg.EventID
	s.logAction(ctx, &eid, &who, models.ActionAcceptInvite, fmt.Sprintf("registration=%d", reg.ID))
	return nil
}

// DeclineInvitation gives the place back and invites the next person in line.
func (s *Service) DeclineInvitation(ctx context.Context, who Identity, registrationID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, err := s.pendingInvitation(ctx, who, registrationID)
	if err != nil {
		return err
	}
	if err := s.registrations.UpdateStatus(ctx, reg.ID, models.RegistrationStatusUnregistered, models.StatusChange{}); err != nil {
		return fmt.Errorf("decline invitation: %w", err)
	}
	if err := s.scheduler.CancelInviteTimeout(ctx, reg.ID); err != nil {
		s.logger.Warn("cancel invitation timeout failed", zap.Int64("registration_id", reg.ID), zap.Error(err))
	}
	eid := reg.EventID
	s.logAction(ctx, &eid, &who, models.ActionDeclineInvite, fmt.Sprintf("registration=%d", reg.ID))
	return s.promoteAfter(ctx, reg.EventID)
}

// ExpireInvitation is the invitation timeout callback. Anything other than a
// still-INVITED registration is left alone.
func (s *Service) ExpireInvitation(ctx context.Context, registrationID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.expireInvitation(ctx, registrationID)
}

func (s *Service) expireInvitation(ctx context.Context, registrationID int64) error {
	reg, err := s.registrations.GetByID(ctx, registrationID)
	if err != nil {
		return fmt.Errorf("get registration %d: %w", registrationID, err)
	}
	if reg == nil || reg.Status != models.RegistrationStatusInvited {
		s.logger.Debug("stale invitation timeout ignored", zap.Int64("registration_id", registrationID))
		return nil
	}
	if err := s.registrations.UpdateStatus(ctx, reg.ID, models.RegistrationStatusExpired, models.StatusChange{}); err != nil {
		return fmt.Errorf("expire invitation: %w", err)
	}
	if chatID, ok := recipient(reg); ok {
		s.notify(ctx, chatID, messages.InvitationExpired)
	}
	eid := reg.EventID
	s.logAction(ctx, &eid, nil, models.ActionInviteExpired, fmt.Sprintf("registration=%d", reg.ID))
	return s.promoteAfter(ctx, reg.EventID)
}

// promoteAfter runs one invite_next for the event that just lost a place.
func (s *Service) promoteAfter(ctx context.Context, eventID int64) error {
	e, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return fmt.Errorf("get event %d: %w", eventID, err)
	}
	if e == nil {
		return nil
	}
	_, err = s.inviteNext(ctx, e)
	return err
}
