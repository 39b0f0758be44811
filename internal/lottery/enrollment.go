package lottery

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/homeconf/regbot/internal/messages"
	"github.com/homeconf/regbot/internal/models"
)

// Callback data prefixes used on the unregister confirmation buttons.
const (
	UnregisterYesPrefix = "uyes_"
	UnregisterNoPrefix  = "uno_"
)

// RegisterOutcome tells the caller which path a registration took.
type RegisterOutcome int

const (
	Registered RegisterOutcome = iota + 1
	Waitlisted
	GuestIdentified
)

// RegisterResult is returned by Register.
type RegisterResult struct {
	Outcome RegisterOutcome
	// Position is the 1-based waitlist position for Waitlisted.
	Position     int
	Registration *models.Registration
}

// Register enrolls who in the latest event: into the lottery pool while OPEN, at
// the tail of the waitlist once CLOSED. Unclaimed guest places are bound to the
// caller by username.
func (s *Service) Register(ctx context.Context, who Identity) (*RegisterResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.events.Latest(ctx)
	if err != nil {
		return nil, fmt.Errorf("get latest event: %w", err)
	}
	if e == nil || e.Status == models.EventStatusCancelled {
		return nil, ErrNoEvent
	}
	if s.isSpeaker(ctx, e, who.UserID, who.Username) {
		return nil, ErrAlreadySpeaker
	}

	guest, err := s.guestRegistration(ctx, e, who.UserID, who.Username)
	if err != nil {
		return nil, fmt.Errorf("lookup guest place: %w", err)
	}
	if guest != nil {
		if guest.UserID != nil {
			return nil, ErrGuestHasPlace
		}
		if err := s.registrations.ClaimGuest(ctx, guest.ID, who.UserID, who.ChatID, who.FirstName); err != nil {
			return nil, fmt.Errorf("claim guest place: %w", err)
		}
		guest.UserID = &who.UserID
		guest.ChatID = &who.ChatID
		guest.FirstName = who.FirstName
		s.logAction(ctx, eventRef(e), &who, models.ActionGuestClaim, fmt.Sprintf("registration=%d", guest.ID))
		return &RegisterResult{Outcome: GuestIdentified, Registration: guest}, nil
	}

	existing, err := s.registrations.GetActiveByUser(ctx, e.ID, who.UserID)
	if err != nil {
		return nil, fmt.Errorf("lookup registration: %w", err)
	}
	if existing != nil {
		return nil, ErrAlreadyRegistered
	}

	reg := &models.Registration{
		EventID:    e.ID,
		UserID:     &who.UserID,
		ChatID:     &who.ChatID,
		Username:   strings.TrimPrefix(who.Username, "@"),
		FirstName:  who.FirstName,
		SignupTime: s.now(),
	}
	res := &RegisterResult{Registration: reg}
	var confirmation, action string
	switch e.Status {
	case models.EventStatusPreOpen:
		return nil, ErrRegistrationNotOpen
	case models.EventStatusOpen:
		reg.Status = models.RegistrationStatusRegistered
		res.Outcome = Registered
		confirmation = messages.RegisterSuccessLottery
		action = models.ActionRegister
	case models.EventStatusClosed:
		top, ok, err := s.registrations.MaxWaitlistPriority(ctx, e.ID)
		if err != nil {
			return nil, fmt.Errorf("waitlist tail: %w", err)
		}
		next := 0
		if ok {
			next = top + 1
		}
		reg.Status = models.RegistrationStatusWaitlist
		reg.Priority = intPtr(next)
		ahead, err := s.registrations.CountByStatus(ctx, e.ID, models.RegistrationStatusWaitlist)
		if err != nil {
			return nil, fmt.Errorf("count waitlist: %w", err)
		}
		res.Outcome = Waitlisted
		res.Position = ahead + 1
		confirmation = fmt.Sprintf(messages.RegisterWaitlist, res.Position)
		action = models.ActionJoinWaitlist
	default:
		return nil, ErrNoEvent
	}

	if err := s.registrations.Create(ctx, reg); err != nil {
		return nil, fmt.Errorf("create registration: %w", err)
	}
	// A registrant the bot cannot message would never learn about a won place.
	if err := s.notifier.Notify(ctx, who.ChatID, confirmation); err != nil {
		s.logger.Info("registrant unreachable, rolling back", zap.Int64("user_id", who.UserID), zap.Error(err))
		if derr := s.registrations.Delete(ctx, reg.ID); derr != nil {
			s.logger.Error("rollback registration failed", zap.Int64("registration_id", reg.ID), zap.Error(derr))
		}
		return nil, ErrUnreachable
	}
	s.logAction(ctx, eventRef(e), &who, action, fmt.Sprintf("registration=%d", reg.ID))
	return res, nil
}

// UnregisterResult is returned by Unregister.
type UnregisterResult struct {
	// NeedsConfirmation is set when the caller holds a place after closure and
	// must confirm through ConfirmUnregister.
	NeedsConfirmation bool
	RegistrationID    int64
}

// Unregister withdraws who from the latest event. Giving up a held place after
// closure requires confirmed, otherwise NeedsConfirmation is returned.
func (s *Service) Unregister(ctx context.Context, who Identity, confirmed bool) (*UnregisterResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.events.Latest(ctx)
	if err != nil {
		return nil, fmt.Errorf("get latest event: %w", err)
	}
	if e == nil {
		return nil, ErrNotRegistered
	}
	if s.isSpeaker(ctx, e, who.UserID, who.Username) {
		return nil, ErrSpeakerCannotUnregister
	}
	reg, err := s.registrations.GetActiveByUser(ctx, e.ID, who.UserID)
	if err != nil {
		return nil, fmt.Errorf("lookup registration: %w", err)
	}
	if reg == nil || reg.Status == models.RegistrationStatusExpired {
		return nil, ErrNotRegistered
	}
	if e.Status == models.EventStatusClosed && reg.Status.HoldsPlace() && !confirmed {
		return &UnregisterResult{NeedsConfirmation: true, RegistrationID: reg.ID}, nil
	}
	if err := s.unregister(ctx, e, reg, who); err != nil {
		return nil, err
	}
	return &UnregisterResult{RegistrationID: reg.ID}, nil
}

// ConfirmUnregister completes an unregister that needed confirmation.
func (s *Service) ConfirmUnregister(ctx context.Context, who Identity, registrationID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, err := s.registrations.GetByID(ctx, registrationID)
	if err != nil {
		return fmt.Errorf("get registration %d: %w", registrationID, err)
	}
	if reg == nil || !reg.BelongsTo(who.UserID) ||
		reg.Status == models.RegistrationStatusUnregistered || reg.Status == models.RegistrationStatusExpired {
		return ErrNotRegistered
	}
	e, err := s.events.GetByID(ctx, reg.EventID)
	if err != nil {
		return fmt.Errorf("get event %d: %w", reg.EventID, err)
	}
	if e == nil {
		return ErrNotRegistered
	}
	return s.unregister(ctx, e, reg, who)
}

func (s *Service) unregister(ctx context.Context, e *models.Event, reg *models.Registration, who Identity) error {
	prev := reg.Status
	if err := s.registrations.UpdateStatus(ctx, reg.ID, models.RegistrationStatusUnregistered, models.StatusChange{}); err != nil {
		return fmt.Errorf("unregister: %w", err)
	}
	switch prev {
	case models.RegistrationStatusInvited:
		if err := s.scheduler.CancelInviteTimeout(ctx, reg.ID); err != nil {
			s.logger.Warn("cancel invitation timeout failed", zap.Int64("registration_id", reg.ID), zap.Error(err))
		}
	case models.RegistrationStatusWaitlist:
		if reg.Priority != nil {
			if err := s.registrations.CloseWaitlistGap(ctx, e.ID, *reg.Priority); err != nil {
				return fmt.Errorf("close waitlist gap: %w", err)
			}
		}
	}
	s.logAction(ctx, eventRef(e), &who, models.ActionUnregister,
		fmt.Sprintf("registration=%d previous_status=%s", reg.ID, prev))
	if prev.HoldsPlace() {
		if _, err := s.inviteNext(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// GuestOutcome tells the caller which path a guest invitation took.
type GuestOutcome int

const (
	GuestInvited GuestOutcome = iota + 1
	GuestUpgraded
)

// InviteGuest lets a speaker reserve one guest place by username while the event
// is PRE_OPEN. A matching pending registration is upgraded in place.
func (s *Service) InviteGuest(ctx context.Context, speaker Identity, username string) (GuestOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.events.GetActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("get active event: %w", err)
	}
	if e == nil {
		return 0, ErrNoEvent
	}
	if !s.isSpeaker(ctx, e, speaker.UserID, speaker.Username) {
		return 0, ErrNotSpeaker
	}
	if e.Status != models.EventStatusPreOpen {
		return 0, ErrInviteOnlyPreOpen
	}

	display := strings.TrimPrefix(strings.TrimSpace(username), "@")
	name := models.NormalizeUsername(display)
	if name == "" {
		return 0, fmt.Errorf("%w: guest username is empty", ErrInvalidArgument)
	}
	if name == models.NormalizeUsername(speaker.Username) {
		return 0, ErrAlreadySpeaker
	}
	if s.isListedSpeaker(ctx, e, name) {
		return 0, ErrGuestIsSpeaker
	}

	sponsored, err := s.registrations.FindActiveGuestOf(ctx, e.ID, speaker.UserID)
	if err != nil {
		return 0, fmt.Errorf("lookup sponsored guest: %w", err)
	}
	if sponsored != nil {
		return 0, ErrAlreadyInvitedGuest
	}

	existing, err := s.registrations.FindActiveByUsername(ctx, e.ID, name)
	if err != nil {
		return 0, fmt.Errorf("lookup invitee: %w", err)
	}
	if existing != nil {
		switch {
		case existing.IsGuest():
			return 0, ErrGuestAlreadyGuest
		case existing.Status == models.RegistrationStatusAccepted:
			return 0, ErrGuestAlreadyHasSpot
		}
		if err := s.registrations.MakeGuest(ctx, existing.ID, speaker.UserID); err != nil {
			return 0, fmt.Errorf("upgrade to guest: %w", err)
		}
		if chatID, ok := recipient(existing); ok {
			s.notify(ctx, chatID, fmt.Sprintf(messages.GuestInvitedNotify, sponsorName(speaker)))
		}
		s.logAction(ctx, eventRef(e), &speaker, models.ActionInviteGuest,
			fmt.Sprintf("guest=@%s registration=%d upgraded=true", display, existing.ID))
		return GuestUpgraded, nil
	}

	sponsor := speaker.UserID
	reg := &models.Registration{
		EventID:       e.ID,
		Username:      display,
		Status:        models.RegistrationStatusAccepted,
		SignupTime:    s.now(),
		GuestOfUserID: &sponsor,
	}
	if err := s.registrations.Create(ctx, reg); err != nil {
		return 0, fmt.Errorf("create guest place: %w", err)
	}
	s.logAction(ctx, eventRef(e), &speaker, models.ActionInviteGuest,
		fmt.Sprintf("guest=@%s registration=%d", display, reg.ID))
	return GuestInvited, nil
}

func sponsorName(who Identity) string {
	if who.Username != "" {
		return "@" + strings.TrimPrefix(who.Username, "@")
	}
	if who.FirstName != "" {
		return who.FirstName
	}
	return strconv.FormatInt(who.UserID, 10)
}
