package lottery

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/homeconf/regbot/internal/models"
)

// StatusView is a participant's view of their own registration.
type StatusView struct {
	Speaker bool
	Status  models.RegistrationStatus
	// WaitlistPosition is 1-based and only set for WAITLIST.
	WaitlistPosition int
}

// Status reports who's standing in the latest event.
func (s *Service) Status(ctx context.Context, who Identity) (*StatusView, error) {
	e, err := s.events.Latest(ctx)
	if err != nil {
		return nil, fmt.Errorf("get latest event: %w", err)
	}
	if e == nil {
		return nil, ErrNotRegistered
	}
	if s.isSpeaker(ctx, e, who.UserID, who.Username) {
		return &StatusView{Speaker: true}, nil
	}
	reg, err := s.registrations.GetLatestByUser(ctx, e.ID, who.UserID)
	if err != nil {
		return nil, fmt.Errorf("lookup registration: %w", err)
	}
	if reg == nil {
		return nil, ErrNotRegistered
	}
	view := &StatusView{Status: reg.Status}
	if reg.Status == models.RegistrationStatusWaitlist && reg.Priority != nil {
		ahead, err := s.registrations.CountWaitlistAhead(ctx, e.ID, *reg.Priority)
		if err != nil {
			return nil, fmt.Errorf("count waitlist ahead: %w", err)
		}
		view.WaitlistPosition = ahead + 1
	}
	return view, nil
}

// Summary is the public occupancy picture of an event.
type Summary struct {
	Event        *models.Event `json:"event"`
	VIPTaken     int           `json:"vip_taken"`
	GeneralTotal int           `json:"general_total"`
	GeneralTaken int           `json:"general_taken"`
	Pool         int           `json:"pool"`
	Waitlist     int           `json:"waitlist"`
	Pending      int           `json:"pending"`
}

// Summary computes occupancy for the latest event.
func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	e, err := s.events.Latest(ctx)
	if err != nil {
		return nil, fmt.Errorf("get latest event: %w", err)
	}
	if e == nil {
		return nil, ErrNoEvent
	}
	guests, err := s.registrations.CountAcceptedGuests(ctx, e.ID)
	if err != nil {
		return nil, fmt.Errorf("count guests: %w", err)
	}
	counts := make(map[models.RegistrationStatus]int, 4)
	for _, st := range []models.RegistrationStatus{
		models.RegistrationStatusRegistered,
		models.RegistrationStatusWaitlist,
		models.RegistrationStatusInvited,
		models.RegistrationStatusAccepted,
	} {
		n, err := s.registrations.CountByStatus(ctx, e.ID, st)
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", st, err)
		}
		counts[st] = n
	}

	vip := s.speakerCount(ctx, e) + guests
	return &Summary{
		Event:        e,
		VIPTaken:     vip,
		GeneralTotal: max(0, e.TotalPlaces-vip),
		GeneralTaken: counts[models.RegistrationStatusAccepted] - guests + counts[models.RegistrationStatusInvited],
		Pool:         counts[models.RegistrationStatusRegistered],
		Waitlist:     counts[models.RegistrationStatusWaitlist],
		Pending:      counts[models.RegistrationStatusInvited],
	}, nil
}

// ImportSpeakers adds usernames to the static speaker list of an event; eventID
// nil means the latest event. Blank and already listed names are skipped.
func (s *Service) ImportSpeakers(ctx context.Context, eventID *int64, usernames []string) (added, skipped int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var e *models.Event
	if eventID != nil {
		e, err = s.events.GetByID(ctx, *eventID)
	} else {
		e, err = s.events.Latest(ctx)
	}
	if err != nil {
		return 0, 0, fmt.Errorf("get event: %w", err)
	}
	if e == nil || e.Status.Terminal() {
		return 0, 0, ErrNoEvent
	}
	for _, raw := range usernames {
		name := models.NormalizeUsername(raw)
		if name == "" {
			skipped++
			continue
		}
		ok, err := s.speakers.Add(ctx, e.ID, name)
		if err != nil {
			return added, skipped, fmt.Errorf("add speaker %q: %w", name, err)
		}
		if !ok {
			skipped++
			continue
		}
		added++
	}
	s.logAction(ctx, eventRef(e), nil, models.ActionImportSpeakers, fmt.Sprintf("added=%d skipped=%d", added, skipped))
	s.logger.Info("speakers imported", zap.Int64("event_id", e.ID), zap.Int("added", added), zap.Int("skipped", skipped))
	return added, skipped, nil
}
