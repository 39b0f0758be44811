package lottery

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/homeconf/regbot/internal/messages"
	"github.com/homeconf/regbot/internal/models"
)

// runLottery allocates general places among the REGISTERED pool of a closed
// event. Losers are put in front of any pre-existing waitlist, and places left
// over after the draw go to the waitlist head through the promotion engine.
// Rerunning it after a partial failure only fills the places still free.
func (s *Service) runLottery(ctx context.Context, e *models.Event) (*models.LotteryResult, error) {
	res := &models.LotteryResult{
		EventID:     e.ID,
		DrawnAt:     s.now(),
		TotalPlaces: e.TotalPlaces,
	}

	guests, err := s.registrations.CountAcceptedGuests(ctx, e.ID)
	if err != nil {
		return nil, fmt.Errorf("count guests: %w", err)
	}
	res.GuestCount = guests
	res.SpeakerCount = s.speakerCount(ctx, e)
	res.PlacesAvailable = max(0, e.TotalPlaces-res.SpeakerCount-res.GuestCount)

	taken, err := s.generalTaken(ctx, e.ID, guests)
	if err != nil {
		return nil, err
	}
	free := max(0, res.PlacesAvailable-taken)

	pool, err := s.registrations.ListByStatus(ctx, e.ID, models.RegistrationStatusRegistered)
	if err != nil {
		return nil, fmt.Errorf("list pool: %w", err)
	}
	if len(pool) == 0 {
		s.logger.Info("lottery pool empty", zap.Int64("event_id", e.ID))
	}

	// Speakers who registered anyway keep their exemption and are left out of the draw.
	candidates := make([]models.Registration, 0, len(pool))
	for _, r := range pool {
		var uid int64
		if r.UserID != nil {
			uid = *r.UserID
		}
		if s.isSpeaker(ctx, e, uid, r.Username) {
			res.DroppedSpeakers = append(res.DroppedSpeakers, r.ID)
			s.logger.Info("speaker removed from lottery pool", zap.Int64("registration_id", r.ID))
			continue
		}
		candidates = append(candidates, r)
	}

	s.shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})

	n := min(free, len(candidates))
	winners, losers := candidates[:n], candidates[n:]

	for i := range winners {
		r := &winners[i]
		if err := s.registrations.UpdateStatus(ctx, r.ID, models.RegistrationStatusAccepted, models.StatusChange{}); err != nil {
			return nil, fmt.Errorf("accept winner %d: %w", r.ID, err)
		}
		res.Winners = append(res.Winners, r.ID)
		if chatID, ok := recipient(r); ok {
			s.notify(ctx, chatID, messages.LotteryWinner)
		}
	}

	if len(losers) > 0 {
		if err := s.registrations.ShiftWaitlist(ctx, e.ID, len(losers)); err != nil {
			return nil, fmt.Errorf("shift waitlist: %w", err)
		}
		for i := range losers {
			r := &losers[i]
			change := models.StatusChange{Priority: intPtr(i)}
			if err := s.registrations.UpdateStatus(ctx, r.ID, models.RegistrationStatusWaitlist, change); err != nil {
				return nil, fmt.Errorf("waitlist loser %d: %w", r.ID, err)
			}
			res.Waitlisted = append(res.Waitlisted, r.ID)
			if chatID, ok := recipient(r); ok {
				s.notify(ctx, chatID, fmt.Sprintf(messages.WaitlistNotification, i+1))
			}
		}
	}

	for leftover := free - len(winners); leftover > 0; leftover-- {
		invited, err := s.inviteNext(ctx, e)
		if err != nil {
			return nil, fmt.Errorf("promote leftover: %w", err)
		}
		if invited == nil {
			break
		}
		res.PromotedLeftover++
	}

	s.logAction(ctx, eventRef(e), nil, models.ActionLotteryDraw,
		fmt.Sprintf("pool=%d available=%d winners=%d waitlisted=%d dropped_speakers=%d promoted=%d",
			len(pool), res.PlacesAvailable, len(res.Winners), len(res.Waitlisted), len(res.DroppedSpeakers), res.PromotedLeftover))
	s.logger.Info("lottery drawn",
		zap.Int64("event_id", e.ID),
		zap.Int("places_available", res.PlacesAvailable),
		zap.Int("winners", len(res.Winners)),
		zap.Int("waitlisted", len(res.Waitlisted)),
		zap.Int("promoted", res.PromotedLeftover),
	)
	s.archive(ctx, res)
	return res, nil
}

// generalTaken counts general places already held: non-guest ACCEPTED and INVITED.
func (s *Service) generalTaken(ctx context.Context, eventID int64, guests int) (int, error) {
	accepted, err := s.registrations.CountByStatus(ctx, eventID, models.RegistrationStatusAccepted)
	if err != nil {
		return 0, fmt.Errorf("count accepted: %w", err)
	}
	invited, err := s.registrations.CountByStatus(ctx, eventID, models.RegistrationStatusInvited)
	if err != nil {
		return 0, fmt.Errorf("count invited: %w", err)
	}
	return max(0, accepted-guests) + invited, nil
}

func (s *Service) archive(ctx context.Context, res *models.LotteryResult) {
	if s.archiver == nil {
		return
	}
	if err := s.archiver.ArchiveLottery(ctx, res); err != nil {
		s.logger.Warn("archive lottery result failed", zap.Int64("event_id", res.EventID), zap.Error(err))
	}
}
