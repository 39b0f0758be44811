package lottery

import (
	"context"

	"go.uber.org/zap"

	"github.com/homeconf/regbot/internal/models"
)

// isSpeaker resolves speaker status by dynamic group membership or by the static
// list (case-insensitive username). Oracle and store failures count as "not a speaker".
func (s *Service) isSpeaker(ctx context.Context, e *models.Event, userID int64, username string) bool {
	if e.SpeakersGroupID != nil && userID != 0 {
		member, err := s.oracle.IsMember(ctx, *e.SpeakersGroupID, userID)
		if err != nil {
			s.logger.Warn("speaker group membership check failed",
				zap.Int64("event_id", e.ID), zap.Int64("user_id", userID), zap.Error(err))
		} else if member {
			return true
		}
	}
	return s.isListedSpeaker(ctx, e, username)
}

func (s *Service) isListedSpeaker(ctx context.Context, e *models.Event, username string) bool {
	name := models.NormalizeUsername(username)
	if name == "" {
		return false
	}
	listed, err := s.speakers.Exists(ctx, e.ID, name)
	if err != nil {
		s.logger.Warn("speaker list lookup failed", zap.Int64("event_id", e.ID), zap.Error(err))
		return false
	}
	return listed
}

// guestRegistration returns the active guest place bound to the candidate: the
// claimed one by user id, else an unclaimed reservation by username.
func (s *Service) guestRegistration(ctx context.Context, e *models.Event, userID int64, username string) (*models.Registration, error) {
	if userID != 0 {
		reg, err := s.registrations.GetActiveByUser(ctx, e.ID, userID)
		if err != nil {
			return nil, err
		}
		if reg != nil && reg.IsGuest() {
			return reg, nil
		}
	}
	if name := models.NormalizeUsername(username); name != "" {
		reg, err := s.registrations.FindActiveByUsername(ctx, e.ID, name)
		if err != nil {
			return nil, err
		}
		if reg != nil && reg.IsGuest() && reg.UserID == nil {
			return reg, nil
		}
	}
	return nil, nil
}

// speakerCount is the dynamic group size minus the bot account plus the static
// list. A failing source contributes zero.
func (s *Service) speakerCount(ctx context.Context, e *models.Event) int {
	count := 0
	if e.SpeakersGroupID != nil {
		size, err := s.oracle.GroupSize(ctx, *e.SpeakersGroupID)
		if err != nil {
			s.logger.Warn("speaker group size unavailable", zap.Int64("event_id", e.ID), zap.Error(err))
		} else {
			if bot := s.oracle.BotUserID(); bot != 0 && size > 0 {
				present, err := s.oracle.IsMember(ctx, *e.SpeakersGroupID, bot)
				if err == nil && present {
					size--
				}
			}
			count += size
		}
	}
	listed, err := s.speakers.Count(ctx, e.ID)
	if err != nil {
		s.logger.Warn("speaker list count unavailable", zap.Int64("event_id", e.ID), zap.Error(err))
	} else {
		count += listed
	}
	return count
}

// IsSpeaker reports whether the identity holds a speaker exemption for the latest event.
func (s *Service) IsSpeaker(ctx context.Context, who Identity) (bool, error) {
	e, err := s.events.Latest(ctx)
	if err != nil {
		return false, err
	}
	if e == nil {
		return false, nil
	}
	return s.isSpeaker(ctx, e, who.UserID, who.Username), nil
}
