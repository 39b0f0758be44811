package models

import (
	"fmt"
	"time"
)

// EventStatus is the lifecycle state of a registration campaign.
type EventStatus string

const (
	EventStatusPreOpen   EventStatus = "PRE_OPEN"
	EventStatusOpen      EventStatus = "OPEN"
	EventStatusClosed    EventStatus = "CLOSED"
	EventStatusCancelled EventStatus = "CANCELLED"
)

// ParseEventStatus converts a stored value into an EventStatus.
func ParseEventStatus(s string) (EventStatus, error) {
	switch st := EventStatus(s); st {
	case EventStatusPreOpen, EventStatusOpen, EventStatusClosed, EventStatusCancelled:
		return st, nil
	default:
		return "", fmt.Errorf("unknown event status %q", s)
	}
}

// Active reports whether the event still accepts lifecycle transitions other than cancel.
// At most one event may be active at a time.
func (s EventStatus) Active() bool {
	return s == EventStatusPreOpen || s == EventStatusOpen
}

// Terminal reports whether no further transition is possible.
func (s EventStatus) Terminal() bool {
	return s == EventStatusCancelled
}

// Event is one registration campaign.
type Event struct {
	ID                        int64       `json:"id"`
	ChatID                    int64       `json:"chat_id"`
	Status                    EventStatus `json:"status"`
	TotalPlaces               int         `json:"total_places"`
	SpeakersGroupID           *int64      `json:"speakers_group_id,omitempty"`
	WaitlistTimeoutHours      int         `json:"waitlist_timeout_hours"`
	RegistrationDurationHours int         `json:"registration_duration_hours"`
	EndTime                   *time.Time  `json:"end_time,omitempty"`
	// LotteryDrawnAt is set when the closure draw has completed.
	LotteryDrawnAt *time.Time `json:"lottery_drawn_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// DrawPending reports whether the event is CLOSED but its draw has not completed.
func (e *Event) DrawPending() bool {
	return e.Status == EventStatusClosed && e.LotteryDrawnAt == nil
}

// WaitlistTimeout returns the invitation expiry window.
func (e *Event) WaitlistTimeout() time.Duration {
	return time.Duration(e.WaitlistTimeoutHours) * time.Hour
}
