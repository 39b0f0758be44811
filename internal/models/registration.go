package models

import (
	"fmt"
	"time"
)

// RegistrationStatus is the state of one claim against an event.
type RegistrationStatus string

const (
	RegistrationStatusRegistered   RegistrationStatus = "REGISTERED"
	RegistrationStatusWaitlist     RegistrationStatus = "WAITLIST"
	RegistrationStatusInvited      RegistrationStatus = "INVITED"
	RegistrationStatusAccepted     RegistrationStatus = "ACCEPTED"
	RegistrationStatusUnregistered RegistrationStatus = "UNREGISTERED"
	RegistrationStatusExpired      RegistrationStatus = "EXPIRED"
)

// ParseRegistrationStatus converts a stored value into a RegistrationStatus.
func ParseRegistrationStatus(s string) (RegistrationStatus, error) {
	switch st := RegistrationStatus(s); st {
	case RegistrationStatusRegistered, RegistrationStatusWaitlist, RegistrationStatusInvited,
		RegistrationStatusAccepted, RegistrationStatusUnregistered, RegistrationStatusExpired:
		return st, nil
	default:
		return "", fmt.Errorf("unknown registration status %q", s)
	}
}

// HoldsPlace reports whether the registration currently occupies or is offered a place.
func (s RegistrationStatus) HoldsPlace() bool {
	return s == RegistrationStatusAccepted || s == RegistrationStatusInvited
}

// Registration is one user's (or pending guest's) claim against an event.
// UserID is nil for a guest reservation that has not been claimed yet.
type Registration struct {
	ID            int64              `json:"id"`
	EventID       int64              `json:"event_id"`
	UserID        *int64             `json:"user_id,omitempty"`
	ChatID        *int64             `json:"chat_id,omitempty"`
	Username      string             `json:"username,omitempty"`
	FirstName     string             `json:"first_name,omitempty"`
	Status        RegistrationStatus `json:"status"`
	Priority      *int               `json:"priority,omitempty"`
	SignupTime    time.Time          `json:"signup_time"`
	NotifiedAt    *time.Time         `json:"notified_at,omitempty"`
	ExpiresAt     *time.Time         `json:"expires_at,omitempty"`
	GuestOfUserID *int64             `json:"guest_of_user_id,omitempty"`
}

// IsGuest reports whether the place was granted by a speaker.
func (r *Registration) IsGuest() bool { return r.GuestOfUserID != nil }

// BelongsTo reports whether the registration is bound to userID.
func (r *Registration) BelongsTo(userID int64) bool {
	return r.UserID != nil && *r.UserID == userID
}

// StatusChange carries the optional columns written together with a status update.
// Nil fields are left untouched.
type StatusChange struct {
	Priority   *int
	NotifiedAt *time.Time
	ExpiresAt  *time.Time
}
