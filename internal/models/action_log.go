package models

import "time"

// Action tags written to the audit trail.
const (
	ActionCreateEvent    = "CREATE_EVENT"
	ActionOpenEvent      = "OPEN_EVENT"
	ActionCloseEvent     = "CLOSE_EVENT"
	ActionResetEvent     = "RESET_EVENT"
	ActionLotteryDraw    = "LOTTERY_DRAW"
	ActionRegister       = "REGISTER"
	ActionJoinWaitlist   = "JOIN_WAITLIST"
	ActionGuestClaim     = "GUEST_CLAIM"
	ActionInviteGuest    = "INVITE_GUEST"
	ActionUnregister     = "UNREGISTER"
	ActionInviteNext     = "INVITE_NEXT"
	ActionAcceptInvite   = "ACCEPT_INVITE"
	ActionDeclineInvite  = "DECLINE_INVITE"
	ActionInviteExpired  = "INVITE_EXPIRED"
	ActionImportSpeakers = "IMPORT_SPEAKERS"
)

// ActionLog is one append-only audit entry. EventID and UserID are nil for system actions.
type ActionLog struct {
	ID        int64     `json:"id"`
	EventID   *int64    `json:"event_id,omitempty"`
	UserID    *int64    `json:"user_id,omitempty"`
	Username  string    `json:"username,omitempty"`
	Action    string    `json:"action"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
