package lottery

import "errors"

// Validation errors: the caller supplied something unusable; nothing was mutated.
var (
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrGroupUnreachable     = errors.New("speakers group cannot be resolved")
	ErrConfirmationRequired = errors.New("confirmation required")
)

// Conflict errors: the request collides with existing state; nothing was mutated.
var (
	ErrEventAlreadyActive  = errors.New("an event is already pre-open or open")
	ErrAlreadyRegistered   = errors.New("already registered or on the waitlist")
	ErrAlreadySpeaker      = errors.New("already a speaker")
	ErrGuestIsSpeaker      = errors.New("invitee is a speaker")
	ErrGuestAlreadyGuest   = errors.New("invitee is already a guest of another speaker")
	ErrGuestAlreadyHasSpot = errors.New("invitee already has a place")
	ErrAlreadyInvitedGuest = errors.New("speaker already invited a guest")
	ErrGuestHasPlace       = errors.New("guest place already claimed")
)

// State errors: the operation is not valid in the current lifecycle state.
var (
	ErrNoEvent                 = errors.New("no event")
	ErrNoOpenEvent             = errors.New("no open event")
	ErrNoPreOpenEvent          = errors.New("no pre-open event")
	ErrRegistrationNotOpen     = errors.New("registration is not open yet")
	ErrInviteOnlyPreOpen       = errors.New("guests can only be invited before registration opens")
	ErrNotRegistered           = errors.New("not registered")
	ErrSpeakerCannotUnregister = errors.New("speakers cannot unregister")
)

// Authorization errors.
var (
	ErrNotAdmin   = errors.New("admin only")
	ErrNotSpeaker = errors.New("speakers only")
)

// ErrUnreachable means the very first confirmation could not be delivered and the
// registration was rolled back.
var ErrUnreachable = errors.New("user cannot be reached")

// ErrInvalidInvitation is returned for accept/decline on a registration that is no
// longer INVITED or belongs to someone else.
var ErrInvalidInvitation = errors.New("invalid or expired invitation")
