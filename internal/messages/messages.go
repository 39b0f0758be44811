// Package messages holds the user-facing texts sent by the bot.
package messages

const Welcome = "Welcome to the Event Registration Bot!\n\n" +
	"Commands:\n" +
	"/register - Register for the event\n" +
	"/status - Check your status\n" +
	"/unregister - Unregister from the event\n" +
	"/list - Show current registration summary\n" +
	"/invite <username> - Speakers: invite one guest (before registration opens)\n\n" +
	"Admin commands:\n" +
	"/create <hours> <places> <speakers_group> [timeout_hours] - Create an event\n" +
	"/open - Open registration for the created event\n" +
	"/open <minutes> <places> <speakers_group> [timeout_hours] - Create and open at once\n" +
	"/close - Close current registration early\n" +
	"/reset confirm - Cancel the current event"

// Errors and warnings.
const (
	OnlyAdminOpen            = "Only admins can open registration."
	OnlyAdminClose           = "Only admins can close registration."
	OnlyAdminReset           = "Only admins can reset the event."
	RegistrationAlreadyOpen  = "❌ There is already an active event. Close or reset it first."
	UsageCreate              = "Usage: /create <hours> <places> <speakers_group> [timeout_hours]"
	UsageOpen                = "Usage: /open <minutes> <places> <speakers_group> [timeout_hours]"
	ErrorAccessGroup         = "❌ Error: Could not access the specified group. Make sure the bot is a member and the ID/username is correct."
	NoOpenRegistration       = "No open registration found."
	NoPreOpenEvent           = "No created event is waiting to be opened. Use /create first."
	NoEventFound             = "No event found."
	RegistrationNotOpen      = "Registration has not opened yet."
	AlreadySpeaker           = "You are already a speaker!"
	AlreadyRegistered        = "You are already registered or on the waitlist."
	AlreadyInvitedHasPlace   = "You have already been invited by a speaker and have a place."
	StartInPrivate           = "Please start me in private chat first so I can notify you!"
	OnlySpeakersInvite       = "Only speakers can invite guests."
	AlreadyInvitedGuest      = "You have already invited a guest. You cannot change your guest."
	UsageInvite              = "Usage: /invite <username>"
	GuestAlreadyGuest        = "@%s is already a guest of another speaker."
	GuestAlreadyHasSpot      = "@%s already has a spot."
	GuestIsSpeaker           = "@%s is a speaker and does not need an invitation."
	InviteOnlyPreOpen        = "Guests can only be invited before registration opens."
	NoActiveRegistration     = "No active registration found."
	InvalidInvitation        = "Invalid or expired invitation."
	NotRegistered            = "Not registered."
	PrivateChatOnly          = "Please use the command /%s in this private chat."
	SpeakerUnregisterError   = "Speakers cannot unregister. Contact the organizers if your plans change."
	ResetConfirmation        = "This cancels the current event. Send /reset confirm to proceed."
	InvalidArguments         = "Invalid arguments."
	InternalError            = "Something went wrong. Please try again later."
)

// Success messages.
const (
	EventCreated               = "✅ Event created. Speakers may now invite guests. Use /open to start registration."
	RegistrationOpened         = "✅ Registration opened for %d places!\nClosing at: %s."
	RegistrationClosedManual   = "Registration closed manually."
	RegistrationClosedNoReg    = "Registration closed. No one registered."
	RegistrationClosedSummary  = "Registration closed! %d people got places. %d are on the waitlist."
	ResetSuccess               = "Event cancelled. Registrations are kept for the record."
	RegisterSuccessLottery     = "You have been registered for the event! I will notify you here after the lottery."
	RegisterWaitlist           = "You've been added to the waitlist at position %d."
	GroupRegistered            = "@%s registered!"
	GroupWaitlisted            = "@%s added to waitlist."
	GuestIdentified            = "You have been identified as a guest! Your spot is confirmed."
	GuestUpgraded              = "@%s has been upgraded to a guest spot!"
	GuestInvitedNotify         = "You have been invited as a guest by %s! You now have a guaranteed spot."
	GuestInvitedNew            = "@%s invited! They should run /register to confirm their details."
	UnregisteredSuccess        = "Unregistered."
	UnregisterConfirm          = "You hold a place in the event. Are you sure you want to give it up?"
	UnregisterKept             = "Your place is kept."
	InvitationAccepted         = "Accepted!"
	InvitationDeclined         = "Declined."
)

// Notifications.
const (
	LotteryWinner        = "Congratulations! You've won a place in the event!"
	WaitlistNotification = "You are on the waitlist. Your number is %d."
	InvitationExpired    = "Invitation expired."
	SpotOpenedInvite     = "A place has opened up! Do you accept? (Expires in %dh)"
)

// Status and list.
const (
	StatusMsg          = "Status: %s"
	WaitlistPosition   = "\nWaitlist position: %d"
	StatusSpeaker      = "Speaker"
	EventStatusHeader  = "📊 Event Status: %s\nVIP places (speakers and guests): %d\nGeneral places filled: %d/%d\n"
	EventStatusOpen    = "People currently in lottery pool: %d\n\nLottery will run when registration closes."
	EventStatusPreOpen = "Registration has not opened yet."
	EventStatusClosed  = "People on waitlist: %d\n"
	EventStatusPending = "Pending invitations: %d\n"
)

// Button labels.
const (
	ButtonAccept     = "Accept"
	ButtonDecline    = "Decline"
	ButtonUnregister = "Yes, unregister"
	ButtonKeep       = "No, keep my place"
)
