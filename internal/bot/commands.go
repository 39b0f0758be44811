package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/homeconf/regbot/internal/lottery"
	"github.com/homeconf/regbot/internal/messages"
	"github.com/homeconf/regbot/internal/models"
)

const timeLayout = "2006-01-02 15:04 MST"

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	who := identity(msg.From, msg.Chat)
	chatID := msg.Chat.ID
	args := strings.TrimSpace(msg.CommandArguments())
	cmd := msg.Command()
	b.logger.Debug("command received", zap.String("command", cmd), zap.Int64("user_id", who.UserID), zap.Int64("chat_id", chatID))

	switch cmd {
	case "start", "help":
		b.reply(chatID, messages.Welcome)
	case "register":
		b.register(ctx, chatID, msg.Chat.IsPrivate(), who)
	case "unregister", "cancel":
		b.unregister(ctx, chatID, who)
	case "status":
		b.status(ctx, chatID, who)
	case "list":
		b.list(ctx, chatID)
	case "invite":
		b.invite(ctx, chatID, who, args)
	case "create":
		b.create(ctx, chatID, who, args)
	case "open":
		b.open(ctx, chatID, who, args)
	case "close":
		b.closeEvent(ctx, chatID, who)
	case "reset":
		b.reset(ctx, chatID, who, args)
	}
}

func (b *Bot) register(ctx context.Context, chatID int64, private bool, who lottery.Identity) {
	res, err := b.lottery.Register(ctx, who)
	if err != nil {
		b.fail(chatID, err, "", "")
		return
	}
	switch res.Outcome {
	case lottery.GuestIdentified:
		b.reply(chatID, messages.GuestIdentified)
	case lottery.Registered:
		// The confirmation already went to the private chat.
		if !private {
			b.reply(chatID, fmt.Sprintf(messages.GroupRegistered, who.Username))
		}
	case lottery.Waitlisted:
		if !private {
			b.reply(chatID, fmt.Sprintf(messages.GroupWaitlisted, who.Username))
		}
	}
}

func (b *Bot) unregister(ctx context.Context, chatID int64, who lottery.Identity) {
	res, err := b.lottery.Unregister(ctx, who, false)
	if err != nil {
		b.fail(chatID, err, "", "")
		return
	}
	if res.NeedsConfirmation {
		id := strconv.FormatInt(res.RegistrationID, 10)
		b.prompt(chatID, messages.UnregisterConfirm, []lottery.Button{
			{Label: messages.ButtonUnregister, Data: lottery.UnregisterYesPrefix + id},
			{Label: messages.ButtonKeep, Data: lottery.UnregisterNoPrefix + id},
		})
		return
	}
	b.reply(chatID, messages.UnregisteredSuccess)
}

func (b *Bot) status(ctx context.Context, chatID int64, who lottery.Identity) {
	view, err := b.lottery.Status(ctx, who)
	if errors.Is(err, lottery.ErrNotRegistered) {
		b.reply(chatID, messages.NotRegistered)
		return
	}
	if err != nil {
		b.fail(chatID, err, "", "")
		return
	}
	b.reply(chatID, renderStatus(view))
}

func renderStatus(view *lottery.StatusView) string {
	if view.Speaker {
		return fmt.Sprintf(messages.StatusMsg, messages.StatusSpeaker)
	}
	text := fmt.Sprintf(messages.StatusMsg, view.Status)
	if view.Status == models.RegistrationStatusWaitlist && view.WaitlistPosition > 0 {
		text += fmt.Sprintf(messages.WaitlistPosition, view.WaitlistPosition)
	}
	return text
}

func (b *Bot) list(ctx context.Context, chatID int64) {
	sum, err := b.lottery.Summary(ctx)
	if err != nil {
		b.fail(chatID, err, "", "")
		return
	}
	b.reply(chatID, renderSummary(sum))
}

func renderSummary(sum *lottery.Summary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, messages.EventStatusHeader, sum.Event.Status, sum.VIPTaken, sum.GeneralTaken, sum.GeneralTotal)
	switch sum.Event.Status {
	case models.EventStatusPreOpen:
		sb.WriteString(messages.EventStatusPreOpen)
	case models.EventStatusOpen:
		fmt.Fprintf(&sb, messages.EventStatusOpen, sum.Pool)
	case models.EventStatusClosed:
		fmt.Fprintf(&sb, messages.EventStatusClosed, sum.Waitlist)
		if sum.Pending > 0 {
			fmt.Fprintf(&sb, messages.EventStatusPending, sum.Pending)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (b *Bot) invite(ctx context.Context, chatID int64, who lottery.Identity, args string) {
	fields := strings.Fields(args)
	if len(fields) != 1 {
		b.reply(chatID, messages.UsageInvite)
		return
	}
	guest := strings.TrimPrefix(fields[0], "@")
	outcome, err := b.lottery.InviteGuest(ctx, who, guest)
	if err != nil {
		b.fail(chatID, err, guest, "")
		return
	}
	switch outcome {
	case lottery.GuestUpgraded:
		b.reply(chatID, fmt.Sprintf(messages.GuestUpgraded, guest))
	default:
		b.reply(chatID, fmt.Sprintf(messages.GuestInvitedNew, guest))
	}
}

func (b *Bot) create(ctx context.Context, chatID int64, who lottery.Identity, args string) {
	a, err := parseEventArgs(args)
	if err != nil {
		b.reply(chatID, messages.UsageCreate)
		return
	}
	if _, err := b.lottery.CreateEvent(ctx, who, a.createRequest(chatID)); err != nil {
		b.fail(chatID, err, "", messages.OnlyAdminOpen)
		return
	}
	b.reply(chatID, messages.EventCreated)
}

func (b *Bot) open(ctx context.Context, chatID int64, who lottery.Identity, args string) {
	var (
		e   *models.Event
		err error
	)
	if args == "" {
		e, err = b.lottery.OpenEvent(ctx, who)
	} else {
		a, perr := parseEventArgs(args)
		if perr != nil {
			b.reply(chatID, messages.UsageOpen)
			return
		}
		e, err = b.lottery.CreateAndOpen(ctx, who, a.openRequest(chatID))
	}
	if err != nil {
		b.fail(chatID, err, "", messages.OnlyAdminOpen)
		return
	}
	closing := ""
	if e.EndTime != nil {
		closing = e.EndTime.In(b.loc).Format(timeLayout)
	}
	b.reply(chatID, fmt.Sprintf(messages.RegistrationOpened, e.TotalPlaces, closing))
}

func (b *Bot) closeEvent(ctx context.Context, chatID int64, who lottery.Identity) {
	if _, err := b.lottery.CloseEvent(ctx, who); err != nil {
		b.fail(chatID, err, "", messages.OnlyAdminClose)
		return
	}
	b.reply(chatID, messages.RegistrationClosedManual)
}

func (b *Bot) reset(ctx context.Context, chatID int64, who lottery.Identity, args string) {
	if _, err := b.lottery.CancelEvent(ctx, who, args); err != nil {
		b.fail(chatID, err, "", messages.OnlyAdminReset)
		return
	}
	b.reply(chatID, messages.ResetSuccess)
}

func (b *Bot) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	who := identity(q.From, nil)
	action, id := parseCallback(q.Data)

	var text string
	switch action {
	case callbackAccept:
		text = messages.InvitationAccepted
		if err := b.lottery.AcceptInvitation(ctx, who, id); err != nil {
			text = errorText(err, "", "")
		}
	case callbackDecline:
		text = messages.InvitationDeclined
		if err := b.lottery.DeclineInvitation(ctx, who, id); err != nil {
			text = errorText(err, "", "")
		}
	case callbackUnregisterYes:
		text = messages.UnregisteredSuccess
		if err := b.lottery.ConfirmUnregister(ctx, who, id); err != nil {
			text = errorText(err, "", "")
		}
	case callbackUnregisterNo:
		text = messages.UnregisterKept
	default:
		text = messages.InvalidInvitation
	}

	if _, err := b.api.Request(tgbotapi.NewCallback(q.ID, "")); err != nil {
		b.logger.Debug("answer callback failed", zap.Error(err))
	}
	if q.Message != nil && q.Message.Chat != nil {
		edit := tgbotapi.NewEditMessageText(q.Message.Chat.ID, q.Message.MessageID, text)
		if _, err := b.api.Send(edit); err != nil {
			b.logger.Warn("edit callback message failed", zap.Error(err))
		}
		return
	}
	b.reply(who.UserID, text)
}

func (b *Bot) fail(chatID int64, err error, guest, notAdmin string) {
	if errorText(err, guest, notAdmin) == messages.InternalError {
		b.logger.Error("command failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
	b.reply(chatID, errorText(err, guest, notAdmin))
}

// errorText maps service errors to user-facing text. guest fills the invitee
// placeholder; notAdmin is the command-specific admin refusal.
func errorText(err error, guest, notAdmin string) string {
	switch {
	case errors.Is(err, lottery.ErrNotAdmin):
		if notAdmin == "" {
			return messages.OnlyAdminOpen
		}
		return notAdmin
	case errors.Is(err, lottery.ErrInvalidArgument):
		return messages.InvalidArguments
	case errors.Is(err, lottery.ErrGroupUnreachable):
		return messages.ErrorAccessGroup
	case errors.Is(err, lottery.ErrConfirmationRequired):
		return messages.ResetConfirmation
	case errors.Is(err, lottery.ErrEventAlreadyActive):
		return messages.RegistrationAlreadyOpen
	case errors.Is(err, lottery.ErrAlreadyRegistered):
		return messages.AlreadyRegistered
	case errors.Is(err, lottery.ErrAlreadySpeaker):
		return messages.AlreadySpeaker
	case errors.Is(err, lottery.ErrGuestIsSpeaker):
		return fmt.Sprintf(messages.GuestIsSpeaker, guest)
	case errors.Is(err, lottery.ErrGuestAlreadyGuest):
		return fmt.Sprintf(messages.GuestAlreadyGuest, guest)
	case errors.Is(err, lottery.ErrGuestAlreadyHasSpot):
		return fmt.Sprintf(messages.GuestAlreadyHasSpot, guest)
	case errors.Is(err, lottery.ErrAlreadyInvitedGuest):
		return messages.AlreadyInvitedGuest
	case errors.Is(err, lottery.ErrGuestHasPlace):
		return messages.AlreadyInvitedHasPlace
	case errors.Is(err, lottery.ErrNoEvent):
		return messages.NoEventFound
	case errors.Is(err, lottery.ErrNoOpenEvent):
		return messages.NoOpenRegistration
	case errors.Is(err, lottery.ErrNoPreOpenEvent):
		return messages.NoPreOpenEvent
	case errors.Is(err, lottery.ErrRegistrationNotOpen):
		return messages.RegistrationNotOpen
	case errors.Is(err, lottery.ErrInviteOnlyPreOpen):
		return messages.InviteOnlyPreOpen
	case errors.Is(err, lottery.ErrNotRegistered):
		return messages.NoActiveRegistration
	case errors.Is(err, lottery.ErrSpeakerCannotUnregister):
		return messages.SpeakerUnregisterError
	case errors.Is(err, lottery.ErrNotSpeaker):
		return messages.OnlySpeakersInvite
	case errors.Is(err, lottery.ErrUnreachable):
		return messages.StartInPrivate
	case errors.Is(err, lottery.ErrInvalidInvitation):
		return messages.InvalidInvitation
	}
	return messages.InternalError
}
