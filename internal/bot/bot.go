// Package bot is the Telegram front end: it turns commands and button presses
// into lottery operations and renders the outcome.
package bot

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/homeconf/regbot/internal/lottery"
	"github.com/homeconf/regbot/internal/models"
)

const updateTimeoutSec = 60

// Lottery is the service surface the bot drives.
type Lottery interface {
	CreateEvent(ctx context.Context, actor lottery.Identity, req lottery.CreateEventRequest) (*models.Event, error)
	CreateAndOpen(ctx context.Context, actor lottery.Identity, req lottery.CreateAndOpenRequest) (*models.Event, error)
	OpenEvent(ctx context.Context, actor lottery.Identity) (*models.Event, error)
	CloseEvent(ctx context.Context, actor lottery.Identity) (*models.LotteryResult, error)
	CancelEvent(ctx context.Context, actor lottery.Identity, confirm string) (*models.Event, error)
	Register(ctx context.Context, who lottery.Identity) (*lottery.RegisterResult, error)
	Unregister(ctx context.Context, who lottery.Identity, confirmed bool) (*lottery.UnregisterResult, error)
	ConfirmUnregister(ctx context.Context, who lottery.Identity, registrationID int64) error
	InviteGuest(ctx context.Context, speaker lottery.Identity, username string) (lottery.GuestOutcome, error)
	AcceptInvitation(ctx context.Context, who lottery.Identity, registrationID int64) error
	DeclineInvitation(ctx context.Context, who lottery.Identity, registrationID int64) error
	Status(ctx context.Context, who lottery.Identity) (*lottery.StatusView, error)
	Summary(ctx context.Context) (*lottery.Summary, error)
}

// Bot consumes Telegram updates one at a time.
type Bot struct {
	api     API
	lottery Lottery
	loc     *time.Location
	logger  *zap.Logger
}

// New creates a bot. Times are rendered in loc (UTC when nil).
func New(api API, l Lottery, loc *time.Location, logger *zap.Logger) *Bot {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Bot{api: api, lottery: l, loc: loc, logger: logger}
}

// Run long-polls for updates until ctx is done.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = updateTimeoutSec
	updates := b.api.GetUpdatesChan(u)
	b.logger.Info("bot polling started")
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.logger.Info("bot polling stopped")
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			b.HandleUpdate(ctx, upd)
		}
	}
}

// HandleUpdate dispatches a single update.
func (b *Bot) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("update handler panicked", zap.Int("update_id", upd.UpdateID), zap.Any("panic", r))
		}
	}()
	switch {
	case upd.CallbackQuery != nil:
		b.handleCallback(ctx, upd.CallbackQuery)
	case upd.Message != nil && upd.Message.IsCommand():
		b.handleCommand(ctx, upd.Message)
	}
}

func identity(from *tgbotapi.User, chat *tgbotapi.Chat) lottery.Identity {
	who := lottery.Identity{}
	if from != nil {
		who.UserID = from.ID
		who.Username = from.UserName
		who.FirstName = from.FirstName
	}
	if chat != nil && chat.IsPrivate() {
		who.ChatID = chat.ID
	} else {
		who.ChatID = who.UserID
	}
	return who
}

func (b *Bot) reply(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.logger.Warn("reply failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *Bot) prompt(chatID int64, text string, buttons []lottery.Button) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = keyboard(buttons)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Warn("prompt failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
