package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/homeconf/regbot/internal/lottery"
)

// API is the subset of *tgbotapi.BotAPI the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetChat(config tgbotapi.ChatInfoConfig) (tgbotapi.Chat, error)
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
	GetChatMembersCount(config tgbotapi.ChatMemberCountConfig) (int, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Messenger delivers lottery notifications through Telegram.
type Messenger struct {
	api API
}

// NewMessenger creates a Telegram-backed lottery.Notifier.
func NewMessenger(api API) *Messenger {
	return &Messenger{api: api}
}

// Notify sends a plain text message.
func (m *Messenger) Notify(_ context.Context, chatID int64, text string) error {
	if _, err := m.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("send to %d: %w", chatID, err)
	}
	return nil
}

// Prompt sends text with one row of inline buttons.
func (m *Messenger) Prompt(_ context.Context, chatID int64, text string, buttons []lottery.Button) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = keyboard(buttons)
	if _, err := m.api.Send(msg); err != nil {
		return fmt.Errorf("send prompt to %d: %w", chatID, err)
	}
	return nil
}

func keyboard(buttons []lottery.Button) tgbotapi.InlineKeyboardMarkup {
	row := make([]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, b := range buttons {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Data))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}

// Membership answers speaker-group questions through the Bot API.
type Membership struct {
	api   API
	botID int64
}

// NewMembership creates a Telegram-backed lottery.MembershipOracle.
func NewMembership(api API, botID int64) *Membership {
	return &Membership{api: api, botID: botID}
}

// ResolveGroup accepts a numeric chat id or a public @username.
func (m *Membership) ResolveGroup(_ context.Context, ref string) (int64, error) {
	ref = strings.TrimSpace(ref)
	var cfg tgbotapi.ChatInfoConfig
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		cfg.ChatID = id
	} else {
		cfg.SuperGroupUsername = "@" + strings.TrimPrefix(ref, "@")
	}
	chat, err := m.api.GetChat(cfg)
	if err != nil {
		return 0, fmt.Errorf("get chat %q: %w", ref, err)
	}
	return chat.ID, nil
}

// IsMember reports whether userID currently belongs to the group.
func (m *Membership) IsMember(_ context.Context, groupID, userID int64) (bool, error) {
	member, err := m.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: groupID, UserID: userID},
	})
	if err != nil {
		return false, fmt.Errorf("get chat member: %w", err)
	}
	switch member.Status {
	case "member", "administrator", "creator":
		return true, nil
	case "restricted":
		return member.IsMember, nil
	}
	return false, nil
}

// GroupSize returns the member count of the group, bot included.
func (m *Membership) GroupSize(_ context.Context, groupID int64) (int, error) {
	n, err := m.api.GetChatMembersCount(tgbotapi.ChatMemberCountConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: groupID},
	})
	if err != nil {
		return 0, fmt.Errorf("get member count: %w", err)
	}
	return n, nil
}

// BotUserID returns the bot's own account id.
func (m *Membership) BotUserID() int64 {
	return m.botID
}
