package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"signalbot-backend/internal/domain"
)

// TelegramTransport posts each signal to one chat through the Bot API.
type TelegramTransport struct {
	bot  *telego.Bot
	chat telego.ChatID
}

// NewTelegramTransport accepts a numeric chat id or an @channel username.
func NewTelegramTransport(token, chatID string, opts ...telego.BotOption) (*TelegramTransport, error) {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return nil, fmt.Errorf("telegram: chat id is required")
	}
	bot, err := telego.NewBot(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return &TelegramTransport{bot: bot, chat: parseChatID(chatID)}, nil
}

func parseChatID(s string) telego.ChatID {
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return tu.ID(id)
	}
	if !strings.HasPrefix(s, "@") {
		s = "@" + s
	}
	return tu.Username(s)
}

func (t *TelegramTransport) Name() string { return "telegram" }

func (t *TelegramTransport) Send(ctx context.Context, signal domain.Signal) error {
	params := tu.Message(t.chat, TelegramText(signal)).WithParseMode(telego.ModeHTML)
	if _, err := t.bot.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}
