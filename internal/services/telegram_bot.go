package services

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// telegramSender is satisfied by *tgbotapi.BotAPI.
type telegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier posts stage changes to a Telegram chat.
type TelegramNotifier struct {
	bot    telegramSender
	chatID int64
	logger *slog.Logger
}

// NewTelegramNotifier connects to the Bot API with token.
func NewTelegramNotifier(token string, chatID int64, logger *slog.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return newTelegramNotifier(bot, chatID, logger), nil
}

func newTelegramNotifier(bot telegramSender, chatID int64, logger *slog.Logger) *TelegramNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &TelegramNotifier{bot: bot, chatID: chatID, logger: logger}
}

func (t *TelegramNotifier) NotifyStageChange(ctx context.Context, n StageChangeNotice) error {
	if t == nil || t.chatID == 0 {
		return nil
	}
	msg := tgbotapi.NewMessage(t.chatID, renderNoticeTelegram(n))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	t.logger.Debug("telegram send", "chat_id", t.chatID, "deal_id", n.DealID)
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram sendMessage failed: %w", err)
	}
	return nil
}

func renderNoticeTelegram(n StageChangeNotice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n%s → %s\nby %s",
		html.EscapeString(n.DealName), html.EscapeString(n.FromStage),
		html.EscapeString(n.ToStage), html.EscapeString(n.ChangedBy))
	if n.Reason != "" {
		fmt.Fprintf(&b, "\nReason: %s", html.EscapeString(n.Reason))
	}
	if n.Overridden {
		b.WriteString("\n⚠ WIP or ordering warning overridden")
	}
	return b.String()
}
