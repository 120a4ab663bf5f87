// Package notify delivers budget alerts to the household.
package notify

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"accountbook/internal/core"
	"accountbook/internal/log"
)

// Notifier sends alerts raised for one owner.
type Notifier interface {
	Notify(ctx context.Context, ownerID, month string, alerts []core.Alert) error
}

// FormatAlerts renders alerts as one chat message.
func FormatAlerts(month string, alerts []core.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s 예산 알림\n", month)
	for _, a := range alerts {
		switch a.Kind {
		case core.AlertExceeded:
			fmt.Fprintf(&b, "• '%s' 예산을 초과했습니다 (지출 %s / 예산 %s)\n", a.Category, a.Spent, a.Limit)
		default:
			fmt.Fprintf(&b, "• '%s' 예산에 가까워졌습니다 (지출 %s / 예산 %s)\n", a.Category, a.Spent, a.Limit)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

type botSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier posts alerts to a single chat.
type TelegramNotifier struct {
	bot    botSender
	chatID int64
	logger *log.Logger
}

func NewTelegramNotifier(token string, chatID int64, logger *log.Logger) (*TelegramNotifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	logger = logger.WithComponent(log.ComponentNotify)
	logger.Info("Telegram notifier ready", "bot", api.Self.UserName, "chat_id", chatID)
	return &TelegramNotifier{bot: api, chatID: chatID, logger: logger}, nil
}

func (n *TelegramNotifier) Notify(ctx context.Context, ownerID, month string, alerts []core.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(n.chatID, FormatAlerts(month, alerts))
	msg.DisableWebPagePreview = true
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	n.logger.InfoContext(ctx, "Budget alerts sent",
		log.FieldOwnerID, ownerID,
		log.FieldMonth, month,
		"count", len(alerts))
	return nil
}

// LogNotifier writes alerts to the log. Used when no bot token is set.
type LogNotifier struct {
	Logger *log.Logger
}

func (n LogNotifier) Notify(ctx context.Context, ownerID, month string, alerts []core.Alert) error {
	for _, a := range alerts {
		n.Logger.WarnContext(ctx, "Budget alert",
			log.FieldOwnerID, ownerID,
			log.FieldMonth, month,
			log.FieldCategory, a.Category,
			"kind", a.Kind,
			"spent_cents", a.Spent.Cents,
			"limit_cents", a.Limit.Cents)
	}
	return nil
}
