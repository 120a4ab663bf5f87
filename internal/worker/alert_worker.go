package worker

import (
	"context"
	"fmt"
	"time"

	"accountbook/internal/amqp"
	"accountbook/internal/cache"
	"accountbook/internal/core"
	"accountbook/internal/log"
	"accountbook/internal/notify"
)

// AlertEvaluator computes the budget alerts of an owner for a month.
type AlertEvaluator interface {
	AlertsForMonth(ctx context.Context, ownerID, month string) ([]core.Alert, error)
}

// AlertWorker re-evaluates budgets whenever an owner's data changes and
// notifies alerts that were not already sent. The last notified alert set
// per owner and month is kept in a TTL cache, so an alert is re-sent only
// after it cleared or escalated.
type AlertWorker struct {
	budgets  AlertEvaluator
	notifier notify.Notifier
	sent     *cache.LRUCache[map[string]core.AlertKind]
	logger   *log.Logger
	now      func() time.Time
}

func NewAlertWorker(budgets AlertEvaluator, notifier notify.Notifier, dedupeTTL time.Duration, logger *log.Logger) *AlertWorker {
	if dedupeTTL <= 0 {
		dedupeTTL = 24 * time.Hour
	}
	return &AlertWorker{
		budgets:  budgets,
		notifier: notifier,
		sent:     cache.NewLRUCache[map[string]core.AlertKind](10_000, dedupeTTL),
		logger:   logger.WithComponent(log.ComponentWorker),
		now:      time.Now,
	}
}

// SentCache exposes the dedupe cache for periodic sweeping.
func (w *AlertWorker) SentCache() cache.Cleaner { return w.sent }

// HandleChange processes a single change message from AMQP.
func (w *AlertWorker) HandleChange(ctx context.Context, msg *amqp.ChangeMessage) error {
	month := core.CurrentMonthKey(w.now())

	w.logger.DebugContext(ctx, "Processing change message",
		"kind", msg.Kind,
		log.FieldOwnerID, msg.OwnerID,
		log.FieldMonth, month)

	alerts, err := w.budgets.AlertsForMonth(ctx, msg.OwnerID, month)
	if err != nil {
		return fmt.Errorf("evaluate budgets: %w", err)
	}

	key := msg.OwnerID + "|" + month
	previous, _ := w.sent.Get(key)
	current := make(map[string]core.AlertKind, len(alerts))
	var fresh []core.Alert
	for _, a := range alerts {
		current[a.Category] = a.Kind
		if previous[a.Category] != a.Kind {
			fresh = append(fresh, a)
		}
	}

	if len(fresh) > 0 {
		if err := w.notifier.Notify(ctx, msg.OwnerID, month, fresh); err != nil {
			return fmt.Errorf("notify alerts: %w", err)
		}
	}
	w.sent.Set(key, current)

	w.logger.InfoContext(ctx, "Budgets evaluated",
		log.FieldOwnerID, msg.OwnerID,
		log.FieldMonth, month,
		"alerts", len(alerts),
		"notified", len(fresh))
	return nil
}
