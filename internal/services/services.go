// Package services orchestrates ledger, budget and report operations over
// a repository and the change feed.
package services

import (
	"context"
	"time"

	"accountbook/internal/amqp"
	"accountbook/internal/core"
	"accountbook/internal/log"
)

// ChangePublisher is the part of amqp.Client the services use.
type ChangePublisher interface {
	PublishChange(ctx context.Context, msg *amqp.ChangeMessage) error
}

// Invalidator drops cached views of an owner after a mutation.
type Invalidator interface {
	Invalidate(ownerID string)
}

// notifier fans a mutation out to cache invalidators and the change feed.
type notifier struct {
	publisher    ChangePublisher
	invalidators []Invalidator
	logger       *log.Logger
}

func (n *notifier) changed(ctx context.Context, msg *amqp.ChangeMessage) {
	for _, inv := range n.invalidators {
		inv.Invalidate(msg.OwnerID)
	}

	if n.publisher == nil {
		n.logger.DebugContext(ctx, "AMQP client not available, skipping change message", "kind", msg.Kind)
		return
	}
	// Publishing is best effort; the store already holds the change.
	if err := n.publisher.PublishChange(ctx, msg); err != nil {
		n.logger.WarnContext(ctx, "Failed to publish change message",
			"kind", msg.Kind,
			log.FieldOwnerID, msg.OwnerID,
			log.FieldError, err)
	}
}

func requireOwner(ownerID string) error {
	if ownerID == "" {
		return &core.ValidationError{Field: "owner", Err: core.ErrEmptyOwner}
	}
	return nil
}

func monthBounds(month string) (core.EntryFilter, error) {
	from, to, err := core.MonthRange(month)
	if err != nil {
		return core.EntryFilter{}, &core.ValidationError{Field: "month", Err: err}
	}
	return core.EntryFilter{From: from, To: to}, nil
}

func defaultClock(now func() time.Time) func() time.Time {
	if now == nil {
		return time.Now
	}
	return now
}
