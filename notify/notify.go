// Package notify delivers preference changes to other parts of the system:
// other tabs of the same user through an in-process Hub, and other services
// through a RabbitMQ topic exchange.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/pressograph/prefsync"
)

// Event is the envelope published for every change.
type Event struct {
	ID         string          `json:"event_id"`
	Type       string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Change     prefsync.Change `json:"change"`
}

// NewEvent wraps change with a fresh ID. OccurredAt is the change time, or
// now if the change carries none.
func NewEvent(change prefsync.Change) Event {
	at := change.At
	if at.IsZero() {
		at = time.Now()
	}
	return Event{
		ID:         uuid.NewString(),
		Type:       RoutingKey(change),
		OccurredAt: at.UTC(),
		Change:     change,
	}
}

// RoutingKey is "preference.<kind>.changed", or "preference.<kind>.cleared"
// when the user reset the kind to its default.
func RoutingKey(change prefsync.Change) string {
	action := "changed"
	if change.Cleared {
		action = "cleared"
	}
	return "preference." + change.Kind + "." + action
}

// Func adapts a function to prefsync.Notifier.
type Func func(ctx context.Context, change prefsync.Change) error

func (f Func) Notify(ctx context.Context, change prefsync.Change) error {
	return f(ctx, change)
}

// Multi fans a change out to every notifier and joins their errors. A
// failing notifier does not stop the others.
type Multi []prefsync.Notifier

func (m Multi) Notify(ctx context.Context, change prefsync.Change) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, change); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ prefsync.Notifier = Func(nil)
	_ prefsync.Notifier = Multi(nil)
	_ prefsync.Notifier = (*Hub)(nil)
	_ prefsync.Notifier = (*RabbitMQPublisher)(nil)
)
