// Package notify provides a multi-channel notification system. Notifications
// are dispatched to all registered senders (Telegram, Discord, etc.) and can be
// filtered by event type so operators receive only the alerts they care about.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Event types accepted by the config filter.
const (
	EventOpportunityFound = "opportunity_found"
	EventPositionOpened   = "position_opened"
	EventPositionClosed   = "position_closed"
	EventDailySummary     = "daily_summary"
	EventEngineError      = "engine_error"
)

// Field is one labelled value of a notification. Discord renders it as an
// embed field, Telegram as a "Name: Value" line.
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Notification is one alert to deliver.
type Notification struct {
	Event  string
	Title  string
	Body   string // free-form text under the title
	Color  int    // Discord embed color
	Fields []Field
}

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers the notification.
	Send(ctx context.Context, n Notification) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier dispatches notifications to one or more Senders. It maintains a
// set of allowed event types; notifications whose event is not in the set are
// dropped. An empty set allows everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// New creates a Notifier that delivers to the given senders. Only events
// whose type appears in the events slice are forwarded; an empty slice
// allows all event types.
func New(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify delivers the notification to all senders, applying the event
// filter. Errors from individual senders are collected and returned as a
// combined error; one sender failing does not prevent delivery to the rest.
func (n *Notifier) Notify(ctx context.Context, note Notification) error {
	if len(n.events) > 0 && !n.events[note.Event] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", note.Event),
		)
		return nil
	}

	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, note); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", note.Event),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		} else {
			n.logger.DebugContext(ctx, "notification sent",
				slog.String("sender", s.Name()),
				slog.String("title", note.Title),
			)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

// fire dispatches and drops the combined error; per-sender failures are
// already logged. Used by the event helpers, which are fire-and-forget so
// a down webhook can never stall the trading path.
func (n *Notifier) fire(ctx context.Context, note Notification) {
	_ = n.Notify(ctx, note)
}
