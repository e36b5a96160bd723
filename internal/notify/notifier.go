// Package notify fans ledger alerts out to operator channels. An Alert
// carries the ledger context (opinion, pool, amount) so each channel can
// render it natively instead of receiving pre-flattened text.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Alert is one operator notification. Event names the ledger occurrence
// ("pool_executed", "ledger_paused"); OpinionID, PoolID, and Amount are zero
// when the alert carries no such context.
type Alert struct {
	Event     string
	Title     string
	Message   string
	OpinionID uint64
	PoolID    uint64
	Amount    int64 // micro-units
}

// Sender is one delivery channel for alerts.
type Sender interface {
	Send(ctx context.Context, a Alert) error
	// Name identifies the channel in logs (e.g. "telegram").
	Name() string
}

// Notifier dispatches alerts to one or more Senders. It maintains a set of
// allowed event names; Notify only forwards alerts whose event is in the
// allowed set, while NotifyAll bypasses the filter.
type Notifier struct {
	senders []Sender
	events  map[string]bool // allowed event names
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that will deliver to the given senders. Only
// alerts whose event appears in the events slice are forwarded by Notify. An
// empty events list allows everything.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify delivers the alert to all senders if its event is in the allowed
// list. If no events were configured, all alerts pass.
func (n *Notifier) Notify(ctx context.Context, a Alert) error {
	if len(n.events) > 0 && !n.events[a.Event] {
		n.logger.DebugContext(ctx, "alert filtered out",
			slog.String("event", a.Event),
		)
		return nil
	}
	return n.dispatch(ctx, a)
}

// NotifyAll delivers the alert to all senders regardless of event.
func (n *Notifier) NotifyAll(ctx context.Context, a Alert) error {
	return n.dispatch(ctx, a)
}

// dispatch sends the alert to every sender. Errors are collected and returned
// combined; one failing sender does not block delivery to the rest.
func (n *Notifier) dispatch(ctx context.Context, a Alert) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, a); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", a.Event),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		} else {
			n.logger.DebugContext(ctx, "alert sent",
				slog.String("sender", s.Name()),
				slog.String("event", a.Event),
			)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
