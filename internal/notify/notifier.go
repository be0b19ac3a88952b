// Package notify delivers operator notifications such as cost alerts and
// feed outages to Telegram and Discord, filtered by event type.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/tradesim/internal/domain"
)

// Event types emitted by the service.
const (
	EventCostAlert = "cost_alert"
	EventFeedDown  = "feed_down"
	EventStartup   = "startup"
)

// KnownEvents lists every event type accepted in the filter.
var KnownEvents = []string{EventCostAlert, EventFeedDown, EventStartup}

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier implements domain.Notifier by fanning out to every Sender. Only
// events in the allowed set are forwarded; an empty set allows everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	label   string
	repeats *dedup
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. label prefixes every title, typically the
// venue and instrument being watched.
func NewNotifier(senders []Sender, events []string, label string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		label:   label,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// SuppressRepeats drops a notification identical to one sent within window.
// Call before first use.
func (n *Notifier) SuppressRepeats(window time.Duration) {
	if window > 0 {
		n.repeats = newDedup(window)
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return len(n.senders) > 0
}

// Allows reports whether event passes the filter.
func (n *Notifier) Allows(event string) bool {
	return len(n.events) == 0 || n.events[event]
}

// Notify sends message to all senders if event passes the filter.
func (n *Notifier) Notify(ctx context.Context, event, message string) error {
	if !n.Allows(event) {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	if n.repeats != nil && n.repeats.isDuplicate(event+"\x00"+message) {
		n.logger.DebugContext(ctx, "repeat suppressed", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, n.title(event), message)
}

func (n *Notifier) title(event string) string {
	t := strings.ReplaceAll(event, "_", " ")
	if t != "" {
		t = strings.ToUpper(t[:1]) + t[1:]
	}
	if n.label == "" {
		return t
	}
	return fmt.Sprintf("[%s] %s", n.label, t)
}

// dispatch sends to every sender. One failure does not stop delivery to the
// rest; all failures are joined into the returned error.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.Notifier = (*Notifier)(nil)
