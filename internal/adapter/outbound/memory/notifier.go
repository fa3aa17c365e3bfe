package memory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/actiongate/actiongate/internal/domain/approval"
)

// LogNotifier implements approval.Notifier by writing a structured log line
// for each queued action. Stands in for a real channel (email, chat webhook)
// in development deployments; never blocks.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier that logs queued-action events.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the event.
func (n *LogNotifier) Notify(ctx context.Context, ev approval.Event) {
	n.logger.Info("action awaiting approval",
		"pending_id", ev.PendingActionID,
		"org_id", ev.OrganizationID,
		"capability", ev.Capability,
		"risk", ev.RiskLevel,
	)
}

// CollectingNotifier implements approval.Notifier by collecting events in
// memory. For tests.
type CollectingNotifier struct {
	mu     sync.Mutex
	events []approval.Event
}

// NewCollectingNotifier creates an empty collecting notifier.
func NewCollectingNotifier() *CollectingNotifier {
	return &CollectingNotifier{}
}

// Notify records the event.
func (n *CollectingNotifier) Notify(ctx context.Context, ev approval.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

// Events returns a snapshot of the collected events.
func (n *CollectingNotifier) Events() []approval.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]approval.Event(nil), n.events...)
}

// Compile-time interface verification.
var (
	_ approval.Notifier = (*LogNotifier)(nil)
	_ approval.Notifier = (*CollectingNotifier)(nil)
)
