package checkout

import (
	"context"
	"sync"
	"time"

	"github.com/AuraquanTech/paytrust/internal/logging"
	"github.com/AuraquanTech/paytrust/internal/webhook"
)

// maxSeenEvents bounds the dedupe set. Entries also expire once they
// fall outside the replay acceptance window, since the verifier rejects
// stale signatures before they ever reach fulfillment.
const (
	maxSeenEvents        = 10000
	defaultSeenRetention = 10 * time.Minute
)

// WebhookNotifier receives verified gateway events for the live feed.
type WebhookNotifier interface {
	PublishWebhookVerified(eventID, eventType string)
}

type seenEntry struct {
	id string
	at time.Time
}

// Fulfiller reacts to verified gateway events. It satisfies the webhook
// processor contract and deduplicates by event ID, so a gateway retry
// inside the freshness window cannot fulfill an order twice.
type Fulfiller struct {
	mu        sync.Mutex
	seen      map[string]struct{}
	order     []seenEntry
	retention time.Duration
	notifier  WebhookNotifier
	now       func() time.Time
}

// NewFulfiller creates a fulfillment processor. notifier may be nil.
// retention should cover the replay guard's acceptance span; zero or
// negative selects the default.
func NewFulfiller(notifier WebhookNotifier, retention time.Duration) *Fulfiller {
	if retention <= 0 {
		retention = defaultSeenRetention
	}
	return &Fulfiller{
		seen:      make(map[string]struct{}),
		retention: retention,
		notifier:  notifier,
		now:       time.Now,
	}
}

// Process handles one verified webhook event.
func (f *Fulfiller) Process(ctx context.Context, event *webhook.Event) error {
	if event.ID != "" && !f.markSeen(event.ID) {
		fulfillmentsTotal.WithLabelValues("duplicate").Inc()
		logging.L(ctx).Info("duplicate gateway event ignored",
			"event_id", event.ID,
			"event_type", event.Type,
		)
		return nil
	}

	switch event.Type {
	case webhook.EventCheckoutCompleted:
		fulfillmentsTotal.WithLabelValues("fulfilled").Inc()
		logging.L(ctx).Info("checkout session fulfilled",
			"event_id", event.ID,
			"amount_total", event.Data.Object["amount_total"],
		)
	default:
		fulfillmentsTotal.WithLabelValues("ignored").Inc()
		logging.L(ctx).Debug("gateway event acknowledged without action",
			"event_id", event.ID,
			"event_type", event.Type,
		)
	}

	if f.notifier != nil {
		f.notifier.PublishWebhookVerified(event.ID, event.Type)
	}
	return nil
}

// markSeen records the event ID and reports whether it was new.
// Insertion order doubles as age order, so eviction pops from the front
// until every remaining entry is fresh and the set is under its cap.
func (f *Fulfiller) markSeen(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	cutoff := now.Add(-f.retention)
	for len(f.order) > 0 && (f.order[0].at.Before(cutoff) || len(f.order) >= maxSeenEvents) {
		delete(f.seen, f.order[0].id)
		f.order = f.order[1:]
	}

	if _, dup := f.seen[id]; dup {
		return false
	}
	f.seen[id] = struct{}{}
	f.order = append(f.order, seenEntry{id: id, at: now})
	return true
}
