package checkout

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AuraquanTech/paytrust/internal/webhook"
)

type fakeWebhookFeed struct {
	published []string
}

func (f *fakeWebhookFeed) PublishWebhookVerified(eventID, _ string) {
	f.published = append(f.published, eventID)
}

func completedEvent(id string) *webhook.Event {
	return &webhook.Event{
		ID:   id,
		Type: webhook.EventCheckoutCompleted,
		Data: webhook.EventData{Object: map[string]interface{}{"amount_total": float64(1500)}},
	}
}

func TestFulfillerDeduplicatesByEventID(t *testing.T) {
	feed := &fakeWebhookFeed{}
	f := NewFulfiller(feed, 0)

	require.NoError(t, f.Process(context.Background(), completedEvent("evt_1")))
	require.NoError(t, f.Process(context.Background(), completedEvent("evt_1")))
	require.NoError(t, f.Process(context.Background(), completedEvent("evt_2")))

	assert.Equal(t, []string{"evt_1", "evt_2"}, feed.published,
		"a retried event is acknowledged but not re-fulfilled")
}

func TestFulfillerIgnoresUnknownEventTypes(t *testing.T) {
	f := NewFulfiller(nil, 0)

	err := f.Process(context.Background(), &webhook.Event{
		ID:   "evt_3",
		Type: "charge.refunded",
	})
	assert.NoError(t, err, "unknown event types are acknowledged without action")
}

func TestFulfillerExpiresSeenEntriesAfterRetention(t *testing.T) {
	f := NewFulfiller(nil, 10*time.Minute)

	now := time.Now()
	f.now = func() time.Time { return now }
	assert.True(t, f.markSeen("evt_old"))
	assert.False(t, f.markSeen("evt_old"))

	// Past the retention window the guard would reject the signature
	// anyway, so the entry is dropped and the ID reads as new again.
	f.now = func() time.Time { return now.Add(11 * time.Minute) }
	assert.True(t, f.markSeen("evt_old"))
}

func TestFulfillerSeenSetStaysBounded(t *testing.T) {
	f := NewFulfiller(nil, time.Hour)

	for i := 0; i < maxSeenEvents+500; i++ {
		f.markSeen(fmt.Sprintf("evt_%d", i))
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.LessOrEqual(t, len(f.seen), maxSeenEvents)
	assert.Equal(t, len(f.seen), len(f.order))
}
