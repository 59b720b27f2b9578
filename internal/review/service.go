package review

import (
	"context"
	"time"

	"github.com/AuraquanTech/paytrust/internal/fraud"
	"github.com/AuraquanTech/paytrust/internal/idgen"
	"github.com/AuraquanTech/paytrust/internal/pagination"
)

// Queue wraps a Store with ID assignment and queue metrics.
type Queue struct {
	store Store
}

// NewQueue creates a review queue over the given store.
func NewQueue(store Store) *Queue {
	return &Queue{store: store}
}

// EnqueueAssessment queues a scored attempt for a human verdict.
// chargeID is empty when the attempt was not charged.
func (q *Queue) EnqueueAssessment(ctx context.Context, a *fraud.Assessment, chargeID string) (*Item, error) {
	item := &Item{
		ID:           idgen.WithPrefix("rev_"),
		AssessmentID: a.ID,
		Customer:     a.Customer,
		AmountCents:  a.AmountCents,
		Score:        a.Score,
		Reasons:      a.Reasons,
		ChargeID:     chargeID,
		Status:       StatusPending,
		CreatedAt:    time.Now(),
	}
	if err := q.store.Enqueue(ctx, item); err != nil {
		return nil, err
	}

	enqueuedTotal.Inc()
	q.refreshDepth(ctx)
	return item, nil
}

// Get returns one item by ID.
func (q *Queue) Get(ctx context.Context, id string) (*Item, error) {
	return q.store.Get(ctx, id)
}

// List returns a page of queue items, optionally filtered by status.
// cursor is the opaque position from a previous page; the returned
// cursor is empty once the backlog is exhausted.
func (q *Queue) List(ctx context.Context, status Status, limit int, cursor string) ([]*Item, string, error) {
	after, err := pagination.Decode(cursor)
	if err != nil {
		return nil, "", err
	}

	items, err := q.store.List(ctx, status, limit+1, after)
	if err != nil {
		return nil, "", err
	}

	items, next := pagination.Page(items, limit, func(i *Item) (time.Time, string) {
		return i.CreatedAt, i.ID
	})
	return items, next, nil
}

// Resolve records a verdict on a pending item.
func (q *Queue) Resolve(ctx context.Context, id string, res Resolution) (*Item, error) {
	item, err := q.store.Resolve(ctx, id, res)
	if err != nil {
		return nil, err
	}

	resolutionsTotal.WithLabelValues(string(res.Status)).Inc()
	q.refreshDepth(ctx)
	return item, nil
}

// PendingCount reports the current backlog size.
func (q *Queue) PendingCount(ctx context.Context) (int, error) {
	return q.store.PendingCount(ctx)
}

func (q *Queue) refreshDepth(ctx context.Context) {
	if n, err := q.store.PendingCount(ctx); err == nil {
		pendingDepth.Set(float64(n))
	}
}
