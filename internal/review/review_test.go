package review

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AuraquanTech/paytrust/internal/fraud"
)

func testAssessment() *fraud.Assessment {
	return &fraud.Assessment{
		ID:             "asmt_1",
		Customer:       "cus_a",
		AmountCents:    10_000,
		Score:          0.5,
		Recommendation: fraud.RecommendReview,
		Reasons:        []string{"hourly spend of 105000 cents exceeds limit of 100000"},
	}
}

func TestQueueEnqueueAndResolve(t *testing.T) {
	q := NewQueue(NewMemoryStore())
	ctx := context.Background()

	item, err := q.EnqueueAssessment(ctx, testAssessment(), "ch_123")
	require.NoError(t, err)
	assert.NotEmpty(t, item.ID)
	assert.Equal(t, StatusPending, item.Status)
	assert.Equal(t, "ch_123", item.ChargeID)

	n, err := q.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	resolved, err := q.Resolve(ctx, item.ID, Resolution{Status: StatusApproved, ResolvedBy: "ops@acme.test"})
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)

	_, err = q.Resolve(ctx, item.ID, Resolution{Status: StatusRejected})
	assert.ErrorIs(t, err, ErrAlreadyResolved)

	n, err = q.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestQueueResolveValidatesOutcome(t *testing.T) {
	q := NewQueue(NewMemoryStore())
	item, err := q.EnqueueAssessment(context.Background(), testAssessment(), "")
	require.NoError(t, err)

	_, err = q.Resolve(context.Background(), item.ID, Resolution{Status: StatusPending})
	assert.ErrorIs(t, err, ErrInvalidOutcome)

	_, err = q.Resolve(context.Background(), "rev_missing", Resolution{Status: StatusApproved})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreListOldestFirst(t *testing.T) {
	q := NewQueue(NewMemoryStore())
	ctx := context.Background()

	first, err := q.EnqueueAssessment(ctx, testAssessment(), "")
	require.NoError(t, err)
	second, err := q.EnqueueAssessment(ctx, testAssessment(), "")
	require.NoError(t, err)

	items, next, err := q.List(ctx, StatusPending, 10, "")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Empty(t, next)
	assert.Equal(t, first.ID, items[0].ID, "backlog is worked oldest first")
	assert.Equal(t, second.ID, items[1].ID)

	_, err = q.Resolve(ctx, first.ID, Resolution{Status: StatusRejected})
	require.NoError(t, err)

	items, next, err = q.List(ctx, StatusPending, 10, "")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Empty(t, next)
	assert.Equal(t, second.ID, items[0].ID)
}

func TestQueueListPaginates(t *testing.T) {
	q := NewQueue(NewMemoryStore())
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		item, err := q.EnqueueAssessment(ctx, testAssessment(), "")
		require.NoError(t, err)
		ids = append(ids, item.ID)
	}

	page, next, err := q.List(ctx, StatusPending, 2, "")
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.NotEmpty(t, next)
	assert.Equal(t, ids[0], page[0].ID)
	assert.Equal(t, ids[1], page[1].ID)

	page, next, err = q.List(ctx, StatusPending, 2, next)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.NotEmpty(t, next)
	assert.Equal(t, ids[2], page[0].ID)

	page, next, err = q.List(ctx, StatusPending, 2, next)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Empty(t, next, "last page carries no cursor")
	assert.Equal(t, ids[4], page[0].ID)

	_, _, err = q.List(ctx, StatusPending, 2, "garbage-cursor")
	assert.Error(t, err)
}

type fakeNotifier struct {
	itemID, resolution string
}

func (f *fakeNotifier) PublishReviewResolved(itemID, resolution string) {
	f.itemID, f.resolution = itemID, resolution
}

func newReviewRouter(t *testing.T, q *Queue, n Notifier) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(q, n).RegisterRoutes(r.Group("/v1"))
	return r
}

func TestResolveEndpoint(t *testing.T) {
	q := NewQueue(NewMemoryStore())
	notifier := &fakeNotifier{}
	r := newReviewRouter(t, q, notifier)

	item, err := q.EnqueueAssessment(context.Background(), testAssessment(), "")
	require.NoError(t, err)

	body, _ := json.Marshal(gin.H{"outcome": "reject", "resolvedBy": "ops@acme.test", "notes": "confirmed card testing"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/review/"+item.ID+"/resolve", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, item.ID, notifier.itemID)
	assert.Equal(t, "rejected", notifier.resolution)

	// Second verdict conflicts.
	w = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/v1/review/"+item.ID+"/resolve", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestResolveEndpointValidation(t *testing.T) {
	r := newReviewRouter(t, NewQueue(NewMemoryStore()), nil)

	body, _ := json.Marshal(gin.H{"outcome": "escalate"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/review/rev_x/resolve", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body, _ = json.Marshal(gin.H{"outcome": "approve"})
	w = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/v1/review/rev_missing/resolve", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListEndpointStatusFilter(t *testing.T) {
	q := NewQueue(NewMemoryStore())
	r := newReviewRouter(t, q, nil)

	_, err := q.EnqueueAssessment(context.Background(), testAssessment(), "")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/v1/review", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/v1/review?status=nonsense", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
