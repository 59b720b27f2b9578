package fraud

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFraudRouter(t *testing.T, engine *Engine, audit AuditStore, notifier ResetNotifier) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(engine, audit, notifier).RegisterRoutes(r.Group("/v1"))
	return r
}

type fakeResetFeed struct {
	resets []string
}

func (f *fakeResetFeed) PublishCustomerReset(customer string) {
	f.resets = append(f.resets, customer)
}

func TestStatusReportsPolicyWithoutSecrets(t *testing.T) {
	e := newTestEngine(NewMemoryWindowStore())
	r := newFraudRouter(t, e, nil, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/v1/fraud/status", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Policy struct {
			VelocityLimitPerMinute int     `json:"velocityLimitPerMinute"`
			ThresholdHigh          float64 `json:"thresholdHigh"`
		} `json:"policy"`
		TrackedCustomers int `json:"trackedCustomers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Policy.VelocityLimitPerMinute)
	assert.Equal(t, 0.7, body.Policy.ThresholdHigh)
	assert.Equal(t, 0, body.TrackedCustomers)
}

func TestResetEndpointClearsCustomer(t *testing.T) {
	store := NewMemoryWindowStore()
	e := newTestEngine(store)
	feed := &fakeResetFeed{}
	r := newFraudRouter(t, e, nil, feed)

	for i := 0; i < 4; i++ {
		e.Score(context.Background(), &Transaction{Email: "x@example.com", AmountCents: 1000})
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/v1/fraud/customers/x@example.com/reset", nil))
	require.Equal(t, http.StatusOK, w.Code)

	n, err := store.TrackedCustomers(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, []string{"x@example.com"}, feed.resets, "reset is announced to the feed")
}

func TestListAssessmentsWithoutAuditStore(t *testing.T) {
	r := newFraudRouter(t, newTestEngine(NewMemoryWindowStore()), nil, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/v1/fraud/customers/cus_x/assessments", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListAssessmentsReturnsTrail(t *testing.T) {
	audit := NewMemoryAuditStore()
	require.NoError(t, audit.Record(context.Background(), &Assessment{
		ID: "asmt_1", Customer: "cus_x", Recommendation: RecommendReview,
	}))

	r := newFraudRouter(t, newTestEngine(NewMemoryWindowStore()), audit, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/v1/fraud/customers/cus_x/assessments?limit=10", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Count       int           `json:"count"`
		Assessments []*Assessment `json:"assessments"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "asmt_1", body.Assessments[0].ID)
}
