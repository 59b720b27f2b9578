package fraud

import (
	"context"
	"sync"
	"time"

	"github.com/AuraquanTech/paytrust/internal/syncutil"
)

const (
	maxWindowEvents = 1000
	windowSpan      = time.Hour
)

type windowEvent struct {
	AmountCents int64
	At          time.Time
}

type customerWindow struct {
	events []windowEvent
}

// MemoryWindowStore keeps per-customer sliding windows in process memory.
// The default backend when no database is configured.
type MemoryWindowStore struct {
	locks   syncutil.KeyedMutex
	mu      sync.RWMutex
	windows map[string]*customerWindow
}

// NewMemoryWindowStore creates an empty in-memory window store.
func NewMemoryWindowStore() *MemoryWindowStore {
	return &MemoryWindowStore{windows: make(map[string]*customerWindow)}
}

// RecordAndObserve appends the attempt and returns the post-append window
// state. The per-customer lock holds across the append and the counts, so
// concurrent attempts for one customer serialize and each sees the other.
func (s *MemoryWindowStore) RecordAndObserve(_ context.Context, customer string, amountCents int64, at time.Time) (Observation, error) {
	unlock := s.locks.Lock(customer)
	defer unlock()

	w := s.getWindow(customer)
	s.prune(w, at)
	w.events = append(w.events, windowEvent{AmountCents: amountCents, At: at})

	obs := Observation{}
	minuteCutoff := at.Add(-time.Minute)
	hourCutoff := at.Add(-windowSpan)
	for _, ev := range w.events {
		if ev.At.After(hourCutoff) {
			obs.HourCount++
			obs.HourSumCents += ev.AmountCents
			if ev.At.After(minuteCutoff) {
				obs.MinuteCount++
			}
		}
	}
	return obs, nil
}

// ResetCustomer drops all window state for the customer.
func (s *MemoryWindowStore) ResetCustomer(_ context.Context, customer string) error {
	unlock := s.locks.Lock(customer)
	defer unlock()

	s.mu.Lock()
	delete(s.windows, customer)
	s.mu.Unlock()
	return nil
}

// TrackedCustomers counts customers with at least one event still inside
// the hour window.
func (s *MemoryWindowStore) TrackedCustomers(_ context.Context) (int, error) {
	cutoff := time.Now().Add(-windowSpan)

	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, w := range s.windows {
		for _, ev := range w.events {
			if ev.At.After(cutoff) {
				n++
				break
			}
		}
	}
	return n, nil
}

// getWindow returns or creates the window for a customer. Caller must
// hold the customer's keyed lock.
func (s *MemoryWindowStore) getWindow(customer string) *customerWindow {
	s.mu.RLock()
	w, ok := s.windows[customer]
	s.mu.RUnlock()
	if ok {
		return w
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok = s.windows[customer]; ok {
		return w
	}
	w = &customerWindow{}
	s.windows[customer] = w
	return w
}

// prune drops events older than the hour window and caps the slice.
func (s *MemoryWindowStore) prune(w *customerWindow, at time.Time) {
	cutoff := at.Add(-windowSpan)
	start := 0
	for start < len(w.events) && !w.events[start].At.After(cutoff) {
		start++
	}
	if start > 0 {
		w.events = w.events[start:]
	}
	if len(w.events) > maxWindowEvents {
		w.events = w.events[len(w.events)-maxWindowEvents:]
	}
}

// MemoryAuditStore is an in-memory assessment trail for demo/test use.
type MemoryAuditStore struct {
	mu          sync.RWMutex
	assessments map[string][]*Assessment
}

// NewMemoryAuditStore creates an in-memory audit store.
func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{assessments: make(map[string][]*Assessment)}
}

func (s *MemoryAuditStore) Record(_ context.Context, assessment *Assessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := cloneAssessment(assessment)
	s.assessments[assessment.Customer] = append(s.assessments[assessment.Customer], a)
	return nil
}

func (s *MemoryAuditStore) ListByCustomer(_ context.Context, customer string, limit int) ([]*Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.assessments[customer]
	if len(all) == 0 {
		return nil, nil
	}

	start := len(all) - limit
	if start < 0 {
		start = 0
	}

	// Most recent first.
	result := make([]*Assessment, 0, len(all)-start)
	for i := len(all) - 1; i >= start; i-- {
		result = append(result, cloneAssessment(all[i]))
	}
	return result, nil
}

func cloneAssessment(a *Assessment) *Assessment {
	out := *a
	out.Signals = make(map[string]float64, len(a.Signals))
	for k, v := range a.Signals {
		out.Signals[k] = v
	}
	out.Reasons = append([]string(nil), a.Reasons...)
	return &out
}
