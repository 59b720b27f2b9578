// Package review holds the manual review queue. Attempts scoring in the
// review band proceed to charge but land here for a human verdict;
// degraded scoring passes land here too.
package review

import (
	"context"
	"errors"
	"time"

	"github.com/AuraquanTech/paytrust/internal/pagination"
)

// Status of a review item.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

var (
	ErrNotFound        = errors.New("review item not found")
	ErrAlreadyResolved = errors.New("review item already resolved")
	ErrInvalidOutcome  = errors.New("resolution outcome must be approve or reject")
)

// Item is one queued checkout attempt awaiting a human verdict.
type Item struct {
	ID           string     `json:"id"`
	AssessmentID string     `json:"assessmentId"`
	Customer     string     `json:"customer"`
	AmountCents  int64      `json:"amountCents"`
	Score        float64    `json:"score"`
	Reasons      []string   `json:"reasons,omitempty"`
	ChargeID     string     `json:"chargeId,omitempty"`
	Status       Status     `json:"status"`
	ResolvedBy   string     `json:"resolvedBy,omitempty"`
	Notes        string     `json:"notes,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	ResolvedAt   *time.Time `json:"resolvedAt,omitempty"`
}

// Resolution carries a human verdict for a pending item.
type Resolution struct {
	Status     Status
	ResolvedBy string
	Notes      string
}

// Store persists the review queue. List returns items ordered oldest
// first, strictly after the cursor position when one is given.
type Store interface {
	Enqueue(ctx context.Context, item *Item) error
	Get(ctx context.Context, id string) (*Item, error)
	List(ctx context.Context, status Status, limit int, after *pagination.Cursor) ([]*Item, error)
	Resolve(ctx context.Context, id string, res Resolution) (*Item, error)
	PendingCount(ctx context.Context) (int, error)
}
