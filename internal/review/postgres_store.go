package review

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/AuraquanTech/paytrust/internal/pagination"
)

// PostgresStore persists the review queue in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed review queue.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Enqueue(ctx context.Context, item *Item) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO review_items
			(id, assessment_id, customer, amount_cents, score, reasons, charge_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		item.ID,
		item.AssessmentID,
		item.Customer,
		item.AmountCents,
		item.Score,
		pq.Array(item.Reasons),
		item.ChargeID,
		string(item.Status),
		item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("enqueue review item: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Item, error) {
	item, err := scanItem(s.db.QueryRowContext(ctx, `
		SELECT id, assessment_id, customer, amount_cents, score, reasons,
		       charge_id, status, resolved_by, notes, created_at, resolved_at
		FROM review_items
		WHERE id = $1
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get review item: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) List(ctx context.Context, status Status, limit int, after *pagination.Cursor) ([]*Item, error) {
	query := `
		SELECT id, assessment_id, customer, amount_cents, score, reasons,
		       charge_id, status, resolved_by, notes, created_at, resolved_at
		FROM review_items
	`
	var conds []string
	var args []interface{}
	if status != "" {
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, string(status))
	}
	if after != nil {
		// Keyset pagination over the (created_at, id) sort order.
		conds = append(conds, fmt.Sprintf("(created_at, id) > ($%d, $%d)", len(args)+1, len(args)+2))
		args = append(args, after.CreatedAt, after.ID)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created_at ASC, id ASC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list review items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review item: %w", err)
		}
		result = append(result, item)
	}
	return result, rows.Err()
}

// Resolve flips a pending item to its verdict. The status guard in the
// UPDATE makes resolution idempotent-safe under concurrent reviewers:
// the second verdict loses and gets ErrAlreadyResolved.
func (s *PostgresStore) Resolve(ctx context.Context, id string, res Resolution) (*Item, error) {
	if res.Status != StatusApproved && res.Status != StatusRejected {
		return nil, ErrInvalidOutcome
	}

	item, err := scanItem(s.db.QueryRowContext(ctx, `
		UPDATE review_items
		SET status = $2, resolved_by = $3, notes = $4, resolved_at = $5
		WHERE id = $1 AND status = 'pending'
		RETURNING id, assessment_id, customer, amount_cents, score, reasons,
		          charge_id, status, resolved_by, notes, created_at, resolved_at
	`, id, string(res.Status), res.ResolvedBy, res.Notes, time.Now()))
	if errors.Is(err, sql.ErrNoRows) {
		// Either missing or already resolved; a second query disambiguates.
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrAlreadyResolved
	}
	if err != nil {
		return nil, fmt.Errorf("resolve review item: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM review_items WHERE status = 'pending'
	`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending reviews: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row rowScanner) (*Item, error) {
	var item Item
	var reasons pq.StringArray
	var chargeID, resolvedBy, notes sql.NullString
	var resolvedAt sql.NullTime

	err := row.Scan(&item.ID, &item.AssessmentID, &item.Customer, &item.AmountCents,
		&item.Score, &reasons, &chargeID, &item.Status, &resolvedBy, &notes,
		&item.CreatedAt, &resolvedAt)
	if err != nil {
		return nil, err
	}

	item.Reasons = []string(reasons)
	item.ChargeID = chargeID.String
	item.ResolvedBy = resolvedBy.String
	item.Notes = notes.String
	if resolvedAt.Valid {
		item.ResolvedAt = &resolvedAt.Time
	}
	return &item, nil
}
