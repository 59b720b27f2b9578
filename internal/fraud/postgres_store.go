package fraud

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresWindowStore persists per-customer attempt windows in PostgreSQL
// so velocity state survives restarts and is shared across replicas.
type PostgresWindowStore struct {
	db *sql.DB
}

// NewPostgresWindowStore creates a PostgreSQL-backed window store.
func NewPostgresWindowStore(db *sql.DB) *PostgresWindowStore {
	return &PostgresWindowStore{db: db}
}

// RecordAndObserve inserts the attempt and reads the post-insert window
// state inside one transaction. A per-customer advisory lock gives the
// same serialization the in-memory store gets from its keyed mutex, even
// across replicas.
func (s *PostgresWindowStore) RecordAndObserve(ctx context.Context, customer string, amountCents int64, at time.Time) (Observation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Observation{}, fmt.Errorf("begin window transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, customer); err != nil {
		return Observation{}, fmt.Errorf("acquire customer lock: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO fraud_window_events (customer, amount_cents, occurred_at)
		VALUES ($1, $2, $3)
	`, customer, amountCents, at); err != nil {
		return Observation{}, fmt.Errorf("record attempt: %w", err)
	}

	var obs Observation
	err = tx.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE occurred_at > $2 - INTERVAL '1 minute'),
			COUNT(*),
			COALESCE(SUM(amount_cents), 0)
		FROM fraud_window_events
		WHERE customer = $1 AND occurred_at > $2 - INTERVAL '1 hour'
	`, customer, at).Scan(&obs.MinuteCount, &obs.HourCount, &obs.HourSumCents)
	if err != nil {
		return Observation{}, fmt.Errorf("observe windows: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Observation{}, fmt.Errorf("commit window transaction: %w", err)
	}
	return obs, nil
}

// ResetCustomer deletes the customer's window history.
func (s *PostgresWindowStore) ResetCustomer(ctx context.Context, customer string) error {
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM fraud_window_events WHERE customer = $1
	`, customer); err != nil {
		return fmt.Errorf("reset customer windows: %w", err)
	}
	return nil
}

// TrackedCustomers counts customers with events inside the hour window.
func (s *PostgresWindowStore) TrackedCustomers(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT customer)
		FROM fraud_window_events
		WHERE occurred_at > NOW() - INTERVAL '1 hour'
	`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count tracked customers: %w", err)
	}
	return n, nil
}

// PruneExpired deletes events past the hour window. Run periodically;
// scoring correctness never depends on it because every query filters by
// occurred_at.
func (s *PostgresWindowStore) PruneExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM fraud_window_events
		WHERE occurred_at < NOW() - INTERVAL '1 hour'
	`)
	if err != nil {
		return 0, fmt.Errorf("prune window events: %w", err)
	}
	return res.RowsAffected()
}

// PostgresAuditStore persists assessments in PostgreSQL.
type PostgresAuditStore struct {
	db *sql.DB
}

// NewPostgresAuditStore creates a PostgreSQL-backed audit store.
func NewPostgresAuditStore(db *sql.DB) *PostgresAuditStore {
	return &PostgresAuditStore{db: db}
}

func (s *PostgresAuditStore) Record(ctx context.Context, assessment *Assessment) error {
	signalsJSON, err := json.Marshal(assessment.Signals)
	if err != nil {
		return fmt.Errorf("marshal signals: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO fraud_assessments
			(id, customer, amount_cents, score, recommendation, signals, reasons, degraded, evaluated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		assessment.ID,
		assessment.Customer,
		assessment.AmountCents,
		assessment.Score,
		string(assessment.Recommendation),
		signalsJSON,
		pq.Array(assessment.Reasons),
		assessment.Degraded,
		assessment.EvaluatedAt,
	)
	if err != nil {
		return fmt.Errorf("record assessment: %w", err)
	}
	return nil
}

func (s *PostgresAuditStore) ListByCustomer(ctx context.Context, customer string, limit int) ([]*Assessment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer, amount_cents, score, recommendation, signals, reasons, degraded, evaluated_at
		FROM fraud_assessments
		WHERE customer = $1
		ORDER BY evaluated_at DESC
		LIMIT $2
	`, customer, limit)
	if err != nil {
		return nil, fmt.Errorf("list assessments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Assessment
	for rows.Next() {
		var a Assessment
		var signalsJSON []byte
		var reasons pq.StringArray

		if err := rows.Scan(&a.ID, &a.Customer, &a.AmountCents, &a.Score, &a.Recommendation,
			&signalsJSON, &reasons, &a.Degraded, &a.EvaluatedAt); err != nil {
			return nil, fmt.Errorf("scan assessment: %w", err)
		}
		a.Signals = make(map[string]float64)
		_ = json.Unmarshal(signalsJSON, &a.Signals)
		a.Reasons = []string(reasons)
		result = append(result, &a)
	}
	return result, rows.Err()
}
