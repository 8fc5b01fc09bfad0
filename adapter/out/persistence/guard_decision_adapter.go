package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"guard_server/core/domain"
	"guard_server/core/port/out"
)

const decisionSchema = `
	CREATE TABLE IF NOT EXISTS guard_decisions (
		id          UUID PRIMARY KEY,
		unit_id     TEXT NOT NULL,
		action      TEXT NOT NULL,
		category    TEXT NOT NULL DEFAULT '',
		score       DOUBLE PRECISION NOT NULL DEFAULT 0,
		labels      JSONB NOT NULL DEFAULT '[]',
		provenance  TEXT NOT NULL,
		threshold   DOUBLE PRECISION NOT NULL,
		decided_at  TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_guard_decisions_unit ON guard_decisions (unit_id, decided_at DESC);
`

// DecisionAdapter implements out.DecisionRecorder on a pgx pool.
type DecisionAdapter struct {
	pool *pgxpool.Pool
}

var _ out.DecisionRecorder = (*DecisionAdapter)(nil)

// NewDecisionAdapter creates a new DecisionAdapter.
func NewDecisionAdapter(pool *pgxpool.Pool) *DecisionAdapter {
	return &DecisionAdapter{pool: pool}
}

// EnsureSchema creates the audit table if it does not exist.
func (a *DecisionAdapter) EnsureSchema(ctx context.Context) error {
	_, err := a.pool.Exec(ctx, decisionSchema)
	return err
}

// Record inserts one decision. Re-recording the same id is a no-op.
func (a *DecisionAdapter) Record(ctx context.Context, rec domain.DecisionRecord) error {
	labels, err := json.Marshal(rec.Labels)
	if err != nil {
		return fmt.Errorf("encode labels: %w", err)
	}

	const query = `
		INSERT INTO guard_decisions (
			id, unit_id, action, category, score, labels, provenance, threshold, decided_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = a.pool.Exec(ctx, query,
		rec.ID,
		string(rec.UnitID),
		string(rec.Action.Kind),
		string(rec.Action.Category),
		rec.Action.Score,
		string(labels),
		string(rec.Provenance),
		rec.Threshold,
		rec.DecidedAt,
	)
	return err
}

// ListByUnit returns the most recent decisions for a unit, newest first.
func (a *DecisionAdapter) ListByUnit(ctx context.Context, unitID domain.UnitID, limit int) ([]domain.DecisionRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	const query = `
		SELECT id, unit_id, action, category, score, labels, provenance, threshold, decided_at
		FROM guard_decisions
		WHERE unit_id = $1
		ORDER BY decided_at DESC
		LIMIT $2
	`
	rows, err := a.pool.Query(ctx, query, string(unitID), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.DecisionRecord
	for rows.Next() {
		rec, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanDecision(row pgx.Row) (domain.DecisionRecord, error) {
	var (
		rec        domain.DecisionRecord
		unitID     string
		kind       string
		category   string
		labels     []byte
		provenance string
		decidedAt  time.Time
	)
	if err := row.Scan(&rec.ID, &unitID, &kind, &category, &rec.Action.Score, &labels, &provenance, &rec.Threshold, &decidedAt); err != nil {
		return rec, err
	}
	rec.UnitID = domain.UnitID(unitID)
	rec.Action.Kind = domain.ActionKind(kind)
	rec.Action.Category = domain.Category(category)
	rec.Provenance = domain.Provenance(provenance)
	rec.DecidedAt = decidedAt
	if err := json.Unmarshal(labels, &rec.Labels); err != nil {
		return rec, fmt.Errorf("decode labels: %w", err)
	}
	return rec, nil
}
