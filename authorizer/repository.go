package authorizer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgconn"
	"github.com/lib/pq"
	"golang.org/x/exp/slog"

	"github.com/alovak/cardflow-bridge/models"
)

var ErrNotFound = fmt.Errorf("not found")

var ErrConflict = fmt.Errorf("conflict")

// Schema creates the decision journal table.
const Schema = `
CREATE SCHEMA IF NOT EXISTS authorizer;
CREATE TABLE IF NOT EXISTS authorizer.decisions (
    correlation_id     text PRIMARY KEY,
    payment_id         text NOT NULL DEFAULT '',
    amount             bigint NOT NULL,
    response_code      text NOT NULL,
    authorization_code text NOT NULL DEFAULT '',
    stan               text NOT NULL DEFAULT '',
    transmission_time  timestamptz,
    local_time         timestamptz,
    created_at         timestamptz NOT NULL DEFAULT now()
);
`

// Repository is the decision journal. It remembers the response given to each
// correlation id so a redelivered request gets the same answer. Without a
// database it keeps decisions in memory. Decisions only need to outlive the
// redelivery window; Sweep drops older ones.
type Repository struct {
	mu        sync.RWMutex
	decisions map[string]decision
	now       func() time.Time

	db *sql.DB
}

type decision struct {
	resp    models.AuthorizationResponse
	savedAt time.Time
}

func NewRepository() *Repository {
	return &Repository{
		decisions: make(map[string]decision),
		now:       time.Now,
	}
}

// NewPGRepository constructs a db-backed repository.
func NewPGRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Migrate applies Schema. No-op in memory mode.
func (r *Repository) Migrate(ctx context.Context) error {
	if r.db == nil {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

// Save records resp. ErrConflict means a decision for the same correlation id
// is already journaled.
func (r *Repository) Save(ctx context.Context, resp *models.AuthorizationResponse) error {
	if r.db == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, ok := r.decisions[resp.CorrelationID]; ok {
			return fmt.Errorf("decision for %s exists: %w", resp.CorrelationID, ErrConflict)
		}
		r.decisions[resp.CorrelationID] = decision{resp: *resp, savedAt: r.now()}
		return nil
	}

	_, err := r.db.ExecContext(ctx, `
        INSERT INTO authorizer.decisions(correlation_id, payment_id, amount, response_code, authorization_code, stan, transmission_time, local_time)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
    `, resp.CorrelationID, resp.PaymentID, int64(resp.Amount), resp.ResponseCode, resp.AuthorizationCode, resp.STAN,
		nullTime(resp.TransmissionTime), nullTime(resp.LocalTime))
	if isUniqueViolation(err) {
		return fmt.Errorf("decision for %s exists: %w", resp.CorrelationID, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("inserting decision: %w", err)
	}
	return nil
}

// Find returns the journaled decision for correlationID.
func (r *Repository) Find(ctx context.Context, correlationID string) (*models.AuthorizationResponse, error) {
	if r.db == nil {
		r.mu.RLock()
		defer r.mu.RUnlock()
		d, ok := r.decisions[correlationID]
		if !ok {
			return nil, ErrNotFound
		}
		found := d.resp
		return &found, nil
	}

	row := r.db.QueryRowContext(ctx, `
        SELECT correlation_id, payment_id, amount, response_code, authorization_code, stan, transmission_time, local_time
          FROM authorizer.decisions WHERE correlation_id=$1
    `, correlationID)

	var (
		resp   models.AuthorizationResponse
		amount int64
		tx, lt sql.NullTime
	)
	err := row.Scan(&resp.CorrelationID, &resp.PaymentID, &amount, &resp.ResponseCode, &resp.AuthorizationCode, &resp.STAN, &tx, &lt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding decision: %w", err)
	}
	resp.Amount = models.Amount(amount)
	if tx.Valid {
		resp.TransmissionTime = tx.Time.UTC()
	}
	if lt.Valid {
		resp.LocalTime = lt.Time
	}
	return &resp, nil
}

// Sweep deletes decisions saved before cutoff and returns how many were
// removed.
func (r *Repository) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	if r.db == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		n := 0
		for id, d := range r.decisions {
			if d.savedAt.Before(cutoff) {
				delete(r.decisions, id)
				n++
			}
		}
		return n, nil
	}

	res, err := r.db.ExecContext(ctx, `DELETE FROM authorizer.decisions WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweeping decisions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweeping decisions: %w", err)
	}
	return int(n), nil
}

// Run sweeps decisions older than retention every interval until ctx is
// done. A non-positive interval uses a tenth of the retention.
func (r *Repository) Run(ctx context.Context, logger *slog.Logger, retention, interval time.Duration) {
	if interval <= 0 {
		interval = retention / 10
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.Sweep(ctx, r.now().Add(-retention))
			if err != nil {
				logger.Error("sweeping decision journal", "err", err)
				continue
			}
			if n > 0 {
				logger.Debug("decision journal swept", slog.Int("removed", n))
			}
		}
	}
}

// Ping returns DB readiness
func (r *Repository) Ping(ctx context.Context) error {
	if r.db == nil {
		return nil
	}
	return r.db.PingContext(ctx)
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func isUniqueViolation(err error) bool {
	var pe *pq.Error
	if errors.As(err, &pe) && pe.Code == "23505" {
		return true
	}
	var pgerr *pgconn.PgError
	if errors.As(err, &pgerr) && pgerr.Code == "23505" {
		return true
	}
	return false
}
