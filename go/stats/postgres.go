package stats

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samsarahq/go/oops"

	"github.com/KevinXing/ilive-tracker/go/tracker"
)

const createHistoryTable = `
CREATE TABLE IF NOT EXISTS apartment_status_history (
	cycle_id    TEXT        NOT NULL,
	apartment   TEXT        NOT NULL,
	observed_at TIMESTAMPTZ NOT NULL,
	name        TEXT        NOT NULL DEFAULT '',
	type        TEXT        NOT NULL DEFAULT '',
	status      TEXT        NOT NULL,
	size        TEXT        NOT NULL DEFAULT '',
	kaltmiete   TEXT        NOT NULL DEFAULT '',
	nebenkosten TEXT        NOT NULL DEFAULT '',
	total       TEXT        NOT NULL DEFAULT '',
	PRIMARY KEY (cycle_id, apartment)
)`

const insertHistory = `
INSERT INTO apartment_status_history
	(cycle_id, apartment, observed_at, name, type, status, size, kaltmiete, nebenkosten, total)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (cycle_id, apartment) DO NOTHING`

// PostgresRecorder appends every observation to apartment_status_history.
type PostgresRecorder struct {
	pool *pgxpool.Pool
}

// NewPostgresRecorder connects and creates the history table if needed.
func NewPostgresRecorder(ctx context.Context, databaseURL string) (*PostgresRecorder, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, oops.Wrapf(err, "connect to postgres")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, oops.Wrapf(err, "ping postgres")
	}
	if _, err := pool.Exec(ctx, createHistoryTable); err != nil {
		pool.Close()
		return nil, oops.Wrapf(err, "create apartment_status_history")
	}
	return &PostgresRecorder{pool: pool}, nil
}

func (r *PostgresRecorder) Name() string { return "postgres" }

func (r *PostgresRecorder) Record(ctx context.Context, obs tracker.Observation) error {
	rows := historyRows(obs)
	if len(rows) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(insertHistory, row...)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return oops.Wrapf(err, "insert %d history rows", len(rows))
	}
	return nil
}

func (r *PostgresRecorder) Close() {
	r.pool.Close()
}

// historyRows returns the insert arguments for each apartment, in id order.
func historyRows(obs tracker.Observation) [][]any {
	observedAt := obs.ObservedAt.UTC().Truncate(time.Millisecond)
	rows := make([][]any, 0, len(obs.Snapshot))
	for _, id := range obs.Snapshot.IDs() {
		apt := obs.Snapshot[id]
		if apt == nil {
			continue
		}
		rows = append(rows, []any{
			obs.CycleID, apt.ID, observedAt,
			apt.Name, apt.Type, string(apt.Status),
			apt.Size, apt.ColdRent, apt.Utilities, apt.Total,
		})
	}
	return rows
}
