package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"standings/pkg/logger"
)

// copyThreshold is the batch size from which COPY replaces row inserts
const copyThreshold = 100

// Writer replaces the stored standings of whole groups
type Writer interface {
	// Write replaces the snapshot of every group in groupIDs with rows.
	// A group with no rows ends up with no snapshot.
	Write(ctx context.Context, groupIDs []string, rows []Row) error

	// Close closes the database connection pool
	Close() error
}

// PGWriter implements Writer using pgxpool
type PGWriter struct {
	pool   *pgxpool.Pool
	logger *logger.Logger
}

// PostgresConfig holds database connection settings
type PostgresConfig struct {
	URI      string
	MinConns int32
	MaxConns int32
}

const schema = `
	CREATE TABLE IF NOT EXISTS standing_snapshots (
		group_id       TEXT        NOT NULL,
		kind           TEXT        NOT NULL,
		entity_key     TEXT        NOT NULL,
		rank           INTEGER     NOT NULL,
		matches_played INTEGER     NOT NULL,
		after_match    TEXT        NOT NULL,
		payload        JSONB       NOT NULL,
		computed_at    TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (group_id, kind, entity_key)
	)
`

// NewPostgresWriter creates a new PGWriter and makes sure the table exists
func NewPostgresWriter(ctx context.Context, cfg PostgresConfig, l *logger.Logger) (*PGWriter, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URI)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create standing_snapshots: %w", err)
	}

	return &PGWriter{pool: pool, logger: l.Named("snapshot")}, nil
}

// Ping checks the database connection
func (w *PGWriter) Ping(ctx context.Context) error {
	return w.pool.Ping(ctx)
}

// Write replaces the groups' rows in one transaction
func (w *PGWriter) Write(ctx context.Context, groupIDs []string, rows []Row) error {
	if len(groupIDs) == 0 {
		return nil
	}

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM standing_snapshots WHERE group_id = ANY($1)`, groupIDs)
	if err != nil {
		return fmt.Errorf("failed to clear group snapshots: %w", err)
	}

	if ShouldUseCopy(rows) {
		err = w.writeCopy(ctx, tx, rows)
	} else {
		err = w.writeInsert(ctx, tx, rows)
	}
	if err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit snapshots: %w", err)
	}
	w.logger.Debug("snapshots replaced",
		zap.Strings("groups", groupIDs),
		zap.Int64("removed", tag.RowsAffected()),
		zap.Int("written", len(rows)))
	return nil
}

const upsertSet = `
	ON CONFLICT (group_id, kind, entity_key) DO UPDATE SET
		rank = EXCLUDED.rank,
		matches_played = EXCLUDED.matches_played,
		after_match = EXCLUDED.after_match,
		payload = EXCLUDED.payload,
		computed_at = EXCLUDED.computed_at
`

// writeInsert queues one upsert per row in a single batch round trip
func (w *PGWriter) writeInsert(ctx context.Context, tx pgx.Tx, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	const query = `
		INSERT INTO standing_snapshots (group_id, kind, entity_key, rank, matches_played, after_match, payload, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)` + upsertSet

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(query, r.values()...)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to upsert snapshots: %w", err)
	}
	return nil
}

// writeCopy streams rows into a temporary table and upserts from it
func (w *PGWriter) writeCopy(ctx context.Context, tx pgx.Tx, rows []Row) error {
	_, err := tx.Exec(ctx, "CREATE TEMP TABLE standing_snapshots_temp (LIKE standing_snapshots INCLUDING DEFAULTS) ON COMMIT DROP")
	if err != nil {
		return fmt.Errorf("failed to create temp table: %w", err)
	}

	values := make([][]any, len(rows))
	for i, r := range rows {
		values[i] = r.values()
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"standing_snapshots_temp"}, columns, pgx.CopyFromRows(values)); err != nil {
		return fmt.Errorf("copy from failed: %w", err)
	}

	_, err = tx.Exec(ctx, `INSERT INTO standing_snapshots SELECT * FROM standing_snapshots_temp`+upsertSet)
	if err != nil {
		return fmt.Errorf("upsert from temp table failed: %w", err)
	}
	return nil
}

// Close closes the pool
func (w *PGWriter) Close() error {
	w.pool.Close()
	return nil
}

// ShouldUseCopy reports whether a batch goes through the COPY protocol
func ShouldUseCopy(rows []Row) bool {
	return len(rows) >= copyThreshold
}
