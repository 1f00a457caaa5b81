// Package audit persists a PostgreSQL trail of masking operations: who
// asked, what categories were found and how long it took.
package audit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

const schema = `
CREATE TABLE IF NOT EXISTS masking_audit (
	id          BIGSERIAL PRIMARY KEY,
	request_id  TEXT NOT NULL,
	session_id  TEXT NOT NULL DEFAULT '',
	operation   TEXT NOT NULL,
	categories  JSONB NOT NULL DEFAULT '{}',
	degraded    TEXT[] NOT NULL DEFAULT '{}',
	text_length INTEGER NOT NULL,
	duration_ms DOUBLE PRECISION NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_masking_audit_created_at ON masking_audit (created_at);
CREATE INDEX IF NOT EXISTS idx_masking_audit_session ON masking_audit (session_id);`

const insertColumns = 7

// maxBatchRows keeps one insert well below PostgreSQL's 65535 parameters
const maxBatchRows = 1000

// Store writes audit records to PostgreSQL
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewStore connects to the database and creates the audit table
func NewStore(config *Config, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	store := NewStoreWithDB(db, logger)
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize audit store: %w", err)
	}

	logger.Info("Audit store initialized",
		zap.String("database_url", maskDatabaseURL(config.DatabaseURL)),
		zap.Int("max_open_conns", config.MaxOpenConns))

	return store, nil
}

// NewStoreWithDB wraps an open database handle
func NewStoreWithDB(db *sqlx.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}

func (s *Store) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create audit schema: %w", err)
	}
	return nil
}

// Record inserts one audit record and fills in its ID and timestamp
func (s *Store) Record(ctx context.Context, r *Record) error {
	query := `
		INSERT INTO masking_audit (request_id, session_id, operation, categories, degraded, text_length, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	err := s.db.QueryRowContext(ctx, query,
		r.RequestID,
		r.SessionID,
		r.Operation,
		r.Categories,
		nonNil(r.Degraded),
		r.TextLength,
		r.DurationMs,
	).Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		s.logger.Error("Failed to write audit record",
			zap.Error(err),
			zap.String("request_id", r.RequestID),
			zap.String("operation", r.Operation))
		return fmt.Errorf("failed to insert audit record: %w", err)
	}

	return nil
}

// RecordBatch inserts records in one transaction, maxBatchRows rows per
// statement to stay under the PostgreSQL bind parameter limit.
func (s *Store) RecordBatch(ctx context.Context, records []*Record) (*BatchInsertResult, error) {
	if len(records) == 0 {
		return &BatchInsertResult{}, nil
	}

	start := time.Now()
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin audit transaction: %w", err)
	}
	defer tx.Rollback()

	var inserted int64
	for _, chunk := range chunkRecords(records, maxBatchRows) {
		query, args := batchInsert(chunk)
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			s.logger.Error("Audit batch insert failed", zap.Error(err), zap.Int("records", len(chunk)))
			return nil, fmt.Errorf("batch insert failed: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			n = int64(len(chunk))
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit audit batch: %w", err)
	}

	result := &BatchInsertResult{Inserted: inserted, Duration: time.Since(start)}
	s.logger.Debug("Audit batch written",
		zap.Int64("inserted", result.Inserted),
		zap.Duration("duration", result.Duration))
	return result, nil
}

// chunkRecords splits records into slices of at most size rows
func chunkRecords(records []*Record, size int) [][]*Record {
	chunks := make([][]*Record, 0, (len(records)+size-1)/size)
	for len(records) > size {
		chunks = append(chunks, records[:size])
		records = records[size:]
	}
	if len(records) > 0 {
		chunks = append(chunks, records)
	}
	return chunks
}

// batchInsert builds a multi-row insert; created_at takes its default.
func batchInsert(records []*Record) (string, []any) {
	values := make([]string, 0, len(records))
	args := make([]any, 0, len(records)*insertColumns)

	for i, r := range records {
		base := i * insertColumns
		values = append(values, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7))
		args = append(args,
			r.RequestID,
			r.SessionID,
			r.Operation,
			r.Categories,
			nonNil(r.Degraded),
			r.TextLength,
			r.DurationMs,
		)
	}

	query := fmt.Sprintf(`
		INSERT INTO masking_audit (request_id, session_id, operation, categories, degraded, text_length, duration_ms)
		VALUES %s`, strings.Join(values, ","))
	return query, args
}

// Recent returns the latest records, newest first
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	var records []Record
	query := `
		SELECT id, request_id, session_id, operation, categories, degraded, text_length, duration_ms, created_at
		FROM masking_audit
		ORDER BY created_at DESC, id DESC
		LIMIT $1`

	if err := s.db.SelectContext(ctx, &records, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}
	return records, nil
}

// Session returns the records of one masking session in insertion order
func (s *Store) Session(ctx context.Context, sessionID string) ([]Record, error) {
	var records []Record
	query := `
		SELECT id, request_id, session_id, operation, categories, degraded, text_length, duration_ms, created_at
		FROM masking_audit
		WHERE session_id = $1
		ORDER BY id`

	if err := s.db.SelectContext(ctx, &records, query, sessionID); err != nil {
		return nil, fmt.Errorf("failed to list session records: %w", err)
	}
	return records, nil
}

// Stats aggregates records newer than since per operation
func (s *Store) Stats(ctx context.Context, since time.Time) ([]OperationStats, error) {
	var stats []OperationStats
	query := `
		SELECT
			a.operation,
			COUNT(*) AS count,
			COALESCE(SUM(c.total), 0) AS placeholders,
			COALESCE(AVG(a.duration_ms), 0) AS avg_duration_ms
		FROM masking_audit a
		LEFT JOIN LATERAL (
			SELECT SUM(value::int) AS total FROM jsonb_each_text(a.categories)
		) c ON TRUE
		WHERE a.created_at >= $1
		GROUP BY a.operation
		ORDER BY a.operation`

	if err := s.db.SelectContext(ctx, &stats, query, since); err != nil {
		return nil, fmt.Errorf("failed to get audit stats: %w", err)
	}
	return stats, nil
}

// Prune deletes records older than the given age
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM masking_audit WHERE created_at < $1`,
		time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to prune audit records: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Info("Pruned audit records", zap.Int64("deleted", n))
	}
	return n, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// maskDatabaseURL hides the password of a database URL for logging
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// nonNil keeps a nil slice from being written as NULL
func nonNil(a pq.StringArray) pq.StringArray {
	if a == nil {
		return pq.StringArray{}
	}
	return a
}
