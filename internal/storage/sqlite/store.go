package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tjfontaine/polyglot-context/internal/storage"
)

// Store is a SQLite implementation of UsageStore
type Store struct {
	db *sql.DB
}

var _ storage.UsageStore = (*Store)(nil)

// New creates a new SQLite store
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS usage_records (
			id TEXT PRIMARY KEY,
			request_id TEXT,
			model TEXT,
			encoding TEXT NOT NULL,
			content_tokens INTEGER NOT NULL DEFAULT 0,
			resource_tokens INTEGER NOT NULL DEFAULT 0,
			document_tokens INTEGER NOT NULL DEFAULT 0,
			web_search_tokens INTEGER NOT NULL DEFAULT 0,
			message_tokens INTEGER NOT NULL DEFAULT 0,
			total_tokens INTEGER NOT NULL DEFAULT 0,
			context_window INTEGER NOT NULL DEFAULT 0,
			exceeded INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_model ON usage_records(model)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_created ON usage_records(created_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

func (s *Store) RecordUsage(ctx context.Context, rec *storage.UsageRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO usage_records (id, request_id, model, encoding,
	              content_tokens, resource_tokens, document_tokens, web_search_tokens, message_tokens,
	              total_tokens, context_window, exceeded, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.RequestID, rec.Model, rec.Encoding,
		rec.Content, rec.Resources, rec.Documents, rec.WebSearch, rec.Messages,
		rec.Total, rec.Window, rec.Exceeded, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert usage record: %w", err)
	}
	return nil
}

const selectColumns = `SELECT id, request_id, model, encoding,
	content_tokens, resource_tokens, document_tokens, web_search_tokens, message_tokens,
	total_tokens, context_window, exceeded, created_at
	FROM usage_records`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*storage.UsageRecord, error) {
	var rec storage.UsageRecord
	var requestID, model sql.NullString
	if err := row.Scan(&rec.ID, &requestID, &model, &rec.Encoding,
		&rec.Content, &rec.Resources, &rec.Documents, &rec.WebSearch, &rec.Messages,
		&rec.Total, &rec.Window, &rec.Exceeded, &rec.CreatedAt); err != nil {
		return nil, err
	}
	rec.RequestID = requestID.String
	rec.Model = model.String
	return &rec, nil
}

func (s *Store) GetUsage(ctx context.Context, id string) (*storage.UsageRecord, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get usage record: %w", err)
	}
	return rec, nil
}

func (s *Store) ListUsage(ctx context.Context, opts storage.ListOptions) ([]*storage.UsageRecord, error) {
	limit := opts.Limit
	if limit == 0 {
		limit = storage.DefaultListLimit
	}

	query := selectColumns + ` WHERE (? = '' OR model = ?)
	          ORDER BY created_at DESC, rowid DESC
	          LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, opts.Model, opts.Model, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage records: %w", err)
	}
	defer rows.Close()

	records := []*storage.UsageRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan usage record: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
