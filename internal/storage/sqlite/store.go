package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/ports"
)

// Store is a SQLite implementation of ports.HistoryStore.
type Store struct {
	db *sqlx.DB
}

var _ ports.HistoryStore = (*Store)(nil)

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
}

// New opens (or creates) the database at dsn and ensures the schema exists.
func New(dsn string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute pragma: %w", err)
		}
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
		`CREATE TABLE IF NOT EXISTS history (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_history_conversation ON history(conversation_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_history_created ON history(created_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Append(ctx context.Context, rec *ports.HistoryRecord) error {
	if rec.ID == "" {
		rec.ID = "msg_" + uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	_, err := s.db.NamedExecContext(ctx, `INSERT INTO history (id, conversation_id, role, content, created_at)
		VALUES (:id, :conversation_id, :role, :content, :created_at)`, rec)
	if err != nil {
		return fmt.Errorf("failed to insert history: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, conversationID string, limit int) ([]*ports.HistoryRecord, error) {
	var records []*ports.HistoryRecord
	var err error

	if limit > 0 {
		// newest N, re-ordered oldest first
		err = s.db.SelectContext(ctx, &records, `SELECT id, conversation_id, role, content, created_at FROM (
			SELECT id, conversation_id, role, content, created_at, rowid AS rid FROM history
			WHERE conversation_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?
		) ORDER BY created_at ASC, rid ASC`, conversationID, limit)
	} else {
		err = s.db.SelectContext(ctx, &records, `SELECT id, conversation_id, role, content, created_at
			FROM history WHERE conversation_id = ? ORDER BY created_at ASC, rowid ASC`, conversationID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	return records, nil
}

func (s *Store) Clear(ctx context.Context, conversationID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM history WHERE conversation_id = ?`, conversationID); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

func (s *Store) PruneBefore(ctx context.Context, t time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM history WHERE created_at < ?`, t)
	if err != nil {
		return 0, fmt.Errorf("failed to prune history: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) Close() error {
	return s.db.Close()
}
