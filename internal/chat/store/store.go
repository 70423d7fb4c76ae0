// Package store is the SQLite-backed persistence layer for conversations,
// their summary projections, and app configuration.
//
// Notes:
// - Conversation records and summaries are co-maintained: every write path
//   funnels through Save, which upserts both inside one transaction. A reader
//   never observes one without the other.
// - WAL is enabled to support concurrent reads while writing.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mayapp/may/internal/chat"
)

// ErrNotFound reports a conversation id that is absent from the store.
var ErrNotFound = errors.New("conversation not found")

type Store struct {
	db  *sql.DB
	log *slog.Logger

	// Settle intervals between a delete commit and its verification read.
	// Tunable so tests do not pay the real engine-latency budget.
	settleFirst  time.Duration
	settleSecond time.Duration

	// verify is the post-delete absence check, verifyAbsent unless a test
	// swaps it in: a strongly consistent engine never takes the retry or
	// failure transitions on its own.
	verify func(ctx context.Context, id string) (bool, error)
}

func Open(path string, log *slog.Logger) (*Store, error) {
	p := filepath.Clean(strings.TrimSpace(path))
	if p == "" {
		return nil, errors.New("missing db path")
	}
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &Store{
		db:           db,
		log:          log,
		settleFirst:  500 * time.Millisecond,
		settleSecond: time.Second,
	}
	st.verify = st.verifyAbsent
	return st, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save upserts the full record and its recomputed summary in one atomic
// transaction. Messages are capped to the newest chat.MessageCap entries and
// loading flags are coerced to false; clipboard items are renumbered densely.
func (s *Store) Save(ctx context.Context, c *chat.Conversation) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if c == nil || strings.TrimSpace(c.ID) == "" {
		return errors.New("invalid conversation")
	}

	rec := c.Clone()
	rec.ID = strings.TrimSpace(rec.ID)
	rec.Messages = chat.CoerceLoaded(chat.CapMessages(rec.Messages))
	rec.ClipboardItems = chat.Renumber(rec.ClipboardItems)

	now := time.Now().UnixMilli()
	if rec.CreatedAtUnixMs <= 0 {
		rec.CreatedAtUnixMs = now
	}
	if rec.UpdatedAtUnixMs <= 0 {
		rec.UpdatedAtUnixMs = rec.CreatedAtUnixMs
	}

	messagesJSON, err := json.Marshal(rec.Messages)
	if err != nil {
		return fmt.Errorf("encoding messages: %w", err)
	}
	clipboardJSON, err := json.Marshal(rec.ClipboardItems)
	if err != nil {
		return fmt.Errorf("encoding clipboard items: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO conversations(id, title, messages_json, clipboard_json, created_at_unix_ms, updated_at_unix_ms)
VALUES(?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  title = excluded.title,
  messages_json = excluded.messages_json,
  clipboard_json = excluded.clipboard_json,
  updated_at_unix_ms = excluded.updated_at_unix_ms
`, rec.ID, rec.Title, string(messagesJSON), string(clipboardJSON), rec.CreatedAtUnixMs, rec.UpdatedAtUnixMs); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO conversation_summaries(id, title, preview, message_count, updated_at_unix_ms)
VALUES(?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  title = excluded.title,
  preview = excluded.preview,
  message_count = excluded.message_count,
  updated_at_unix_ms = excluded.updated_at_unix_ms
`, rec.ID, rec.Title, chat.Preview(rec.Messages), len(rec.Messages), rec.UpdatedAtUnixMs); err != nil {
		return err
	}

	return tx.Commit()
}

// Get returns the conversation with the given id, or (nil, nil) when absent.
// Loading flags are coerced to false on the way out.
func (s *Store) Get(ctx context.Context, id string) (*chat.Conversation, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("missing conversation id")
	}

	var c chat.Conversation
	var messagesJSON, clipboardJSON string
	err := s.db.QueryRowContext(ctx, `
SELECT id, title, messages_json, clipboard_json, created_at_unix_ms, updated_at_unix_ms
FROM conversations
WHERE id = ?
`, id).Scan(&c.ID, &c.Title, &messagesJSON, &clipboardJSON, &c.CreatedAtUnixMs, &c.UpdatedAtUnixMs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if err := json.Unmarshal([]byte(messagesJSON), &c.Messages); err != nil {
		return nil, fmt.Errorf("decoding messages: %w", err)
	}
	if err := json.Unmarshal([]byte(clipboardJSON), &c.ClipboardItems); err != nil {
		return nil, fmt.Errorf("decoding clipboard items: %w", err)
	}
	c.Messages = chat.CoerceLoaded(c.Messages)
	return &c, nil
}

// List returns all summaries ordered by updated_at descending.
func (s *Store) List(ctx context.Context) ([]chat.ConversationSummary, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, title, preview, message_count, updated_at_unix_ms
FROM conversation_summaries
ORDER BY updated_at_unix_ms DESC, id DESC
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []chat.ConversationSummary
	for rows.Next() {
		var m chat.ConversationSummary
		if err := rows.Scan(&m.ID, &m.Title, &m.Preview, &m.MessageCount, &m.UpdatedAtUnixMs); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// LastActiveID returns the id of the most recently updated conversation, or
// "" when the store is empty.
func (s *Store) LastActiveID(ctx context.Context) (string, error) {
	summaries, err := s.List(ctx)
	if err != nil {
		return "", err
	}
	if len(summaries) == 0 {
		return "", nil
	}
	return summaries[0].ID, nil
}

func initSchema(db *sql.DB) error {
	if db == nil {
		return errors.New("nil db")
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return fmt.Errorf("pragma journal_mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=3000;`); err != nil {
		return fmt.Errorf("pragma busy_timeout: %w", err)
	}
	return migrateSchema(db)
}

// migrateSchema applies additive migrations keyed off PRAGMA user_version.
// Version 1 creates the conversation tables; version 2 adds the config
// table. Upgrades only ever add tables, never rewrite existing ones.
func migrateSchema(db *sql.DB) error {
	if db == nil {
		return errors.New("nil db")
	}
	const targetVersion = 2

	var v int
	if err := db.QueryRow(`PRAGMA user_version;`).Scan(&v); err != nil {
		return fmt.Errorf("pragma user_version: %w", err)
	}
	if v >= targetVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if v < 1 {
		if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS conversations (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL DEFAULT '',
  messages_json TEXT NOT NULL DEFAULT '[]',
  clipboard_json TEXT NOT NULL DEFAULT '[]',
  created_at_unix_ms INTEGER NOT NULL,
  updated_at_unix_ms INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS conversation_summaries (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL DEFAULT '',
  preview TEXT NOT NULL DEFAULT '',
  message_count INTEGER NOT NULL DEFAULT 0,
  updated_at_unix_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversation_summaries_updated ON conversation_summaries(updated_at_unix_ms DESC, id DESC);
`); err != nil {
			return err
		}
	}

	if v < 2 {
		if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS app_config (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL DEFAULT ''
);
`); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(fmt.Sprintf(`PRAGMA user_version=%d;`, targetVersion)); err != nil {
		return err
	}
	return tx.Commit()
}
