package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/mayapp/may/internal/chat"
)

// SetConfig upserts a config value. Callers must treat config persistence as
// best-effort: a returned error means the value may not survive a restart.
func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("missing config key")
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO app_config(key, value) VALUES(?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value
`, key, value)
	return err
}

// GetConfig returns the stored value for key, or def when the key is absent
// or the read fails. Read faults are logged, not returned.
func (s *Store) GetConfig(ctx context.Context, key, def string) string {
	if s == nil || s.db == nil {
		return def
	}
	if ctx == nil {
		ctx = context.Background()
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return def
	}

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM app_config WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.log.Warn("config read failed", "key", key, "err", err)
		}
		return def
	}
	return value
}

// DeleteConfig removes a config entry. Deleting an absent key is a no-op.
func (s *Store) DeleteConfig(ctx context.Context, key string) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("missing config key")
	}

	_, err := s.db.ExecContext(ctx, `DELETE FROM app_config WHERE key = ?`, key)
	return err
}

// SetActiveConversationID persists the active-conversation pointer.
// An empty id clears it.
func (s *Store) SetActiveConversationID(ctx context.Context, id string) error {
	return s.SetConfig(ctx, chat.ConfigKeyActiveConversationID, strings.TrimSpace(id))
}

// ActiveConversationID returns the persisted active-conversation pointer, or
// "" when unset.
func (s *Store) ActiveConversationID(ctx context.Context) string {
	return s.GetConfig(ctx, chat.ConfigKeyActiveConversationID, "")
}

// Reset clears all conversations, summaries and config in one transaction,
// restoring the store to its initial state.
func (s *Store) Reset(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"conversations", "conversation_summaries", "app_config"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return err
		}
	}
	return tx.Commit()
}
