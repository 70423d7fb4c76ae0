package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrDeleteUnverified reports a delete whose post-commit verification still
// saw the record or its summary after the retry budget was exhausted.
// Callers must not trust local optimistic removal and should re-fetch the
// list.
var ErrDeleteUnverified = errors.New("delete not verified")

// deleteState tracks the delete-verify protocol. The engine's delete
// acknowledgment does not guarantee a subsequent read sees the absence, so
// deletes settle, verify, and retry once before reporting failure. A silent
// partial delete (record gone, summary stale, or vice versa) would surface as
// a zombie conversation in the list.
type deleteState int

const (
	deletePending deleteState = iota
	deleteVerifying
	deleteConfirmed
	deleteFailed
)

const deleteMaxAttempts = 2

// Delete removes the conversation and its summary in one transaction, then
// verifies both reads come back absent. Deleting an id that is already gone
// is a success: absence is the success condition.
//
// If the id is the persisted active-conversation pointer, the pointer is
// cleared first.
func (s *Store) Delete(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("missing conversation id")
	}

	if s.ActiveConversationID(ctx) == id {
		if err := s.SetActiveConversationID(ctx, ""); err != nil {
			return fmt.Errorf("clearing active pointer: %w", err)
		}
	}

	state := deletePending
	attempt := 0
	for {
		switch state {
		case deletePending:
			attempt++
			if err := s.execDelete(ctx, id); err != nil {
				return err
			}
			state = deleteVerifying

		case deleteVerifying:
			settle := s.settleFirst
			if attempt > 1 {
				settle = s.settleSecond
			}
			if err := sleepCtx(ctx, settle); err != nil {
				return err
			}
			gone, err := s.verify(ctx, id)
			if err != nil {
				return err
			}
			switch {
			case gone:
				state = deleteConfirmed
			case attempt < deleteMaxAttempts:
				s.log.Warn("delete verification failed, retrying", "conversation_id", id, "attempt", attempt)
				state = deletePending
			default:
				state = deleteFailed
			}

		case deleteConfirmed:
			return nil

		case deleteFailed:
			return fmt.Errorf("conversation %s: %w", id, ErrDeleteUnverified)
		}
	}
}

func (s *Store) execDelete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// No RowsAffected check here: deleting an absent row is fine, the
	// verification pass is what decides success.
	if _, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM conversation_summaries WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// verifyAbsent re-reads both tables by id; success requires both absent.
func (s *Store) verifyAbsent(ctx context.Context, id string) (bool, error) {
	var records, summaries int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM conversations WHERE id = ?`, id).Scan(&records); err != nil {
		return false, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM conversation_summaries WHERE id = ?`, id).Scan(&summaries); err != nil {
		return false, err
	}
	return records == 0 && summaries == 0, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
