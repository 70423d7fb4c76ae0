package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mayapp/may/internal/chat"
)

// ErrMessageNotFound reports a clipboard add referencing a message id absent
// from the active conversation.
var ErrMessageNotFound = errors.New("message not found")

// Every clipboard operation follows the same read-modify-write discipline as
// UpdateActive: clone the active record, mutate the clipboard array, renumber
// densely, persist, refresh summaries.

// AddFromMessage copies a whole message into the clipboard, recording its
// source. The source is a back-reference only: deleting the message later
// does not remove the item.
func (c *Controller) AddFromMessage(ctx context.Context, messageID string) (*chat.ClipboardItem, error) {
	return c.addClipboardItem(ctx, messageID, func(m *chat.Message) (string, error) {
		if m == nil {
			return "", fmt.Errorf("message %s: %w", messageID, ErrMessageNotFound)
		}
		return m.Content, nil
	})
}

// AddFromSelection adds a user-selected text fragment, attributed to the
// message it was selected from. The message does not need to exist: a
// selection can outlive its source.
func (c *Controller) AddFromSelection(ctx context.Context, selectedText, messageID string) (*chat.ClipboardItem, error) {
	return c.addClipboardItem(ctx, messageID, func(*chat.Message) (string, error) {
		return selectedText, nil
	})
}

func (c *Controller) addClipboardItem(ctx context.Context, messageID string, content func(*chat.Message) (string, error)) (*chat.ClipboardItem, error) {
	if c == nil || c.store == nil {
		return nil, errors.New("controller not initialized")
	}

	c.mu.Lock()
	if c.active == nil {
		c.mu.Unlock()
		return nil, ErrNoActiveConversation
	}
	rec := c.active.Clone()
	c.mu.Unlock()

	var source *chat.Message
	for i := range rec.Messages {
		if rec.Messages[i].ID == messageID {
			source = &rec.Messages[i]
			break
		}
	}
	text, err := content(source)
	if err != nil {
		return nil, err
	}

	item := chat.ClipboardItem{
		ID:              chat.NewItemID(),
		Content:         text,
		TimestampUnixMs: time.Now().UnixMilli(),
		Order:           len(rec.ClipboardItems),
	}
	if messageID != "" {
		item.Source = &chat.ClipboardSource{ConversationID: rec.ID, MessageID: messageID}
	}

	rec.ClipboardItems = chat.Renumber(append(rec.ClipboardItems, item))
	if err := c.persistClipboard(ctx, rec); err != nil {
		return nil, err
	}
	return &item, nil
}

// RemoveClipboardItem deletes an item and renumbers the remainder.
func (c *Controller) RemoveClipboardItem(ctx context.Context, itemID string) error {
	if c == nil || c.store == nil {
		return errors.New("controller not initialized")
	}

	c.mu.Lock()
	if c.active == nil {
		c.mu.Unlock()
		return ErrNoActiveConversation
	}
	rec := c.active.Clone()
	c.mu.Unlock()

	kept := rec.ClipboardItems[:0]
	for _, it := range rec.ClipboardItems {
		if it.ID != itemID {
			kept = append(kept, it)
		}
	}
	rec.ClipboardItems = chat.Renumber(kept)
	return c.persistClipboard(ctx, rec)
}

// ReorderClipboard replaces the clipboard with items in the given sequence.
// Persisted Order values are exactly 0..n-1 in that sequence's order,
// regardless of the input Order fields.
func (c *Controller) ReorderClipboard(ctx context.Context, items []chat.ClipboardItem) error {
	if c == nil || c.store == nil {
		return errors.New("controller not initialized")
	}

	c.mu.Lock()
	if c.active == nil {
		c.mu.Unlock()
		return ErrNoActiveConversation
	}
	rec := c.active.Clone()
	c.mu.Unlock()

	rec.ClipboardItems = chat.Renumber(items)
	return c.persistClipboard(ctx, rec)
}

func (c *Controller) persistClipboard(ctx context.Context, rec *chat.Conversation) error {
	rec.UpdatedAtUnixMs = time.Now().UnixMilli()
	if err := c.store.Save(ctx, rec); err != nil {
		return fmt.Errorf("saving conversation %s: %w", rec.ID, err)
	}

	c.mu.Lock()
	if c.active != nil && c.active.ID == rec.ID {
		c.active = rec
	}
	c.mu.Unlock()

	if err := c.refreshSummaries(ctx); err != nil {
		c.log.Warn("refreshing summaries failed", "err", err)
	}
	return nil
}
