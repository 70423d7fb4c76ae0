// Package session owns the in-memory "active conversation" view and mediates
// every mutation against the store. The controller operates on its own copy
// of the active record and serializes writes through Save, so in-memory state
// only advances after the corresponding persistence call succeeds.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mayapp/may/internal/chat"
	"github.com/mayapp/may/internal/chat/store"
)

var (
	// ErrNotFound reports a select/get against an id absent from the store.
	ErrNotFound = store.ErrNotFound
	// ErrNoActiveConversation reports a mutation with no active conversation.
	ErrNoActiveConversation = errors.New("no active conversation")
)

// Controller lives for the lifetime of the application session.
// Conversations are created and destroyed; the controller itself is not.
type Controller struct {
	log   *slog.Logger
	store *store.Store

	mu        sync.Mutex
	summaries []chat.ConversationSummary
	active    *chat.Conversation
}

func New(st *store.Store, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{log: log, store: st}
}

// Init loads the summary list and restores the persisted active conversation.
// When the pointer is unset or stale it falls back to the most recently
// updated conversation. An empty store leaves the session with no active
// conversation; nothing is auto-created here.
func (c *Controller) Init(ctx context.Context) error {
	if c == nil || c.store == nil {
		return errors.New("controller not initialized")
	}

	summaries, err := c.store.List(ctx)
	if err != nil {
		return fmt.Errorf("loading conversation list: %w", err)
	}
	c.mu.Lock()
	c.summaries = summaries
	c.mu.Unlock()

	if len(summaries) == 0 {
		return nil
	}

	activeID := c.store.ActiveConversationID(ctx)
	known := false
	for _, m := range summaries {
		if m.ID == activeID {
			known = true
			break
		}
	}
	if activeID == "" || !known {
		activeID = summaries[0].ID
	}
	return c.Select(ctx, activeID)
}

// Summaries returns the current in-memory summary list.
func (c *Controller) Summaries() []chat.ConversationSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]chat.ConversationSummary(nil), c.summaries...)
}

// Active returns a copy of the active conversation, or nil when none is
// selected. Mutations go through the controller, never through the copy.
func (c *Controller) Active() *chat.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active.Clone()
}

// ActiveID returns the active conversation id, or "".
func (c *Controller) ActiveID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return ""
	}
	return c.active.ID
}

// Get loads a conversation without making it active. The active conversation
// is served from memory so a Get cannot observe a stale persisted copy of it.
func (c *Controller) Get(ctx context.Context, id string) (*chat.Conversation, error) {
	if c == nil || c.store == nil {
		return nil, errors.New("controller not initialized")
	}

	c.mu.Lock()
	if c.active != nil && c.active.ID == id {
		rec := c.active.Clone()
		c.mu.Unlock()
		return rec, nil
	}
	c.mu.Unlock()

	rec, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading conversation %s: %w", id, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	rec.Messages = chat.CoerceLoaded(rec.Messages)
	return rec, nil
}

// Select flushes the outgoing active record to the store, loads the target,
// coerces message loading flags, sets it active and persists the pointer.
// ErrNotFound leaves the session state unchanged.
//
// The flush assumes the in-memory copy is newer than its last persisted
// write. Two selects in rapid succession can persist a stale intermediate
// state; see the race test in session_test.go.
func (c *Controller) Select(ctx context.Context, id string) error {
	if c == nil || c.store == nil {
		return errors.New("controller not initialized")
	}

	c.mu.Lock()
	outgoing := c.active.Clone()
	c.mu.Unlock()

	if outgoing != nil && outgoing.ID != id {
		if err := c.store.Save(ctx, outgoing); err != nil {
			return fmt.Errorf("flushing conversation %s: %w", outgoing.ID, err)
		}
	}

	target, err := c.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("loading conversation %s: %w", id, err)
	}
	if target == nil {
		return fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	target.Messages = chat.CoerceLoaded(target.Messages)

	if err := c.store.SetActiveConversationID(ctx, id); err != nil {
		c.log.Warn("persisting active pointer failed", "conversation_id", id, "err", err)
	}

	c.mu.Lock()
	c.active = target
	c.mu.Unlock()
	return nil
}

// Create makes a new empty conversation, persists it and sets it active.
//
// When manual is false (programmatic/startup path) and at least one
// conversation already exists, no record is created: the most recently
// updated id is returned instead. This keeps repeated app inits from piling
// up duplicate welcome conversations. Manual creation always creates.
func (c *Controller) Create(ctx context.Context, manual bool) (string, error) {
	if c == nil || c.store == nil {
		return "", errors.New("controller not initialized")
	}

	if !manual {
		existing, err := c.store.LastActiveID(ctx)
		if err != nil {
			return "", fmt.Errorf("checking existing conversations: %w", err)
		}
		if existing != "" {
			return existing, nil
		}
	}

	now := time.Now()
	rec := &chat.Conversation{
		ID:              chat.NewConversationID(),
		Title:           chat.DefaultTitle(now),
		Messages:        []chat.Message{},
		ClipboardItems:  []chat.ClipboardItem{},
		CreatedAtUnixMs: now.UnixMilli(),
		UpdatedAtUnixMs: now.UnixMilli(),
	}

	if err := c.store.Save(ctx, rec); err != nil {
		return "", fmt.Errorf("creating conversation: %w", err)
	}
	if err := c.store.SetActiveConversationID(ctx, rec.ID); err != nil {
		c.log.Warn("persisting active pointer failed", "conversation_id", rec.ID, "err", err)
	}

	c.mu.Lock()
	c.active = rec
	c.mu.Unlock()

	if err := c.refreshSummaries(ctx); err != nil {
		c.log.Warn("refreshing summaries failed", "err", err)
	}
	c.log.Info("conversation created", "conversation_id", rec.ID, "manual", manual)
	return rec.ID, nil
}

// Delete removes the conversation through the store's verified delete. On
// success the summary is removed from the in-memory list immediately; when
// the deleted id was active, the session drops to no-active-conversation and
// the pointer is cleared. No replacement is auto-selected: the caller prompts
// the user to pick one.
func (c *Controller) Delete(ctx context.Context, id string) error {
	if c == nil || c.store == nil {
		return errors.New("controller not initialized")
	}

	if err := c.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting conversation %s: %w", id, err)
	}

	c.mu.Lock()
	kept := c.summaries[:0]
	for _, m := range c.summaries {
		if m.ID != id {
			kept = append(kept, m)
		}
	}
	c.summaries = kept
	wasActive := c.active != nil && c.active.ID == id
	if wasActive {
		c.active = nil
	}
	c.mu.Unlock()

	if wasActive {
		if err := c.store.SetActiveConversationID(ctx, ""); err != nil {
			c.log.Warn("clearing active pointer failed", "err", err)
		}
	}
	c.log.Info("conversation deleted", "conversation_id", id, "was_active", wasActive)
	return nil
}

// UpdateActive replaces the active record's messages and clipboard items,
// bumps updated_at, persists, and refreshes the summary list.
//
// Title derivation happens here and only here: when the record previously
// had zero messages and the first incoming message is from the user, the
// title is set from that message. It is never overwritten afterwards.
func (c *Controller) UpdateActive(ctx context.Context, messages []chat.Message, clipboardItems []chat.ClipboardItem) error {
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

	firstMessageSetsTitle := len(rec.Messages) == 0 &&
		len(messages) > 0 && messages[0].Role == chat.RoleUser

	rec.Messages = chat.CoerceLoaded(chat.CapMessages(messages))
	rec.ClipboardItems = chat.Renumber(clipboardItems)
	rec.UpdatedAtUnixMs = time.Now().UnixMilli()
	if firstMessageSetsTitle {
		rec.Title = chat.TitleFromMessage(messages[0].Content)
	}

	if err := c.store.Save(ctx, rec); err != nil {
		return fmt.Errorf("saving conversation %s: %w", rec.ID, err)
	}

	c.mu.Lock()
	// Guard against the active record having been switched while saving.
	if c.active != nil && c.active.ID == rec.ID {
		c.active = rec
	}
	c.mu.Unlock()

	if err := c.refreshSummaries(ctx); err != nil {
		c.log.Warn("refreshing summaries failed", "err", err)
	}
	return nil
}

// Rename sets the active conversation's title explicitly.
func (c *Controller) Rename(ctx context.Context, title string) error {
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

	rec.Title = title
	rec.UpdatedAtUnixMs = time.Now().UnixMilli()

	if err := c.store.Save(ctx, rec); err != nil {
		return fmt.Errorf("renaming conversation %s: %w", rec.ID, err)
	}

	c.mu.Lock()
	if c.active != nil && c.active.ID == rec.ID {
		c.active = rec
	}
	c.mu.Unlock()

	return c.refreshSummaries(ctx)
}

// RefreshSummaries reloads the summary list from the store. Used by callers
// after a verification failure, when the optimistic list cannot be trusted.
func (c *Controller) RefreshSummaries(ctx context.Context) error {
	return c.refreshSummaries(ctx)
}

func (c *Controller) refreshSummaries(ctx context.Context) error {
	summaries, err := c.store.List(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.summaries = summaries
	c.mu.Unlock()
	return nil
}
