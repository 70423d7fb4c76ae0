// Package stream accumulates incremental producer chunks into a single
// growing assistant message and reconciles the final state into the session.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mayapp/may/internal/ai/provider"
	"github.com/mayapp/may/internal/chat"
	"github.com/mayapp/may/internal/chat/session"
)

var (
	// ErrAPIKeyMissing reports a send attempted before an API key was set.
	ErrAPIKeyMissing = errors.New("api key not set")
	// ErrStreamInFlight reports a second send against a conversation whose
	// previous cycle has not finished. The UI is expected to disable input
	// while a cycle is pending; this guard turns the caller error into a
	// clean failure instead of interleaved state.
	ErrStreamInFlight = errors.New("a response is already streaming for this conversation")
)

// Config supplies the key and model for outbound requests. Values come from
// the config memory cache and may be stale relative to the durable store;
// staleness is accepted here — worst case a send uses the previous model
// selection.
type Config interface {
	APIKey() string
	Model() string
}

// Reducer drives one send-message cycle: append user message + loading
// placeholder, fold cumulative chunks into the placeholder, then persist the
// final array through the session controller.
type Reducer struct {
	log      *slog.Logger
	session  *session.Controller
	producer provider.Producer
	config   Config

	// onUpdate receives every in-memory message snapshot during a cycle
	// (placeholder growth included) for the UI to render. May be nil.
	onUpdate func(conversationID string, msgs []chat.Message)

	mu       sync.Mutex
	inflight map[string]bool
}

func New(sess *session.Controller, producer provider.Producer, cfg Config, log *slog.Logger) *Reducer {
	if log == nil {
		log = slog.Default()
	}
	return &Reducer{
		log:      log,
		session:  sess,
		producer: producer,
		config:   cfg,
		inflight: make(map[string]bool),
	}
}

// SetOnUpdate registers the progress observer. Not safe to call during a
// send.
func (r *Reducer) SetOnUpdate(fn func(conversationID string, msgs []chat.Message)) {
	r.onUpdate = fn
}

// Send runs a full cycle against the active conversation and returns the
// final assistant message. onProgress, when non-nil, receives the cumulative
// placeholder text after every chunk.
//
// On producer failure the placeholder is discarded — a half-formed assistant
// turn is never persisted — but the user message is kept and saved, so the
// user can retry.
func (r *Reducer) Send(ctx context.Context, content string, onProgress func(cumulative string)) (*chat.Message, error) {
	if r == nil || r.session == nil || r.producer == nil {
		return nil, errors.New("reducer not initialized")
	}

	active := r.session.Active()
	if active == nil {
		return nil, session.ErrNoActiveConversation
	}
	apiKey := r.config.APIKey()
	if apiKey == "" {
		return nil, ErrAPIKeyMissing
	}
	model := r.config.Model()

	r.mu.Lock()
	if r.inflight[active.ID] {
		r.mu.Unlock()
		return nil, ErrStreamInFlight
	}
	r.inflight[active.ID] = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.inflight, active.ID)
		r.mu.Unlock()
	}()

	now := time.Now().UnixMilli()
	userMsg := chat.Message{
		ID:              chat.NewItemID(),
		Role:            chat.RoleUser,
		Content:         content,
		TimestampUnixMs: now,
	}
	placeholder := chat.Message{
		ID:              chat.NewItemID(),
		Role:            chat.RoleAssistant,
		TimestampUnixMs: now,
		Loading:         true,
	}

	// The user message and the placeholder become visible immediately.
	working := append(append([]chat.Message(nil), active.Messages...), userMsg, placeholder)
	r.notify(active.ID, working)

	outbound := outboundMessages(working)

	final, err := r.producer.Stream(ctx, apiKey, model, outbound, func(cumulative string) {
		working[len(working)-1].Content = cumulative
		r.notify(active.ID, working)
		if onProgress != nil {
			onProgress(cumulative)
		}
	})
	if err != nil {
		// Drop the placeholder, keep the user's prompt.
		working = working[:len(working)-1]
		r.notify(active.ID, working)
		if perr := r.persistTurn(ctx, active.ID, working); perr != nil {
			r.log.Warn("persisting after stream failure failed", "conversation_id", active.ID, "err", perr)
		}
		return nil, fmt.Errorf("streaming response: %w", err)
	}

	last := len(working) - 1
	working[last].Content = final
	working[last].Loading = false
	r.notify(active.ID, working)

	if err := r.persistTurn(ctx, active.ID, working); err != nil {
		return nil, err
	}
	done := working[last]
	return &done, nil
}

// persistTurn saves the working message set paired with the clipboard as it
// stands now, not the snapshot taken at cycle start: clipboard edits made
// while the stream was in flight must survive the save. The write is skipped
// with an error when the conversation was switched or deleted mid-stream, so
// a finished turn is never written into a different record.
func (r *Reducer) persistTurn(ctx context.Context, conversationID string, msgs []chat.Message) error {
	cur := r.session.Active()
	if cur == nil {
		return session.ErrNoActiveConversation
	}
	if cur.ID != conversationID {
		return fmt.Errorf("conversation %s is no longer active", conversationID)
	}
	return r.session.UpdateActive(ctx, msgs, cur.ClipboardItems)
}

// outboundMessages filters the working set down to what the producer may
// see: no in-flight placeholders, no role-less entries.
func outboundMessages(msgs []chat.Message) []provider.TurnMessage {
	out := make([]provider.TurnMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.Loading || m.Role == "" {
			continue
		}
		out = append(out, provider.TurnMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}

func (r *Reducer) notify(conversationID string, msgs []chat.Message) {
	if r.onUpdate == nil {
		return
	}
	r.onUpdate(conversationID, append([]chat.Message(nil), msgs...))
}
