package localui

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mayapp/may/internal/chat"
	"github.com/mayapp/may/internal/chat/export"
	"github.com/mayapp/may/internal/chat/session"
	"github.com/mayapp/may/internal/chat/store"
	"github.com/mayapp/may/internal/chat/stream"
)

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	if s == nil || w == nil || r == nil {
		return
	}
	summaries := s.sess.Summaries()
	writeJSON(w, http.StatusOK, struct {
		Conversations []chat.ConversationSummary `json:"conversations"`
		ActiveID      string                     `json:"active_id"`
	}{
		Conversations: summaries,
		ActiveID:      s.sess.ActiveID(),
	})
}

type createConversationReq struct {
	// Manual distinguishes a user-initiated "new chat" from startup
	// bootstrapping, which reuses the most recent conversation instead of
	// creating an empty one.
	Manual bool `json:"manual"`
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	if s == nil || w == nil || r == nil {
		return
	}
	var req createConversationReq
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	id, err := s.sess.Create(r.Context(), req.Manual)
	if err != nil {
		s.log.Error("create conversation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "create failed")
		return
	}
	writeJSON(w, http.StatusOK, struct {
		ID string `json:"id"`
	}{ID: id})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	if s == nil || w == nil || r == nil {
		return
	}
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing id")
		return
	}
	rec, err := s.sess.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		s.log.Error("get conversation failed", "conversation_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "get failed")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleSelectConversation(w http.ResponseWriter, r *http.Request) {
	if s == nil || w == nil || r == nil {
		return
	}
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing id")
		return
	}
	if err := s.sess.Select(r.Context(), id); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		s.log.Error("select conversation failed", "conversation_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "select failed")
		return
	}
	writeJSON(w, http.StatusOK, s.sess.Active())
}

type renameConversationReq struct {
	Title string `json:"title"`
}

func (s *Server) handleRenameConversation(w http.ResponseWriter, r *http.Request) {
	if s == nil || w == nil || r == nil {
		return
	}
	id := strings.TrimSpace(r.PathValue("id"))
	var req renameConversationReq
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	// Renames apply to the active conversation only; the UI switches before
	// it edits a title, so anything else indicates a stale client view.
	if id == "" || id != s.sess.ActiveID() {
		writeError(w, http.StatusConflict, "conversation is not active")
		return
	}
	if err := s.sess.Rename(r.Context(), req.Title); err != nil {
		if errors.Is(err, session.ErrNoActiveConversation) {
			writeError(w, http.StatusConflict, "no active conversation")
			return
		}
		s.log.Error("rename conversation failed", "conversation_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "rename failed")
		return
	}
	writeJSON(w, http.StatusOK, s.sess.Active())
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if s == nil || w == nil || r == nil {
		return
	}
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing id")
		return
	}
	if err := s.sess.Delete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrDeleteUnverified) {
			s.log.Error("delete not verified", "conversation_id", id)
			writeError(w, http.StatusInternalServerError, "delete could not be verified")
			return
		}
		s.log.Error("delete conversation failed", "conversation_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Deleted  string `json:"deleted"`
		ActiveID string `json:"active_id"`
	}{Deleted: id, ActiveID: s.sess.ActiveID()})
}

type chatSendReq struct {
	Content string `json:"content"`
}

type sseEvent struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

// handleChatSend streams a model turn back to the client as server-sent
// events: zero or more "delta" events carrying the cumulative assistant text,
// then a single "done" or "error" event.
func (s *Server) handleChatSend(w http.ResponseWriter, r *http.Request) {
	if s == nil || w == nil || r == nil {
		return
	}
	var req chatSendReq
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "empty message")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	emit := func(ev sseEvent) {
		b, err := json.Marshal(ev)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", b)
		flusher.Flush()
	}

	final, err := s.reducer.Send(r.Context(), req.Content, func(cumulative string) {
		emit(sseEvent{Type: "delta", Content: cumulative})
	})
	if err != nil {
		switch {
		case errors.Is(err, stream.ErrAPIKeyMissing):
			emit(sseEvent{Type: "error", Error: "API key not set"})
		case errors.Is(err, stream.ErrStreamInFlight):
			emit(sseEvent{Type: "error", Error: "a response is already streaming"})
		case errors.Is(err, session.ErrNoActiveConversation):
			emit(sseEvent{Type: "error", Error: "no active conversation"})
		default:
			s.log.Error("chat send failed", "error", err)
			emit(sseEvent{Type: "error", Error: "request failed"})
		}
		return
	}
	emit(sseEvent{Type: "done", Content: final.Content})
}

type addClipboardReq struct {
	// MessageID references a message in the active conversation. For
	// full-message copies it must resolve; for selections it is an optional
	// back-reference that may point at an already-deleted message.
	MessageID    string `json:"message_id"`
	SelectedText string `json:"selected_text"`
}

func (s *Server) handleAddClipboardItem(w http.ResponseWriter, r *http.Request) {
	if s == nil || w == nil || r == nil {
		return
	}
	var req addClipboardReq
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	var item *chat.ClipboardItem
	var err error
	if strings.TrimSpace(req.SelectedText) != "" {
		item, err = s.sess.AddFromSelection(r.Context(), req.SelectedText, req.MessageID)
	} else {
		item, err = s.sess.AddFromMessage(r.Context(), req.MessageID)
	}
	if err != nil {
		switch {
		case errors.Is(err, session.ErrMessageNotFound):
			writeError(w, http.StatusNotFound, "message not found")
		case errors.Is(err, session.ErrNoActiveConversation):
			writeError(w, http.StatusConflict, "no active conversation")
		default:
			s.log.Error("add clipboard item failed", "error", err)
			writeError(w, http.StatusInternalServerError, "add failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleRemoveClipboardItem(w http.ResponseWriter, r *http.Request) {
	if s == nil || w == nil || r == nil {
		return
	}
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing id")
		return
	}
	if err := s.sess.RemoveClipboardItem(r.Context(), id); err != nil {
		if errors.Is(err, session.ErrNoActiveConversation) {
			writeError(w, http.StatusConflict, "no active conversation")
			return
		}
		s.log.Error("remove clipboard item failed", "item_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "remove failed")
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Removed string `json:"removed"`
	}{Removed: id})
}

type reorderClipboardReq struct {
	Items []chat.ClipboardItem `json:"items"`
}

func (s *Server) handleReorderClipboard(w http.ResponseWriter, r *http.Request) {
	if s == nil || w == nil || r == nil {
		return
	}
	var req reorderClipboardReq
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := s.sess.ReorderClipboard(r.Context(), req.Items); err != nil {
		if errors.Is(err, session.ErrNoActiveConversation) {
			writeError(w, http.StatusConflict, "no active conversation")
			return
		}
		s.log.Error("reorder clipboard failed", "error", err)
		writeError(w, http.StatusInternalServerError, "reorder failed")
		return
	}
	active := s.sess.Active()
	if active == nil {
		writeError(w, http.StatusConflict, "no active conversation")
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Items []chat.ClipboardItem `json:"items"`
	}{Items: active.ClipboardItems})
}

func (s *Server) handleExportMarkdown(w http.ResponseWriter, r *http.Request) {
	if s == nil || w == nil || r == nil {
		return
	}
	active := s.sess.Active()
	if active == nil {
		writeError(w, http.StatusConflict, "no active conversation")
		return
	}
	md := export.Markdown(active.ClipboardItems, time.Now())
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="clipboard.md"`)
	_, _ = w.Write([]byte(md))
}

func (s *Server) handleExportPrint(w http.ResponseWriter, r *http.Request) {
	if s == nil || w == nil || r == nil {
		return
	}
	active := s.sess.Active()
	if active == nil {
		writeError(w, http.StatusConflict, "no active conversation")
		return
	}
	html := export.PrintHTML(active.ClipboardItems, active.Title, time.Now())
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(html))
}

type configResp struct {
	// APIKeySet tells the UI whether a key exists. The key itself is never
	// returned; only derived status fields cross this boundary.
	APIKeySet bool   `json:"api_key_set"`
	Model     string `json:"model"`
	Theme     string `json:"theme"`
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if s == nil || w == nil || r == nil {
		return
	}
	writeJSON(w, http.StatusOK, configResp{
		APIKeySet: strings.TrimSpace(s.cfg.APIKey()) != "",
		Model:     s.cfg.Model(),
		Theme:     s.cfg.Theme(),
	})
}

type setConfigReq struct {
	APIKey *string `json:"api_key,omitempty"`
	Model  *string `json:"model,omitempty"`
	Theme  *string `json:"theme,omitempty"`
}

func (s *Server) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	if s == nil || w == nil || r == nil {
		return
	}
	var req setConfigReq
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	set := func(key string, v *string) error {
		if v == nil {
			return nil
		}
		return s.cfg.Set(r.Context(), key, *v)
	}
	if err := errors.Join(
		set(chat.ConfigKeyAPIKey, req.APIKey),
		set(chat.ConfigKeyModel, req.Model),
		set(chat.ConfigKeyTheme, req.Theme),
	); err != nil {
		s.log.Error("set config failed", "error", err)
		writeError(w, http.StatusInternalServerError, "set failed")
		return
	}
	writeJSON(w, http.StatusOK, configResp{
		APIKeySet: strings.TrimSpace(s.cfg.APIKey()) != "",
		Model:     s.cfg.Model(),
		Theme:     s.cfg.Theme(),
	})
}

type modelResp struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Provider    string `json:"provider"`
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	if s == nil || w == nil || r == nil {
		return
	}
	models := s.catalog.Models()
	out := make([]modelResp, 0, len(models))
	for _, m := range models {
		out = append(out, modelResp{ID: m.ID, DisplayName: m.DisplayName, Provider: m.Provider})
	}
	writeJSON(w, http.StatusOK, struct {
		Models   []modelResp `json:"models"`
		Selected string      `json:"selected"`
	}{Models: out, Selected: s.cfg.Model()})
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && err != io.EOF {
		return err
	}
	return nil
}
