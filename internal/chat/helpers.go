package chat

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewConversationID returns a unique conversation id: a base36 millisecond
// timestamp plus a random suffix. Conversation ids are immutable after
// creation.
func NewConversationID() string {
	var b [5]byte
	_, _ = rand.Read(b[:])
	return strconv.FormatInt(time.Now().UnixMilli(), 36) + "-" + hex.EncodeToString(b[:])
}

// NewItemID returns a unique id for messages and clipboard items.
func NewItemID() string {
	return uuid.NewString()
}

// DefaultTitle returns the timestamp-based title used for conversations that
// have no messages yet.
func DefaultTitle(now time.Time) string {
	return "New conversation " + now.Format("2006-01-02 15:04")
}

// TitleFromMessage derives a conversation title from the first user message:
// the trimmed content, truncated to 20 runes with an ellipsis when longer.
func TitleFromMessage(content string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return DefaultTitle(time.Now())
	}
	runes := []rune(content)
	if len(runes) <= 20 {
		return content
	}
	return string(runes[:20]) + "..."
}

// CapMessages drops the oldest messages beyond MessageCap.
func CapMessages(msgs []Message) []Message {
	if len(msgs) <= MessageCap {
		return msgs
	}
	return msgs[len(msgs)-MessageCap:]
}

// CoerceLoaded returns a copy of msgs with every Loading flag forced to
// false. Applied before persistence and when loading history for display.
func CoerceLoaded(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		m.Loading = false
		out[i] = m
	}
	return out
}

// Renumber rewrites clipboard item Order fields to a dense 0..n-1 sequence
// following slice position, regardless of the input Order values. It is
// applied at the end of every clipboard-mutating operation.
func Renumber(items []ClipboardItem) []ClipboardItem {
	out := make([]ClipboardItem, len(items))
	for i, it := range items {
		it.Order = i
		out[i] = it
	}
	return out
}

// Preview returns the list preview for a message list: the last message's
// content truncated to 50 runes with an ellipsis, or "" when empty.
func Preview(msgs []Message) string {
	if len(msgs) == 0 {
		return ""
	}
	content := msgs[len(msgs)-1].Content
	runes := []rune(content)
	if len(runes) <= 50 {
		return content
	}
	return string(runes[:50]) + "..."
}
