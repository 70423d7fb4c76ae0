// Package chat defines the core data model for conversations, messages and
// clipboard items, plus the pure helpers shared by the store and session
// layers.
package chat

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// MessageCap is the maximum number of messages kept per conversation.
// Older messages are dropped silently on every write.
const MessageCap = 100

// Message is a single chat turn.
//
// Loading marks a transient placeholder for an in-flight assistant reply.
// It is never persisted as true: the store coerces it to false on save and
// again on load.
type Message struct {
	ID              string `json:"id"`
	Role            Role   `json:"role"`
	Content         string `json:"content"`
	TimestampUnixMs int64  `json:"timestamp_unix_ms"`
	Loading         bool   `json:"loading,omitempty"`
}

// ClipboardSource is a back-reference to the message a clipboard item was
// taken from. It is informational only: deleting the source message does not
// cascade to the item.
type ClipboardSource struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
}

// ClipboardItem is a user-curated snippet attached to a conversation.
// Order is the persisted sort key and is kept dense (0..n-1) on every write.
type ClipboardItem struct {
	ID              string           `json:"id"`
	Content         string           `json:"content"`
	TimestampUnixMs int64            `json:"timestamp_unix_ms"`
	Order           int              `json:"order"`
	Source          *ClipboardSource `json:"source,omitempty"`
}

// Conversation is the full persisted record.
type Conversation struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	Messages        []Message       `json:"messages"`
	ClipboardItems  []ClipboardItem `json:"clipboard_items"`
	CreatedAtUnixMs int64           `json:"created_at_unix_ms"`
	UpdatedAtUnixMs int64           `json:"updated_at_unix_ms"`
}

// ConversationSummary is the denormalized projection used for list rendering.
// It is written and deleted in the same transaction as its backing record and
// must never drift from it.
type ConversationSummary struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Preview         string `json:"preview"`
	MessageCount    int    `json:"message_count"`
	UpdatedAtUnixMs int64  `json:"updated_at_unix_ms"`
}

// Config keys stored in the key/value table.
const (
	ConfigKeyAPIKey               = "api-key"
	ConfigKeyModel                = "selected-model"
	ConfigKeyTheme                = "app-theme"
	ConfigKeyActiveConversationID = "active-conversation-id"
)

// Clone returns a deep copy of the conversation. The session controller
// operates on its own copy so that in-memory state only advances after the
// corresponding persistence call succeeds.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.Messages = append([]Message(nil), c.Messages...)
	out.ClipboardItems = make([]ClipboardItem, len(c.ClipboardItems))
	for i, it := range c.ClipboardItems {
		out.ClipboardItems[i] = it
		if it.Source != nil {
			src := *it.Source
			out.ClipboardItems[i].Source = &src
		}
	}
	return &out
}
