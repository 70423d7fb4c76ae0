package chat

import (
	"strings"
	"testing"
	"time"
)

func TestNewConversationID_Unique(t *testing.T) {
	t.Parallel()

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := NewConversationID()
		if id == "" {
			t.Fatalf("empty id")
		}
		if !strings.Contains(id, "-") {
			t.Fatalf("id %q missing separator", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestTitleFromMessage(t *testing.T) {
	t.Parallel()

	if got := TitleFromMessage("hello world"); got != "hello world" {
		t.Fatalf("TitleFromMessage=%q, want %q", got, "hello world")
	}
	if got := TitleFromMessage("  spaced  "); got != "spaced" {
		t.Fatalf("TitleFromMessage=%q, want trimmed", got)
	}

	long := strings.Repeat("a", 30)
	got := TitleFromMessage(long)
	if got != strings.Repeat("a", 20)+"..." {
		t.Fatalf("TitleFromMessage long=%q", got)
	}

	// Rune-based truncation, not byte-based.
	cjk := strings.Repeat("汉", 25)
	got = TitleFromMessage(cjk)
	if got != strings.Repeat("汉", 20)+"..." {
		t.Fatalf("TitleFromMessage cjk=%q", got)
	}

	// Blank input falls back to the timestamp title.
	if got := TitleFromMessage("   "); !strings.HasPrefix(got, "New conversation ") {
		t.Fatalf("TitleFromMessage blank=%q", got)
	}
}

func TestDefaultTitle(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	if got := DefaultTitle(now); got != "New conversation 2025-03-14 09:26" {
		t.Fatalf("DefaultTitle=%q", got)
	}
}

func TestPreview(t *testing.T) {
	t.Parallel()

	if got := Preview(nil); got != "" {
		t.Fatalf("Preview(nil)=%q, want empty", got)
	}

	msgs := []Message{
		{Role: RoleUser, Content: "first"},
		{Role: RoleAssistant, Content: "last answer"},
	}
	if got := Preview(msgs); got != "last answer" {
		t.Fatalf("Preview=%q, want %q", got, "last answer")
	}

	msgs[1].Content = strings.Repeat("x", 60)
	if got := Preview(msgs); got != strings.Repeat("x", 50)+"..." {
		t.Fatalf("Preview long=%q", got)
	}
}

func TestCapMessages(t *testing.T) {
	t.Parallel()

	msgs := make([]Message, MessageCap+7)
	for i := range msgs {
		msgs[i] = Message{ID: NewItemID(), Role: RoleUser}
	}
	capped := CapMessages(msgs)
	if len(capped) != MessageCap {
		t.Fatalf("len=%d, want %d", len(capped), MessageCap)
	}
	// The oldest messages are the ones dropped.
	if capped[0].ID != msgs[7].ID {
		t.Fatalf("cap kept the wrong end")
	}

	short := msgs[:3]
	if got := CapMessages(short); len(got) != 3 {
		t.Fatalf("short list capped to %d", len(got))
	}
}

func TestCoerceLoaded(t *testing.T) {
	t.Parallel()

	in := []Message{
		{ID: "a", Loading: true},
		{ID: "b", Loading: false},
	}
	out := CoerceLoaded(in)
	for i, m := range out {
		if m.Loading {
			t.Fatalf("out[%d].Loading=true", i)
		}
	}
	// Input is not mutated.
	if !in[0].Loading {
		t.Fatalf("input mutated")
	}
}

func TestRenumber(t *testing.T) {
	t.Parallel()

	in := []ClipboardItem{
		{ID: "a", Order: 9},
		{ID: "b", Order: 0},
		{ID: "c", Order: 42},
	}
	out := Renumber(in)
	for i, it := range out {
		if it.Order != i {
			t.Fatalf("out[%d].Order=%d, want %d", i, it.Order, i)
		}
	}
	if out[0].ID != "a" || out[1].ID != "b" || out[2].ID != "c" {
		t.Fatalf("order of items changed: %+v", out)
	}
	if in[0].Order != 9 {
		t.Fatalf("input mutated")
	}
}

func TestObfuscateRoundTrip(t *testing.T) {
	t.Parallel()

	for _, key := range []string{"", "sk-abc123", "密钥-with-unicode"} {
		if got := Deobfuscate(Obfuscate(key)); got != key {
			t.Fatalf("round trip %q -> %q", key, got)
		}
	}
	// Obfuscated form never equals the plaintext for a non-empty key.
	if Obfuscate("sk-abc123") == "sk-abc123" {
		t.Fatalf("obfuscation is identity")
	}
	// Garbage that does not decode yields empty rather than an error.
	if got := Deobfuscate("%%%not-base64%%%"); got != "" {
		t.Fatalf("Deobfuscate garbage=%q, want empty", got)
	}
}

func TestConversationClone(t *testing.T) {
	t.Parallel()

	var nilRec *Conversation
	if nilRec.Clone() != nil {
		t.Fatalf("nil clone should be nil")
	}

	src := &Conversation{
		ID:       "c1",
		Title:    "t",
		Messages: []Message{{ID: "m1", Content: "hi"}},
		ClipboardItems: []ClipboardItem{
			{ID: "i1", Source: &ClipboardSource{MessageID: "m1"}},
		},
	}
	cp := src.Clone()
	cp.Messages[0].Content = "changed"
	cp.ClipboardItems[0].Source.MessageID = "other"
	if src.Messages[0].Content != "hi" {
		t.Fatalf("message aliased between clone and source")
	}
	if src.ClipboardItems[0].Source.MessageID != "m1" {
		t.Fatalf("clipboard source aliased between clone and source")
	}
}
