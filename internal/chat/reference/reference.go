// Package reference handles the ephemeral quoted-snippet items a user stages
// before sending a prompt. Reference items are per-session UI state and are
// never persisted.
package reference

import (
	"regexp"
	"strings"
	"time"

	"github.com/mayapp/may/internal/chat"
)

// Item is a pending quoted snippet.
type Item struct {
	ID              string `json:"id"`
	Content         string `json:"content"`
	PreviewText     string `json:"preview_text"`
	TimestampUnixMs int64  `json:"timestamp_unix_ms"`
}

// New builds a reference item for the given content.
func New(content string) Item {
	return Item{
		ID:              chat.NewItemID(),
		Content:         content,
		PreviewText:     PreviewText(content),
		TimestampUnixMs: time.Now().UnixMilli(),
	}
}

// previewBudget is the preview length budget in display units: CJK
// characters weigh 1 unit, everything else 0.5.
const previewBudget = 10.0

var (
	markdownHeading = regexp.MustCompile(`#+\s+`)
	whitespaceRun   = regexp.MustCompile(`\s+`)
)

// PreviewText produces a short length-budgeted summary of content: markdown
// markers stripped, whitespace collapsed, cut at the weighted budget with an
// ellipsis when anything was dropped.
func PreviewText(content string) string {
	clean := markdownHeading.ReplaceAllString(content, "")
	clean = strings.NewReplacer("**", "", "*", "", "`", "", "\n", " ").Replace(clean)
	clean = whitespaceRun.ReplaceAllString(clean, " ")
	clean = strings.TrimSpace(clean)
	if clean == "" {
		return ""
	}

	var (
		used float64
		b    strings.Builder
	)
	for _, r := range clean {
		w := 0.5
		if isCJK(r) {
			w = 1.0
		}
		if used+w > previewBudget {
			return b.String() + "..."
		}
		b.WriteRune(r)
		used += w
	}
	return b.String()
}

func isCJK(r rune) bool {
	return r >= 0x4e00 && r <= 0x9fa5
}

// TruncateForDisplay bounds content for inline rendering: leading blank
// lines removed, runs of blank lines collapsed, 500-rune cap.
func TruncateForDisplay(content string) string {
	if content == "" {
		return ""
	}
	clean := strings.TrimLeft(content, "\n\r \t")
	clean = regexp.MustCompile(`\n{3,}`).ReplaceAllString(clean, "\n\n")

	runes := []rune(clean)
	if len(runes) > 500 {
		return string(runes[:500]) + "..."
	}
	return clean
}

// Combine joins multiple contents into a single reference body.
func Combine(contents []string) string {
	return strings.Join(contents, "\n\n")
}

// BuildPrompt composes the outbound prompt from staged references and the
// user's input. References come first, separated by blank lines.
func BuildPrompt(refs []Item, userInput string) string {
	if len(refs) == 0 {
		return userInput
	}
	parts := make([]string, 0, len(refs))
	for _, ref := range refs {
		parts = append(parts, ref.Content)
	}
	refText := strings.Join(parts, "\n\n")
	if userInput == "" {
		return refText
	}
	return refText + "\n\n" + userInput
}
