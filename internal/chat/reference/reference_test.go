package reference

import (
	"strings"
	"testing"
)

func TestPreviewText_Weighting(t *testing.T) {
	t.Parallel()

	// 0.5 units per non-CJK rune: a 20-rune ASCII string exactly fills the
	// budget, 21 runes overflow it.
	exact := strings.Repeat("a", 20)
	if got := PreviewText(exact); got != exact {
		t.Fatalf("PreviewText exact=%q", got)
	}
	if got := PreviewText(strings.Repeat("a", 21)); got != exact+"..." {
		t.Fatalf("PreviewText overflow=%q", got)
	}

	// CJK weighs double: 10 characters fill the budget.
	cjk := strings.Repeat("汉", 10)
	if got := PreviewText(cjk); got != cjk {
		t.Fatalf("PreviewText cjk=%q", got)
	}
	if got := PreviewText(strings.Repeat("汉", 11)); got != cjk+"..." {
		t.Fatalf("PreviewText cjk overflow=%q", got)
	}

	// Mixed content: 5 CJK (5.0) + 10 ASCII (5.0) fits exactly.
	mixed := strings.Repeat("汉", 5) + strings.Repeat("a", 10)
	if got := PreviewText(mixed); got != mixed {
		t.Fatalf("PreviewText mixed=%q", got)
	}
}

func TestPreviewText_StripsMarkdown(t *testing.T) {
	t.Parallel()

	if got := PreviewText("## Heading\n**bold** `x`"); got != "Heading bold x" {
		t.Fatalf("PreviewText=%q", got)
	}
	if got := PreviewText("   \n\n  "); got != "" {
		t.Fatalf("PreviewText blank=%q", got)
	}
}

func TestTruncateForDisplay(t *testing.T) {
	t.Parallel()

	if got := TruncateForDisplay(""); got != "" {
		t.Fatalf("empty=%q", got)
	}

	// Leading blank lines removed, blank-line runs collapsed.
	in := "\n\n\nfirst\n\n\n\nsecond"
	if got := TruncateForDisplay(in); got != "first\n\nsecond" {
		t.Fatalf("TruncateForDisplay=%q", got)
	}

	long := strings.Repeat("x", 600)
	got := TruncateForDisplay(long)
	if got != strings.Repeat("x", 500)+"..." {
		t.Fatalf("long truncation len=%d", len(got))
	}
}

func TestBuildPrompt(t *testing.T) {
	t.Parallel()

	if got := BuildPrompt(nil, "just the question"); got != "just the question" {
		t.Fatalf("no refs=%q", got)
	}

	refs := []Item{New("ref one"), New("ref two")}
	got := BuildPrompt(refs, "the question")
	if got != "ref one\n\nref two\n\nthe question" {
		t.Fatalf("BuildPrompt=%q", got)
	}

	// Empty user input yields the references alone, no trailing separator.
	if got := BuildPrompt(refs, ""); got != "ref one\n\nref two" {
		t.Fatalf("BuildPrompt empty input=%q", got)
	}
}

func TestCombine(t *testing.T) {
	t.Parallel()

	if got := Combine([]string{"a", "b"}); got != "a\n\nb" {
		t.Fatalf("Combine=%q", got)
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	it := New("# Title\nsome body text that is long enough to truncate")
	if it.ID == "" || it.TimestampUnixMs <= 0 {
		t.Fatalf("item=%+v", it)
	}
	if it.Content == it.PreviewText {
		t.Fatalf("preview not derived")
	}
	if !strings.HasSuffix(it.PreviewText, "...") {
		t.Fatalf("PreviewText=%q", it.PreviewText)
	}
}
