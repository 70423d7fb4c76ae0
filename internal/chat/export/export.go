// Package export renders clipboard items to a Markdown document and to a
// print-ready HTML page for the print-to-PDF flow.
package export

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/mayapp/may/internal/chat"
)

// Markdown renders items to a Markdown document: a header with the export
// timestamp, then one section per item with its own timestamp.
func Markdown(items []chat.ClipboardItem, now time.Time) string {
	if len(items) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# May export\n\nExported: %s\n\n---\n\n", now.Format("2006-01-02 15:04:05"))
	for i, item := range items {
		ts := time.UnixMilli(item.TimestampUnixMs).Format("2006-01-02 15:04:05")
		fmt.Fprintf(&b, "## Item %d\n\n%s\n\n*Added: %s*\n\n---\n\n", i+1, item.Content, ts)
	}
	return b.String()
}

// PrintHTML wraps the rendered Markdown in a standalone HTML document with a
// print stylesheet and an auto-print hook. The caller hands it to the
// browser, which drives the actual PDF generation.
func PrintHTML(items []chat.ClipboardItem, title string, now time.Time) string {
	body := renderMarkdown(Markdown(items, now))
	return fmt.Sprintf(printTemplate, html.EscapeString(title), body)
}

var (
	mdH2     = regexp.MustCompile(`(?m)^## (.+)$`)
	mdH1     = regexp.MustCompile(`(?m)^# (.+)$`)
	mdBold   = regexp.MustCompile(`\*\*(.+?)\*\*`)
	mdItalic = regexp.MustCompile(`\*(.+?)\*`)
	mdCode   = regexp.MustCompile("`(.+?)`")
	mdLink   = regexp.MustCompile(`\[(.+?)\]\((.+?)\)`)
	mdHr     = regexp.MustCompile(`(?m)^---$`)
)

// renderMarkdown covers the constructs the exporter itself emits plus the
// common inline ones found in chat content. It is intentionally small; the
// export document is simple and fully under our control.
func renderMarkdown(md string) string {
	out := html.EscapeString(md)
	out = mdH2.ReplaceAllString(out, "<h2>$1</h2>")
	out = mdH1.ReplaceAllString(out, "<h1>$1</h1>")
	out = mdBold.ReplaceAllString(out, "<strong>$1</strong>")
	out = mdItalic.ReplaceAllString(out, "<em>$1</em>")
	out = mdCode.ReplaceAllString(out, "<code>$1</code>")
	out = mdLink.ReplaceAllString(out, `<a href="$2">$1</a>`)
	out = mdHr.ReplaceAllString(out, "<hr>")

	var b strings.Builder
	for _, line := range strings.Split(out, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "<h") || trimmed == "<hr>" {
			b.WriteString(line)
			b.WriteString("\n")
			continue
		}
		b.WriteString("<p>" + line + "</p>\n")
	}
	return b.String()
}

const printTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { font-family: Arial, sans-serif; line-height: 1.6; margin: 30px; color: #333; }
h1 { color: #2c3e50; border-bottom: 1px solid #eee; padding-bottom: 10px; }
h2 { color: #34495e; margin-top: 30px; }
pre, code { background-color: #f7f7f7; padding: 2px 5px; border-radius: 3px; }
hr { border: 0; border-top: 1px solid #eee; margin: 20px 0; }
em { color: #777; font-size: 0.9em; }
@media print { body { margin: 0; padding: 0 30px; } @page { margin: 1.5cm; } }
</style>
</head>
<body>
%s
<script>window.onload = function() { window.print(); };</script>
</body>
</html>
`
