package tui

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"
)

// wrapByDisplayWidth splits s into lines no wider than width terminal cells.
// Existing newlines are kept. Wide runes (CJK, emoji) count as two cells.
func wrapByDisplayWidth(s string, width int) []string {
	if width <= 0 {
		return strings.Split(s, "\n")
	}
	var out []string
	for _, para := range strings.Split(s, "\n") {
		if para == "" {
			out = append(out, "")
			continue
		}
		var line strings.Builder
		w := 0
		for _, r := range para {
			rw := runewidth.RuneWidth(r)
			if w+rw > width && w > 0 {
				out = append(out, line.String())
				line.Reset()
				w = 0
			}
			line.WriteRune(r)
			w += rw
		}
		out = append(out, line.String())
	}
	return out
}

// renderWrappedInputPreview shows the tail of a long input above the
// single-line text field. It returns "" when the input fits on one line.
func renderWrappedInputPreview(text string, width, maxLines int) string {
	if width <= 0 || maxLines <= 0 {
		return ""
	}
	lines := wrapByDisplayWidth(text, width)
	if len(lines) <= 1 {
		return ""
	}
	if len(lines) > maxLines {
		keep := maxLines - 1
		if keep < 1 {
			keep = 1
		}
		hidden := len(lines) - keep
		lines = append([]string{fmt.Sprintf("… +%d lines", hidden)}, lines[len(lines)-keep:]...)
	}
	return hintStyle.Render(strings.Join(lines, "\n"))
}

// truncateTitle shortens s to fit width cells, marking the cut with "…".
func truncateTitle(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	if width <= 0 {
		return ""
	}
	return runewidth.Truncate(s, width, "…")
}

// padRight pads s with spaces to exactly width cells.
func padRight(s string, width int) string {
	return runewidth.FillRight(s, width)
}
