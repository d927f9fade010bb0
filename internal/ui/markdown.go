package ui

import (
	"log/slog"
	"strings"

	"github.com/charmbracelet/glamour"
)

// renderMarkdown formats a finished answer for the terminal. The renderer is
// rebuilt only when the wrap width changes; any failure prints the raw text.
func (p *Printer) renderMarkdown(content string) string {
	if p.renderer == nil || p.rendererWidth != p.Width {
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(p.Width),
		)
		if err != nil {
			slog.Debug("markdown renderer unavailable", "error", err)
			return content
		}
		p.renderer, p.rendererWidth = r, p.Width
	}
	out, err := p.renderer.Render(content)
	if err != nil {
		slog.Debug("markdown render failed", "error", err)
		return content
	}
	return strings.TrimSpace(out)
}
