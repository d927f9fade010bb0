package ui

import (
	"strings"
)

// LooksLikeDiff reports whether text contains a unified diff, as returned by
// the file editing tools.
func LooksLikeDiff(text string) bool {
	return strings.HasPrefix(text, "--- ") || (strings.Contains(text, "\n--- ") && strings.Contains(text, "\n@@ "))
}

// ColorizeDiff styles the lines of a unified diff. Text before the first
// "---" header is kept as is.
func ColorizeDiff(s *Styles, text string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	inDiff := false
	for i, line := range lines {
		if strings.HasPrefix(line, "--- ") {
			inDiff = true
		}
		if !inDiff {
			continue
		}
		switch {
		case strings.HasPrefix(line, "--- "), strings.HasPrefix(line, "+++ "):
			lines[i] = s.Bold.Render(line)
		case strings.HasPrefix(line, "@@"):
			lines[i] = s.DiffHeader.Render(line)
		case strings.HasPrefix(line, "+"):
			lines[i] = s.DiffAdd.Render(line)
		case strings.HasPrefix(line, "-"):
			lines[i] = s.DiffRemove.Render(line)
		default:
			lines[i] = s.Muted.Render(line)
		}
	}
	return strings.Join(lines, "\n")
}
