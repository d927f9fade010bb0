package llm

import (
	"strings"
	"unicode/utf8"
)

// Providers disagree on what a streamed fragment means. Most send true
// deltas, some replay the full value so far (snapshots), some resend the
// previous fragment verbatim, and a few repeat a handful of trailing
// characters before continuing. MergeText and MergeField reconcile all of
// these against a running buffer so that nothing is dropped or repeated.

// MergeText folds incoming into *buf and returns the part that is new.
// The returned string is what should be forwarded to a live display; it is
// always a suffix of the updated buffer and never splits a UTF-8 sequence.
func MergeText(buf *string, incoming string) string {
	if incoming == "" {
		return ""
	}
	current := *buf
	if current == "" {
		*buf = incoming
		return incoming
	}
	if incoming == current {
		return ""
	}
	if strings.HasPrefix(incoming, current) {
		suffix := incoming[len(current):]
		*buf = incoming
		return suffix
	}
	suffix := incoming[suffixOverlap(current, incoming):]
	*buf = current + suffix
	return suffix
}

// MergeField folds incoming into *buf for values that are consumed once at
// the end of a round (tool names and arguments). A fragment that extends the
// buffer is taken as the latest snapshot and replaces it wholesale.
func MergeField(buf *string, incoming string) {
	if incoming == "" {
		return
	}
	current := *buf
	switch {
	case current == "":
		*buf = incoming
	case incoming == current:
	case strings.HasPrefix(incoming, current):
		*buf = incoming
	default:
		*buf = current + incoming[suffixOverlap(current, incoming):]
	}
}

// suffixOverlap returns the largest k such that buf ends with incoming[:k].
// Only k values on rune boundaries of incoming are considered.
func suffixOverlap(buf, incoming string) int {
	k := min(len(buf), len(incoming))
	for ; k > 0; k-- {
		if k < len(incoming) && !utf8.RuneStart(incoming[k]) {
			continue
		}
		if !utf8.RuneStart(buf[len(buf)-k]) {
			continue
		}
		if strings.HasSuffix(buf, incoming[:k]) {
			return k
		}
	}
	return 0
}
