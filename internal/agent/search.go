package agent

import "strings"

// searchKeywords hint that the answer depends on information newer than the
// model's training data.
var searchKeywords = []string{
	"today",
	"latest",
	"news",
	"trending",
	"current",
	"recent",
	"price",
	"release notes",
	"changelog",
}

// NeedsLiveSearch reports whether the user text asks for fresh information.
// It is a plain keyword scan and misses plenty of cases.
func NeedsLiveSearch(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range searchKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
