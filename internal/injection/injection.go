// Package injection flags instructions that try to override the planner's
// system prompt. Detection is advisory: callers log it and carry on.
package injection

import "strings"

// High-risk phrases in English and French, matched case-insensitively.
var defaultPatterns = []string{
	"ignore previous",
	"ignore all previous",
	"system prompt",
	"simulated mode",
	"ignore les instructions",
	"oublie les instructions",
	"prompt système",
	"mode simulé",
}

// ScanResult holds the result of a prompt-injection scan.
type ScanResult struct {
	Detected bool     // true if any high-risk pattern was found
	Patterns []string // matched phrases
}

// Scan checks text for high-risk prompt-injection phrases.
func Scan(text string) ScanResult {
	text = strings.TrimSpace(text)
	if text == "" {
		return ScanResult{}
	}
	lower := strings.ToLower(text)
	var matched []string
	for _, p := range defaultPatterns {
		if strings.Contains(lower, p) {
			matched = append(matched, p)
		}
	}
	if len(matched) == 0 {
		return ScanResult{}
	}
	return ScanResult{Detected: true, Patterns: matched}
}
