// Package classifier maps raw agent log lines to semantic categories.
package classifier

import (
	"strings"

	"github.com/secmon-lab/agentrun/pkg/domain/types"
)

const thoughtHeader = "thoughts"

var (
	thoughtGlyphs = []string{"✨"}

	// tool lifecycle phrases: selection, preparation, activation, argument
	// dump, completion and observed output
	toolPhrases = []string{
		"selected tool",
		"tools selected",
		"tools being prepared",
		"preparing tool",
		"activating tool",
		"tool arguments",
		"completed its mission",
		"tool completed",
		"observed output",
	}
	toolGlyphs = []string{"🔧", "🛠", "🧰", "🎯"}

	errorWords  = []string{"error", "warning", "exception"}
	errorGlyphs = []string{"❌", "⚠", "🚨"}
)

// Classify returns the category of line. Every line has exactly one
// category; thought markers win over tool and error markers.
func Classify(line string) types.Category {
	lower := strings.ToLower(line)

	if IsThoughtHeader(line) || containsAny(line, thoughtGlyphs) {
		return types.CategoryThought
	}

	if containsAny(lower, toolPhrases) || isSelectedTools(lower) || hasGlyphPrefix(line, toolGlyphs) {
		return types.CategoryTool
	}

	if containsAny(lower, errorWords) || containsAny(line, errorGlyphs) {
		return types.CategoryError
	}

	return types.CategoryInfo
}

// IsThoughtHeader reports whether line opens a new block of thoughts
func IsThoughtHeader(line string) bool {
	return strings.Contains(strings.ToLower(line), thoughtHeader)
}

// isSelectedTools matches lines like "Manus selected 2 tools to use"
func isSelectedTools(lower string) bool {
	idx := strings.Index(lower, "selected")
	return idx >= 0 && strings.Contains(lower[idx:], "tool")
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func hasGlyphPrefix(line string, glyphs []string) bool {
	trimmed := strings.TrimSpace(line)
	for _, g := range glyphs {
		if strings.HasPrefix(trimmed, g) {
			return true
		}
	}
	return false
}
