// Package aggregator groups classified log lines into collapsible sections.
package aggregator

import (
	"github.com/secmon-lab/agentrun/pkg/domain/model/session"
	"github.com/secmon-lab/agentrun/pkg/domain/types"
	"github.com/secmon-lab/agentrun/pkg/service/classifier"
)

// infoTitleLength is the maximum length of an info section title
const infoTitleLength = 40

// Append folds line into the sections of the message msgID. The last section
// is extended in place when the line continues it, otherwise a new section is
// appended. The returned category is the classification of line.
func Append(msgID types.MessageID, sections []*session.LogSection, line string) ([]*session.LogSection, types.Category) {
	category := classifier.Classify(line)

	if n := len(sections); n > 0 && continues(sections[n-1], category, line) {
		last := sections[n-1]
		last.Content = append(last.Content, line)
		return sections, category
	}

	title := category.Title()
	if category == types.CategoryInfo {
		title = session.Truncate(line, infoTitleLength)
	}

	sections = append(sections, &session.LogSection{
		ID:      session.SectionID(msgID, len(sections)),
		Title:   title,
		Content: []string{line},
		IsOpen:  category == types.CategoryThought,
		Type:    category,
	})
	return sections, category
}

// Fold applies Append for every line in order, starting from no sections
func Fold(msgID types.MessageID, lines []string) []*session.LogSection {
	var sections []*session.LogSection
	for _, line := range lines {
		sections, _ = Append(msgID, sections, line)
	}
	return sections
}

// continues reports whether a line of category c is merged into last. Error
// lines never merge.
func continues(last *session.LogSection, c types.Category, line string) bool {
	if last.Type != c {
		return false
	}

	switch c {
	case types.CategoryTool, types.CategoryInfo:
		return true
	case types.CategoryThought:
		return !classifier.IsThoughtHeader(line)
	default:
		return false
	}
}
