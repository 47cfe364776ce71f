package aggregator_test

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/agentrun/pkg/domain/model/session"
	"github.com/secmon-lab/agentrun/pkg/domain/types"
	"github.com/secmon-lab/agentrun/pkg/service/aggregator"
)

const msgID = types.MessageID("msg-1")

func TestScenario(t *testing.T) {
	sections := aggregator.Fold(msgID, []string{
		"✨ thoughts: planning layout",
		"🔧 selected tool: file_writer",
		"🔧 writing index.html",
	})

	gt.A(t, sections).Length(2)
	gt.Equal(t, sections[0].Type, types.CategoryThought)
	gt.Equal(t, sections[0].Title, "Thoughts")
	gt.True(t, sections[0].IsOpen)
	gt.A(t, sections[0].Content).Length(1)

	gt.Equal(t, sections[1].Type, types.CategoryTool)
	gt.Equal(t, sections[1].Title, "Tools")
	gt.False(t, sections[1].IsOpen)
	gt.Equal(t, sections[1].Content, []string{"🔧 selected tool: file_writer", "🔧 writing index.html"})
	gt.Equal(t, sections[1].ID, session.SectionID(msgID, 1))
}

func TestBoundaries(t *testing.T) {
	t.Run("error never merges", func(t *testing.T) {
		sections := aggregator.Fold(msgID, []string{
			"Executing step 1",
			"Error: first",
			"Error: second",
		})
		gt.A(t, sections).Length(3)
		gt.Equal(t, sections[1].Title, "Error")
		gt.Equal(t, sections[2].Title, "Error")
		gt.A(t, sections[2].Content).Length(1)
	})

	t.Run("new thoughts header splits thought section", func(t *testing.T) {
		sections := aggregator.Fold(msgID, []string{
			"✨ thoughts: one",
			"✨ still thinking",
			"✨ thoughts: two",
		})
		gt.A(t, sections).Length(2)
		gt.A(t, sections[0].Content).Length(2)
		gt.A(t, sections[1].Content).Length(1)
	})

	t.Run("info lines merge under the first line", func(t *testing.T) {
		sections := aggregator.Fold(msgID, []string{
			"Executing step 1/20 of the plan which has a really long description",
			"Executing step 2/20",
		})
		gt.A(t, sections).Length(1)
		gt.Equal(t, sections[0].Title, "Executing step 1/20 of the plan which ha...")
		gt.A(t, sections[0].Content).Length(2)
		gt.False(t, sections[0].IsOpen)
	})

	t.Run("short info title is kept", func(t *testing.T) {
		sections := aggregator.Fold(msgID, []string{"hello"})
		gt.Equal(t, sections[0].Title, "hello")
	})

	t.Run("category change creates boundary", func(t *testing.T) {
		sections := aggregator.Fold(msgID, []string{
			"🔧 writing a",
			"plain",
			"🔧 writing b",
		})
		gt.A(t, sections).Length(3)
		for i := 1; i < len(sections); i++ {
			gt.NotEqual(t, sections[i-1].Type, sections[i].Type)
		}
	})

	t.Run("closed section type is never rewritten", func(t *testing.T) {
		var sections []*session.LogSection
		sections, _ = aggregator.Append(msgID, sections, "🔧 writing a")
		first := sections[0]
		sections, c := aggregator.Append(msgID, sections, "Error: boom")
		gt.Equal(t, c, types.CategoryError)
		gt.Equal(t, first.Type, types.CategoryTool)
		gt.A(t, sections).Length(2)
	})
}

func TestBoundaryLaw(t *testing.T) {
	samples := map[types.Category][]string{
		types.CategoryThought: {"✨ still thinking", "✨ more"},
		types.CategoryTool:    {"🔧 a", "Activating tool: 'x'"},
		types.CategoryInfo:    {"a", "b"},
	}
	for category, lines := range samples {
		t.Run(category.String(), func(t *testing.T) {
			sections := aggregator.Fold(msgID, lines)
			gt.A(t, sections).Length(1)
		})
	}
}

func TestReplayIdempotence(t *testing.T) {
	lines := strings.Split(strings.TrimSpace(`
✨ Manus's thoughts: I need a page
✨ with a hero section
🛠️ Manus selected 1 tools to use
🧰 Tools being prepared: ['file_writer']
🔧 Activating tool: 'file_writer'...
🎯 Tool 'file_writer' completed its mission! Result: ok
Error: lint failed
⚠️ retrying
Executing step 2/20
Executing step 3/20
✨ Manus's thoughts: done`), "\n")

	a := aggregator.Fold(msgID, lines)
	b := aggregator.Fold(msgID, lines)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("replay mismatch (-a +b):\n%s", diff)
	}
	gt.A(t, a).Length(6)
}
