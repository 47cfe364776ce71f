package cli

import (
	"fmt"
	"io"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/secmon-lab/agentrun/pkg/domain/model/artifact"
	"github.com/secmon-lab/agentrun/pkg/domain/model/session"
	"github.com/secmon-lab/agentrun/pkg/domain/types"
	"github.com/secmon-lab/agentrun/pkg/service/stream"
)

var categoryColors = map[types.Category]*color.Color{
	types.CategoryThought: color.New(color.FgCyan),
	types.CategoryTool:    color.New(color.FgYellow),
	types.CategoryError:   color.New(color.FgRed),
	types.CategoryInfo:    color.New(color.Reset),
}

var (
	headerColor   = color.New(color.Bold, color.Underline)
	questionColor = color.New(color.FgMagenta, color.Bold)
	doneColor     = color.New(color.FgGreen)
	failColor     = color.New(color.FgRed, color.Bold)
)

// printer renders stream session events as a colored transcript. It is
// called from the session's reader goroutine.
type printer struct {
	mu sync.Mutex
	w  io.Writer
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w}
}

func (x *printer) handle(ev stream.Event) {
	x.mu.Lock()
	defer x.mu.Unlock()

	switch ev.Type {
	case stream.EventLine:
		if ev.NewSection && ev.Category != types.CategoryInfo {
			_, _ = headerColor.Fprintf(x.w, "\n%s\n", ev.Section)
		}
		c, ok := categoryColors[ev.Category]
		if !ok {
			c = categoryColors[types.CategoryInfo]
		}
		_, _ = c.Fprintln(x.w, ev.Line)

	case stream.EventInputRequest:
		_, _ = questionColor.Fprintf(x.w, "\n❓ %s\n", ev.Question)
		_, _ = fmt.Fprint(x.w, "> ")

	case stream.EventState:
		switch ev.State {
		case types.RunStateDone:
			_, _ = doneColor.Fprintln(x.w, "\n✅ Run completed")
		case types.RunStateFailed:
			if ev.Err != nil {
				_, _ = failColor.Fprintf(x.w, "\n❌ %s\n", ev.Err.Error())
			}
		}

	case stream.EventFiles:
		x.files(ev.Files)
	}
}

func (x *printer) files(files []string) {
	if len(files) == 0 {
		_, _ = fmt.Fprintln(x.w, "No files generated")
		return
	}
	_, _ = headerColor.Fprintln(x.w, "Generated files")
	for _, name := range files {
		_, _ = fmt.Fprintf(x.w, "  %-32s %s\n", name, artifact.Classify(name))
	}
}

func printSession(w io.Writer, sess *session.Session) {
	_, _ = headerColor.Fprintf(w, "%s\n", sess.Title)
	_, _ = fmt.Fprintf(w, "id: %s  updated: %s\n", sess.ID, humanize.Time(sess.LastUpdated))

	for _, msg := range sess.Messages {
		switch msg.Role {
		case types.RoleUser:
			_, _ = questionColor.Fprintf(w, "\n👤 %s\n", msg.Content)
		default:
			if msg.Content != "" {
				_, _ = fmt.Fprintf(w, "\n🤖 %s\n", msg.Content)
			}
			for _, section := range msg.Logs {
				if section.Type != types.CategoryInfo {
					_, _ = headerColor.Fprintf(w, "%s\n", section.Title)
				}
				c := categoryColors[section.Type]
				if c == nil {
					c = categoryColors[types.CategoryInfo]
				}
				for _, line := range section.Content {
					_, _ = c.Fprintf(w, "  %s\n", line)
				}
			}
		}
	}

	if len(sess.GeneratedFiles) > 0 {
		_, _ = fmt.Fprintf(w, "\nfiles: %v\n", sess.GeneratedFiles)
	}
}
