package artifact

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/secmon-lab/agentrun/pkg/domain/model/session"
	"github.com/secmon-lab/agentrun/pkg/domain/types"
)

// logTimeFormat is the timestamp layout of loguru's default format
const logTimeFormat = "2006-01-02 15:04:05.000"

var logLinePattern = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}[ T]\d{2}:\d{2}:\d{2}(?:\.\d+)?)\s*\|\s*([A-Za-z]+)\s*\|\s?(.*)$`)

// FormatLogLine renders a line in the `timestamp | LEVEL | message` shape
func FormatLogLine(ts time.Time, level types.Level, message string) string {
	return fmt.Sprintf("%s | %-8s | %s", ts.Format(logTimeFormat), level, message)
}

// ParseLogLine converts one replayed log line into a transcript entry. Lines
// not matching the loguru shape are kept verbatim with level INFO and the
// current time.
func ParseLogLine(ctx context.Context, line string) *session.TerminalLogEntry {
	entry := &session.TerminalLogEntry{
		ID:        uuid.New().String(),
		Line:      line,
		Level:     types.LevelInfo,
		Timestamp: session.Now(ctx),
	}

	m := logLinePattern.FindStringSubmatch(line)
	if m == nil {
		return entry
	}

	ts, err := time.ParseInLocation("2006-01-02 15:04:05.999999999", strings.Replace(m[1], "T", " ", 1), time.Local)
	if err != nil {
		return entry
	}
	entry.Timestamp = ts.UTC().Truncate(time.Millisecond)
	entry.Level = types.Level(strings.ToUpper(m[2]))
	entry.Line = m[3]
	return entry
}
