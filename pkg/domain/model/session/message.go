package session

import (
	"context"
	"fmt"
	"time"

	"github.com/secmon-lab/agentrun/pkg/domain/types"
)

// ChatMessage is one turn of the conversation. A bot message accumulates Logs
// while a run is streaming and may receive a consolidated Content later.
type ChatMessage struct {
	ID        types.MessageID `json:"id"`
	Role      types.Role      `json:"role"`
	Content   string          `json:"content,omitempty"`
	Logs      []*LogSection   `json:"logs,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

func NewMessage(ctx context.Context, role types.Role, content string) *ChatMessage {
	return &ChatMessage{
		ID:        types.NewMessageID(),
		Role:      role,
		Content:   content,
		Timestamp: Now(ctx),
	}
}

func (m *ChatMessage) Clone() *ChatMessage {
	if m == nil {
		return nil
	}
	c := *m
	if m.Logs != nil {
		c.Logs = make([]*LogSection, len(m.Logs))
		for i, sec := range m.Logs {
			c.Logs[i] = sec.Clone()
		}
	}
	return &c
}

// LogSection is a titled, collapsible group of consecutive log lines
type LogSection struct {
	ID      types.SectionID `json:"id"`
	Title   string          `json:"title"`
	Content []string        `json:"content"`
	IsOpen  bool            `json:"isOpen"`
	Type    types.Category  `json:"type"`
}

// SectionID builds the positional ID of the n-th section of a message
func SectionID(msgID types.MessageID, n int) types.SectionID {
	return types.SectionID(fmt.Sprintf("%s-%d", msgID, n))
}

func (s *LogSection) Clone() *LogSection {
	if s == nil {
		return nil
	}
	c := *s
	c.Content = append([]string{}, s.Content...)
	return &c
}

// TerminalLogEntry is one line of the flat transcript of a run
type TerminalLogEntry struct {
	ID        string      `json:"id"`
	Line      string      `json:"line"`
	Level     types.Level `json:"level"`
	Timestamp time.Time   `json:"timestamp"`
}
