package session

import (
	"context"
	"time"

	"github.com/secmon-lab/agentrun/pkg/domain/types"
	"github.com/secmon-lab/agentrun/pkg/utils/clock"
)

// titleLength is the maximum number of characters of a session title
const titleLength = 40

// Session is one conversation: the prompts, the agent output and the files it produced.
type Session struct {
	ID             types.SessionID `json:"id"`
	Title          string          `json:"title"`
	Messages       []*ChatMessage  `json:"messages"`
	CreatedAt      time.Time       `json:"createdAt"`
	LastUpdated    time.Time       `json:"lastUpdated"`
	IsDraft        bool            `json:"isDraft"`
	GeneratedFiles []string        `json:"generatedFiles,omitempty"`
}

// New creates an empty session. Title is derived from the given text.
func New(ctx context.Context, title string) *Session {
	now := Now(ctx)
	return &Session{
		ID:          types.NewSessionID(),
		Title:       Truncate(title, titleLength),
		Messages:    []*ChatMessage{},
		CreatedAt:   now,
		LastUpdated: now,
	}
}

// Now is the timestamp given to new sessions and messages
func Now(ctx context.Context) time.Time {
	return clock.Stamp(ctx)
}

// AddMessage appends a new message and returns it
func (s *Session) AddMessage(ctx context.Context, role types.Role, content string) *ChatMessage {
	msg := NewMessage(ctx, role, content)
	s.Messages = append(s.Messages, msg)
	s.LastUpdated = msg.Timestamp
	if s.Title == "" && role == types.RoleUser {
		s.Title = Truncate(content, titleLength)
	}
	return msg
}

// Message looks up a message by ID. It returns nil if not found.
func (s *Session) Message(id types.MessageID) *ChatMessage {
	for _, msg := range s.Messages {
		if msg.ID == id {
			return msg
		}
	}
	return nil
}

// Touch updates LastUpdated
func (s *Session) Touch(ctx context.Context) {
	s.LastUpdated = Now(ctx)
}

// Clone returns a deep copy of the session
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Messages = make([]*ChatMessage, len(s.Messages))
	for i, msg := range s.Messages {
		c.Messages[i] = msg.Clone()
	}
	if s.GeneratedFiles != nil {
		c.GeneratedFiles = append([]string{}, s.GeneratedFiles...)
	}
	return &c
}

// Truncate shortens s to n characters and appends an ellipsis when it was longer.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
