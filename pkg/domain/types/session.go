package types

import "github.com/google/uuid"

// SessionID represents a unique chat session identifier
type SessionID string

// NewSessionID generates a new session ID
func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}

func (x SessionID) String() string {
	return string(x)
}

// MessageID identifies one chat message inside a session
type MessageID string

func NewMessageID() MessageID {
	return MessageID(uuid.New().String())
}

func (x MessageID) String() string {
	return string(x)
}

type SectionID string

func (x SectionID) String() string {
	return string(x)
}

// Role is the author of a chat message
type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

func (x Role) String() string {
	return string(x)
}
