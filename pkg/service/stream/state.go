package stream

import (
	"github.com/secmon-lab/agentrun/pkg/domain/model/session"
	"github.com/secmon-lab/agentrun/pkg/domain/types"
)

type EventType int

const (
	// EventState reports a state transition
	EventState EventType = iota
	// EventLine reports a log line folded into Message
	EventLine
	// EventInputRequest reports a question of the agent
	EventInputRequest
	// EventFiles reports the generated files after a run
	EventFiles
)

type Event struct {
	Type    EventType
	State   types.RunState
	Message types.MessageID

	Line       string
	Category   types.Category
	Section    string
	NewSection bool

	Question string
	Files    []string
	Err      error
}

// Snapshot is a copy of the observable state of a session
type Snapshot struct {
	State      types.RunState
	Session    *session.Session
	Active     types.MessageID
	Transcript []*session.TerminalLogEntry
	Files      []string
	Question   string
	Err        error
}

// Generating reports whether output is expected without caller action
func (x *Snapshot) Generating() bool {
	return x.State == types.RunStateConnecting || x.State == types.RunStateStreaming
}

// Done reports whether the last run completed
func (x *Snapshot) Done() bool {
	return x.State == types.RunStateDone
}

func (s *Session) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := &Snapshot{
		State:      s.state,
		Session:    s.chat.Clone(),
		Transcript: make([]*session.TerminalLogEntry, len(s.transcript)),
		Files:      append([]string{}, s.files...),
		Question:   s.question,
		Err:        s.err,
	}
	for i, e := range s.transcript {
		c := *e
		snap.Transcript[i] = &c
	}
	if s.active != nil {
		snap.Active = s.active.ID
	}
	return snap
}

func (s *Session) State() types.RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// ID returns the ID of the conversation
func (s *Session) ID() types.SessionID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chat.ID
}
