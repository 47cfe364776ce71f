package websocket

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/secmon-lab/agentrun/pkg/domain/types"
)

// DoneSentinel is the literal frame that ends a run
const DoneSentinel = "DONE"

// ErrorLinePrefix starts the line, or bot message, reporting a failed run
const ErrorLinePrefix = "❌ Error: "

// Envelope types
const (
	TypeInputRequest   = "input_request"
	TypeUserInput      = "user_input"
	TypeHistoryChanged = "history_changed"
)

// FrameKind is the decoded variant of one inbound run frame
type FrameKind int

const (
	FrameLine FrameKind = iota
	FrameDone
	FrameInputRequest
)

func (x FrameKind) String() string {
	switch x {
	case FrameDone:
		return "done"
	case FrameInputRequest:
		return "input_request"
	default:
		return "line"
	}
}

// Frame is one server to client payload of the run protocol
type Frame struct {
	Kind FrameKind
	// Text is the raw line for FrameLine and the question for FrameInputRequest
	Text string
}

// Envelope is the structured frame shape shared by input requests and user input
type Envelope struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// ToBytes converts Envelope to JSON bytes
func (x *Envelope) ToBytes() ([]byte, error) {
	return json.Marshal(x)
}

func NewInputRequest(question string) *Envelope {
	return &Envelope{Type: TypeInputRequest, Content: question}
}

func NewUserInput(answer string) *Envelope {
	return &Envelope{Type: TypeUserInput, Content: answer}
}

// Decode interprets a run frame. It never fails: a payload that is not the
// sentinel and not a valid input request envelope is a raw log line.
func Decode(data []byte) Frame {
	if string(data) == DoneSentinel {
		return Frame{Kind: FrameDone}
	}

	if env, ok := decodeEnvelope(data); ok && env.Type == TypeInputRequest {
		return Frame{Kind: FrameInputRequest, Text: env.Content}
	}

	return Frame{Kind: FrameLine, Text: string(data)}
}

// DecodeUserInput parses a client to server frame. ok is false unless the
// payload is a well formed user_input envelope.
func DecodeUserInput(data []byte) (string, bool) {
	env, ok := decodeEnvelope(data)
	if !ok || env.Type != TypeUserInput {
		return "", false
	}
	return env.Content, true
}

func decodeEnvelope(data []byte) (*Envelope, bool) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, false
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, false
	}
	var env Envelope
	if err := json.Unmarshal(raw["type"], &env.Type); err != nil {
		return nil, false
	}
	content, ok := raw["content"]
	if !ok {
		return nil, false
	}
	if err := json.Unmarshal(content, &env.Content); err != nil {
		return nil, false
	}
	return &env, true
}

// HistoryEvent is pushed to history subscribers when a catalog changed
type HistoryEvent struct {
	Type      string      `json:"type"`
	Scope     types.Scope `json:"scope"`
	Origin    string      `json:"origin,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// NewHistoryEvent creates a new HistoryEvent with current timestamp
func NewHistoryEvent(scope types.Scope, origin string) *HistoryEvent {
	return &HistoryEvent{
		Type:      TypeHistoryChanged,
		Scope:     scope,
		Origin:    origin,
		Timestamp: time.Now().Unix(),
	}
}

func (x *HistoryEvent) ToBytes() ([]byte, error) {
	return json.Marshal(x)
}
