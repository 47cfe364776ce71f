package websocket_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/agentrun/pkg/domain/model/websocket"
)

func TestDecode(t *testing.T) {
	testCases := map[string]struct {
		input string
		kind  websocket.FrameKind
		text  string
	}{
		"sentinel": {
			input: "DONE",
			kind:  websocket.FrameDone,
		},
		"sentinel with spaces is a line": {
			input: " DONE",
			kind:  websocket.FrameLine,
			text:  " DONE",
		},
		"input request": {
			input: `{"type":"input_request","content":"Which framework?"}`,
			kind:  websocket.FrameInputRequest,
			text:  "Which framework?",
		},
		"broken envelope falls back to line": {
			input: `{"type":"input_request","content":`,
			kind:  websocket.FrameLine,
			text:  `{"type":"input_request","content":`,
		},
		"unknown type is a line": {
			input: `{"type":"progress","content":"50%"}`,
			kind:  websocket.FrameLine,
			text:  `{"type":"progress","content":"50%"}`,
		},
		"missing content is a line": {
			input: `{"type":"input_request"}`,
			kind:  websocket.FrameLine,
			text:  `{"type":"input_request"}`,
		},
		"non string content is a line": {
			input: `{"type":"input_request","content":42}`,
			kind:  websocket.FrameLine,
			text:  `{"type":"input_request","content":42}`,
		},
		"plain text": {
			input: "✨ thoughts: planning layout",
			kind:  websocket.FrameLine,
			text:  "✨ thoughts: planning layout",
		},
		"json array is a line": {
			input: `["a"]`,
			kind:  websocket.FrameLine,
			text:  `["a"]`,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			frame := websocket.Decode([]byte(tc.input))
			gt.Equal(t, frame.Kind, tc.kind)
			gt.Equal(t, frame.Text, tc.text)
		})
	}
}

func TestUserInput(t *testing.T) {
	data, err := websocket.NewUserInput("React").ToBytes()
	gt.NoError(t, err)
	gt.Equal(t, string(data), `{"type":"user_input","content":"React"}`)

	answer, ok := websocket.DecodeUserInput(data)
	gt.True(t, ok)
	gt.Equal(t, answer, "React")

	_, ok = websocket.DecodeUserInput([]byte(`{"type":"input_request","content":"x"}`))
	gt.False(t, ok)

	_, ok = websocket.DecodeUserInput([]byte("React"))
	gt.False(t, ok)
}

func TestInputRequestRoundTrip(t *testing.T) {
	data, err := websocket.NewInputRequest("Which framework?").ToBytes()
	gt.NoError(t, err)

	frame := websocket.Decode(data)
	gt.Equal(t, frame.Kind, websocket.FrameInputRequest)
	gt.Equal(t, frame.Text, "Which framework?")
}
