package types

// RunState is the protocol state of a stream session
type RunState string

const (
	RunStateIdle            RunState = "idle"
	RunStateConnecting      RunState = "connecting"
	RunStateStreaming       RunState = "streaming"
	RunStateWaitingForInput RunState = "waiting_for_input"
	RunStateDone            RunState = "done"
	RunStateFailed          RunState = "failed"
)

func (x RunState) String() string {
	return string(x)
}

// Active reports whether a connection is expected to be open in this state
func (x RunState) Active() bool {
	switch x {
	case RunStateConnecting, RunStateStreaming, RunStateWaitingForInput:
		return true
	}
	return false
}
