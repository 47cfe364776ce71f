package interfaces

import "context"

// Agent is an opaque producer of log lines
type Agent interface {
	Start(ctx context.Context, prompt string) (AgentRun, error)
}

// AgentRun is one execution of an agent
type AgentRun interface {
	// Lines delivers raw output lines in order and is closed when the agent exits
	Lines() <-chan string
	// Answer passes the caller's reply to a pending input request
	Answer(ctx context.Context, answer string) error
	// Wait blocks until the agent exits and returns its failure, if any
	Wait() error
}
