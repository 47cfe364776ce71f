package usecase

import (
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/agentrun/pkg/domain/model/errs"
)

var (
	// ErrAgentNotConfigured is returned when a run is requested without an agent
	ErrAgentNotConfigured = goerr.New("agent is not configured", goerr.T(errs.TagInternal))

	// ErrInputRequired is returned when the agent asks for input in a run
	// that cannot answer it
	ErrInputRequired = goerr.New("agent requested input, use the streaming endpoint", goerr.T(errs.TagInvalidState))
)
