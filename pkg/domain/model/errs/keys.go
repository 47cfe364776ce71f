package errs

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/agentrun/pkg/domain/types"
)

var (
	SessionIDKey = goerr.NewTypedKey[types.SessionID]("session_id")
	ScopeKey     = goerr.NewTypedKey[types.Scope]("scope")
	StateKey     = goerr.NewTypedKey[types.RunState]("state")
	FileNameKey  = goerr.NewTypedKey[string]("file_name")
	URLKey       = goerr.NewTypedKey[string]("url")
	StatusKey    = goerr.NewTypedKey[int]("http_status")
	KeyKey       = goerr.NewTypedKey[string]("key")
	PathKey      = goerr.NewTypedKey[string]("path")
	DurationKey  = goerr.NewTypedKey[time.Duration]("duration")
)
