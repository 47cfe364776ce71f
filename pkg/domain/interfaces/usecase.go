package interfaces

import (
	"context"
	"io"

	"github.com/secmon-lab/agentrun/pkg/domain/model/session"
	"github.com/secmon-lab/agentrun/pkg/domain/types"
)

type RunUsecases interface {
	// StartRun starts the agent with prompt. Wait of the returned run also
	// records the run log.
	StartRun(ctx context.Context, prompt string) (AgentRun, error)
	// RunOnce runs prompt to completion and returns the joined output
	RunOnce(ctx context.Context, prompt string) (string, error)
}

type ArtifactUsecases interface {
	ListFiles(ctx context.Context) ([]string, error)
	OpenFile(ctx context.Context, name string) (io.ReadCloser, error)
	LatestLogs(ctx context.Context) ([]string, error)
	// PreviewFile renders a generated component as a standalone HTML page
	PreviewFile(ctx context.Context, name string) (string, error)
}

type HistoryUsecases interface {
	LoadHistory(ctx context.Context, scope types.Scope) (session.Catalog, error)
	SaveHistory(ctx context.Context, scope types.Scope, catalog session.Catalog) error
	UpsertSession(ctx context.Context, scope types.Scope, sess *session.Session) (bool, error)
	GetPreference(ctx context.Context, scope types.Scope, name string) (string, bool, error)
	SetPreference(ctx context.Context, scope types.Scope, name, value string) error
	SubscribeHistory(ctx context.Context, scope types.Scope) (<-chan session.CatalogChange, error)
}
