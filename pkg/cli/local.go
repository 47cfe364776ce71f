package cli

import (
	"context"

	"github.com/secmon-lab/agentrun/pkg/cli/config"
	"github.com/secmon-lab/agentrun/pkg/domain/model/session"
	"github.com/secmon-lab/agentrun/pkg/domain/types"
	"github.com/secmon-lab/agentrun/pkg/service/history"
	"github.com/secmon-lab/agentrun/pkg/utils/logging"
	"github.com/secmon-lab/agentrun/pkg/utils/safe"
)

// localHistory is the client side history of one scope
type localHistory struct {
	store *history.Store
	prefs *history.Preferences
	close func()
}

func openHistory(ctx context.Context, catalogCfg *config.Catalog, scope types.Scope) (*localHistory, error) {
	catalog, err := catalogCfg.Configure(ctx)
	if err != nil {
		return nil, err
	}

	store := history.New(catalog, scope, history.WithThrottle(catalogCfg.Throttle()))
	return &localHistory{
		store: store,
		prefs: history.NewPreferences(catalog, scope),
		close: func() {
			if err := store.Close(context.WithoutCancel(ctx)); err != nil {
				logging.From(ctx).Warn("failed to write history", "error", err, "scope", scope)
			}
			safe.Close(ctx, catalog)
		},
	}, nil
}

// find returns the session with id, or nil
func (x *localHistory) find(ctx context.Context, id types.SessionID) *session.Session {
	for _, sess := range x.store.Load(ctx) {
		if sess.ID == id {
			return sess
		}
	}
	return nil
}

func (x *localHistory) rememberPrompt(ctx context.Context, prompt string) {
	if err := x.prefs.Set(ctx, history.PrefLastPrompt, prompt); err != nil {
		logging.From(ctx).Warn("failed to save last prompt", "error", err)
	}
}
