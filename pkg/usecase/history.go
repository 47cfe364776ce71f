package usecase

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/agentrun/pkg/domain/model/errs"
	"github.com/secmon-lab/agentrun/pkg/domain/model/session"
	"github.com/secmon-lab/agentrun/pkg/domain/types"
	"github.com/secmon-lab/agentrun/pkg/service/history"
	"github.com/secmon-lab/agentrun/pkg/utils/logging"
)

// historyStore returns the store of scope, creating and starting it on first use
func (u *UseCases) historyStore(ctx context.Context, scope types.Scope) (*history.Store, error) {
	if err := validateScope(scope); err != nil {
		return nil, err
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	if s, ok := u.stores[scope]; ok {
		return s.store, nil
	}

	store := history.New(u.catalog, scope,
		history.WithThrottle(u.throttle),
		history.WithNotifier(u.notifier),
	)

	watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if err := store.Start(watchCtx); err != nil {
		cancel()
		return nil, err
	}

	u.stores[scope] = &scopedStore{store: store, cancel: cancel}
	logging.From(ctx).Debug("history store opened", "scope", scope, "store_id", store.ID())
	return store, nil
}

func (u *UseCases) LoadHistory(ctx context.Context, scope types.Scope) (session.Catalog, error) {
	store, err := u.historyStore(ctx, scope)
	if err != nil {
		return nil, err
	}
	return store.Load(ctx), nil
}

func (u *UseCases) SaveHistory(ctx context.Context, scope types.Scope, catalog session.Catalog) error {
	store, err := u.historyStore(ctx, scope)
	if err != nil {
		return err
	}
	return store.Save(ctx, catalog)
}

func (u *UseCases) UpsertSession(ctx context.Context, scope types.Scope, sess *session.Session) (bool, error) {
	if sess == nil {
		return false, goerr.New("session is required", goerr.T(errs.TagValidation))
	}
	store, err := u.historyStore(ctx, scope)
	if err != nil {
		return false, err
	}
	return store.Upsert(ctx, sess)
}

func (u *UseCases) GetPreference(ctx context.Context, scope types.Scope, name string) (string, bool, error) {
	if err := validatePreference(scope, name); err != nil {
		return "", false, err
	}
	return history.NewPreferences(u.catalog, scope).Get(ctx, name)
}

func (u *UseCases) SetPreference(ctx context.Context, scope types.Scope, name, value string) error {
	if err := validatePreference(scope, name); err != nil {
		return err
	}
	return history.NewPreferences(u.catalog, scope).Set(ctx, name, value)
}

// SubscribeHistory delivers change notifications of scope until ctx is cancelled
func (u *UseCases) SubscribeHistory(ctx context.Context, scope types.Scope) (<-chan session.CatalogChange, error) {
	store, err := u.historyStore(ctx, scope)
	if err != nil {
		return nil, err
	}
	return store.Subscribe(ctx)
}

func validateScope(scope types.Scope) error {
	if !scope.Validate() {
		return goerr.New("invalid scope", goerr.TV(errs.ScopeKey, scope), goerr.T(errs.TagValidation))
	}
	return nil
}

func validatePreference(scope types.Scope, name string) error {
	if err := validateScope(scope); err != nil {
		return err
	}
	if !types.ValidKeyPart(name) {
		return goerr.New("invalid preference name", goerr.TV(errs.KeyKey, name), goerr.T(errs.TagValidation))
	}
	return nil
}
