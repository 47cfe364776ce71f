package history

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/agentrun/pkg/domain/interfaces"
	"github.com/secmon-lab/agentrun/pkg/domain/model/errs"
	"github.com/secmon-lab/agentrun/pkg/domain/types"
)

// Known preference names
const (
	PrefDraft      = "is_draft"
	PrefLastPrompt = "last_prompt"
)

// Preferences stores small scalar values of a scope verbatim
type Preferences struct {
	storage interfaces.CatalogStorage
	scope   types.Scope
}

func NewPreferences(storage interfaces.CatalogStorage, scope types.Scope) *Preferences {
	return &Preferences{storage: storage, scope: scope}
}

// Get returns the stored value. ok is false when no value was stored before.
func (x *Preferences) Get(ctx context.Context, name string) (value string, ok bool, err error) {
	data, err := x.storage.Get(ctx, x.scope.PreferenceKey(name))
	if err != nil {
		return "", false, goerr.Wrap(err, "failed to get preference",
			goerr.TV(errs.ScopeKey, x.scope),
			goerr.V("name", name))
	}
	if data == nil {
		return "", false, nil
	}
	return string(data), true, nil
}

func (x *Preferences) Set(ctx context.Context, name, value string) error {
	if err := x.storage.Put(ctx, x.scope.PreferenceKey(name), []byte(value)); err != nil {
		return goerr.Wrap(err, "failed to set preference",
			goerr.TV(errs.ScopeKey, x.scope),
			goerr.V("name", name))
	}
	return nil
}

// Draft reads the draft flag. Anything but "true" is false.
func (x *Preferences) Draft(ctx context.Context) (bool, error) {
	v, _, err := x.Get(ctx, PrefDraft)
	if err != nil {
		return false, err
	}
	return v == "true", nil
}

func (x *Preferences) SetDraft(ctx context.Context, draft bool) error {
	v := "false"
	if draft {
		v = "true"
	}
	return x.Set(ctx, PrefDraft, v)
}
