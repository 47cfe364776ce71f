package history_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/agentrun/pkg/repository/memory"
	"github.com/secmon-lab/agentrun/pkg/service/history"
)

func TestPreferences(t *testing.T) {
	ctx := context.Background()
	storage := memory.New()
	prefs := history.NewPreferences(storage, scope)

	t.Run("absent value", func(t *testing.T) {
		v, ok, err := prefs.Get(ctx, history.PrefLastPrompt)
		gt.NoError(t, err)
		gt.False(t, ok)
		gt.Equal(t, v, "")

		draft, err := prefs.Draft(ctx)
		gt.NoError(t, err)
		gt.False(t, draft)
	})

	t.Run("stored verbatim", func(t *testing.T) {
		gt.NoError(t, prefs.Set(ctx, history.PrefLastPrompt, "  build a landing page\n"))
		v, ok, err := prefs.Get(ctx, history.PrefLastPrompt)
		gt.NoError(t, err)
		gt.True(t, ok)
		gt.Equal(t, v, "  build a landing page\n")
	})

	t.Run("draft flag", func(t *testing.T) {
		gt.NoError(t, prefs.SetDraft(ctx, true))
		draft, err := prefs.Draft(ctx)
		gt.NoError(t, err)
		gt.True(t, draft)
	})

	t.Run("scopes are independent", func(t *testing.T) {
		other := history.NewPreferences(storage, "bob")
		_, ok, err := other.Get(ctx, history.PrefLastPrompt)
		gt.NoError(t, err)
		gt.False(t, ok)
	})
}
