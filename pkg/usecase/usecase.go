package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/secmon-lab/agentrun/pkg/adapter/notify"
	"github.com/secmon-lab/agentrun/pkg/adapter/storage"
	"github.com/secmon-lab/agentrun/pkg/domain/interfaces"
	"github.com/secmon-lab/agentrun/pkg/domain/types"
	"github.com/secmon-lab/agentrun/pkg/repository/memory"
	"github.com/secmon-lab/agentrun/pkg/service/history"
)

type UseCases struct {
	// services and adapters
	storageClient interfaces.StorageClient
	catalog       interfaces.CatalogStorage
	notifier      interfaces.Notifier
	agent         interfaces.Agent

	// configs
	throttle time.Duration

	mu     sync.Mutex
	stores map[types.Scope]*scopedStore
}

type scopedStore struct {
	store  *history.Store
	cancel context.CancelFunc
}

var _ interfaces.RunUsecases = &UseCases{}
var _ interfaces.ArtifactUsecases = &UseCases{}
var _ interfaces.HistoryUsecases = &UseCases{}

type Option func(*UseCases)

// WithThrottle sets the write window of history stores
func WithThrottle(d time.Duration) Option {
	return func(u *UseCases) {
		u.throttle = d
	}
}

// New creates use cases on clients. Missing clients default to in-memory
// implementations, except the agent.
func New(clients *interfaces.Clients, opts ...Option) *UseCases {
	u := &UseCases{
		storageClient: clients.Storage(),
		catalog:       clients.Catalog(),
		notifier:      clients.Notifier(),
		agent:         clients.Agent(),
		throttle:      history.DefaultThrottle,
		stores:        make(map[types.Scope]*scopedStore),
	}
	if u.storageClient == nil {
		u.storageClient = storage.NewMemoryClient()
	}
	if u.catalog == nil {
		u.catalog = memory.New()
	}
	if u.notifier == nil {
		u.notifier = notify.New()
	}

	for _, opt := range opts {
		opt(u)
	}

	return u
}

// Close writes pending history catalogs and stops watching them
func (u *UseCases) Close(ctx context.Context) error {
	u.mu.Lock()
	stores := u.stores
	u.stores = make(map[types.Scope]*scopedStore)
	u.mu.Unlock()

	var firstErr error
	for _, s := range stores {
		if err := s.store.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		s.cancel()
	}
	return firstErr
}
