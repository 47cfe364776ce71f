package memory

import (
	"bytes"
	"context"
	"sync"

	"github.com/secmon-lab/agentrun/pkg/domain/interfaces"
)

// Memory keeps catalogs in process memory. Watchers are notified on every Put,
// which lets several stores in one process act as independent contexts.
type Memory struct {
	mu       sync.RWMutex
	data     map[string][]byte
	watchers map[string]map[chan struct{}]struct{}
}

var (
	_ interfaces.CatalogStorage = &Memory{}
	_ interfaces.CatalogWatcher = &Memory{}
)

func New() *Memory {
	return &Memory{
		data:     make(map[string][]byte),
		watchers: make(map[string]map[chan struct{}]struct{}),
	}
}

func (r *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, ok := r.data[key]
	if !ok {
		return nil, nil
	}
	return bytes.Clone(data), nil
}

func (r *Memory) Put(ctx context.Context, key string, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.data[key] = bytes.Clone(data)
	for ch := range r.watchers[key] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}

func (r *Memory) Watch(ctx context.Context, key string) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)

	r.mu.Lock()
	if r.watchers[key] == nil {
		r.watchers[key] = make(map[chan struct{}]struct{})
	}
	r.watchers[key][ch] = struct{}{}
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.watchers[key], ch)
		close(ch)
	}()

	return ch, nil
}

func (r *Memory) Close() error {
	return nil
}
