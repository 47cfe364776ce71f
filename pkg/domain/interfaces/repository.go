package interfaces

import "context"

// CatalogStorage keeps serialized catalogs and preferences by key. Get returns
// nil data without error when the key does not exist.
type CatalogStorage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Close() error
}

// CatalogWatcher is implemented by storages that can observe mutations made
// by other processes. The channel is closed when ctx is cancelled.
type CatalogWatcher interface {
	Watch(ctx context.Context, key string) (<-chan struct{}, error)
}
