package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/agentrun/pkg/domain/interfaces"
	"github.com/secmon-lab/agentrun/pkg/domain/model/errs"
	"github.com/secmon-lab/agentrun/pkg/utils/logging"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DefaultCollection holds catalogs and preferences, one document per key
const DefaultCollection = "catalogs"

type Firestore struct {
	db         *firestore.Client
	collection string
	eb         *goerr.Builder
}

type Option func(*Firestore)

// WithCollection stores documents in name instead of DefaultCollection, so
// several deployments can share one database.
func WithCollection(name string) Option {
	return func(r *Firestore) {
		r.collection = name
	}
}

var (
	_ interfaces.CatalogStorage = &Firestore{}
	_ interfaces.CatalogWatcher = &Firestore{}
)

// catalogDoc is one catalog or preference value. Data keeps the serialized
// value verbatim.
type catalogDoc struct {
	Data      string    `firestore:"data"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

func New(ctx context.Context, projectID, databaseID string, opts ...Option) (*Firestore, error) {
	db, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client")
	}

	r := &Firestore{db: db, collection: DefaultCollection}
	for _, opt := range opts {
		opt(r)
	}
	r.eb = goerr.NewBuilder(
		goerr.V("repository", "firestore"),
		goerr.V("project_id", projectID),
		goerr.V("database_id", databaseID),
		goerr.V("collection", r.collection),
	)
	return r, nil
}

func (r *Firestore) Close() error {
	return r.db.Close()
}

func (r *Firestore) Get(ctx context.Context, key string) ([]byte, error) {
	doc, err := r.db.Collection(r.collection).Doc(key).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, r.eb.Wrap(err, "failed to get catalog",
			goerr.TV(errs.KeyKey, key),
			goerr.T(errs.TagDatabase))
	}

	var v catalogDoc
	if err := doc.DataTo(&v); err != nil {
		return nil, r.eb.Wrap(err, "failed to convert data to catalog",
			goerr.TV(errs.KeyKey, key),
			goerr.T(errs.TagInternal))
	}
	return []byte(v.Data), nil
}

func (r *Firestore) Put(ctx context.Context, key string, data []byte) error {
	_, err := r.db.Collection(r.collection).Doc(key).Set(ctx, catalogDoc{
		Data:      string(data),
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return r.eb.Wrap(err, "failed to put catalog",
			goerr.TV(errs.KeyKey, key),
			goerr.T(errs.TagDatabase))
	}
	return nil
}

// Watch listens to document snapshots. The first snapshot describes the
// current state and is not reported.
func (r *Firestore) Watch(ctx context.Context, key string) (<-chan struct{}, error) {
	iter := r.db.Collection(r.collection).Doc(key).Snapshots(ctx)
	out := make(chan struct{}, 1)

	go func() {
		defer close(out)
		defer iter.Stop()

		first := true
		for {
			if _, err := iter.Next(); err != nil {
				if ctx.Err() == nil && status.Code(err) != codes.Canceled {
					logging.From(ctx).Warn("catalog snapshot listener stopped", "error", err, "key", key)
				}
				return
			}
			if first {
				first = false
				continue
			}
			select {
			case out <- struct{}{}:
			default:
			}
		}
	}()

	return out, nil
}
