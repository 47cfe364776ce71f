// Package redis stores catalogs in Redis. Every Put publishes on a per-key
// channel so that other processes sharing the server can reload.
package redis

import (
	"context"
	"errors"

	"github.com/m-mizutani/goerr/v2"
	"github.com/redis/go-redis/v9"
	"github.com/secmon-lab/agentrun/pkg/domain/interfaces"
	"github.com/secmon-lab/agentrun/pkg/domain/model/errs"
	"github.com/secmon-lab/agentrun/pkg/utils/logging"
)

const (
	keyPrefix     = "agentrun:"
	channelPrefix = "agentrun:changed:"
)

type Redis struct {
	rdb *redis.Client
	eb  *goerr.Builder
}

var (
	_ interfaces.CatalogStorage = &Redis{}
	_ interfaces.CatalogWatcher = &Redis{}
)

// New connects to addr. addr may also be a redis:// URL.
func New(ctx context.Context, addr, password string, db int) (*Redis, error) {
	opt, err := redis.ParseURL(addr)
	if err != nil {
		opt = &redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, goerr.Wrap(err, "failed to connect to redis",
			goerr.V("addr", opt.Addr),
			goerr.T(errs.TagDatabase))
	}

	return &Redis{
		rdb: rdb,
		eb: goerr.NewBuilder(
			goerr.V("repository", "redis"),
			goerr.V("addr", opt.Addr),
		),
	}, nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.rdb.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, r.eb.Wrap(err, "failed to get catalog",
			goerr.TV(errs.KeyKey, key),
			goerr.T(errs.TagDatabase))
	}
	return data, nil
}

// Put stores data and announces the change in one transaction
func (r *Redis) Put(ctx context.Context, key string, data []byte) error {
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, keyPrefix+key, data, 0)
		pipe.Publish(ctx, channelPrefix+key, "1")
		return nil
	})
	if err != nil {
		return r.eb.Wrap(err, "failed to put catalog",
			goerr.TV(errs.KeyKey, key),
			goerr.T(errs.TagDatabase))
	}
	return nil
}

func (r *Redis) Watch(ctx context.Context, key string) (<-chan struct{}, error) {
	pubsub := r.rdb.Subscribe(ctx, channelPrefix+key)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, r.eb.Wrap(err, "failed to subscribe catalog changes",
			goerr.TV(errs.KeyKey, key),
			goerr.T(errs.TagDatabase))
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer func() {
			if err := pubsub.Close(); err != nil {
				logging.From(ctx).Warn("failed to close redis subscription", "error", err)
			}
		}()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()

	return out, nil
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
