package config

import (
	"context"
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/agentrun/pkg/domain/interfaces"
	"github.com/secmon-lab/agentrun/pkg/domain/model/errs"
	"github.com/secmon-lab/agentrun/pkg/repository/file"
	"github.com/secmon-lab/agentrun/pkg/repository/memory"
	"github.com/secmon-lab/agentrun/pkg/service/history"
	"github.com/urfave/cli/v3"
)

const (
	CatalogMemory    = "memory"
	CatalogFile      = "file"
	CatalogRedis     = "redis"
	CatalogFirestore = "firestore"
)

// Catalog selects the storage of session histories and preferences
type Catalog struct {
	backend  string
	dir      string
	throttle time.Duration

	redis     Redis
	firestore Firestore
}

func (x *Catalog) Flags() []cli.Flag {
	return joinFlags(
		[]cli.Flag{
			&cli.StringFlag{
				Name:        "catalog",
				Usage:       "History catalog backend [memory|file|redis|firestore]",
				Category:    "Catalog",
				Value:       CatalogFile,
				Destination: &x.backend,
				Sources:     cli.EnvVars("AGENTRUN_CATALOG"),
			},
			&cli.StringFlag{
				Name:        "catalog-dir",
				Usage:       "Directory of the file catalog backend",
				Category:    "Catalog",
				Value:       ".agentrun/history",
				Destination: &x.dir,
				Sources:     cli.EnvVars("AGENTRUN_CATALOG_DIR"),
			},
			&cli.DurationFlag{
				Name:        "catalog-throttle",
				Usage:       "Write window of history catalogs",
				Category:    "Catalog",
				Value:       history.DefaultThrottle,
				Destination: &x.throttle,
				Sources:     cli.EnvVars("AGENTRUN_CATALOG_THROTTLE"),
			},
		},
		x.redis.Flags(),
		x.firestore.Flags(),
	)
}

func (x Catalog) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("backend", x.backend),
		slog.String("dir", x.dir),
		slog.Duration("throttle", x.throttle),
		slog.Any("redis", x.redis),
		slog.Any("firestore", x.firestore),
	)
}

// Throttle returns the write window of history stores
func (x *Catalog) Throttle() time.Duration {
	return x.throttle
}

func (x *Catalog) Configure(ctx context.Context) (interfaces.CatalogStorage, error) {
	switch x.backend {
	case CatalogMemory:
		return memory.New(), nil

	case CatalogFile, "":
		repo, err := file.New(x.dir)
		if err != nil {
			return nil, err
		}
		return repo, nil

	case CatalogRedis:
		repo, err := x.redis.Configure(ctx)
		if err != nil {
			return nil, err
		}
		return repo, nil

	case CatalogFirestore:
		repo, err := x.firestore.Configure(ctx)
		if err != nil {
			return nil, err
		}
		return repo, nil

	default:
		return nil, goerr.New("unknown catalog backend",
			goerr.V("backend", x.backend),
			goerr.T(errs.TagValidation))
	}
}

func joinFlags(flags ...[]cli.Flag) []cli.Flag {
	var result []cli.Flag
	for _, flag := range flags {
		result = append(result, flag...)
	}
	return result
}
