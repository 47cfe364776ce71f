package config

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/agentrun/pkg/domain/model/errs"
	"github.com/secmon-lab/agentrun/pkg/repository/redis"
	"github.com/urfave/cli/v3"
)

type Redis struct {
	addr     string
	password string
	db       int
}

func (x *Redis) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "redis-addr",
			Usage:       "Redis address (host:port or redis:// URL)",
			Category:    "Redis",
			Destination: &x.addr,
			Sources:     cli.EnvVars("AGENTRUN_REDIS_ADDR"),
		},
		&cli.StringFlag{
			Name:        "redis-password",
			Usage:       "Redis password",
			Category:    "Redis",
			Destination: &x.password,
			Sources:     cli.EnvVars("AGENTRUN_REDIS_PASSWORD"),
		},
		&cli.IntFlag{
			Name:        "redis-db",
			Usage:       "Redis database number",
			Category:    "Redis",
			Destination: &x.db,
			Sources:     cli.EnvVars("AGENTRUN_REDIS_DB"),
		},
	}
}

func (x Redis) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("addr", x.addr),
		slog.Int("db", x.db),
	)
}

func (x *Redis) Configure(ctx context.Context) (*redis.Redis, error) {
	if x.addr == "" {
		return nil, goerr.New("--redis-addr is required for the redis catalog", goerr.T(errs.TagValidation))
	}
	return redis.New(ctx, x.addr, x.password, x.db)
}
