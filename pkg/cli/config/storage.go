package config

import (
	"context"
	"log/slog"

	"github.com/secmon-lab/agentrun/pkg/adapter/storage"
	"github.com/secmon-lab/agentrun/pkg/domain/interfaces"
	"github.com/urfave/cli/v3"
	"google.golang.org/api/option"
)

const (
	StorageMemory = "memory"
	StorageLocal  = "local"
	StorageGCS    = "gcs"
)

// Storage selects where generated files and run logs live: a Cloud Storage
// bucket, a local directory, or process memory when the directory is empty.
type Storage struct {
	dir          string
	bucket       string
	prefix       string
	quotaProject string
}

func (x *Storage) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "storage-dir",
			Usage:       "Directory of generated files, empty keeps them in memory",
			Category:    "Storage",
			Value:       ".agentrun/storage",
			Destination: &x.dir,
			Sources:     cli.EnvVars("AGENTRUN_STORAGE_DIR"),
		},
		&cli.StringFlag{
			Name:        "storage-bucket",
			Usage:       "Cloud Storage bucket, overrides --storage-dir",
			Category:    "Storage",
			Destination: &x.bucket,
			Sources:     cli.EnvVars("AGENTRUN_STORAGE_BUCKET"),
		},
		&cli.StringFlag{
			Name:        "storage-prefix",
			Usage:       "Object name prefix in the bucket",
			Category:    "Storage",
			Destination: &x.prefix,
			Sources:     cli.EnvVars("AGENTRUN_STORAGE_PREFIX"),
		},
		&cli.StringFlag{
			Name:        "storage-quota-project",
			Usage:       "Project billed for bucket requests",
			Category:    "Storage",
			Destination: &x.quotaProject,
			Sources:     cli.EnvVars("AGENTRUN_STORAGE_QUOTA_PROJECT"),
		},
	}
}

// Backend names the storage Configure creates
func (x *Storage) Backend() string {
	switch {
	case x.bucket != "":
		return StorageGCS
	case x.dir != "":
		return StorageLocal
	default:
		return StorageMemory
	}
}

func (x *Storage) LogValue() slog.Value {
	attrs := []slog.Attr{slog.String("backend", x.Backend())}
	switch x.Backend() {
	case StorageGCS:
		attrs = append(attrs, slog.String("bucket", x.bucket), slog.String("prefix", x.prefix))
	case StorageLocal:
		attrs = append(attrs, slog.String("dir", x.dir))
	}
	return slog.GroupValue(attrs...)
}

func (x *Storage) Configure(ctx context.Context) (interfaces.StorageClient, error) {
	switch x.Backend() {
	case StorageGCS:
		var opts []option.ClientOption
		if x.quotaProject != "" {
			opts = append(opts, option.WithQuotaProject(x.quotaProject))
		}
		client, err := storage.New(ctx, x.bucket, x.prefix, opts...)
		if err != nil {
			return nil, err
		}
		return client, nil

	case StorageLocal:
		client, err := storage.NewLocalClient(x.dir)
		if err != nil {
			return nil, err
		}
		return client, nil
	}

	return storage.NewMemoryClient(), nil
}
