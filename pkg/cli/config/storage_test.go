package config_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/agentrun/pkg/cli/config"
)

func TestStorage_Configure(t *testing.T) {
	ctx := context.Background()

	t.Run("local directory", func(t *testing.T) {
		dir := t.TempDir()
		cfg := config.NewStorageForTest(dir)
		gt.Equal(t, cfg.Backend(), config.StorageLocal)

		client, err := cfg.Configure(ctx)
		gt.NoError(t, err).Required()

		w := client.PutObject(ctx, "workspace/index.html")
		_, err = w.Write([]byte("<html></html>"))
		gt.NoError(t, err)
		gt.NoError(t, w.Close())

		data, err := os.ReadFile(filepath.Join(dir, "workspace", "index.html"))
		gt.NoError(t, err).Required()
		gt.Equal(t, string(data), "<html></html>")
	})

	t.Run("memory without directory", func(t *testing.T) {
		cfg := config.NewStorageForTest("")
		gt.Equal(t, cfg.Backend(), config.StorageMemory)

		client, err := cfg.Configure(ctx)
		gt.NoError(t, err).Required()

		w := client.PutObject(ctx, "logs/latest.log")
		_, err = w.Write([]byte("line"))
		gt.NoError(t, err)
		gt.NoError(t, w.Close())

		r, err := client.GetObject(ctx, "logs/latest.log")
		gt.NoError(t, err).Required()
		data, err := io.ReadAll(r)
		gt.NoError(t, err)
		gt.Equal(t, string(data), "line")
	})
}
