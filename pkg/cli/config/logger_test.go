package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/agentrun/pkg/cli/config"
	"github.com/secmon-lab/agentrun/pkg/domain/model/errs"
	"github.com/secmon-lab/agentrun/pkg/utils/logging"
)

func TestLoggerConfigure(t *testing.T) {
	prev := logging.Default()
	t.Cleanup(func() { logging.SetDefault(prev) })

	t.Run("file output", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "agentrun.log")
		closer, err := config.NewLoggerForTest("debug", "json", path).Configure()
		gt.NoError(t, err).Required()

		logging.Default().Debug("written to file")
		closer()

		data, err := os.ReadFile(path)
		gt.NoError(t, err).Required()
		gt.S(t, string(data)).Contains("written to file")
	})

	t.Run("invalid level", func(t *testing.T) {
		closer, err := config.NewLoggerForTest("loud", "json", "stderr").Configure()
		gt.Error(t, err)
		gt.True(t, goerr.HasTag(err, errs.TagValidation))
		closer()
	})

	t.Run("invalid format", func(t *testing.T) {
		_, err := config.NewLoggerForTest("info", "xml", "stderr").Configure()
		gt.Error(t, err)
	})
}
