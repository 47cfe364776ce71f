package config

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/agentrun/pkg/domain/model/errs"
	"github.com/secmon-lab/agentrun/pkg/utils/logging"
	"github.com/secmon-lab/agentrun/pkg/utils/safe"
	"github.com/urfave/cli/v3"
)

type Logger struct {
	level      string
	format     string
	output     string
	quiet      bool
	stacktrace bool
}

func (x *Logger) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Category:    "logging",
			Aliases:     []string{"l"},
			Sources:     cli.EnvVars("AGENTRUN_LOG_LEVEL"),
			Usage:       "Log level [debug|info|warn|error]",
			Value:       "info",
			Destination: &x.level,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Category:    "logging",
			Sources:     cli.EnvVars("AGENTRUN_LOG_FORMAT"),
			Usage:       "Log format [console|json], empty to detect from TERM",
			Value:       "console",
			Destination: &x.format,
		},
		&cli.StringFlag{
			Name:        "log-output",
			Category:    "logging",
			Sources:     cli.EnvVars("AGENTRUN_LOG_OUTPUT"),
			Usage:       "Log destination: stdout, stderr or a file path",
			Value:       "stderr",
			Destination: &x.output,
		},
		&cli.BoolFlag{
			Name:        "log-quiet",
			Category:    "logging",
			Aliases:     []string{"q"},
			Usage:       "Discard all logs",
			Sources:     cli.EnvVars("AGENTRUN_LOG_QUIET"),
			Destination: &x.quiet,
		},
		&cli.BoolFlag{
			Name:        "log-stacktrace",
			Category:    "logging",
			Usage:       "Print stacktraces of errors (console format)",
			Sources:     cli.EnvVars("AGENTRUN_LOG_STACKTRACE"),
			Destination: &x.stacktrace,
		},
	}
}

func (x Logger) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("level", x.level),
		slog.String("format", x.format),
		slog.String("output", x.output),
		slog.Bool("quiet", x.quiet),
	)
}

// Configure installs the default logger. The returned closer is never nil.
func (x *Logger) Configure() (func(), error) {
	noop := func() {}
	if x.quiet {
		logging.Quiet()
		return noop, nil
	}

	format, err := logging.ParseFormat(x.format)
	if err != nil {
		return noop, goerr.Wrap(err, "bad --log-format", goerr.T(errs.TagValidation))
	}
	level, err := logging.ParseLevel(x.level)
	if err != nil {
		return noop, goerr.Wrap(err, "bad --log-level", goerr.T(errs.TagValidation))
	}

	w, closer, err := openLogOutput(x.output)
	if err != nil {
		return noop, err
	}

	logging.SetDefault(logging.New(w, level, format, x.stacktrace))
	return closer, nil
}

func openLogOutput(output string) (io.Writer, func(), error) {
	switch output {
	case "stdout", "-":
		return os.Stdout, func() {}, nil
	case "stderr", "":
		return os.Stderr, func() {}, nil
	}

	path := filepath.Clean(output)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to open log file", goerr.TV(errs.PathKey, path))
	}
	return f, func() { safe.Close(context.Background(), f) }, nil
}
