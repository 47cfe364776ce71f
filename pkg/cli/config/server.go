package config

import (
	"log/slog"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

type Server struct {
	addr      string
	origins   []string
	staticDir string
}

func (x *Server) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Aliases:     []string{"a"},
			Sources:     cli.EnvVars("AGENTRUN_ADDR"),
			Usage:       "Listen address",
			Value:       "127.0.0.1:8000",
			Destination: &x.addr,
		},
		&cli.StringSliceFlag{
			Name:        "allowed-origin",
			Usage:       "Origin allowed for browser clients, '*' for any (repeatable)",
			Sources:     cli.EnvVars("AGENTRUN_ALLOWED_ORIGINS"),
			Destination: &x.origins,
		},
		&cli.StringFlag{
			Name:        "static-dir",
			Usage:       "Directory of a single page application served at /",
			Sources:     cli.EnvVars("AGENTRUN_STATIC_DIR"),
			Destination: &x.staticDir,
		},
	}
}

func (x Server) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("addr", x.addr),
		slog.Any("allowed_origins", x.origins),
		slog.String("static_dir", x.staticDir),
	)
}

func (x *Server) Addr() string {
	return x.addr
}

func (x *Server) AllowedOrigins() []string {
	return x.origins
}

// StaticDir returns the directory of static files, or empty if none is
// configured. It fails when the directory does not exist.
func (x *Server) StaticDir() (string, error) {
	if x.staticDir == "" {
		return "", nil
	}
	info, err := os.Stat(x.staticDir)
	if err != nil {
		return "", goerr.Wrap(err, "failed to open static directory", goerr.V("path", x.staticDir))
	}
	if !info.IsDir() {
		return "", goerr.New("static path is not a directory", goerr.V("path", x.staticDir))
	}
	return x.staticDir, nil
}
