package config

import (
	"log/slog"
	"net/url"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/agentrun/pkg/domain/model/errs"
	"github.com/secmon-lab/agentrun/pkg/domain/types"
	"github.com/urfave/cli/v3"
)

// Client is the configuration of commands talking to a run server
type Client struct {
	server string
	scope  string
}

func (x *Client) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "server",
			Usage:       "Base URL of the run server",
			Category:    "Client",
			Value:       "http://localhost:8000",
			Destination: &x.server,
			Sources:     cli.EnvVars("AGENTRUN_SERVER"),
		},
		&cli.StringFlag{
			Name:        "scope",
			Usage:       "Identity scope of the local history",
			Category:    "Client",
			Value:       types.DefaultScope.String(),
			Destination: &x.scope,
			Sources:     cli.EnvVars("AGENTRUN_SCOPE"),
		},
	}
}

func (x Client) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("server", x.server),
		slog.String("scope", x.scope),
	)
}

// BaseURL returns the server URL without trailing slash
func (x *Client) BaseURL() (string, error) {
	u, err := url.Parse(x.server)
	if err != nil {
		return "", goerr.Wrap(err, "invalid server URL", goerr.TV(errs.URLKey, x.server), goerr.T(errs.TagValidation))
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", goerr.New("server URL must be http or https", goerr.TV(errs.URLKey, x.server), goerr.T(errs.TagValidation))
	}
	return strings.TrimRight(x.server, "/"), nil
}

// RunURL returns the websocket URL of the run endpoint
func (x *Client) RunURL() (string, error) {
	base, err := x.BaseURL()
	if err != nil {
		return "", err
	}
	if rest, ok := strings.CutPrefix(base, "https://"); ok {
		return "wss://" + rest + "/ws/run", nil
	}
	return "ws://" + strings.TrimPrefix(base, "http://") + "/ws/run", nil
}

func (x *Client) Scope() (types.Scope, error) {
	scope := types.Scope(x.scope)
	if !scope.Validate() {
		return "", goerr.New("invalid scope", goerr.TV(errs.ScopeKey, scope), goerr.T(errs.TagValidation))
	}
	return scope, nil
}
