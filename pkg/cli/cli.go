package cli

import (
	"context"
	"io"

	"github.com/secmon-lab/agentrun/pkg/cli/config"
	"github.com/secmon-lab/agentrun/pkg/utils/logging"
	"github.com/secmon-lab/agentrun/pkg/utils/request_id"
	"github.com/urfave/cli/v3"
)

func Run(ctx context.Context, args []string) error {
	if err := newApp(nil, nil).Run(ctx, args); err != nil {
		logging.Default().Error("failed to run app", "error", err)
		return err
	}
	return nil
}

// newApp builds the root command. Nil reader and writer fall back to the
// standard input and output.
func newApp(r io.Reader, w io.Writer) *cli.Command {
	var loggerCfg config.Logger
	var closer func()

	return &cli.Command{
		Name:   "agentrun",
		Usage:  "Drive code generating agents and browse what they produced",
		Reader: r,
		Writer: w,
		Flags:  loggerCfg.Flags(),
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			f, err := loggerCfg.Configure()
			if err != nil {
				return ctx, err
			}
			closer = f

			// one ID per invocation, sent with every request to the server
			ctx, id := request_id.Generate(ctx)
			ctx = logging.With(ctx, logging.Default().With("request_id", id))

			logging.From(ctx).Debug("base options", "logger", loggerCfg)
			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			if closer != nil {
				closer()
			}
			return nil
		},
		Commands: []*cli.Command{
			cmdServe(),
			cmdRun(),
			cmdAsk(),
			cmdHistory(),
			cmdFiles(),
			cmdPreview(),
		},
	}
}
