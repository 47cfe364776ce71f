package cli

import (
	"context"
	"fmt"

	"github.com/secmon-lab/agentrun/pkg/cli/config"
	"github.com/secmon-lab/agentrun/pkg/service/chat"
	"github.com/secmon-lab/agentrun/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdAsk() *cli.Command {
	var (
		clientCfg  config.Client
		catalogCfg config.Catalog
		prompt     string
		draft      bool
	)

	return &cli.Command{
		Name:  "ask",
		Usage: "Run a prompt without streaming and print the whole output",
		Flags: joinFlags(
			[]cli.Flag{
				&cli.StringFlag{
					Name:        "prompt",
					Aliases:     []string{"p"},
					Usage:       "Prompt of the run",
					Required:    true,
					Destination: &prompt,
				},
				&cli.BoolFlag{
					Name:        "draft",
					Usage:       "Keep the conversation marked as draft; remembered for later asks",
					Destination: &draft,
				},
			},
			clientCfg.Flags(),
			catalogCfg.Flags(),
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			logging.Default().Debug("ask options", "client", clientCfg, "catalog", catalogCfg)

			baseURL, err := clientCfg.BaseURL()
			if err != nil {
				return err
			}
			scope, err := clientCfg.Scope()
			if err != nil {
				return err
			}

			local, err := openHistory(ctx, &catalogCfg, scope)
			if err != nil {
				return err
			}
			defer local.close()

			conv := chat.New(ctx, chat.NewClient(baseURL, nil), chat.WithHistory(local.store))
			if cmd.IsSet("draft") {
				if err := local.prefs.SetDraft(ctx, draft); err != nil {
					logging.From(ctx).Warn("failed to save draft preference", "error", err)
				}
			} else if saved, err := local.prefs.Draft(ctx); err != nil {
				logging.From(ctx).Warn("failed to read draft preference", "error", err)
			} else {
				draft = saved
			}
			if draft {
				conv.SetDraft(ctx, true)
			}
			local.rememberPrompt(ctx, prompt)

			reply, err := conv.Send(ctx, prompt)
			if reply != nil {
				_, _ = fmt.Fprintln(stdout(cmd), reply.Content)
			}
			return err
		},
	}
}
