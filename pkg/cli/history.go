package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/agentrun/pkg/cli/config"
	"github.com/secmon-lab/agentrun/pkg/domain/model/errs"
	"github.com/secmon-lab/agentrun/pkg/domain/types"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

func cmdHistory() *cli.Command {
	var (
		clientCfg  config.Client
		catalogCfg config.Catalog
	)
	flags := joinFlags(clientCfg.Flags(), catalogCfg.Flags())

	open := func(ctx context.Context) (*localHistory, error) {
		scope, err := clientCfg.Scope()
		if err != nil {
			return nil, err
		}
		return openHistory(ctx, &catalogCfg, scope)
	}

	return &cli.Command{
		Name:  "history",
		Usage: "Browse the local session history",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List sessions, most recent first",
				Flags: flags,
				Action: func(ctx context.Context, cmd *cli.Command) error {
					local, err := open(ctx)
					if err != nil {
						return err
					}
					defer local.close()

					w := stdout(cmd)
					catalog := local.store.Load(ctx)
					if len(catalog) == 0 {
						_, _ = fmt.Fprintln(w, "No sessions")
						return nil
					}
					for _, sess := range catalog {
						mark := ""
						if sess.IsDraft {
							mark = " (draft)"
						}
						_, _ = fmt.Fprintf(w, "%s  %-14s %3d msgs  %s%s\n",
							sess.ID, humanize.Time(sess.LastUpdated), len(sess.Messages), sess.Title, mark)
					}
					return nil
				},
			},
			{
				Name:      "show",
				Usage:     "Show the messages of a session",
				ArgsUsage: "<session-id>",
				Flags:     flags,
				Action: func(ctx context.Context, cmd *cli.Command) error {
					id := types.SessionID(cmd.Args().First())
					if id == "" {
						return goerr.New("session ID is required", goerr.T(errs.TagValidation))
					}

					local, err := open(ctx)
					if err != nil {
						return err
					}
					defer local.close()

					sess := local.find(ctx, id)
					if sess == nil {
						return goerr.New("session not found", goerr.TV(errs.SessionIDKey, id), goerr.T(errs.TagNotFound))
					}
					printSession(stdout(cmd), sess)
					return nil
				},
			},
			{
				Name:  "export",
				Usage: "Write the whole history as JSON or YAML",
				Flags: joinFlags(flags, []cli.Flag{
					&cli.StringFlag{
						Name:  "format",
						Usage: "Output format [json|yaml]",
						Value: "json",
					},
				}),
				Action: func(ctx context.Context, cmd *cli.Command) error {
					local, err := open(ctx)
					if err != nil {
						return err
					}
					defer local.close()

					catalog := local.store.Load(ctx)
					w := stdout(cmd)

					switch cmd.String("format") {
					case "json":
						enc := json.NewEncoder(w)
						enc.SetIndent("", "  ")
						if err := enc.Encode(catalog); err != nil {
							return goerr.Wrap(err, "failed to encode history")
						}
					case "yaml":
						// yaml follows the json field names of the catalog
						raw, err := catalog.Encode()
						if err != nil {
							return err
						}
						var doc any
						if err := json.Unmarshal(raw, &doc); err != nil {
							return goerr.Wrap(err, "failed to convert history")
						}
						enc := yaml.NewEncoder(w)
						enc.SetIndent(2)
						if err := enc.Encode(doc); err != nil {
							return goerr.Wrap(err, "failed to encode history")
						}
						if err := enc.Close(); err != nil {
							return goerr.Wrap(err, "failed to encode history")
						}
					default:
						return goerr.New("unknown format", goerr.V("format", cmd.String("format")), goerr.T(errs.TagValidation))
					}
					return nil
				},
			},
		},
	}
}
