package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/agentrun/pkg/cli/config"
	"github.com/secmon-lab/agentrun/pkg/domain/model/errs"
	"github.com/secmon-lab/agentrun/pkg/domain/types"
	"github.com/secmon-lab/agentrun/pkg/service/artifact"
	"github.com/urfave/cli/v3"
)

var levelCategories = map[types.Level]types.Category{
	types.LevelError:   types.CategoryError,
	types.LevelWarning: types.CategoryTool,
	types.LevelDebug:   types.CategoryThought,
}

func cmdFiles() *cli.Command {
	var clientCfg config.Client

	fetcher := func() (*artifact.Fetcher, error) {
		base, err := clientCfg.BaseURL()
		if err != nil {
			return nil, err
		}
		return artifact.New(base), nil
	}

	return &cli.Command{
		Name:  "files",
		Usage: "Inspect the files and the log of the latest run",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List generated files",
				Flags: clientCfg.Flags(),
				Action: func(ctx context.Context, cmd *cli.Command) error {
					f, err := fetcher()
					if err != nil {
						return err
					}
					files, err := f.ListFiles(ctx)
					if err != nil {
						return err
					}
					newPrinter(stdout(cmd)).files(files)
					return nil
				},
			},
			{
				Name:      "get",
				Usage:     "Download a generated file",
				ArgsUsage: "<name>",
				Flags: joinFlags(clientCfg.Flags(), []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output path; default prints to stdout",
					},
				}),
				Action: func(ctx context.Context, cmd *cli.Command) error {
					name := cmd.Args().First()
					if name == "" {
						return goerr.New("file name is required", goerr.T(errs.TagValidation))
					}

					f, err := fetcher()
					if err != nil {
						return err
					}
					data, err := f.Download(ctx, name)
					if err != nil {
						return err
					}

					output := cmd.String("output")
					if output == "" {
						_, err := stdout(cmd).Write(data)
						return err
					}
					if err := writeOutput(output, data); err != nil {
						return err
					}
					_, _ = fmt.Fprintf(cmd.Root().ErrWriter, "%s written to %s (%s)\n", name, output, humanize.Bytes(uint64(len(data))))
					return nil
				},
			},
			{
				Name:  "logs",
				Usage: "Show the log of the latest run",
				Flags: clientCfg.Flags(),
				Action: func(ctx context.Context, cmd *cli.Command) error {
					f, err := fetcher()
					if err != nil {
						return err
					}
					entries, err := f.FetchLogs(ctx)
					if err != nil {
						return err
					}

					w := stdout(cmd)
					for _, e := range entries {
						c := categoryColors[levelCategories[e.Level]]
						if c == nil {
							c = categoryColors[types.CategoryInfo]
						}
						_, _ = c.Fprintf(w, "%s | %-8s | %s\n", e.Timestamp.Local().Format("15:04:05.000"), e.Level, e.Line)
					}
					return nil
				},
			},
		},
	}
}

func writeOutput(path string, data []byte) error {
	if err := os.WriteFile(filepath.Clean(path), data, 0600); err != nil {
		return goerr.Wrap(err, "failed to write output", goerr.TV(errs.PathKey, path))
	}
	return nil
}
