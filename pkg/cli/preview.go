package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/agentrun/pkg/cli/config"
	"github.com/secmon-lab/agentrun/pkg/domain/model/errs"
	"github.com/secmon-lab/agentrun/pkg/domain/types"
	"github.com/secmon-lab/agentrun/pkg/service/artifact"
	"github.com/secmon-lab/agentrun/pkg/service/preview"
	"github.com/urfave/cli/v3"
)


func cmdPreview() *cli.Command {
	var (
		clientCfg config.Client
		output    string
	)

	return &cli.Command{
		Name:      "preview",
		Usage:     "Render a generated React component as a standalone HTML page",
		ArgsUsage: "<name>",
		Flags: joinFlags(clientCfg.Flags(), []cli.Flag{
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "Output HTML file; default prints to stdout",
				Destination: &output,
			},
		}),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			name := cmd.Args().First()
			if name == "" {
				return goerr.New("file name is required", goerr.T(errs.TagValidation))
			}

			base, err := clientCfg.BaseURL()
			if err != nil {
				return err
			}
			f := artifact.New(base)

			file, err := f.ReadFile(ctx, name)
			if err != nil {
				return err
			}
			if file.Kind != types.FileKindReact {
				return goerr.New("file is not a React component",
					goerr.TV(errs.FileNameKey, name),
					goerr.V("kind", file.Kind),
					goerr.T(errs.TagValidation))
			}

			var css string
			files, err := f.ListFiles(ctx)
			if err != nil {
				return err
			}
			if slices.Contains(files, preview.StylesheetName) {
				style, err := f.ReadFile(ctx, preview.StylesheetName)
				if err != nil {
					return err
				}
				css = style.Text
			}

			doc, err := preview.Render(name, file.Text, css)
			if err != nil {
				return err
			}

			if output == "" {
				_, err := fmt.Fprint(stdout(cmd), doc.HTML)
				return err
			}
			if err := writeOutput(output, []byte(doc.HTML)); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.Root().ErrWriter, "preview of %s (entry %s) written to %s (%s)\n",
				name, doc.Entry, output, humanize.Bytes(uint64(len(doc.HTML))))
			return nil
		},
	}
}
