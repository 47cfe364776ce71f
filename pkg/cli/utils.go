package cli

import (
	"io"

	"github.com/urfave/cli/v3"
)

func joinFlags(flags ...[]cli.Flag) []cli.Flag {
	var result []cli.Flag
	for _, flag := range flags {
		result = append(result, flag...)
	}
	return result
}

func stdout(cmd *cli.Command) io.Writer {
	return cmd.Root().Writer
}

func stdin(cmd *cli.Command) io.Reader {
	return cmd.Root().Reader
}
