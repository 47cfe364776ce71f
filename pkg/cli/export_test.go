package cli

import (
	"io"

	"github.com/urfave/cli/v3"
)

func NewAppForTest(r io.Reader, w io.Writer) *cli.Command {
	return newApp(r, w)
}
