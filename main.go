package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/secmon-lab/agentrun/pkg/cli"
)

func main() {
	// Ctrl-C interrupts a streaming run and lets it record the cancellation
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cli.Run(ctx, os.Args); err != nil {
		stop()
		os.Exit(1)
	}
}
