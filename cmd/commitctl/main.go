package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/stellar-commitment/commitdash/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, cli.ErrOperationFailed) {
			fmt.Fprintf(os.Stderr, "commitctl: %v\n", err)
		}
		stop()
		os.Exit(1)
	}
}
