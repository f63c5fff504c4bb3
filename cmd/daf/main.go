package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/devaiflow/cli/cmd/daf/cli"
	"github.com/devaiflow/cli/cmd/daf/cli/exitcode"
	"github.com/devaiflow/cli/cmd/daf/cli/jsonutil"
)

func main() {
	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(context.Background())

	// Handle interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	rootCmd := cli.NewRootCmd()
	err := rootCmd.ExecuteContext(ctx)
	cancel()
	if err == nil {
		return
	}

	// Under --json the failure envelope goes to stdout; nothing else may.
	if slices.Contains(os.Args[1:], "--json") {
		_ = jsonutil.WriteError(os.Stdout, exitcode.Code(err), err.Error(), exitcode.Details(err))
	} else {
		// Don't print if the command already handled its own error output
		var silent *cli.SilentError
		if !errors.As(err, &silent) {
			fmt.Fprintln(os.Stderr, err)
		}
	}
	os.Exit(exitcode.FromError(err))
}
