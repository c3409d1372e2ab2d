//go:build !windows

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/enmassa-dl/enmassa/pkg/config"
)

// handleInterruption cancels the run on SIGINT or SIGTERM. Partial files
// are left on disk so a resume run can finish them.
func handleInterruption(ctx context.Context, cancel context.CancelFunc, cfg *config.Config) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			if !cfg.Output.Quiet {
				fmt.Fprintf(os.Stderr, "\nreceived %s, stopping; partial downloads are kept for -resume\n", sig)
			}
			cancel()
		case <-ctx.Done():
		}
	}()
}
