//go:build windows

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/enmassa-dl/enmassa/pkg/config"
)

// handleInterruption cancels the run on Ctrl+C. Partial files are left on
// disk so a resume run can finish them.
func handleInterruption(ctx context.Context, cancel context.CancelFunc, cfg *config.Config) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)

	go func() {
		select {
		case <-sigChan:
			if !cfg.Output.Quiet {
				fmt.Fprintln(os.Stderr, "\ninterrupted, stopping; partial downloads are kept for -resume")
			}
			cancel()
		case <-ctx.Done():
		}
	}()
}
