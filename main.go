// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"ephys/cmd"
	applog "ephys/internal/log"
	"ephys/pkg/build"
)

// main is the entry point for the processor host.
// The program flow is divided into three phases:
//
// 1. Startup Phase:
//   - Initialize build information
//   - Parse command line arguments and load the configuration
//   - Configure logging
//   - Execute one-off commands if requested
//
// 2. Run Phase:
//   - Build transports, processor registry and host node
//   - Start acquisition, recording and config hot reload
//   - Show the monitor if enabled
//
// 3. Shutdown Phase:
//   - Handle termination signals
//   - Stop recording and acquisition
//   - Clean up resources
func main() {
	// ==================== STARTUP PHASE ====================

	if err := build.Initialize(); err != nil {
		applog.Debugf("Build: %v", err)
	}

	opts, err := cmd.ParseArgs(os.Args[1:])
	if err != nil {
		applog.Fatal(err)
	}
	if opts == nil {
		return
	}
	cfg := opts.Config

	logFile := applog.Configure(cfg.LogLevel, applog.FileOptions{
		Filename:   cfg.LogFile,
		MaxSize:    50,
		MaxBackups: 3,
		MaxAge:     28,
		Quiet:      cfg.Monitor,
	})
	defer logFile.Close()

	if cfg.Command != "" {
		if err := cmd.Execute(os.Stdout, opts); err != nil {
			applog.Fatal(err)
		}
		return
	}

	// ==================== RUN PHASE ====================

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner, err := cmd.NewRunner(cfg, opts.ConfigPath, cmd.WithOverrides(opts.Overrides))
	if err != nil {
		applog.Fatal(err)
	}

	applog.Infof("Host: %s started with processor %q", build.Get(), cfg.Processor.Name)
	runErr := runner.Run(ctx)

	// ==================== SHUTDOWN PHASE ====================

	stats := runner.Node.Stats()
	if err := runner.Close(); err != nil {
		applog.Errorf("Host: shutdown: %v", err)
	}
	applog.Infof("Host: stopped after %d blocks (%d samples, %d errors)", stats.Blocks, stats.Samples, stats.Errors)

	if runErr != nil {
		applog.Fatal(runErr)
	}
}
