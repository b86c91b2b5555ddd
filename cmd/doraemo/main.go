// Command doraemo is a conversational assistant grounded in the user's
// conversation history and uploaded documents.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/custodia-labs/doraemo/internal/adapters/driven/ai"
	"github.com/custodia-labs/doraemo/internal/adapters/driven/config/file"
	"github.com/custodia-labs/doraemo/internal/adapters/driving/cli"
	"github.com/custodia-labs/doraemo/internal/core/services"
	"github.com/custodia-labs/doraemo/internal/logger"
)

// version is set with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dir, err := file.DefaultDir()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	configStore, err := file.NewConfigStore(dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	settingsService := services.NewSettingsService(configStore, ai.NewConfigValidator())

	cli.SetVersion(version)
	cli.SetSettingsService(settingsService)
	cli.SetBootstrap(func(ctx context.Context, needs cli.Needs) (*cli.Services, func() error, error) {
		settings, err := settingsService.Get()
		if err != nil {
			return nil, nil, fmt.Errorf("loading settings: %w", err)
		}
		if err := logger.SetLevel(settings.Log.Level); err != nil {
			logger.Warn("%v", err)
		}
		if err := logger.SetFormat(settings.Log.Format); err != nil {
			logger.Warn("%v", err)
		}

		a, err := newApp(ctx, settings, dir, needs)
		if err != nil {
			return nil, nil, err
		}
		return a.services, a.Close, nil
	})

	return cli.Execute(ctx)
}
