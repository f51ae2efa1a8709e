package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aadhaar-drishti/backend/internal/bootstrap"
	"github.com/aadhaar-drishti/backend/pkg/config"
	appLogger "github.com/aadhaar-drishti/backend/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "drishtictl",
		Short:         "Operator tools for the AADHAAR Drishti data pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newImportCmd())
	root.AddCommand(newCalculateCmd())
	root.AddCommand(newPipelineCmd())

	return root
}

// withServices loads config, starts logging and hands a service graph to fn.
func withServices(cmd *cobra.Command, fn func(ctx context.Context, svc *bootstrap.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := appLogger.Init(cfg.Logging.Level, "console", "stderr"); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Sync()

	ctx := cmd.Context()
	svc, err := bootstrap.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	return fn(ctx, svc)
}
