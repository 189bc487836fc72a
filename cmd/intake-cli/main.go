package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mikey/llm-freight-intake/internal/adapters/guard"
	"github.com/mikey/llm-freight-intake/internal/adapters/intake"
	"github.com/mikey/llm-freight-intake/internal/config"
	"github.com/mikey/llm-freight-intake/internal/di"
	"github.com/mikey/llm-freight-intake/internal/factory"
	"go.uber.org/zap"
)

func main() {
	flags := di.ParseFlags()

	container, err := di.BuildCLIContainer(flags)
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	if err := container.Invoke(run); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func run(
	logger *zap.Logger,
	flags *di.CLIFlags,
	cfg *config.Config,
	cli *intake.CLIIntake,
	oracle *guard.GuardedOracle,
	store factory.Store,
) error {
	defer logger.Sync()
	defer store.Stop()
	defer oracle.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(flags.Files) == 0 {
		logger.Info("Reading email from stdin")
		_, err := cli.ProcessReader(ctx, "stdin", os.Stdin)
		return err
	}

	files, err := intake.CollectFiles(flags.Files)
	if err != nil {
		return err
	}
	workers := cfg.GetIntake().Workers
	logger.Info("Processing emails", zap.Int("count", len(files)), zap.Int("workers", workers))
	return cli.ProcessFiles(ctx, files, workers)
}
