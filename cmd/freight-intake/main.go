package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mikey/llm-freight-intake/internal/adapters/guard"
	"github.com/mikey/llm-freight-intake/internal/di"
	"github.com/mikey/llm-freight-intake/internal/factory"
	"github.com/mikey/llm-freight-intake/internal/ports"
	"go.uber.org/zap"
)

func main() {
	// Build the dependency injection container
	container, err := di.BuildContainer()
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application function that gets all dependencies injected
func run(
	logger *zap.Logger,
	intakes []ports.EmailIntake,
	oracle *guard.GuardedOracle,
	store factory.Store,
) error {
	defer logger.Sync()
	defer store.Stop()

	started := make([]ports.EmailIntake, 0, len(intakes))
	for _, in := range intakes {
		if err := in.Start(); err != nil {
			logger.Error("Failed to start intake", zap.Error(err))
			stopAll(logger, started)
			return err
		}
		started = append(started, in)
	}

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Info("Shutting down...")

	stopAll(logger, started)

	if err := oracle.Close(); err != nil {
		logger.Error("Failed to close extraction oracle", zap.Error(err))
	}

	logger.Info("Shutdown complete")
	return nil
}

func stopAll(logger *zap.Logger, intakes []ports.EmailIntake) {
	for i := len(intakes) - 1; i >= 0; i-- {
		if err := intakes[i].Stop(); err != nil {
			logger.Error("Failed to stop intake", zap.Error(err))
		}
	}
}
