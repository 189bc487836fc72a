package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/llm-freight-intake/internal/adapters/guard"
	"github.com/mikey/llm-freight-intake/internal/adapters/intake"
	"github.com/mikey/llm-freight-intake/internal/config"
	"github.com/mikey/llm-freight-intake/internal/core"
	"github.com/mikey/llm-freight-intake/internal/factory"
	"github.com/mikey/llm-freight-intake/internal/logging"
	"github.com/mikey/llm-freight-intake/internal/ports"
	"github.com/mikey/llm-freight-intake/internal/utils"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	if err := providePipeline(container); err != nil {
		return nil, err
	}

	// Register intake listeners
	if err := container.Provide(factory.NewIntakeFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.IntakeFactory) ([]ports.EmailIntake, error) {
		return f.CreateIntakes()
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// providePipeline registers everything between a parsed email and the store.
// It expects *config.Config and *zap.Logger to be provided already.
func providePipeline(container *dig.Container) error {
	// Register text processor
	if err := container.Provide(utils.NewTextProcessor); err != nil {
		return err
	}

	// Register factories
	if err := container.Provide(factory.NewLLMFactory); err != nil {
		return err
	}
	if err := container.Provide(factory.NewStoreFactory); err != nil {
		return err
	}
	if err := container.Provide(factory.NewNotifierFactory); err != nil {
		return err
	}

	// Register extraction oracle
	if err := container.Provide(func(f *factory.LLMFactory) (*guard.GuardedOracle, error) {
		return f.CreateOracle()
	}); err != nil {
		return err
	}
	if err := container.Provide(func(o *guard.GuardedOracle) core.ExtractionOracle {
		return o
	}); err != nil {
		return err
	}

	// Register store
	if err := container.Provide(func(f *factory.StoreFactory) (factory.Store, error) {
		return f.CreateStore()
	}); err != nil {
		return err
	}
	if err := container.Provide(func(s factory.Store) core.Repository {
		return s
	}); err != nil {
		return err
	}

	// Register clarification notifier
	if err := container.Provide(func(f *factory.NotifierFactory) (core.ClarificationNotifier, error) {
		return f.CreateNotifier()
	}); err != nil {
		return err
	}

	// Register intake service
	if err := container.Provide(factory.NewIntakeService); err != nil {
		return err
	}

	// Register ingestion handler
	if err := container.Provide(func(cfg *config.Config) *intake.BrokerResolver {
		return intake.NewBrokerResolver(cfg.GetIntake())
	}); err != nil {
		return err
	}
	return container.Provide(func(
		service *core.IntakeService,
		repo core.Repository,
		brokers *intake.BrokerResolver,
		logger *zap.Logger,
	) *intake.Handler {
		return intake.NewHandler(service, repo, brokers, logger)
	})
}
