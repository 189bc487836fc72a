package factory

import (
	"fmt"

	"github.com/mikey/llm-freight-intake/internal/adapters/httpapi"
	"github.com/mikey/llm-freight-intake/internal/adapters/intake"
	"github.com/mikey/llm-freight-intake/internal/config"
	"github.com/mikey/llm-freight-intake/internal/core"
	"github.com/mikey/llm-freight-intake/internal/ports"
	"github.com/mikey/llm-freight-intake/internal/senders"
	"github.com/mikey/llm-freight-intake/internal/utils"
	"go.uber.org/zap"
)

// NewIntakeService builds the pipeline with the thresholds and sender policy from config
func NewIntakeService(
	cfg *config.Config,
	oracle core.ExtractionOracle,
	repo core.Repository,
	notifier core.ClarificationNotifier,
	logger *zap.Logger,
) *core.IntakeService {
	intakeCfg := cfg.GetIntake()
	return core.NewIntakeService(
		oracle,
		repo,
		notifier,
		senders.NewPolicy(intakeCfg.IgnoredSenderDomains, logger),
		logger,
		core.IntakeOptions{
			MinClassificationConfidence: intakeCfg.MinClassificationConfidence,
			ReviewConfidence:            intakeCfg.ReviewConfidence,
			CriticalFields:              intakeCfg.CriticalFields,
			MatchWindow:                 intakeCfg.MatchWindow,
		},
	)
}

// IntakeFactory creates the listeners that feed the pipeline
type IntakeFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	handler       *intake.Handler
	repo          core.Repository
	textProcessor *utils.TextProcessor
}

// NewIntakeFactory creates a new intake factory
func NewIntakeFactory(cfg *config.Config, logger *zap.Logger, handler *intake.Handler, repo core.Repository, tp *utils.TextProcessor) *IntakeFactory {
	return &IntakeFactory{
		cfg:           cfg,
		logger:        logger,
		handler:       handler,
		repo:          repo,
		textProcessor: tp,
	}
}

// CreateIntakes returns the listeners selected by server.intake_type. The
// HTTP API runs whenever server.http_address is set.
func (f *IntakeFactory) CreateIntakes() ([]ports.EmailIntake, error) {
	serverCfg := f.cfg.GetServer()

	var intakes []ports.EmailIntake
	switch serverCfg.IntakeType {
	case "smtp":
		intakes = append(intakes, intake.NewSMTPIntake(f.handler, f.textProcessor, f.logger, serverCfg))
	case "http":
		if serverCfg.HTTPAddress == "" {
			return nil, fmt.Errorf("http intake requires server.http_address")
		}
	default:
		return nil, fmt.Errorf("unsupported intake type: %s", serverCfg.IntakeType)
	}

	if serverCfg.HTTPAddress != "" {
		intakes = append(intakes, httpapi.NewServer(f.handler, f.repo, f.textProcessor, f.logger, serverCfg))
	}
	return intakes, nil
}
