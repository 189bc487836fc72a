package di

import (
	"flag"
	"os"
	"strings"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/llm-freight-intake/internal/adapters/intake"
	"github.com/mikey/llm-freight-intake/internal/config"
	"github.com/mikey/llm-freight-intake/internal/logging"
	"github.com/mikey/llm-freight-intake/internal/utils"
)

// CLIFlags contains all command line flags for the CLI application
type CLIFlags struct {
	// LLM provider flags
	Provider    string
	ModelName   string
	APIKey      string
	MaxTokens   int
	Temperature float64
	TopP        float64
	MaxBodySize int

	// Bedrock flags
	BedrockRegion string

	// Pipeline flags
	BrokerID      string
	IgnoreDomains string
	Notifier      string

	// Store flags
	StoreType  string
	SQLitePath string

	// Input and output flags
	Files      []string
	Workers    int
	Verbose    bool
	JSONOutput bool
	JSONLog    bool
	ConfigFile string
}

// ParseFlags parses command line flags and returns a CLIFlags struct.
// Positional arguments are .eml files or directories of them.
func ParseFlags() *CLIFlags {
	flags := &CLIFlags{}

	// LLM provider flags
	flag.StringVar(&flags.Provider, "provider", "openai", "LLM provider (openai, anthropic, gemini, bedrock)")
	flag.StringVar(&flags.ModelName, "model", "", "Model name or Bedrock model ID (provider default if empty)")
	flag.StringVar(&flags.APIKey, "api-key", "", "API key for the provider (falls back to the provider's environment variable)")
	flag.IntVar(&flags.MaxTokens, "max-tokens", 1500, "Maximum tokens for LLM response")
	flag.Float64Var(&flags.Temperature, "temperature", 0.0, "Temperature for LLM generation")
	flag.Float64Var(&flags.TopP, "top-p", 0.9, "Top-p for LLM generation")
	flag.IntVar(&flags.MaxBodySize, "max-body-size", 8192, "Maximum email body size to send to LLM")
	flag.StringVar(&flags.BedrockRegion, "bedrock-region", "us-east-1", "AWS region for Bedrock")

	// Pipeline flags
	flag.StringVar(&flags.BrokerID, "broker", "default", "Broker id the emails belong to")
	flag.StringVar(&flags.IgnoreDomains, "ignore-domains", "", "Comma-separated sender domains that are never load requests")
	flag.StringVar(&flags.Notifier, "notifier", "log", "Clarification notifier (log, none)")

	// Store flags
	flag.StringVar(&flags.StoreType, "store", "memory", "Store type (memory, sqlite)")
	flag.StringVar(&flags.SQLitePath, "sqlite-path", "./freight_intake.db", "SQLite database path")

	// Input flags
	flag.IntVar(&flags.Workers, "workers", 4, "Number of emails processed concurrently (use 1 to replay a conversation in file order)")
	flag.BoolVar(&flags.Verbose, "verbose", false, "Enable verbose logging")
	flag.BoolVar(&flags.JSONOutput, "json", false, "Print results as JSON")
	flag.BoolVar(&flags.JSONLog, "json-log", false, "Output logs in JSON format")
	flag.StringVar(&flags.ConfigFile, "config", "", "Path to config file (overrides command line flags)")

	flag.Parse()
	flags.Files = flag.Args()
	return flags
}

// BuildCLIContainer creates and configures a dependency injection container for the CLI application
func BuildCLIContainer(flags *CLIFlags) (*dig.Container, error) {
	container := dig.New()

	// Register flags
	if err := container.Provide(func() *CLIFlags { return flags }); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func(flags *CLIFlags) (*zap.Logger, error) {
		return logging.InitConsoleLogger(flags.Verbose, flags.JSONLog)
	}); err != nil {
		return nil, err
	}

	// Register configuration
	if err := container.Provide(func(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
		if flags.ConfigFile != "" {
			cfg, err := config.NewFromFile(flags.ConfigFile)
			if err != nil {
				return nil, err
			}
			logger.Info("Loaded configuration from file", zap.String("file", cfg.GetViper().ConfigFileUsed()))
			return cfg, nil
		}
		return createConfigFromFlags(flags), nil
	}); err != nil {
		return nil, err
	}

	if err := providePipeline(container); err != nil {
		return nil, err
	}

	// Register CLI intake
	if err := container.Provide(func(
		handler *intake.Handler,
		tp *utils.TextProcessor,
		logger *zap.Logger,
		flags *CLIFlags,
	) *intake.CLIIntake {
		return intake.NewCLIIntake(handler, tp, logger, os.Stdout, flags.Verbose, flags.JSONOutput)
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// createConfigFromFlags creates a configuration from command line flags
func createConfigFromFlags(flags *CLIFlags) *config.Config {
	v := config.NewEmptyViper()

	v.Set("llm.provider", flags.Provider)
	v.Set("intake.default_broker_id", flags.BrokerID)
	v.Set("intake.workers", flags.Workers)
	v.Set("notifier.type", flags.Notifier)
	v.Set("store.type", flags.StoreType)
	v.Set("store.sqlite_path", flags.SQLitePath)

	if flags.IgnoreDomains != "" {
		domains := strings.Split(flags.IgnoreDomains, ",")
		for i, domain := range domains {
			domains[i] = strings.TrimSpace(domain)
		}
		v.Set("intake.ignored_sender_domains", domains)
	}

	// Set provider-specific configuration
	prefix := flags.Provider
	apiKey := flags.APIKey
	switch flags.Provider {
	case "bedrock":
		v.Set("bedrock.region", flags.BedrockRegion)
		if flags.ModelName != "" {
			v.Set("bedrock.model_id", flags.ModelName)
		}
	case "openai":
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
	case "anthropic":
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	case "gemini":
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
	}
	if flags.Provider != "bedrock" {
		v.Set(prefix+".api_key", apiKey)
		if flags.ModelName != "" {
			v.Set(prefix+".model_name", flags.ModelName)
		}
	}
	v.Set(prefix+".max_tokens", flags.MaxTokens)
	v.Set(prefix+".temperature", flags.Temperature)
	v.Set(prefix+".top_p", flags.TopP)
	v.Set(prefix+".max_body_size", flags.MaxBodySize)

	return config.NewFromViper(v)
}
