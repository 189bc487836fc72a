package config

import (
	"strings"
	"time"
)

// LLMConfig represents the configuration for the LLM provider
type LLMConfig struct {
	Provider string
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region      string
	ModelID     string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// OpenAIConfig represents the configuration for OpenAI
type OpenAIConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// AnthropicConfig represents the configuration for the Anthropic Messages API
type AnthropicConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float64
	MaxBodySize int
}

// OracleGuardConfig controls rate limiting and retries around extraction calls
type OracleGuardConfig struct {
	RateLimit      float64
	Burst          int
	MaxAttempts    int
	InitialBackoff time.Duration
	Timeout        time.Duration
}

// IntakeConfig holds the decision thresholds of the intake pipeline
type IntakeConfig struct {
	DefaultBrokerID             string
	Brokers                     map[string]string
	MinClassificationConfidence int
	ReviewConfidence            int
	MatchWindow                 time.Duration
	CriticalFields              []string
	IgnoredSenderDomains        []string
	Workers                     int
}

// StoreConfig selects and configures the persistence backend
type StoreConfig struct {
	Type             string
	SQLitePath       string
	MySQLDSN         string
	CleanupFrequency time.Duration
}

// ServerConfig configures the network listeners
type ServerConfig struct {
	IntakeType      string
	ListenAddress   string
	HTTPAddress     string
	Domain          string
	MaxMessageBytes int64
}

// NotifierConfig configures outbound clarification delivery
type NotifierConfig struct {
	Type        string
	SMTPAddress string
	From        string
}

// GetLLM returns the LLM configuration
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		Provider: c.GetString("llm.provider"),
	}
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:      c.GetString("bedrock.region"),
		ModelID:     c.GetString("bedrock.model_id"),
		MaxTokens:   c.GetInt("bedrock.max_tokens"),
		Temperature: float32(c.GetFloat64("bedrock.temperature")),
		TopP:        float32(c.GetFloat64("bedrock.top_p")),
		MaxBodySize: c.GetInt("bedrock.max_body_size"),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:      c.GetString("gemini.api_key"),
		ModelName:   c.GetString("gemini.model_name"),
		MaxTokens:   c.GetInt("gemini.max_tokens"),
		Temperature: float32(c.GetFloat64("gemini.temperature")),
		TopP:        float32(c.GetFloat64("gemini.top_p")),
		MaxBodySize: c.GetInt("gemini.max_body_size"),
	}
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:      c.GetString("openai.api_key"),
		ModelName:   c.GetString("openai.model_name"),
		MaxTokens:   c.GetInt("openai.max_tokens"),
		Temperature: float32(c.GetFloat64("openai.temperature")),
		TopP:        float32(c.GetFloat64("openai.top_p")),
		MaxBodySize: c.GetInt("openai.max_body_size"),
	}
}

// GetAnthropic returns the Anthropic configuration
func (c *Config) GetAnthropic() AnthropicConfig {
	return AnthropicConfig{
		APIKey:      c.GetString("anthropic.api_key"),
		ModelName:   c.GetString("anthropic.model_name"),
		MaxTokens:   c.GetInt("anthropic.max_tokens"),
		Temperature: c.GetFloat64("anthropic.temperature"),
		MaxBodySize: c.GetInt("anthropic.max_body_size"),
	}
}

// GetOracleGuard returns the rate limit and retry settings for oracle calls
func (c *Config) GetOracleGuard() OracleGuardConfig {
	return OracleGuardConfig{
		RateLimit:      c.GetFloat64("oracle.rate_limit"),
		Burst:          c.GetInt("oracle.burst"),
		MaxAttempts:    c.GetInt("oracle.max_attempts"),
		InitialBackoff: c.durationOr("oracle.initial_backoff", 500*time.Millisecond),
		Timeout:        c.durationOr("oracle.timeout", time.Minute),
	}
}

// GetIntake returns the intake pipeline configuration
func (c *Config) GetIntake() IntakeConfig {
	brokers := make(map[string]string)
	for addr, id := range c.GetStringMapString("intake.brokers") {
		brokers[strings.ToLower(strings.TrimSpace(addr))] = id
	}
	return IntakeConfig{
		DefaultBrokerID:             c.GetString("intake.default_broker_id"),
		Brokers:                     brokers,
		MinClassificationConfidence: c.GetInt("intake.min_classification_confidence"),
		ReviewConfidence:            c.GetInt("intake.review_confidence"),
		MatchWindow:                 c.durationOr("intake.match_window", 7*24*time.Hour),
		CriticalFields:              c.GetStringSlice("intake.critical_fields"),
		IgnoredSenderDomains:        c.GetStringSlice("intake.ignored_sender_domains"),
		Workers:                     c.GetInt("intake.workers"),
	}
}

// GetStore returns the store configuration
func (c *Config) GetStore() StoreConfig {
	return StoreConfig{
		Type:             c.GetString("store.type"),
		SQLitePath:       c.GetString("store.sqlite_path"),
		MySQLDSN:         c.GetString("store.mysql_dsn"),
		CleanupFrequency: c.durationOr("store.cleanup_frequency", time.Hour),
	}
}

// GetServer returns the listener configuration
func (c *Config) GetServer() ServerConfig {
	return ServerConfig{
		IntakeType:      c.GetString("server.intake_type"),
		ListenAddress:   c.GetString("server.listen_address"),
		HTTPAddress:     c.GetString("server.http_address"),
		Domain:          c.GetString("server.domain"),
		MaxMessageBytes: int64(c.GetInt("server.max_message_bytes")),
	}
}

// GetNotifier returns the notifier configuration
func (c *Config) GetNotifier() NotifierConfig {
	return NotifierConfig{
		Type:        c.GetString("notifier.type"),
		SMTPAddress: c.GetString("notifier.smtp_address"),
		From:        c.GetString("notifier.from"),
	}
}

func (c *Config) durationOr(key string, fallback time.Duration) time.Duration {
	d, err := c.GetDuration(key)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
