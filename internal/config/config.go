// Package config loads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	ProviderBedrock = "bedrock"
	ProviderOpenAI  = "openai"
)

var ErrConfiguration = errors.New("config: invalid configuration")

type Config struct {
	LogLevel  string `mapstructure:"log_level"  validate:"oneof=debug info warn error"`
	LogFormat string `mapstructure:"log_format" validate:"oneof=json text"`

	AWSRegion     string `mapstructure:"aws_region"`
	BedrockRegion string `mapstructure:"bedrock_region"`

	// Ledger.
	TableName     string `mapstructure:"dynamodb_table_name"`
	LedgerTTLDays int    `mapstructure:"ledger_ttl_days" validate:"min=0"`
	SQLitePath    string `mapstructure:"sqlite_path"`

	// Slack. Token values may be "ssm:<parameter name>" references.
	SlackBotToken      string `mapstructure:"slack_bot_token"`
	SlackSigningSecret string `mapstructure:"slack_signing_secret"`
	SlackChunkLimit    int    `mapstructure:"slack_chunk_limit" validate:"min=100,max=40000"`

	// Inference.
	Provider         string `mapstructure:"llm_provider"      validate:"oneof=bedrock openai"`
	ModelID          string `mapstructure:"bedrock_model_id"  validate:"required"`
	AnthropicVersion string `mapstructure:"anthropic_version" validate:"required"`
	MaxTokens        int    `mapstructure:"max_tokens"        validate:"min=1,max=64000"`
	MaxAttempts      int    `mapstructure:"max_attempts"      validate:"min=1,max=20"`
	OpenAITokenParam string `mapstructure:"openai_token_param"`
	OpenAIBaseURL    string `mapstructure:"openai_base_url"   validate:"omitempty,url"`
	OpenAIModel      string `mapstructure:"openai_model"`

	// Conversation.
	ReplyBudget     int    `mapstructure:"reply_budget"     validate:"min=1"`
	CeilingMessage  string `mapstructure:"ceiling_message"`
	ApologyFormat   string `mapstructure:"apology_format"`
	MaxPageChars    int    `mapstructure:"max_page_chars"   validate:"min=200"`
	FileConcurrency int    `mapstructure:"file_concurrency" validate:"min=1,max=32"`

	ListenAddr string `mapstructure:"listen_addr" validate:"required"`
}

var defaults = map[string]any{
	"log_level":            "info",
	"log_format":           "json",
	"aws_region":           "",
	"bedrock_region":       "us-west-2",
	"dynamodb_table_name":  "",
	"ledger_ttl_days":      0,
	"sqlite_path":          "ledger.db",
	"slack_bot_token":      "",
	"slack_signing_secret": "",
	"slack_chunk_limit":    3000,
	"llm_provider":         ProviderBedrock,
	"bedrock_model_id":     "global.anthropic.claude-opus-4-5-20251101-v1:0",
	"anthropic_version":    "bedrock-2023-05-31",
	"max_tokens":           2048,
	"max_attempts":         8,
	"openai_token_param":   "",
	"openai_base_url":      "https://api.openai.com/v1",
	"openai_model":         "gpt-4o-mini",
	"reply_budget":         50,
	"ceiling_message":      "",
	"apology_format":       "",
	"max_page_chars":       8000,
	"file_concurrency":     4,
	"listen_addr":          ":8080",
}

// Load reads every setting from the environment (upper-cased key names,
// e.g. DYNAMODB_TABLE_NAME) over the defaults and validates the result.
func Load() (*Config, error) {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if c.Provider == ProviderOpenAI && c.OpenAITokenParam == "" {
		return errors.New("openai_token_param is required for the openai provider")
	}
	return nil
}

// RequireLambda checks the settings only the Lambda runtime needs.
func (c *Config) RequireLambda() error {
	if c.TableName == "" {
		return fmt.Errorf("%w: dynamodb_table_name is required", ErrConfiguration)
	}
	if c.SlackBotToken == "" {
		return fmt.Errorf("%w: slack_bot_token is required", ErrConfiguration)
	}
	return nil
}

// RequireServe checks the settings the local HTTP server needs.
func (c *Config) RequireServe() error {
	if c.SQLitePath == "" {
		return fmt.Errorf("%w: sqlite_path is required", ErrConfiguration)
	}
	if c.SlackBotToken == "" {
		return fmt.Errorf("%w: slack_bot_token is required", ErrConfiguration)
	}
	return nil
}

func (c *Config) LedgerTTL() time.Duration {
	return time.Duration(c.LedgerTTLDays) * 24 * time.Hour
}
