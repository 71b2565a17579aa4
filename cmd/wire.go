package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/slack-go/slack"

	"slack-ai-bridge/handler"
	"slack-ai-bridge/internal/config"
	"slack-ai-bridge/internal/delivery"
	"slack-ai-bridge/internal/integrations/bedrock"
	"slack-ai-bridge/internal/integrations/openai"
	"slack-ai-bridge/internal/integrations/paramstore"
	"slack-ai-bridge/internal/integrations/slackapi"
	"slack-ai-bridge/internal/integrations/webpage"
	"slack-ai-bridge/internal/repository"
	"slack-ai-bridge/internal/usecase"
)

func loadAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.AWSRegion != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.AWSRegion))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load AWS config: %w", err)
	}
	return awsCfg, nil
}

func newDynamoLedger(awsCfg aws.Config, cfg *config.Config) (*repository.DynamoLedger, error) {
	return repository.NewDynamoLedger(awsdynamodb.NewFromConfig(awsCfg), cfg.TableName, cfg.LedgerTTL())
}

// buildHandler wires every collaborator of the mention pipeline around ledger.
func buildHandler(ctx context.Context, cfg *config.Config, awsCfg aws.Config, ledger usecase.EventLedger) (*handler.Handler, error) {
	params, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		return nil, err
	}

	botToken, err := paramstore.Resolve(ctx, params, cfg.SlackBotToken)
	if err != nil {
		return nil, fmt.Errorf("resolve slack bot token: %w", err)
	}
	signingSecret, err := paramstore.Resolve(ctx, params, cfg.SlackSigningSecret)
	if err != nil {
		return nil, fmt.Errorf("resolve slack signing secret: %w", err)
	}

	slackClient, err := slackapi.New(slack.New(botToken))
	if err != nil {
		return nil, err
	}
	deliverer, err := delivery.New(slackClient, delivery.WithChunkLimit(cfg.SlackChunkLimit))
	if err != nil {
		return nil, err
	}
	llm, err := newLLM(cfg, awsCfg, params)
	if err != nil {
		return nil, err
	}

	svc, err := usecase.NewMentionService(usecase.Deps{
		Ledger:   ledger,
		History:  slackClient,
		Files:    slackClient,
		Pages:    webpage.New(webpage.WithHTTPClient(&http.Client{Timeout: 15 * time.Second})),
		LLM:      llm,
		Delivery: deliverer,
	}, usecase.Settings{
		ReplyBudget:     cfg.ReplyBudget,
		CeilingMessage:  cfg.CeilingMessage,
		ApologyFormat:   cfg.ApologyFormat,
		MaxPageChars:    cfg.MaxPageChars,
		FileConcurrency: cfg.FileConcurrency,
	})
	if err != nil {
		return nil, err
	}

	opts := []handler.Option{handler.WithBotIdentity(slackClient)}
	if signingSecret != "" {
		opts = append(opts, handler.WithSigningSecret(signingSecret))
	}
	return handler.NewHandler(svc, opts...)
}

func newLLM(cfg *config.Config, awsCfg aws.Config, params paramstore.Getter) (usecase.LLMClient, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return openai.NewClient(params, cfg.OpenAITokenParam,
			openai.WithBaseURL(cfg.OpenAIBaseURL),
			openai.WithModel(cfg.OpenAIModel),
			openai.WithMaxTokens(cfg.MaxTokens),
			openai.WithMaxAttempts(cfg.MaxAttempts),
		)
	default:
		runtime := bedrockruntime.NewFromConfig(awsCfg, func(o *bedrockruntime.Options) {
			o.Region = cfg.BedrockRegion
			o.Retryer = bedrock.NewRetryer(cfg.MaxAttempts)()
		})
		return bedrock.New(runtime, cfg.ModelID,
			bedrock.WithAnthropicVersion(cfg.AnthropicVersion),
			bedrock.WithMaxTokens(cfg.MaxTokens),
		)
	}
}
