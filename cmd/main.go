package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"slack-ai-bridge/handler"
	"slack-ai-bridge/internal/config"
	"slack-ai-bridge/internal/logger"
	"slack-ai-bridge/internal/repository"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "slack-ai-bridge",
		Short:         "Answer Slack mentions with a hosted LLM",
		Long:          "Without a subcommand the binary runs as an AWS Lambda function behind API Gateway.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLambda(cmd.Context())
		},
	}
	root.AddCommand(newServeCmd(), newLedgerCmd())
	return root
}

func runLambda(ctx context.Context) error {
	// ---- Configuration (read only here) ----
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.RequireLambda(); err != nil {
		return err
	}
	log := logger.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)
	ctx = logger.WithContext(ctx, log)

	// ---- Clients ----
	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return err
	}
	ledger, err := newDynamoLedger(awsCfg, cfg)
	if err != nil {
		return err
	}

	// ---- Handler ----
	h, err := buildHandler(ctx, cfg, awsCfg, ledger)
	if err != nil {
		return err
	}
	lambda.StartWithOptions(h.Handle, lambda.WithContext(ctx))
	return nil
}

func newServeCmd() *cobra.Command {
	var envFile string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve Slack events over HTTP with a local SQLite ledger",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.RequireServe(); err != nil {
				return err
			}
			log := logger.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
			slog.SetDefault(log)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx = logger.WithContext(ctx, log)

			ledger, err := repository.OpenSQLiteLedger(cfg.SQLitePath)
			if err != nil {
				return err
			}
			defer ledger.Close()

			awsCfg, err := loadAWSConfig(ctx, cfg)
			if err != nil {
				return err
			}
			h, err := buildHandler(ctx, cfg, awsCfg, ledger)
			if err != nil {
				return err
			}

			srv := handler.NewServer(h, log)
			errCh := make(chan error, 1)
			go func() {
				log.Info("listening", "addr", cfg.ListenAddr, "sqlite_path", cfg.SQLitePath)
				errCh <- srv.Start(cfg.ListenAddr)
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "optional dotenv file loaded before configuration")
	return cmd
}
