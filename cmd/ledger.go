package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"slack-ai-bridge/internal/config"
	"slack-ai-bridge/internal/domain"
	"slack-ai-bridge/internal/repository"
)

type recordGetter interface {
	Get(ctx context.Context, eventID string) (domain.EventRecord, bool, error)
}

func newLedgerCmd() *cobra.Command {
	ledger := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the event ledger",
	}
	var local bool
	get := &cobra.Command{
		Use:   "get <event-id>",
		Short: "Print one event record as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			var store recordGetter
			if local {
				l, err := repository.OpenSQLiteLedger(cfg.SQLitePath)
				if err != nil {
					return err
				}
				defer l.Close()
				store = l
			} else {
				if cfg.TableName == "" {
					return fmt.Errorf("%w: dynamodb_table_name is required", config.ErrConfiguration)
				}
				awsCfg, err := loadAWSConfig(ctx, cfg)
				if err != nil {
					return err
				}
				l, err := newDynamoLedger(awsCfg, cfg)
				if err != nil {
					return err
				}
				store = l
			}
			return printRecord(cmd, store, args[0])
		},
	}
	get.Flags().BoolVar(&local, "local", false, "read the SQLite ledger instead of DynamoDB")
	ledger.AddCommand(get)
	return ledger
}

func printRecord(cmd *cobra.Command, store recordGetter, eventID string) error {
	rec, ok, err := store.Get(cmd.Context(), eventID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("event %q not found", eventID)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}
