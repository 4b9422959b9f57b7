package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dvloznov/invoice-agent/internal/config"
	"github.com/dvloznov/invoice-agent/internal/ledger"
	"github.com/dvloznov/invoice-agent/internal/logger"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the BigQuery invoices table ahead of the first approval",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if cfg.Ledger.Backend != config.LedgerBigQuery {
				fmt.Fprintf(out, "Ledger backend %q creates its tabs on first use, nothing to migrate.\n", cfg.Ledger.Backend)
				return nil
			}
			if cfg.Ledger.BigQueryProject == "" {
				return fmt.Errorf("%w: BIGQUERY_PROJECT is required", config.ErrInvalid)
			}

			log, err := logger.NewWithOptions(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Writer: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			ctx := logger.WithContext(cmd.Context(), log)

			bq, err := ledger.NewBigQuery(ctx, cfg.Ledger.BigQueryProject, cfg.Ledger.BigQueryDataset, cfg.Ledger.BigQueryTable)
			if err != nil {
				return err
			}
			defer bq.Close()

			if err := bq.EnsureTable(ctx); err != nil {
				return err
			}
			fmt.Fprintf(out, "Table %s.%s.%s is ready.\n", cfg.Ledger.BigQueryProject, cfg.Ledger.BigQueryDataset, cfg.Ledger.BigQueryTable)
			return nil
		},
	}
}
