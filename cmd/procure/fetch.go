package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nhle/procurement-inbox/internal/store"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Run one fetch-and-process cycle and print the summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := requireConfigured(a.cfg); err != nil {
			return err
		}

		summary, err := a.scheduler.FetchAndProcessEmails(ctx)
		if summary != nil {
			fmt.Fprintln(os.Stdout, renderSummary(summary))
		}
		return err
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the configuration and test the mailbox connection",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		schema, err := a.store.SchemaVersion(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, renderKV("Database", fmt.Sprintf("%s (schema v%d)", a.cfg.Database.Driver, schema)))

		if err := requireConfigured(a.cfg); err != nil {
			return err
		}

		report, err := a.scheduler.TestConnection(ctx)
		if report != nil {
			fmt.Fprintln(os.Stdout, renderConnection(report))
		}
		return err
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer logger.Sync()

		cfg, err := loadConfig(logger)
		if err != nil {
			return err
		}

		// Open applies pending migrations.
		st, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, logger)
		if err != nil {
			return err
		}
		defer st.Close()

		schema, err := st.SchemaVersion(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, renderKV("Schema", fmt.Sprintf("v%d", schema)))
		return nil
	},
}
