package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nnaka2992/peaceful-postgresql/internal/database"
	"github.com/nnaka2992/peaceful-postgresql/internal/logger"
	"github.com/nnaka2992/peaceful-postgresql/internal/migration"
)

var (
	dirFlag           string
	appLabelFlag      string
	migrationNameFlag string
)

func buildMigrationsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrations",
		Short: "Analyze pending migrations, or a single one",
		Long: `Analyzes every migration under <dir>/<app>/<name>.sql that the migrations
table does not record as applied. Without database settings every migration
on disk is treated as pending.`,
		Args: cobra.NoArgs,
		RunE: runMigrations,
	}

	cmd.Flags().StringVar(&dirFlag, "dir", "", "migrations directory (default: migrations.dir)")
	cmd.Flags().StringVar(&appLabelFlag, "app-label", "", "app label of a single migration")
	cmd.Flags().StringVar(&migrationNameFlag, "migration-name", "", "name of a single migration")
	cmd.MarkFlagsRequiredTogether("app-label", "migration-name")

	return cmd
}

func runMigrations(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	dir := dirFlag
	if dir == "" {
		dir = cfg.Migrations.Dir
	}

	var recorder *migration.Recorder
	if appLabelFlag == "" && cfg.Database.Configured() {
		db, err := database.Connect(ctx, connectionConfig())
		if err != nil {
			return err
		}
		defer db.Close()
		recorder = migration.NewRecorder(db, cfg.Migrations.Table)
	} else if appLabelFlag == "" {
		logger.Debug("No database configured, treating every migration as pending", "dir", dir)
	}

	source := migration.NewDirSource(dir, recorder)
	var ids []migration.ID
	if appLabelFlag != "" {
		id, err := source.Find(appLabelFlag, migrationNameFlag)
		if err != nil {
			return err
		}
		ids = []migration.ID{id}
	} else {
		pending, err := source.Pending(ctx)
		if err != nil {
			return err
		}
		ids = pending
	}

	a, s, err := newAnalysis()
	if err != nil {
		return err
	}

	outputs := make([]*Output, 0, len(ids))
	for _, id := range ids {
		sql, err := source.SQL(ctx, id)
		if err != nil {
			return err
		}
		output := analyzeSQL(a, s, sql)
		output.Migration = id.String()
		outputs = append(outputs, output)
	}

	if len(outputs) == 0 && outputFormat == "text" {
		fmt.Fprintln(cmd.OutOrStdout(), "No pending migrations")
		return nil
	}

	exceeded := false
	if checkSizeFlag {
		if exceeded, err = attachSizes(ctx, outputs); err != nil {
			return err
		}
	}

	if err := writeOutputs(cmd.OutOrStdout(), outputs, true); err != nil {
		return err
	}
	return thresholdError(exceeded)
}
