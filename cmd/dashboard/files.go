package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ieeeucsd/dashboard-finance/internal/application/service"
	"github.com/ieeeucsd/dashboard-finance/internal/container"
)

func filesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "Attachment blob maintenance",
	}
	cmd.AddCommand(filesMigrateCmd())
	return cmd
}

func filesMigrateCmd() *cobra.Command {
	var (
		dryRun bool
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Move legacy attachment blobs onto the v1 path schema",
		Long: `Move legacy attachment blobs onto the v1 path schema.

Legacy keys look like {recordId}/{category}/{timestamp}_{filename}. Each one
referenced by an attachment row is copied to
v1/{entity}/{recordId}/{category}/{timestamp}_{filename}, the row is updated
and the old key is removed. Keys that cannot be matched to an attachment are
reported and left in place.

Examples:
  dashboard files migrate --dry-run
  dashboard files migrate --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			c, err := container.NewContainer(cfg, logger)
			if err != nil {
				return err
			}
			defer c.Close()

			// Build only: the orphan sweeper must not run while blobs move.
			if err := c.Build(); err != nil {
				return err
			}

			migration := c.Services().FileMigration
			plan, err := migration.Plan(cmd.Context())
			if err != nil {
				return err
			}
			report, err := migration.Apply(cmd.Context(), plan, dryRun)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					Plan   *service.MigrationPlan   `json:"plan"`
					Report *service.MigrationReport `json:"report"`
				}{plan, report})
			}
			printReport(out, plan, report)
			if len(report.Failed) > 0 {
				return fmt.Errorf("%d blob(s) failed to migrate", len(report.Failed))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be migrated without making changes")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the plan and report as JSON")
	return cmd
}

func printReport(w io.Writer, plan *service.MigrationPlan, report *service.MigrationReport) {
	fmt.Fprintf(w, "Already versioned: %d\n", plan.Versioned)
	fmt.Fprintf(w, "Legacy blobs to move: %d\n", len(plan.Items))
	for _, item := range plan.Items {
		fmt.Fprintf(w, "  %s -> %s\n", item.From, item.To)
	}
	if len(plan.Skipped) > 0 {
		fmt.Fprintf(w, "Skipped: %d\n", len(plan.Skipped))
		for _, s := range plan.Skipped {
			fmt.Fprintf(w, "  %s (%s)\n", s.Path, s.Reason)
		}
	}
	if report.DryRun {
		fmt.Fprintln(w, "Dry run - no changes made")
		return
	}
	fmt.Fprintf(w, "Migrated: %d, failed: %d\n", len(report.Migrated), len(report.Failed))
	for _, f := range report.Failed {
		fmt.Fprintf(w, "  %s: %s\n", f.Path, f.Reason)
	}
}
