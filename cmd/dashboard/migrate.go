package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ieeeucsd/dashboard-finance/pkg/database"
)

func migrateCmd() *cobra.Command {
	var statusOnly bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			db, err := database.New(database.Config{
				Path:        cfg.Database.Path,
				BusyTimeout: cfg.Database.BusyTimeout,
			}, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			m := database.NewMigrator(db, logger)
			out := cmd.OutOrStdout()

			if statusOnly {
				status, err := m.Status(database.EmbeddedMigrations())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED AT")
				for _, s := range status {
					at := "pending"
					if s.Applied {
						at = s.AppliedAt
					}
					fmt.Fprintf(w, "%03d\t%s\t%s\n", s.Version, s.Name, at)
				}
				return w.Flush()
			}

			applied, err := m.RunMigrations(database.EmbeddedMigrations())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Applied %d migration(s) to %s\n", applied, cfg.Database.Path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&statusOnly, "status", false, "list migrations and whether they have been applied")
	return cmd
}
