package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/memhub/internal/store/sqlstore"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.AddCommand(migrateUpCmd())
	cmd.AddCommand(migrateDownCmd())
	cmd.AddCommand(migrateVersionCmd())
	return cmd
}

func openDB() (*sqlstore.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return sqlstore.Open(cfg.Database.Driver, cfg.Database.DSN)
}

func migrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			if err := sqlstore.Migrate(db); err != nil {
				return err
			}
			return printVersion(cmd, db)
		},
	}
}

func migrateDownCmd() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps <= 0 {
				return fmt.Errorf("--steps must be positive")
			}
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			if err := sqlstore.MigrateDown(db, steps); err != nil {
				return err
			}
			return printVersion(cmd, db)
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	return cmd
}

func migrateVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			return printVersion(cmd, db)
		},
	}
}

func printVersion(cmd *cobra.Command, db *sqlstore.DB) error {
	v, dirty, err := sqlstore.MigrationVersion(db)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	switch {
	case v == 0:
		fmt.Fprintln(out, "schema: no migrations applied")
	case dirty:
		fmt.Fprintf(out, "schema: version %d (dirty)\n", v)
	default:
		fmt.Fprintf(out, "schema: version %d\n", v)
	}
	return nil
}
