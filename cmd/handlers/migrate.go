package handlers

import (
	"fmt"

	"github.com/spf13/cobra"

	"newscast/internal/config"
	"newscast/internal/logger"
	"newscast/internal/persistence"
)

// NewMigrateCmd creates the migrate command family, grounded on the
// donor's migrate.go (up/down/status subcommands over one
// MigrationManager).
func NewMigrateCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	root.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(func(m *persistence.MigrationManager) error {
				return m.Migrate(cmd.Context())
			})
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Unrecord the most recently applied migration (schema changes are not reverted)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(func(m *persistence.MigrationManager) error {
				return m.Rollback(cmd.Context())
			})
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show which migrations have been applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(func(m *persistence.MigrationManager) error {
				statuses, err := m.Status(cmd.Context())
				if err != nil {
					return err
				}
				for _, s := range statuses {
					applied := "pending"
					if s.Applied {
						applied = "applied"
					}
					fmt.Printf("%4d  %-10s  %s\n", s.Version, applied, s.Description)
				}
				return nil
			})
		},
	})
	return root
}

func runMigrate(fn func(*persistence.MigrationManager) error) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := persistence.NewPostgresDB(cfg.Database.DSN, persistence.PoolConfig{
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	logger.Get().Info().Msg("running migration command")
	return fn(persistence.NewMigrationManager(db))
}
