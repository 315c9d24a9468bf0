package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/duonganh203/benkyo/internal/repository"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
	}

	cmd.AddCommand(
		newMigrateRunCmd("up", "Apply all pending migrations", (*repository.Postgres).Up),
		newMigrateRunCmd("reset", "Roll back every migration", (*repository.Postgres).Reset),
	)
	return cmd
}

func newMigrateRunCmd(use, short string, run func(*repository.Postgres, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, flush, err := loadConfig()
			if err != nil {
				return err
			}
			defer flush()

			repo, err := repository.NewDB(cfg.Postgres.DSN(), cfg.Postgres.MaxIdle, cfg.Postgres.MaxOpen)
			if err != nil {
				return fmt.Errorf("connect to PostgreSQL (host: %s): %w", cfg.Postgres.Host, err)
			}
			defer repo.Close()

			if err := run(repo, repository.MigrationsDir); err != nil {
				return err
			}

			zap.S().Infow("migrations applied", zap.String("command", use))
			return nil
		},
	}
}
