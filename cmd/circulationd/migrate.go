package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/AntonStoeckl/circulation-core/config"
	"github.com/AntonStoeckl/circulation-core/store/postgresengine"
)

// ErrNoDatabase is returned by migrate when no DSN is configured.
var ErrNoDatabase = errors.New("migrate needs a database dsn")

func newMigrateCmd(flags *rootFlags) *cobra.Command {
	var printOnly bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the PostgreSQL schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if printOnly {
				_, err := cmd.OutOrStdout().Write([]byte(postgresengine.Schema()))
				return err
			}

			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}

			if !cfg.UsesPostgres() {
				return ErrNoDatabase
			}

			logger, err := config.NewLogger(cfg.Observability, os.Stdout)
			if err != nil {
				return err
			}

			s, closeStore, err := openPostgres(cmd.Context(), cfg.Database, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			return s.Migrate(cmd.Context())
		},
	}

	cmd.Flags().BoolVar(&printOnly, "print", false, "print the schema instead of applying it")

	return cmd
}
