package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/config"
	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/store/sqlite"
)

func newMigrateCmd(root *rootOptions) *cobra.Command {
	var overrides config.Config

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.load(overrides)
			if err != nil {
				return err
			}

			// sqlite.New applies the schema on open.
			st, err := sqlite.New(cfg.DatabasePath)
			if err != nil {
				return fmt.Errorf("migrate %s: %w", cfg.DatabasePath, err)
			}
			defer st.Close()

			logger.Info().Str("db_path", cfg.DatabasePath).Msg("schema up to date")
			return nil
		},
	}
	cmd.Flags().StringVar(&overrides.DatabasePath, "db", "", "SQLite database path")
	return cmd
}
