package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"example.com/fittogether/internal/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		pool, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer pool.Close()

		applied, err := migrations.Migrate(cmd.Context(), pool)
		if err != nil {
			return err
		}
		log.Info().Strs("applied", applied).Msg("database is up to date")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
