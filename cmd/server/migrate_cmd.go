package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"hradmin/internal/platform/db"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.InMemory() {
				return errors.New("migrate requires DATABASE_URL")
			}
			pool, err := db.Connect(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			applied, err := db.Migrate(cmd.Context(), pool)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
				return nil
			}
			for _, version := range applied {
				fmt.Fprintln(cmd.OutOrStdout(), "applied", version)
			}
			return nil
		},
	}
}
