package cli

import (
	"fmt"
	"log"

	"mcq-exam-service/internal/config"
	"mcq-exam-service/internal/infra/postgres"
	"github.com/spf13/cobra"
)

// NewSeedCmd loads the sample catalog into Postgres.
func NewSeedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load the sample exam catalog into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}
			db := postgres.Open(cfg.Postgres.URL)
			defer db.Close()

			if err := runMigrations(cmd.Context(), db); err != nil {
				return err
			}
			catalog := sampleCatalog()
			if err := postgres.Seed(cmd.Context(), db, catalog); err != nil {
				return err
			}
			log.Printf("seeded %d categories, %d questions, %d exams", len(catalog.Categories), len(catalog.Questions), len(catalog.Exams))
			return nil
		},
	}
}
