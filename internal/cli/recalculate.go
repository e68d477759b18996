package cli

import (
	"encoding/json"

	"mcq-exam-service/internal/config"
	"github.com/spf13/cobra"
)

// NewRecalculateCmd ranks an exam once and prints the outcome.
func NewRecalculateCmd(configPath *string) *cobra.Command {
	var examID int64
	cmd := &cobra.Command{
		Use:   "recalculate",
		Short: "Recalculate and persist the ranks of an exam",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			deps, err := buildDeps(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer deps.Close()

			outcome, err := deps.service.Recalculate(cmd.Context(), examID)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(outcome)
		},
	}
	cmd.Flags().Int64Var(&examID, "exam", 0, "exam id to rank")
	_ = cmd.MarkFlagRequired("exam")
	return cmd
}
