package main

import (
	"github.com/spf13/cobra"

	"github.com/okrensky/modelgate/internal/registry"
)

var promoteCmd = &cobra.Command{
	Use:   "promote <model_id>",
	Short: "Promote a validated model from staging/ to stable/",
	Long: `Promote moves a model artifact from the mutable staging area to the
immutable stable area. Gates run strictly in order: the artifact must exist
in staging, must not already exist in stable, and must pass the validator.
The move is an atomic rename. Every outcome lands in the registry ledger.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := loadDeps(true)
		if err != nil {
			return err
		}
		v, err := buildValidator(d)
		if err != nil {
			return err
		}

		coordinator := registry.NewCoordinator(d.logger, d.cfg.StagingDir, d.cfg.StableDir, v, d.ledger)
		_, err = coordinator.Promote(cmd.Context(), args[0])
		return err
	},
}

func init() {
	rootCmd.AddCommand(promoteCmd)
}
