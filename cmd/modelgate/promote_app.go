package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/okrensky/modelgate/internal/registry"
)

var promoteAppCmd = &cobra.Command{
	Use:   "promote_app <dev_app_path>",
	Short: "Promote a dev app into the next free stable slot",
	Long: `Promote_app scans the app stable directory for numbered slots (v1,
v2, ...), picks the lowest free slot, and moves the dev app there after an
interactive confirmation. Declining the prompt is a clean cancel, not an
error.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := loadDeps(true)
		if err != nil {
			return err
		}

		promoter := registry.NewAppPromoter(d.logger, d.cfg.AppStableDir, d.ledger)
		_, err = promoter.Promote(cmd.Context(), args[0])
		if errors.Is(err, registry.ErrCanceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(promoteAppCmd)
}
