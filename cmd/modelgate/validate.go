package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/okrensky/modelgate/internal/logging"
	"github.com/okrensky/modelgate/internal/validator"
)

var validateCmd = &cobra.Command{
	Use:   "validate <model_dir>",
	Short: "Run the builtin artifact gatekeeper standalone",
	Long: `Validate checks a model folder against the metadata contract
(metadata.yaml fields, framework and hardware enums, model_id matching the
folder name) and smoke-checks that the framework's weight files exist.

Exit codes: 0 pass, 1 contract violation, 2 artifact corruption.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := logging.NewConsole()

		err := validator.NewBuiltin().Validate(cmd.Context(), args[0])
		if err != nil {
			if errors.Is(err, validator.ErrCorrupt) {
				logger.Error().Err(err).Str("artifact", args[0]).Msg("artifact corruption detected")
				os.Exit(2)
			}
			return err
		}

		logger.Info().Str("artifact", args[0]).Msg("all validations passed; eligible for promotion")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
