package main

import (
	"github.com/spf13/cobra"

	"github.com/okrensky/modelgate/internal/checkpoint"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot [tag-suffix]",
	Short: "Tag the current state as an immutable checkpoint",
	Long: `Snapshot commits all pending work and tags the result with a
timestamped checkpoint name. A clean working tree is an intentional skip.
Unlike the monitor's automatic checkpoints, a tag collision here is an
error.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := loadDeps(true)
		if err != nil {
			return err
		}

		suffix := ""
		if len(args) == 1 {
			suffix = args[0]
		}

		snapshotter := checkpoint.New(d.logger, d.repo, d.ledger)
		_, err = snapshotter.Take(cmd.Context(), suffix)
		return err
	},
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
}
