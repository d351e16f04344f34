package main

import (
	"github.com/spf13/cobra"

	"github.com/okrensky/modelgate/internal/agent"
)

var agentCommitCmd = &cobra.Command{
	Use:   "agent-commit <agent-type> <message>",
	Short: "Commit as a scoped agent role",
	Long: `Agent-commit gates a git commit behind the agent's directory scope.
The ledger's promotion lock is checked first; then every staged file must
fall inside the role's prefix (all violations are reported together); then
the role's local validation runs. Only after all gates pass is the commit
recorded, with the message prefixed by the role tag.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := loadDeps(true)
		if err != nil {
			return err
		}
		v, err := buildValidator(d)
		if err != nil {
			return err
		}

		guard := agent.NewGuard(d.logger, d.mapping, d.repo, d.ledger, v,
			d.cfg.StagingDir, d.cfg.RepoDir, d.cfg.AppCheckCmd)
		_, err = guard.AttemptCommit(cmd.Context(), args[0], args[1])
		return err
	},
}

func init() {
	rootCmd.AddCommand(agentCommitCmd)
}
