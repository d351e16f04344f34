package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/okrensky/modelgate/internal/config"
	"github.com/okrensky/modelgate/internal/gitrepo"
	"github.com/okrensky/modelgate/internal/ledger"
	"github.com/okrensky/modelgate/internal/logging"
	"github.com/okrensky/modelgate/internal/validator"
)

var verbose bool

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "modelgate",
	Short: "Model lifecycle gatekeeper and failsafe sentinel",
	Long: `modelgate moves model artifacts through their lifecycle stages and
keeps the serving containers honest.

Lifecycle commands:
  promote           Promote a validated model from staging/ to stable/
  promote_app       Promote a dev app into the next free stable slot
  agent-commit      Commit as a scoped agent role
  snapshot          Tag the current state as an immutable checkpoint
  validate          Run the builtin artifact gatekeeper standalone

Daemon:
  failsafe-monitor  Poll container health, revert and restart on failure

Every lifecycle event is appended to the registry ledger; the ledger also
carries the cooperative promotion lock other commands honor.`,
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on any failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// deps bundles what every lifecycle command needs.
type deps struct {
	cfg     config.Config
	mapping config.Mapping
	logger  zerolog.Logger
	ledger  *ledger.Ledger
	repo    gitrepo.Repo
}

// loadDeps builds the shared command dependencies. Interactive commands get
// the colored console logger; the monitor overrides it with the JSON logger.
func loadDeps(console bool) (deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return deps{}, err
	}
	mapping, err := config.LoadMapping(cfg.RolesFile)
	if err != nil {
		return deps{}, err
	}

	logger := logging.New()
	if console {
		logger = logging.NewConsole()
	}
	if verbose {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	return deps{
		cfg:     cfg,
		mapping: mapping,
		logger:  logger,
		ledger:  ledger.New(cfg.LedgerPath),
		repo:    gitrepo.NewExecRepo(cfg.RepoDir),
	}, nil
}

// buildValidator picks the configured external validator or the builtin
// gatekeeper.
func buildValidator(d deps) (validator.Validator, error) {
	if d.cfg.ValidatorCmd == "" {
		return validator.NewBuiltin(), nil
	}
	return validator.NewExecValidator(d.logger, d.cfg.ValidatorCmd, d.cfg.ValidatorTimeout)
}
