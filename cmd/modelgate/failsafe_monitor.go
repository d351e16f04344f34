package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/okrensky/modelgate/internal/checkpoint"
	"github.com/okrensky/modelgate/internal/composeref"
	"github.com/okrensky/modelgate/internal/healthcheck"
	"github.com/okrensky/modelgate/internal/metrics"
	"github.com/okrensky/modelgate/internal/monitor"
	"github.com/okrensky/modelgate/internal/notify"
	"github.com/okrensky/modelgate/internal/runtime"
	"github.com/okrensky/modelgate/internal/server"
)

var failsafeMonitorCmd = &cobra.Command{
	Use:   "failsafe-monitor",
	Short: "Poll container health, revert and restart on failure",
	Long: `Failsafe-monitor runs until interrupted. Each cycle it polls the
container runtime for unhealthy and exited services; failing services get
their mapped source directory reverted to HEAD (skipped when clean) and the
container restarted. Sustained health triggers a periodic checkpoint tag.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := loadDeps(false)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		rt, err := runtime.NewDockerClient(d.cfg.DockerHost, d.cfg.DockerCertPath, 0)
		if err != nil {
			return err
		}
		defer rt.Close()

		serviceDirs := d.mapping.ServiceDirs()
		if d.cfg.ComposeFile != "" {
			declared, err := composeref.ServiceNames(ctx, d.cfg.ComposeFile)
			if err != nil {
				d.logger.Warn().Err(err).Str("compose_file", d.cfg.ComposeFile).Msg("compose cross-check skipped")
			} else if missing := composeref.UnmappedServices(declared, serviceDirs); len(missing) > 0 {
				d.logger.Warn().Strs("services", missing).Msg("mapped services not declared in compose file")
			}
		}

		notifier := buildNotifier(d)
		collector := metrics.New()
		tracker := healthcheck.NewTracker()
		server.Start(ctx, d.logger, d.cfg.PollInterval, tracker, collector, d.cfg.HealthPort, d.cfg.MetricsPort)

		snapshotter := checkpoint.New(d.logger, d.repo, d.ledger)
		m := monitor.New(
			d.logger,
			d.cfg.PollInterval,
			d.cfg.HealthyThreshold,
			rt,
			d.repo,
			d.ledger,
			snapshotter,
			serviceDirs,
			monitor.WithNotifier(notifier),
			monitor.WithMetrics(collector),
			monitor.WithTracker(tracker),
		)

		d.logger.Info().
			Dur("poll_interval", d.cfg.PollInterval).
			Int("healthy_threshold", d.cfg.HealthyThreshold).
			Int("mapped_services", len(serviceDirs)).
			Msg("failsafe monitor starting")

		return m.Run(ctx)
	},
}

func buildNotifier(d deps) notify.Notifier {
	slack := notify.NewSlackNotifier(d.logger, d.cfg.SlackWebhookURL)
	webhook, err := notify.NewWebhookNotifier(d.logger, d.cfg.WebhookURL, "")
	if err != nil {
		d.logger.Error().Err(err).Msg("webhook notifier disabled")
	}
	if webhook == nil {
		return notify.NewMultiNotifier(slack)
	}
	return notify.NewMultiNotifier(slack, webhook)
}

func init() {
	rootCmd.AddCommand(failsafeMonitorCmd)
}
