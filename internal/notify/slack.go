package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
)

const (
	slackMaxBlocks = 50
	// header block + context block are always present
	slackReservedBlocks = 2
	slackMaxIncidents   = slackMaxBlocks - slackReservedBlocks
)

// SlackNotifier posts incident summaries to a Slack incoming webhook.
type SlackNotifier struct {
	logger     zerolog.Logger
	webhookURL string
	timing     timingConfig
	poster     *httpPoster
}

// SlackOption customizes SlackNotifier behavior.
type SlackOption func(*SlackNotifier)

// WithSlackTiming overrides timing parameters (primarily for testing).
func WithSlackTiming(rateInterval time.Duration, rateBurst int, backoffInitial, backoffMax, backoffMaxElapsed time.Duration) SlackOption {
	return func(s *SlackNotifier) {
		s.timing.rateInterval = rateInterval
		s.timing.rateBurst = rateBurst
		s.timing.backoffInitial = backoffInitial
		s.timing.backoffMax = backoffMax
		s.timing.backoffMaxElapsed = backoffMaxElapsed
	}
}

// NewSlackNotifier creates a Slack notifier or a noop notifier when the
// webhook is empty.
func NewSlackNotifier(logger zerolog.Logger, webhookURL string, opts ...SlackOption) Notifier {
	if webhookURL == "" {
		return NewNoop(logger, "slack webhook not configured; notifications disabled")
	}

	notifier := &SlackNotifier{
		logger:     logger,
		webhookURL: webhookURL,
		timing:     defaultTiming,
	}
	for _, opt := range opts {
		opt(notifier)
	}
	notifier.poster = newHTTPPoster(logger, "slack", webhookURL, "application/json", notifier.timing)

	return notifier
}

// Notify implements Notifier.
func (s *SlackNotifier) Notify(ctx context.Context, incidents []Incident) error {
	if len(incidents) == 0 {
		return nil
	}

	if err := s.poster.waitForRateLimit(ctx); err != nil {
		return err
	}

	payload, err := buildSlackPayload(incidents)
	if err != nil {
		return fmt.Errorf("build slack payload: %w", err)
	}

	if err := s.poster.postWithRetry(ctx, payload); err != nil {
		return err
	}

	s.logger.Debug().Int("incidents", len(incidents)).Msg("slack notification sent")
	return nil
}

func buildSlackPayload(incidents []Incident) ([]byte, error) {
	truncated := 0
	if len(incidents) > slackMaxIncidents {
		truncated = len(incidents) - slackMaxIncidents
		incidents = incidents[:slackMaxIncidents]
	}

	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject(
			slack.PlainTextType, "Failsafe monitor incidents", false, false)),
	}

	for _, incident := range incidents {
		text := fmt.Sprintf("%s *%s* — `%s`", incidentEmoji(incident.Kind), incident.Kind, incident.Service)
		if incident.Detail != "" {
			text += "\n" + incident.Detail
		}
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil))
	}

	footer := fmt.Sprintf("%d incident(s) at %s", len(incidents), time.Now().UTC().Format(time.RFC3339))
	if truncated > 0 {
		footer += fmt.Sprintf(" (%d more truncated)", truncated)
	}
	blocks = append(blocks, slack.NewContextBlock("",
		slack.NewTextBlockObject(slack.MarkdownType, footer, false, false)))

	msg := slack.WebhookMessage{
		Blocks: &slack.Blocks{BlockSet: blocks},
	}
	return json.Marshal(msg)
}

func incidentEmoji(kind string) string {
	switch {
	case strings.HasSuffix(kind, "_failed"):
		return ":rotating_light:"
	case kind == KindRestart:
		return ":arrows_counterclockwise:"
	default:
		return ":leftwards_arrow_with_hook:"
	}
}
