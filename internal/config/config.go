package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	envStagingDir       = "MG_STAGING_DIR"
	envStableDir        = "MG_STABLE_DIR"
	envAppStableDir     = "MG_APP_STABLE_DIR"
	envLedgerPath       = "MG_LEDGER_PATH"
	envRepoDir          = "MG_REPO_DIR"
	envPollInterval     = "MG_POLL_INTERVAL"
	envHealthyThreshold = "MG_HEALTHY_THRESHOLD"
	envDockerHost       = "MG_DOCKER_HOST"
	envDockerCertPath   = "MG_DOCKER_CERT_PATH"
	envValidatorCmd     = "MG_VALIDATOR_CMD"
	envValidatorTimeout = "MG_VALIDATOR_TIMEOUT"
	envAppCheckCmd      = "MG_APP_CHECK_CMD"
	envRolesFile        = "MG_ROLES_FILE"
	envComposeFile      = "MG_COMPOSE_FILE"
	envSlackWebhookURL  = "MG_SLACK_WEBHOOK_URL"
	envWebhookURL       = "MG_WEBHOOK_URL"
	envHealthPort       = "MG_HEALTH_PORT"
	envMetricsPort      = "MG_METRICS_PORT"
)

const (
	defaultStagingDir       = "staging"
	defaultStableDir        = "stable"
	defaultAppStableDir     = "app/stable"
	defaultLedgerPath       = "registry/ledger.log"
	defaultPollInterval     = 30 * time.Second
	defaultHealthyThreshold = 10
	defaultValidatorTimeout = 2 * time.Minute
	defaultAppCheckCmd      = "npm run typecheck"
)

// Config describes runtime configuration loaded from the environment.
type Config struct {
	StagingDir       string
	StableDir        string
	AppStableDir     string
	LedgerPath       string
	RepoDir          string
	PollInterval     time.Duration
	HealthyThreshold int
	DockerHost       string
	DockerCertPath   string
	ValidatorCmd     string
	ValidatorTimeout time.Duration
	AppCheckCmd      string
	RolesFile        string
	ComposeFile      string
	SlackWebhookURL  string
	WebhookURL       string
	HealthPort       int
	MetricsPort      int
}

// Load reads configuration from environment variables and a local .env file
// if present. Existing environment variables take precedence over .env.
func Load() (Config, error) {
	if err := loadDotEnvIfPresent(".env"); err != nil {
		return Config{}, err
	}

	cfg := Config{
		StagingDir:       defaultStagingDir,
		StableDir:        defaultStableDir,
		AppStableDir:     defaultAppStableDir,
		LedgerPath:       defaultLedgerPath,
		RepoDir:          ".",
		PollInterval:     defaultPollInterval,
		HealthyThreshold: defaultHealthyThreshold,
		ValidatorTimeout: defaultValidatorTimeout,
		AppCheckCmd:      defaultAppCheckCmd,
	}

	for env, target := range map[string]*string{
		envStagingDir:      &cfg.StagingDir,
		envStableDir:       &cfg.StableDir,
		envAppStableDir:    &cfg.AppStableDir,
		envLedgerPath:      &cfg.LedgerPath,
		envRepoDir:         &cfg.RepoDir,
		envDockerHost:      &cfg.DockerHost,
		envDockerCertPath:  &cfg.DockerCertPath,
		envValidatorCmd:    &cfg.ValidatorCmd,
		envAppCheckCmd:     &cfg.AppCheckCmd,
		envRolesFile:       &cfg.RolesFile,
		envComposeFile:     &cfg.ComposeFile,
		envSlackWebhookURL: &cfg.SlackWebhookURL,
		envWebhookURL:      &cfg.WebhookURL,
	} {
		if value, ok := lookupTrimmed(env); ok {
			*target = value
		}
	}

	if value, ok := lookupTrimmed(envPollInterval); ok {
		interval, err := time.ParseDuration(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envPollInterval, err)
		}
		if interval <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than zero", envPollInterval)
		}
		cfg.PollInterval = interval
	}

	if value, ok := lookupTrimmed(envValidatorTimeout); ok {
		timeout, err := time.ParseDuration(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envValidatorTimeout, err)
		}
		if timeout <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than zero", envValidatorTimeout)
		}
		cfg.ValidatorTimeout = timeout
	}

	if value, ok := lookupTrimmed(envHealthyThreshold); ok {
		threshold, err := strconv.Atoi(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envHealthyThreshold, err)
		}
		if threshold <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than zero", envHealthyThreshold)
		}
		cfg.HealthyThreshold = threshold
	}

	var err error
	if cfg.HealthPort, err = parsePort(envHealthPort); err != nil {
		return Config{}, err
	}
	if cfg.MetricsPort, err = parsePort(envMetricsPort); err != nil {
		return Config{}, err
	}

	if cfg.StagingDir == cfg.StableDir {
		return Config{}, errors.New("staging and stable directories must differ")
	}

	return cfg, nil
}

func parsePort(env string) (int, error) {
	value, ok := lookupTrimmed(env)
	if !ok {
		return 0, nil
	}
	port, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", env, err)
	}
	if port < 0 || port > 65535 {
		return 0, fmt.Errorf("%s must be a valid port", env)
	}
	return port, nil
}

func lookupTrimmed(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(value), true
}

func loadDotEnvIfPresent(path string) error {
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) && errors.Is(pathErr.Err, os.ErrNotExist) {
		return nil
	}

	return err
}
