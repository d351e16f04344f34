// Package validator gates artifact promotion. The coordinator treats a
// validator as an opaque predicate: pass or fail, nothing in between.
package validator

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Validator decides whether an artifact directory is eligible for promotion.
type Validator interface {
	Validate(ctx context.Context, artifactPath string) error
}

// ExecValidator runs an external command with the artifact path appended as
// the final argument. Any non-zero exit is a validation failure. A timeout
// bounds the call so a hung validator cannot block promotion forever.
type ExecValidator struct {
	logger  zerolog.Logger
	command []string
	timeout time.Duration
}

// NewExecValidator builds a validator from a shell-style command string,
// e.g. "python3 scripts/validate_model.py".
func NewExecValidator(logger zerolog.Logger, command string, timeout time.Duration) (*ExecValidator, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, errors.New("validator command must not be empty")
	}
	if timeout <= 0 {
		return nil, errors.New("validator timeout must be greater than zero")
	}
	return &ExecValidator{
		logger:  logger,
		command: fields,
		timeout: timeout,
	}, nil
}

// Validate implements Validator.
func (v *ExecValidator) Validate(ctx context.Context, artifactPath string) error {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	args := append(append([]string(nil), v.command[1:]...), artifactPath)
	cmd := exec.CommandContext(ctx, v.command[0], args...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("validator timed out after %s", v.timeout)
		}
		trimmed := strings.TrimSpace(string(output))
		v.logger.Debug().
			Str("artifact", artifactPath).
			Str("output", trimmed).
			Msg("validator rejected artifact")
		if trimmed != "" {
			return fmt.Errorf("validator rejected %s: %s", artifactPath, lastLine(trimmed))
		}
		return fmt.Errorf("validator rejected %s: %w", artifactPath, err)
	}
	return nil
}

func lastLine(output string) string {
	lines := strings.Split(output, "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
