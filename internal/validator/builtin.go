package validator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrCorrupt marks a smoke-test failure: the metadata contract held but the
// artifact's weight files are missing. Callers distinguish it from a plain
// contract violation (the standalone CLI exits 2 instead of 1).
var ErrCorrupt = errors.New("artifact corrupt")

var (
	validFrameworks = []string{"pytorch", "tensorflow", "onnx"}
	validHardware   = []string{"mps", "cpu", "cuda"}
)

// Metadata is the Tier-1 contract every model folder must carry in
// metadata.yaml. All fields are blocking.
type Metadata struct {
	ModelID          string `yaml:"model_id"`
	GitHash          string `yaml:"git_hash"`
	Framework        string `yaml:"framework"`
	MinAppVersion    string `yaml:"min_app_version"`
	RequiredHardware string `yaml:"required_hardware"`
}

// Builtin is the native gatekeeper: it enforces the metadata contract and
// runs a lightweight smoke check that the framework's weight files exist.
type Builtin struct{}

// NewBuiltin returns the builtin validator.
func NewBuiltin() *Builtin {
	return &Builtin{}
}

// Validate implements Validator.
func (b *Builtin) Validate(ctx context.Context, artifactPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	info, err := os.Stat(artifactPath)
	if err != nil {
		return fmt.Errorf("artifact path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("artifact path %s is not a directory", artifactPath)
	}

	meta, err := loadMetadata(artifactPath)
	if err != nil {
		return err
	}

	if errs := checkContract(meta, filepath.Base(artifactPath)); len(errs) > 0 {
		return fmt.Errorf("metadata contract violated: %s", strings.Join(errs, "; "))
	}

	if err := smokeTest(artifactPath, meta.Framework); err != nil {
		return fmt.Errorf("%w: %s", ErrCorrupt, err)
	}
	return nil
}

func loadMetadata(artifactPath string) (Metadata, error) {
	data, err := os.ReadFile(filepath.Join(artifactPath, "metadata.yaml"))
	if err != nil {
		return Metadata{}, fmt.Errorf("metadata.yaml: %w", err)
	}
	var meta Metadata
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return Metadata{}, fmt.Errorf("parse metadata.yaml: %w", err)
	}
	return meta, nil
}

func checkContract(meta Metadata, folderName string) []string {
	var errs []string

	required := map[string]string{
		"model_id":          meta.ModelID,
		"git_hash":          meta.GitHash,
		"framework":         meta.Framework,
		"min_app_version":   meta.MinAppVersion,
		"required_hardware": meta.RequiredHardware,
	}
	var missing []string
	for field, value := range required {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, field)
		}
	}
	sort.Strings(missing)
	for _, field := range missing {
		errs = append(errs, fmt.Sprintf("missing required field %q", field))
	}

	if meta.ModelID != "" && meta.ModelID != folderName {
		errs = append(errs, fmt.Sprintf("model_id %q must match folder name %q", meta.ModelID, folderName))
	}
	if meta.Framework != "" && !contains(validFrameworks, meta.Framework) {
		errs = append(errs, fmt.Sprintf("framework must be one of %v", validFrameworks))
	}
	if meta.RequiredHardware != "" && !contains(validHardware, meta.RequiredHardware) {
		errs = append(errs, fmt.Sprintf("required_hardware must be one of %v", validHardware))
	}

	return errs
}

// smokeTest verifies the framework's weight files are present. Loading the
// weights is the producing stack's job; existence is the cheapest corruption
// signal available without importing a framework runtime.
func smokeTest(artifactPath, framework string) error {
	switch framework {
	case "pytorch":
		return requireGlob(artifactPath, "no pytorch weight files (*.pt/*.pth)", "*.pt", "*.pth")
	case "tensorflow":
		saved := filepath.Join(artifactPath, "saved_model")
		if info, err := os.Stat(saved); err != nil || !info.IsDir() {
			return errors.New("no saved_model directory")
		}
		return nil
	case "onnx":
		return requireGlob(artifactPath, "no onnx model files (*.onnx)", "*.onnx")
	default:
		return nil
	}
}

func requireGlob(dir, message string, patterns ...string) error {
	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return err
		}
		if len(matches) > 0 {
			return nil
		}
	}
	return errors.New(message)
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
