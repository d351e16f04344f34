package validator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeArtifact(t *testing.T, dir, name, metadata string, files ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if metadata != "" {
		if err := os.WriteFile(filepath.Join(path, "metadata.yaml"), []byte(metadata), 0o600); err != nil {
			t.Fatalf("write metadata: %v", err)
		}
	}
	for _, file := range files {
		full := filepath.Join(path, file)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(full, []byte("weights"), 0o600); err != nil {
			t.Fatalf("write file: %v", err)
		}
	}
	return path
}

const goodMetadata = `
model_id: transformer-v1.0.0
git_hash: abc1234
framework: pytorch
min_app_version: 1.2.0
required_hardware: cpu
`

func TestBuiltin_Pass(t *testing.T) {
	path := writeArtifact(t, t.TempDir(), "transformer-v1.0.0", goodMetadata, "model.pt")

	if err := NewBuiltin().Validate(context.Background(), path); err != nil {
		t.Fatalf("expected pass, got %v", err)
	}
}

func TestBuiltin_MissingMetadata(t *testing.T) {
	path := writeArtifact(t, t.TempDir(), "transformer-v1.0.0", "", "model.pt")

	err := NewBuiltin().Validate(context.Background(), path)
	if err == nil || !strings.Contains(err.Error(), "metadata.yaml") {
		t.Fatalf("expected metadata error, got %v", err)
	}
}

func TestBuiltin_ContractViolations(t *testing.T) {
	cases := []struct {
		name     string
		folder   string
		metadata string
		wantText string
	}{
		{
			name:   "missing fields",
			folder: "m1",
			metadata: `
model_id: m1
framework: pytorch
`,
			wantText: "missing required field",
		},
		{
			name:     "model id folder mismatch",
			folder:   "other-name",
			metadata: goodMetadata,
			wantText: "must match folder name",
		},
		{
			name:   "unknown framework",
			folder: "m1",
			metadata: `
model_id: m1
git_hash: abc
framework: caffe
min_app_version: 1.0.0
required_hardware: cpu
`,
			wantText: "framework must be one of",
		},
		{
			name:   "unknown hardware",
			folder: "m1",
			metadata: `
model_id: m1
git_hash: abc
framework: onnx
min_app_version: 1.0.0
required_hardware: tpu
`,
			wantText: "required_hardware must be one of",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeArtifact(t, t.TempDir(), tc.folder, tc.metadata, "model.pt", "model.onnx")

			err := NewBuiltin().Validate(context.Background(), path)
			if err == nil || !strings.Contains(err.Error(), tc.wantText) {
				t.Fatalf("expected %q error, got %v", tc.wantText, err)
			}
			if errors.Is(err, ErrCorrupt) {
				t.Fatal("contract violation must not be reported as corruption")
			}
		})
	}
}

func TestBuiltin_CorruptionIsDistinct(t *testing.T) {
	// Contract holds but the pytorch weights are missing.
	path := writeArtifact(t, t.TempDir(), "transformer-v1.0.0", goodMetadata)

	err := NewBuiltin().Validate(context.Background(), path)
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestBuiltin_TensorflowSavedModel(t *testing.T) {
	metadata := strings.Replace(goodMetadata, "pytorch", "tensorflow", 1)
	path := writeArtifact(t, t.TempDir(), "transformer-v1.0.0", metadata, "saved_model/saved_model.pb")

	if err := NewBuiltin().Validate(context.Background(), path); err != nil {
		t.Fatalf("expected pass, got %v", err)
	}
}

func TestBuiltin_NotADirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "artifact")
	if err := os.WriteFile(file, []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := NewBuiltin().Validate(context.Background(), file); err == nil {
		t.Fatal("expected error for non-directory artifact")
	}
}
