package composeref

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

const sampleCompose = `
services:
  ml-research:
    image: registry.local/ml-research:latest
  ml-redesign:
    image: registry.local/ml-redesign:latest
  app:
    image: registry.local/app:latest
    ports:
      - "3000:3000"
`

func writeCompose(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docker-compose.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write compose: %v", err)
	}
	return path
}

func TestServiceNames(t *testing.T) {
	path := writeCompose(t, sampleCompose)

	names, err := ServiceNames(context.Background(), path)
	if err != nil {
		t.Fatalf("service names: %v", err)
	}
	want := []string{"app", "ml-redesign", "ml-research"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, names)
		}
	}
}

func TestServiceNames_MissingFile(t *testing.T) {
	if _, err := ServiceNames(context.Background(), filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestServiceNames_EmptyFile(t *testing.T) {
	path := writeCompose(t, "")
	if _, err := ServiceNames(context.Background(), path); err == nil {
		t.Fatal("expected error for empty compose file")
	}
}

func TestUnmappedServices(t *testing.T) {
	declared := []string{"app", "ml-research"}
	mapped := map[string]string{
		"app":         "src",
		"ml-research": "src/ml/research",
		"ml-redesign": "src/ml/redesign",
	}

	missing := UnmappedServices(declared, mapped)
	if len(missing) != 1 || missing[0] != "ml-redesign" {
		t.Fatalf("expected [ml-redesign], got %v", missing)
	}
}

func TestUnmappedServices_AllDeclared(t *testing.T) {
	declared := []string{"app"}
	mapped := map[string]string{"app": "src"}

	if missing := UnmappedServices(declared, mapped); len(missing) != 0 {
		t.Fatalf("expected none missing, got %v", missing)
	}
}
