package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultMapping_Valid(t *testing.T) {
	if err := ValidateMapping(DefaultMapping()); err != nil {
		t.Fatalf("default mapping invalid: %v", err)
	}
}

func TestLoadMapping_EmptyPathUsesDefaults(t *testing.T) {
	mapping, err := LoadMapping("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := mapping.ScopeFor("research"); !ok {
		t.Fatal("expected research scope in defaults")
	}
	dirs := mapping.ServiceDirs()
	if dirs["ml-research"] != "src/ml/research" {
		t.Fatalf("unexpected service dirs: %v", dirs)
	}
}

func TestLoadMapping_FromFile(t *testing.T) {
	content := `
agents:
  - role: research
    prefix: ml/research
  - role: redesign
    prefix: ml/redesign
  - role: app
    prefix: app
services:
  - name: inference
    directory: ml/research
`
	path := filepath.Join(t.TempDir(), "roles.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write mapping: %v", err)
	}

	mapping, err := LoadMapping(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	scope, ok := mapping.ScopeFor("redesign")
	if !ok || scope.Prefix != "ml/redesign" {
		t.Fatalf("unexpected redesign scope: %+v", scope)
	}
}

func TestValidateMapping_Errors(t *testing.T) {
	cases := []struct {
		name    string
		mapping Mapping
	}{
		{
			name:    "no agents",
			mapping: Mapping{},
		},
		{
			name: "duplicate role",
			mapping: Mapping{Agents: []AgentScope{
				{Role: "research", Prefix: "a"},
				{Role: "research", Prefix: "b"},
			}},
		},
		{
			name: "overlapping prefixes",
			mapping: Mapping{Agents: []AgentScope{
				{Role: "research", Prefix: "src/ml"},
				{Role: "redesign", Prefix: "src/ml/redesign"},
			}},
		},
		{
			name: "absolute prefix",
			mapping: Mapping{Agents: []AgentScope{
				{Role: "research", Prefix: "/src/ml"},
			}},
		},
		{
			name: "app exclusions not covering ml prefixes",
			mapping: Mapping{Agents: []AgentScope{
				{Role: "research", Prefix: "src/ml/research"},
				{Role: "app", Prefix: "src", Exclude: []string{"src/other"}},
			}},
		},
		{
			name: "exclusions on non-app role",
			mapping: Mapping{Agents: []AgentScope{
				{Role: "research", Prefix: "src/ml/research", Exclude: []string{"x"}},
			}},
		},
		{
			name: "duplicate service",
			mapping: Mapping{
				Agents: []AgentScope{{Role: "research", Prefix: "src/ml/research"}},
				Services: []ServiceMapping{
					{Name: "svc", Directory: "a"},
					{Name: "svc", Directory: "b"},
				},
			},
		},
		{
			name: "service without directory",
			mapping: Mapping{
				Agents:   []AgentScope{{Role: "research", Prefix: "src/ml/research"}},
				Services: []ServiceMapping{{Name: "svc"}},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := ValidateMapping(tc.mapping); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
