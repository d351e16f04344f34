package config

import (
	"fmt"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

// AgentScope maps an agent role to its allowed directory prefix. The app
// role may carry Exclude: it writes anywhere under its prefix except those
// sibling prefixes, which are reserved for the ML roles.
type AgentScope struct {
	Role    string   `yaml:"role"`
	Prefix  string   `yaml:"prefix"`
	Exclude []string `yaml:"exclude,omitempty"`
}

// ServiceMapping ties a container service name to the source directory the
// failsafe monitor reverts when the service goes unhealthy.
type ServiceMapping struct {
	Name      string `yaml:"name"`
	Directory string `yaml:"directory"`
}

// Mapping is the parsed roles/services file. Both maps are static
// configuration, built once at startup and never mutated.
type Mapping struct {
	Agents   []AgentScope     `yaml:"agents"`
	Services []ServiceMapping `yaml:"services"`
}

// DefaultMapping mirrors the project scaffold's fixed directory convention.
func DefaultMapping() Mapping {
	return Mapping{
		Agents: []AgentScope{
			{Role: "research", Prefix: "src/ml/research"},
			{Role: "redesign", Prefix: "src/ml/redesign"},
			{Role: "app", Prefix: "src", Exclude: []string{"src/ml/research", "src/ml/redesign"}},
		},
		Services: []ServiceMapping{
			{Name: "ml-research", Directory: "src/ml/research"},
			{Name: "ml-redesign", Directory: "src/ml/redesign"},
			{Name: "app", Directory: "src"},
		},
	}
}

// LoadMapping parses a YAML mapping file. An empty path returns the default
// mapping.
func LoadMapping(filePath string) (Mapping, error) {
	if filePath == "" {
		return DefaultMapping(), nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return Mapping{}, fmt.Errorf("read mapping file: %w", err)
	}

	var mapping Mapping
	if err := yaml.Unmarshal(data, &mapping); err != nil {
		return Mapping{}, fmt.Errorf("parse mapping file: %w", err)
	}

	if err := ValidateMapping(mapping); err != nil {
		return Mapping{}, err
	}

	return mapping, nil
}

// ValidateMapping enforces the scope invariants: prefixes are clean relative
// paths, ML role prefixes never overlap each other, and the app role's
// exclusion set covers every other role's prefix. The source convention kept
// the exclusion list and the role prefixes in sync by hand; here the sync is
// checked at startup.
func ValidateMapping(mapping Mapping) error {
	if len(mapping.Agents) == 0 {
		return fmt.Errorf("mapping contains no agent scopes")
	}

	seenRoles := make(map[string]bool)
	var appScope *AgentScope
	var mlPrefixes []string

	for i := range mapping.Agents {
		scope := mapping.Agents[i]
		if scope.Role == "" {
			return fmt.Errorf("agent %d: role is required", i)
		}
		if seenRoles[scope.Role] {
			return fmt.Errorf("agent %q: duplicate role", scope.Role)
		}
		seenRoles[scope.Role] = true

		if err := validatePrefix(scope.Prefix); err != nil {
			return fmt.Errorf("agent %q: %w", scope.Role, err)
		}

		if scope.Role == "app" {
			appScope = &mapping.Agents[i]
			continue
		}
		if len(scope.Exclude) > 0 {
			return fmt.Errorf("agent %q: only the app role may carry exclusions", scope.Role)
		}
		mlPrefixes = append(mlPrefixes, scope.Prefix)
	}

	for i, a := range mlPrefixes {
		for _, b := range mlPrefixes[i+1:] {
			if prefixesOverlap(a, b) {
				return fmt.Errorf("agent prefixes %q and %q overlap", a, b)
			}
		}
	}

	if appScope != nil {
		for _, prefix := range mlPrefixes {
			if !containsPrefix(appScope.Exclude, prefix) {
				return fmt.Errorf("app exclusions must cover prefix %q", prefix)
			}
		}
	}

	seenServices := make(map[string]bool)
	for i, svc := range mapping.Services {
		if svc.Name == "" {
			return fmt.Errorf("service %d: name is required", i)
		}
		if svc.Directory == "" {
			return fmt.Errorf("service %q: directory is required", svc.Name)
		}
		if seenServices[svc.Name] {
			return fmt.Errorf("service %q: duplicate name", svc.Name)
		}
		seenServices[svc.Name] = true
	}

	return nil
}

// ServiceDirs returns the immutable service name to directory lookup table.
func (m Mapping) ServiceDirs() map[string]string {
	dirs := make(map[string]string, len(m.Services))
	for _, svc := range m.Services {
		dirs[svc.Name] = svc.Directory
	}
	return dirs
}

// ScopeFor returns the scope for the given role.
func (m Mapping) ScopeFor(role string) (AgentScope, bool) {
	for _, scope := range m.Agents {
		if scope.Role == role {
			return scope, true
		}
	}
	return AgentScope{}, false
}

// Roles lists the configured role names in file order.
func (m Mapping) Roles() []string {
	roles := make([]string, 0, len(m.Agents))
	for _, scope := range m.Agents {
		roles = append(roles, scope.Role)
	}
	return roles
}

func validatePrefix(prefix string) error {
	if prefix == "" {
		return fmt.Errorf("prefix is required")
	}
	if strings.HasPrefix(prefix, "/") {
		return fmt.Errorf("prefix %q must be relative", prefix)
	}
	if cleaned := path.Clean(prefix); cleaned != prefix {
		return fmt.Errorf("prefix %q must be clean (want %q)", prefix, cleaned)
	}
	return nil
}

func prefixesOverlap(a, b string) bool {
	return a == b ||
		strings.HasPrefix(a, b+"/") ||
		strings.HasPrefix(b, a+"/")
}

func containsPrefix(list []string, prefix string) bool {
	for _, item := range list {
		if item == prefix {
			return true
		}
	}
	return false
}
