// Package composeref reads the project's compose file so the monitor can
// cross-check its service→directory map against the services that actually
// exist.
package composeref

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
)

// ServiceNames parses a compose file and returns its declared service names,
// sorted.
func ServiceNames(ctx context.Context, path string) ([]string, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read compose file: %w", err)
	}
	if len(body) == 0 {
		return nil, errors.New("compose file is empty")
	}

	details := types.ConfigDetails{
		WorkingDir: ".",
		ConfigFiles: []types.ConfigFile{
			{
				Filename: path,
				Content:  body,
			},
		},
		Environment: types.Mapping{},
	}

	project, err := loader.LoadWithContext(ctx, details, func(opts *loader.Options) {
		opts.SetProjectName("modelgate", false)
	})
	if err != nil {
		return nil, fmt.Errorf("load compose: %w", err)
	}
	if len(project.Services) == 0 {
		return nil, errors.New("compose has no services")
	}

	names := make([]string, 0, len(project.Services))
	for name := range project.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// UnmappedServices returns mapped service names with no compose declaration.
// These are likely typos in the mapping file.
func UnmappedServices(declared []string, mapped map[string]string) []string {
	declaredSet := make(map[string]bool, len(declared))
	for _, name := range declared {
		declaredSet[name] = true
	}

	var missing []string
	for name := range mapped {
		if !declaredSet[name] {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}
