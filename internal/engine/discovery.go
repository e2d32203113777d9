package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"branchwarden/internal/policy"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProjectLister lists the projects of the organization.
type ProjectLister interface {
	Projects(ctx context.Context) ([]policy.Project, error)
}

// ResolveProjects lists the organization's projects and narrows them to the
// ones this run reconciles, sorted by name. A selector without glob
// characters must name an existing project.
func ResolveProjects(ctx context.Context, lister ProjectLister, def *policy.Definition, selectors []string, log *zap.Logger) ([]policy.Project, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is nil")
	}
	if lister == nil {
		return nil, fmt.Errorf("project lister is nil")
	}

	projects, err := lister.Projects(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	projects = dedupeProjects(projects)
	sort.SliceStable(projects, func(i, j int) bool {
		return strings.ToLower(projects[i].Name) < strings.ToLower(projects[j].Name)
	})

	for _, sel := range selectors {
		sel = strings.TrimSpace(sel)
		if sel == "" || hasGlobChars(sel) {
			continue
		}
		if !selectsAny(sel, projects) {
			return nil, fmt.Errorf("project %q not found in organization", sel)
		}
	}

	return FilterProjects(projects, def, selectors, log), nil
}

func selectsAny(sel string, projects []policy.Project) bool {
	for _, p := range projects {
		if matchSelector(sel, p) {
			return true
		}
	}
	return false
}

func dedupeProjects(in []policy.Project) []policy.Project {
	if len(in) <= 1 {
		return in
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]policy.Project, 0, len(in))
	for _, p := range in {
		key := "name:" + strings.ToLower(p.Name)
		if p.ID != uuid.Nil {
			key = "id:" + p.ID.String()
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	return out
}
