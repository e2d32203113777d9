package engine

import (
	"path"
	"strings"

	"branchwarden/internal/policy"

	"go.uber.org/zap"
)

// FilterProjects keeps the projects allowed by the definition and, when
// selectors are given, matched by at least one of them.
func FilterProjects(projects []policy.Project, def *policy.Definition, selectors []string, log *zap.Logger) []policy.Project {
	if log == nil {
		log = zap.NewNop()
	}
	var filtered []policy.Project
	for _, p := range projects {
		if def != nil && !def.ProjectAllowed(p) {
			log.Debug("project skipped", zap.String("project", p.Name), zap.String("reason", "not in allowedProjects"))
			continue
		}
		if len(selectors) > 0 && !matchesAnySelector(selectors, p) {
			log.Debug("project skipped", zap.String("project", p.Name), zap.String("reason", "not selected by --project"))
			continue
		}
		filtered = append(filtered, p)
	}
	return filtered
}

// FilterRepositories drops disabled repositories and those not allowed by
// the definition. Dropped repositories take no part in reconciliation, so
// their policies are never deleted.
func FilterRepositories(repos []policy.Repository, def *policy.Definition, log *zap.Logger) []policy.Repository {
	if log == nil {
		log = zap.NewNop()
	}
	var filtered []policy.Repository
	for _, r := range repos {
		if r.Disabled {
			log.Debug("repository skipped", zap.String("repository", r.Name), zap.String("reason", "disabled"))
			continue
		}
		if def != nil && !def.RepositoryAllowed(r) {
			log.Debug("repository skipped", zap.String("repository", r.Name), zap.String("reason", "not in allowedRepositories"))
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered
}

func matchesAnySelector(selectors []string, p policy.Project) bool {
	for _, sel := range selectors {
		if matchSelector(sel, p) {
			return true
		}
	}
	return false
}

// matchSelector compares case-insensitively against the project name or id.
// Selectors with glob characters are path.Match patterns.
func matchSelector(sel string, p policy.Project) bool {
	sel = strings.ToLower(strings.TrimSpace(sel))
	if sel == "" {
		return false
	}
	name := strings.ToLower(p.Name)
	if hasGlobChars(sel) {
		matched, _ := path.Match(sel, name)
		return matched
	}
	return sel == name || sel == p.ID.String()
}

func hasGlobChars(s string) bool {
	return strings.ContainsAny(s, "*?[")
}
