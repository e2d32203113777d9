package policy

import "strings"

// Priority ranks; lower wins.
const (
	rankRepository = 0
	rankProject    = 1
	rankGlobal     = 2
)

// BranchPolicies is the set of winning policies for one branch of a
// repository, at most one per policy type.
type BranchPolicies struct {
	Branch   string
	Policies []Policy
}

// Applies reports whether p targets the given project and repository.
func Applies(p Policy, project Project, repo Repository) bool {
	projectScope := strings.TrimSpace(p.Project)
	repoScope := strings.TrimSpace(p.Repository)

	if projectScope == "" && repoScope == "" {
		return true
	}
	if refersTo(projectScope, project.Name, project.ID) {
		return true
	}
	return refersTo(repoScope, repo.Name, repo.ID)
}

// Rank returns 0 for repository-scoped, 1 for project-scoped and 2 for global policies.
func Rank(p Policy) int {
	if strings.TrimSpace(p.Repository) != "" {
		return rankRepository
	}
	if strings.TrimSpace(p.Project) != "" {
		return rankProject
	}
	return rankGlobal
}

// ComparePriority orders a (declared at index ai) against b (declared at bi).
// It returns -1 when a takes precedence and 1 when b does. It never returns 0:
// on a complete tie the first argument wins.
func ComparePriority(a Policy, ai int, b Policy, bi int) int {
	ra, rb := Rank(a), Rank(b)
	switch {
	case ra < rb:
		return -1
	case ra > rb:
		return 1
	case bi < ai:
		return 1
	default:
		return -1
	}
}

type candidate struct {
	policy Policy
	index  int
}

type branchGroup struct {
	branch string
	types  []string
	byType map[string]candidate
}

// SelectBranchPolicies filters policies down to those applying to the
// repository and keeps one winner per (branch, type). Branches are returned in
// order of first appearance, types within a branch likewise.
func SelectBranchPolicies(policies []Policy, project Project, repo Repository) []BranchPolicies {
	var order []string
	groups := make(map[string]*branchGroup)

	for i, p := range policies {
		if !Applies(p, project, repo) {
			continue
		}

		g, ok := groups[p.Branch]
		if !ok {
			g = &branchGroup{branch: p.Branch, byType: make(map[string]candidate)}
			groups[p.Branch] = g
			order = append(order, p.Branch)
		}

		typeKey := strings.ToLower(p.Type)
		stored, ok := g.byType[typeKey]
		if !ok {
			g.byType[typeKey] = candidate{policy: p, index: i}
			g.types = append(g.types, typeKey)
			continue
		}
		if ComparePriority(stored.policy, stored.index, p, i) > 0 {
			g.byType[typeKey] = candidate{policy: p, index: i}
		}
	}

	out := make([]BranchPolicies, 0, len(order))
	for _, branch := range order {
		g := groups[branch]
		bp := BranchPolicies{Branch: branch, Policies: make([]Policy, 0, len(g.types))}
		for _, t := range g.types {
			bp.Policies = append(bp.Policies, g.byType[t].policy)
		}
		out = append(out, bp)
	}
	return out
}
