package engine

import (
	"branchwarden/internal/decision"
	"branchwarden/internal/policy"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Reconciler decides, for one repository at a time, what has to change on
// the server for it to match the definition. It never talks to the server.
type Reconciler struct {
	Definition *policy.Definition
	Log        *zap.Logger
}

func (r *Reconciler) logger() *zap.Logger {
	if r.Log == nil {
		return zap.NewNop()
	}
	return r.Log
}

// PlanRepository reconciles repo against servers, the policy configurations
// of its project. Only configurations that target exactly this repository
// and whose type is not ignored are candidates for matching and deletion.
func (r *Reconciler) PlanRepository(project policy.Project, repo policy.Repository, types *policy.TypeIndex, servers []policy.ServerPolicy) *RepoPlan {
	plan := newRepoPlan(project, repo)
	def := r.Definition
	if def == nil {
		def = &policy.Definition{}
	}
	log := r.logger().With(zap.String("project", project.Name), zap.String("repository", repo.Name))

	candidates := make([]policy.ServerPolicy, 0, len(servers))
	for _, s := range servers {
		if !s.RepositoryScoped() || s.RepositoryID != repo.ID || def.TypeIgnored(s.TypeID) {
			continue
		}
		candidates = append(candidates, s)
	}

	matcher := &policy.Matcher{Types: types, Log: log}
	for _, bp := range policy.SelectBranchPolicies(def.Policies, project, repo) {
		for _, p := range bp.Policies {
			if id, ok := ignoredType(def, types, p); ok {
				log.Debug("policy type ignored",
					zap.String("type", p.Type),
					zap.String("branch", p.Branch),
					zap.Stringer("type_id", id))
				continue
			}

			m := matcher.Match(p, candidates)
			if m.Server != nil {
				plan.claim(m.Server.ID)
			}
			desired := p
			plan.Decisions = append(plan.Decisions, decision.Decision{
				Action:     decision.ActionFor(m.Verdict),
				Project:    project,
				Repository: repo,
				Branch:     p.Branch,
				PolicyType: p.Type,
				TypeID:     m.TypeID,
				Desired:    &desired,
				Server:     m.Server,
			})
		}
	}

	action := decision.ActionWouldDelete
	if def.AllowDeletion {
		action = decision.ActionDelete
	}
	for i := range candidates {
		s := &candidates[i]
		if plan.IsClaimed(s.ID) {
			continue
		}
		plan.Decisions = append(plan.Decisions, decision.Decision{
			Action:     action,
			Project:    project,
			Repository: repo,
			Branch:     s.Branch,
			PolicyType: serverTypeName(types, *s),
			TypeID:     s.TypeID,
			Server:     s,
		})
	}
	return plan
}

// ignoredType reports whether the server type p resolves to is ignored. An
// unresolved type is checked by the kind's well-known id.
func ignoredType(def *policy.Definition, types *policy.TypeIndex, p policy.Policy) (uuid.UUID, bool) {
	if len(def.IgnoredPolicyTypeIDs) == 0 {
		return uuid.Nil, false
	}
	kind, ok := policy.LookupKind(p.Type)
	if !ok {
		return uuid.Nil, false
	}
	id := kind.TypeID()
	if t, ok := types.Resolve(kind); ok {
		id = t.ID
	}
	return id, def.TypeIgnored(id)
}

// serverTypeName names the type of an unclaimed server policy: the kind name
// when a kind has that display name, else the server's display name, else
// the type id.
func serverTypeName(types *policy.TypeIndex, s policy.ServerPolicy) string {
	name := s.TypeName
	if name == "" {
		if t, ok := types.Lookup(s.TypeID); ok {
			name = t.DisplayName
		}
	}
	if name == "" {
		return s.TypeID.String()
	}
	if k, ok := policy.LookupKind(name); ok {
		return k.Name()
	}
	return name
}
