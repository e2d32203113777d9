// Package fetcher lists the remote state a reconciliation pass needs: the
// projects of an organization and, per project, a snapshot of its policy
// types, policy configurations and repositories.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"branchwarden/internal/azdo"
	"branchwarden/internal/policy"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Remote is the read side of the Azure DevOps API.
type Remote interface {
	ListProjects(ctx context.Context) ([]azdo.Project, error)
	ListRepositories(ctx context.Context, project string) ([]azdo.Repository, error)
	ListPolicyTypes(ctx context.Context, project string) ([]azdo.PolicyType, error)
	ListPolicyConfigurations(ctx context.Context, project string) ([]azdo.PolicyConfiguration, error)
}

// Snapshot is the server state of one project at fetch time.
type Snapshot struct {
	Project      policy.Project
	Types        []policy.PolicyType
	Policies     []policy.ServerPolicy
	Repositories []policy.Repository
	// Unreadable counts configurations whose scope could not be decoded;
	// they are left out of Policies.
	Unreadable int
}

type Fetcher struct {
	remote Remote
	group  singleflight.Group
	cache  *Cache[string, *Snapshot]
}

func NewFetcher(remote Remote) *Fetcher {
	return &Fetcher{
		remote: remote,
		cache:  NewCache[string, *Snapshot](),
	}
}

func (f *Fetcher) check(ctx context.Context, op string) error {
	if ctx == nil {
		return fmt.Errorf("%s: nil context", op)
	}
	if f == nil || f.remote == nil {
		return fmt.Errorf("%s: fetcher not initialized (use NewFetcher)", op)
	}
	return nil
}

// Projects lists the organization's projects.
func (f *Fetcher) Projects(ctx context.Context) ([]policy.Project, error) {
	if err := f.check(ctx, "Projects"); err != nil {
		return nil, err
	}
	raw, err := f.remote.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]policy.Project, 0, len(raw))
	for _, p := range raw {
		out = append(out, policy.Project{ID: p.ID, Name: p.Name})
	}
	return out, nil
}

// Snapshot fetches the three listings of a project concurrently. Concurrent
// and repeated calls for the same project share one fetch.
func (f *Fetcher) Snapshot(ctx context.Context, project policy.Project) (*Snapshot, error) {
	if err := f.check(ctx, "Snapshot"); err != nil {
		return nil, err
	}
	if project.Name == "" {
		return nil, fmt.Errorf("Snapshot: project name is required")
	}

	key := strings.ToLower(project.ID.String() + ":" + project.Name)
	if s, ok := f.cache.Get(key); ok {
		return s, nil
	}
	v, err, shared := f.group.Do(key, func() (any, error) {
		return f.fetchSnapshot(ctx, project)
	})
	if err != nil && shared && ctx.Err() == nil && isContextError(err) {
		// The shared call ran on another caller's context, which ended
		// while ours is still live.
		v, err = f.fetchSnapshot(ctx, project)
	}
	if err != nil {
		return nil, err
	}
	s := v.(*Snapshot)
	f.cache.Set(key, s)
	return s, nil
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (f *Fetcher) fetchSnapshot(ctx context.Context, project policy.Project) (*Snapshot, error) {
	var (
		types   []azdo.PolicyType
		configs []azdo.PolicyConfiguration
		repos   []azdo.Repository
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		types, err = f.remote.ListPolicyTypes(gctx, project.Name)
		return err
	})
	g.Go(func() (err error) {
		configs, err = f.remote.ListPolicyConfigurations(gctx, project.Name)
		return err
	})
	g.Go(func() (err error) {
		repos, err = f.remote.ListRepositories(gctx, project.Name)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", project.Name, err)
	}

	s := &Snapshot{
		Project:      project,
		Types:        make([]policy.PolicyType, 0, len(types)),
		Policies:     make([]policy.ServerPolicy, 0, len(configs)),
		Repositories: make([]policy.Repository, 0, len(repos)),
	}
	typeNames := make(map[uuid.UUID]string, len(types))
	for _, t := range types {
		s.Types = append(s.Types, policy.PolicyType{ID: t.ID, DisplayName: t.DisplayName, Description: t.Description})
		typeNames[t.ID] = t.DisplayName
	}
	for _, c := range configs {
		sp, err := ServerPolicyFromConfiguration(c)
		if err != nil {
			s.Unreadable++
			continue
		}
		if sp.TypeName == "" {
			sp.TypeName = typeNames[sp.TypeID]
		}
		s.Policies = append(s.Policies, sp)
	}
	for _, r := range repos {
		s.Repositories = append(s.Repositories, RepositoryFromRemote(r, project))
	}
	return s, nil
}

// ServerPolicyFromConfiguration flattens a configuration onto its first
// scope entry.
func ServerPolicyFromConfiguration(c azdo.PolicyConfiguration) (policy.ServerPolicy, error) {
	scopes, err := c.Scopes()
	if err != nil {
		return policy.ServerPolicy{}, err
	}
	sp := policy.ServerPolicy{
		ID:         c.ID,
		Revision:   c.Revision,
		TypeID:     c.Type.ID,
		TypeName:   c.Type.DisplayName,
		Enabled:    c.IsEnabled,
		Blocking:   c.IsBlocking,
		Deleted:    c.IsDeleted,
		ScopeCount: len(scopes),
		Settings:   c.Settings,
		MatchKind:  policy.MatchExact,
	}
	if len(scopes) > 0 {
		first := scopes[0]
		if first.RepositoryID != nil {
			sp.RepositoryID = *first.RepositoryID
		}
		sp.Branch = policy.NormalizeBranch(first.RefName)
		if mk, err := policy.ParseMatchKind(first.MatchKind); err == nil {
			sp.MatchKind = mk
		} else {
			// Kinds such as DefaultBranch never match a desired selector.
			sp.MatchKind = policy.MatchKind(first.MatchKind)
		}
	}
	return sp, nil
}

func RepositoryFromRemote(r azdo.Repository, project policy.Project) policy.Repository {
	projectID := r.Project.ID
	if projectID == uuid.Nil {
		projectID = project.ID
	}
	return policy.Repository{
		ID:            r.ID,
		Name:          r.Name,
		ProjectID:     projectID,
		DefaultBranch: policy.NormalizeBranch(r.DefaultBranch),
		Disabled:      r.IsDisabled,
	}
}
