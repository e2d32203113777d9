package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"branchwarden/internal/azdo"

	"github.com/google/uuid"
)

// memoryRemote is an in-memory organization. Writes change what later
// listings return, so consecutive runs observe each other.
type memoryRemote struct {
	mu       sync.Mutex
	projects []azdo.Project
	repos    map[string][]azdo.Repository
	types    []azdo.PolicyType
	configs  map[string][]azdo.PolicyConfiguration
	nextID   int

	listProjectsErr error
	snapshotErrs    map[string]error
	writeErr        error

	creates, updates, deletes int
}

func newMemoryRemote() *memoryRemote {
	return &memoryRemote{
		repos:        make(map[string][]azdo.Repository),
		configs:      make(map[string][]azdo.PolicyConfiguration),
		snapshotErrs: make(map[string]error),
		nextID:       100,
		types: []azdo.PolicyType{
			{ID: minReviewersTypeID, DisplayName: "Minimum number of reviewers"},
			{ID: buildTypeID, DisplayName: "Build"},
			{ID: mergeTypeID, DisplayName: "Require a merge strategy"},
			{ID: uuid.MustParse("40e92b44-2fe1-4dd6-b3d8-74a9c21d0c6e"), DisplayName: "Work item linking"},
		},
	}
}

func (m *memoryRemote) addProject(p azdo.Project, repos ...azdo.Repository) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects = append(m.projects, p)
	for _, r := range repos {
		r.Project = p
		m.repos[p.Name] = append(m.repos[p.Name], r)
	}
}

// addConfig stores a configuration scoped to one repository and branch.
func (m *memoryRemote) addConfig(project string, typeID uuid.UUID, repoID uuid.UUID, branch string, settings map[string]any) int {
	scope := azdo.Scope{RepositoryID: &repoID}
	if branch != "" {
		scope.RefName = "refs/heads/" + branch
		scope.MatchKind = "Exact"
	}
	raw, err := azdo.ConfigurationSettings(settings, scope)
	if err != nil {
		panic(err)
	}
	cfg, _ := m.CreatePolicyConfiguration(context.Background(), project, azdo.PolicyConfiguration{
		IsEnabled:  true,
		IsBlocking: true,
		Type:       azdo.PolicyTypeRef{ID: typeID},
		Settings:   raw,
	})
	m.mu.Lock()
	m.creates--
	m.mu.Unlock()
	return cfg.ID
}

func (m *memoryRemote) ListProjects(context.Context) ([]azdo.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listProjectsErr != nil {
		return nil, m.listProjectsErr
	}
	return append([]azdo.Project(nil), m.projects...), nil
}

func (m *memoryRemote) ListRepositories(_ context.Context, project string) ([]azdo.Repository, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]azdo.Repository(nil), m.repos[project]...), nil
}

func (m *memoryRemote) ListPolicyTypes(context.Context, string) ([]azdo.PolicyType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]azdo.PolicyType(nil), m.types...), nil
}

func (m *memoryRemote) ListPolicyConfigurations(_ context.Context, project string) ([]azdo.PolicyConfiguration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.snapshotErrs[project]; err != nil {
		return nil, err
	}
	return append([]azdo.PolicyConfiguration(nil), m.configs[project]...), nil
}

func (m *memoryRemote) CreatePolicyConfiguration(_ context.Context, project string, cfg azdo.PolicyConfiguration) (*azdo.PolicyConfiguration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return nil, m.writeErr
	}
	m.nextID++
	cfg.ID = m.nextID
	cfg.Revision = 1
	m.configs[project] = append(m.configs[project], cfg)
	m.creates++
	return &cfg, nil
}

func (m *memoryRemote) UpdatePolicyConfiguration(_ context.Context, project string, id int, cfg azdo.PolicyConfiguration) (*azdo.PolicyConfiguration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return nil, m.writeErr
	}
	for i, existing := range m.configs[project] {
		if existing.ID == id {
			cfg.ID = id
			cfg.Revision = existing.Revision + 1
			m.configs[project][i] = cfg
			m.updates++
			return &cfg, nil
		}
	}
	return nil, &azdo.ErrorResponse{StatusCode: 404, Method: "PUT", Path: fmt.Sprintf("/%s/_apis/policy/configurations/%d", project, id)}
}

func (m *memoryRemote) DeletePolicyConfiguration(_ context.Context, project string, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	configs := m.configs[project]
	for i, existing := range configs {
		if existing.ID == id {
			m.configs[project] = append(configs[:i], configs[i+1:]...)
			m.deletes++
			return nil
		}
	}
	return &azdo.ErrorResponse{StatusCode: 404, Method: "DELETE"}
}

// settingsOf returns the decoded settings of configuration id.
func (m *memoryRemote) settingsOf(project string, id int) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.configs[project] {
		if c.ID == id {
			out := map[string]any{}
			_ = json.Unmarshal(c.Settings, &out)
			return out
		}
	}
	return nil
}

func (m *memoryRemote) ids(project string) []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []int
	for _, c := range m.configs[project] {
		out = append(out, c.ID)
	}
	sort.Ints(out)
	return out
}
