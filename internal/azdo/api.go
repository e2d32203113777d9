package azdo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

type Project struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	State string    `json:"state,omitempty"`
}

type Repository struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	DefaultBranch string    `json:"defaultBranch,omitempty"`
	IsDisabled    bool      `json:"isDisabled,omitempty"`
	Project       Project   `json:"project"`
}

type PolicyType struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"displayName"`
	Description string    `json:"description,omitempty"`
}

// PolicyTypeRef is the type block of a policy configuration.
type PolicyTypeRef struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"displayName,omitempty"`
}

// Scope is one entry of a configuration's settings.scope array. A nil
// RepositoryID means every repository of the project.
type Scope struct {
	RepositoryID *uuid.UUID `json:"repositoryId"`
	RefName      string     `json:"refName,omitempty"`
	MatchKind    string     `json:"matchKind,omitempty"`
}

type PolicyConfiguration struct {
	ID         int             `json:"id,omitempty"`
	Revision   int             `json:"revision,omitempty"`
	IsEnabled  bool            `json:"isEnabled"`
	IsBlocking bool            `json:"isBlocking"`
	IsDeleted  bool            `json:"isDeleted,omitempty"`
	Type       PolicyTypeRef   `json:"type"`
	Settings   json.RawMessage `json:"settings"`
}

// Scopes decodes settings.scope. Configurations without a scope return nil.
func (p PolicyConfiguration) Scopes() ([]Scope, error) {
	if len(p.Settings) == 0 {
		return nil, nil
	}
	var s struct {
		Scope []Scope `json:"scope"`
	}
	if err := json.Unmarshal(p.Settings, &s); err != nil {
		return nil, fmt.Errorf("policy configuration %d: scope: %w", p.ID, err)
	}
	return s.Scope, nil
}

// ConfigurationSettings merges a scope block into kind settings.
func ConfigurationSettings(settings map[string]any, scope Scope) (json.RawMessage, error) {
	merged := make(map[string]any, len(settings)+1)
	for k, v := range settings {
		merged[k] = v
	}
	merged["scope"] = []Scope{scope}
	return json.Marshal(merged)
}

func projectPath(project, rest string) string {
	return url.PathEscape(project) + "/_apis/" + rest
}

func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	projects, err := list[Project](ctx, c, "_apis/projects", url.Values{"stateFilter": {"wellFormed"}})
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

func (c *Client) ListRepositories(ctx context.Context, project string) ([]Repository, error) {
	repos, err := list[Repository](ctx, c, projectPath(project, "git/repositories"), nil)
	if err != nil {
		return nil, fmt.Errorf("list repositories of %s: %w", project, err)
	}
	return repos, nil
}

func (c *Client) ListPolicyTypes(ctx context.Context, project string) ([]PolicyType, error) {
	types, err := list[PolicyType](ctx, c, projectPath(project, "policy/types"), nil)
	if err != nil {
		return nil, fmt.Errorf("list policy types of %s: %w", project, err)
	}
	return types, nil
}

func (c *Client) ListPolicyConfigurations(ctx context.Context, project string) ([]PolicyConfiguration, error) {
	configs, err := list[PolicyConfiguration](ctx, c, projectPath(project, "policy/configurations"), nil)
	if err != nil {
		return nil, fmt.Errorf("list policy configurations of %s: %w", project, err)
	}
	return configs, nil
}

func (c *Client) CreatePolicyConfiguration(ctx context.Context, project string, cfg PolicyConfiguration) (*PolicyConfiguration, error) {
	cfg.ID, cfg.Revision, cfg.IsDeleted = 0, 0, false
	req, err := c.newRequest(ctx, http.MethodPost, projectPath(project, "policy/configurations"), nil, cfg)
	if err != nil {
		return nil, err
	}
	var out PolicyConfiguration
	if _, err := c.do(req, &out); err != nil {
		return nil, fmt.Errorf("create policy configuration: %w", err)
	}
	return &out, nil
}

func (c *Client) UpdatePolicyConfiguration(ctx context.Context, project string, id int, cfg PolicyConfiguration) (*PolicyConfiguration, error) {
	if id <= 0 {
		return nil, fmt.Errorf("update policy configuration: invalid id %d", id)
	}
	cfg.ID = id
	req, err := c.newRequest(ctx, http.MethodPut, projectPath(project, "policy/configurations/"+strconv.Itoa(id)), nil, cfg)
	if err != nil {
		return nil, err
	}
	var out PolicyConfiguration
	if _, err := c.do(req, &out); err != nil {
		return nil, fmt.Errorf("update policy configuration %d: %w", id, err)
	}
	return &out, nil
}

func (c *Client) DeletePolicyConfiguration(ctx context.Context, project string, id int) error {
	if id <= 0 {
		return fmt.Errorf("delete policy configuration: invalid id %d", id)
	}
	req, err := c.newRequest(ctx, http.MethodDelete, projectPath(project, "policy/configurations/"+strconv.Itoa(id)), nil, nil)
	if err != nil {
		return err
	}
	if _, err := c.do(req, nil); err != nil {
		return fmt.Errorf("delete policy configuration %d: %w", id, err)
	}
	return nil
}

// Organization returns the last path segment of the base URL.
func (c *Client) Organization() string {
	if c == nil || c.BaseURL == nil {
		return ""
	}
	parts := strings.Split(strings.Trim(c.BaseURL.Path, "/"), "/")
	return parts[len(parts)-1]
}
