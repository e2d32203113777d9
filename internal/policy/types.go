package policy

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const refsHeadsPrefix = "refs/heads/"

// MatchKind controls how a branch name is compared against refs.
type MatchKind string

const (
	MatchExact  MatchKind = "Exact"
	MatchPrefix MatchKind = "Prefix"
)

// ParseMatchKind accepts "exact" or "prefix" in any case. Empty means exact.
func ParseMatchKind(raw string) (MatchKind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "exact":
		return MatchExact, nil
	case "prefix":
		return MatchPrefix, nil
	default:
		return "", fmt.Errorf("unsupported match kind %q (must be one of: exact, prefix)", raw)
	}
}

// NormalizeBranch strips surrounding whitespace and a leading refs/heads/.
func NormalizeBranch(raw string) string {
	return strings.TrimPrefix(strings.TrimSpace(raw), refsHeadsPrefix)
}

// RefName is the inverse of NormalizeBranch. An empty branch has no ref.
func RefName(branch string) string {
	if branch == "" {
		return ""
	}
	return refsHeadsPrefix + branch
}

type Project struct {
	ID   uuid.UUID
	Name string
}

type Repository struct {
	ID            uuid.UUID
	Name          string
	ProjectID     uuid.UUID
	DefaultBranch string
	Disabled      bool
}

// PolicyType is a policy type as known by the server for one project.
type PolicyType struct {
	ID          uuid.UUID
	DisplayName string
	Description string
}

// ServerPolicy is a live policy configuration. RepositoryID, Branch and
// MatchKind are taken from the first scope entry; ScopeCount says how many
// there were.
type ServerPolicy struct {
	ID           int
	Revision     int
	TypeID       uuid.UUID
	TypeName     string
	RepositoryID uuid.UUID
	Branch       string
	MatchKind    MatchKind
	Enabled      bool
	Blocking     bool
	Deleted      bool
	ScopeCount   int
	Settings     json.RawMessage
}

// RepositoryScoped reports whether s targets exactly one repository and
// nothing else.
func (s ServerPolicy) RepositoryScoped() bool {
	return !s.Deleted && s.ScopeCount == 1 && s.RepositoryID != uuid.Nil
}

// Policy is one desired policy entry of a Definition.
type Policy struct {
	// Type is the logical kind name (see Kind.Name).
	Type       string
	Project    string
	Repository string
	// Branch is empty for policies that apply to every branch.
	Branch    string
	MatchKind MatchKind
	Enabled   bool
	Blocking  bool
	// Settings holds the kind-specific settings value produced by Kind.DecodeSettings.
	Settings any
}

// Definition is the desired state of a run.
type Definition struct {
	AllowedProjects      []string
	AllowedRepositories  []string
	IgnoredPolicyTypeIDs []uuid.UUID
	AllowDeletion        bool
	// Policies is kept in document order; the order is the priority tie-break.
	Policies []Policy
}

func (d *Definition) ProjectAllowed(p Project) bool {
	return allowed(d.AllowedProjects, p.Name, p.ID)
}

func (d *Definition) RepositoryAllowed(r Repository) bool {
	return allowed(d.AllowedRepositories, r.Name, r.ID)
}

func (d *Definition) TypeIgnored(id uuid.UUID) bool {
	for _, ignored := range d.IgnoredPolicyTypeIDs {
		if ignored == id {
			return true
		}
	}
	return false
}

func allowed(list []string, name string, id uuid.UUID) bool {
	if len(list) == 0 {
		return true
	}
	for _, entry := range list {
		if refersTo(entry, name, id) {
			return true
		}
	}
	return false
}

// refersTo reports whether ref names the object by name or id, ignoring case.
func refersTo(ref, name string, id uuid.UUID) bool {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return false
	}
	if strings.EqualFold(ref, name) {
		return true
	}
	return id != uuid.Nil && strings.EqualFold(ref, id.String())
}
