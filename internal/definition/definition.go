// Package definition decodes policy-definition documents into policy.Definition.
//
// The encoding is picked from the file extension: ".toml" documents are read
// as TOML, everything else as YAML (which also accepts JSON).
package definition

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"branchwarden/internal/policy"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// document mirrors the on-disk schema.
type document struct {
	AllowedProjects      []string      `yaml:"allowedProjects" toml:"allowedProjects"`
	AllowedRepositories  []string      `yaml:"allowedRepositories" toml:"allowedRepositories"`
	IgnoredPolicyTypeIDs []string      `yaml:"ignoredPolicyTypeIds" toml:"ignoredPolicyTypeIds"`
	AllowDeletion        bool          `yaml:"allowDeletion" toml:"allowDeletion"`
	Policies             []policyEntry `yaml:"policies" toml:"policies"`
}

type policyEntry struct {
	Type       string         `yaml:"type" toml:"type"`
	Project    string         `yaml:"project" toml:"project"`
	Repository string         `yaml:"repository" toml:"repository"`
	Branch     string         `yaml:"branch" toml:"branch"`
	MatchKind  string         `yaml:"matchKind" toml:"matchKind"`
	Enabled    *bool          `yaml:"enabled" toml:"enabled"`
	Blocking   *bool          `yaml:"blocking" toml:"blocking"`
	Settings   map[string]any `yaml:"settings" toml:"settings"`
}

// FormatForPath infers the document format from a file name.
func FormatForPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// LoadFile reads and decodes the definition at path.
func LoadFile(path string) (*policy.Definition, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("definition path is required")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definition: %w", err)
	}
	def, err := Parse(raw, FormatForPath(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// Parse decodes raw in the given format and validates every policy entry.
func Parse(raw []byte, format Format) (*policy.Definition, error) {
	var doc document
	switch format {
	case FormatTOML:
		md, err := toml.Decode(string(raw), &doc)
		if err != nil {
			return nil, fmt.Errorf("parse definition: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("parse definition: unknown keys: %v", undecoded)
		}
	case FormatYAML, "":
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse definition: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported definition format: %s", format)
	}
	return build(doc)
}

func build(doc document) (*policy.Definition, error) {
	def := &policy.Definition{
		AllowedProjects:     cleanList(doc.AllowedProjects),
		AllowedRepositories: cleanList(doc.AllowedRepositories),
		AllowDeletion:       doc.AllowDeletion,
		Policies:            make([]policy.Policy, 0, len(doc.Policies)),
	}

	for _, raw := range cleanList(doc.IgnoredPolicyTypeIDs) {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid ignoredPolicyTypeIds entry %q: %w", raw, err)
		}
		def.IgnoredPolicyTypeIDs = append(def.IgnoredPolicyTypeIDs, id)
	}

	var errs []error
	for i, entry := range doc.Policies {
		p, err := buildPolicy(entry)
		if err != nil {
			errs = append(errs, fmt.Errorf("policies[%d]: %w", i, err))
			continue
		}
		def.Policies = append(def.Policies, p)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return def, nil
}

func buildPolicy(entry policyEntry) (policy.Policy, error) {
	typeName := strings.TrimSpace(entry.Type)
	if typeName == "" {
		return policy.Policy{}, errors.New("type is required")
	}
	kind, ok := policy.LookupKind(typeName)
	if !ok {
		return policy.Policy{}, fmt.Errorf("unknown policy type %q", typeName)
	}

	matchKind, err := policy.ParseMatchKind(entry.MatchKind)
	if err != nil {
		return policy.Policy{}, fmt.Errorf("matchKind: %w", err)
	}

	settings, err := kind.DecodeSettings(entry.Settings)
	if err != nil {
		return policy.Policy{}, err
	}

	return policy.Policy{
		Type:       kind.Name(),
		Project:    strings.TrimSpace(entry.Project),
		Repository: strings.TrimSpace(entry.Repository),
		Branch:     policy.NormalizeBranch(entry.Branch),
		MatchKind:  matchKind,
		Enabled:    boolOr(entry.Enabled, true),
		Blocking:   boolOr(entry.Blocking, true),
		Settings:   settings,
	}, nil
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func cleanList(values []string) []string {
	var out []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
