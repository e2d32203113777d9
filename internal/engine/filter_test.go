package engine

import (
	"testing"

	"branchwarden/internal/policy"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func projectNames(ps []policy.Project) []string {
	var out []string
	for _, p := range ps {
		out = append(out, p.Name)
	}
	return out
}

func TestFilterProjects(t *testing.T) {
	platformID := uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000001")
	projects := []policy.Project{
		{ID: platformID, Name: "Platform"},
		{ID: uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000002"), Name: "Platform-Legacy"},
		{ID: uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000003"), Name: "Tools"},
	}

	tests := []struct {
		name      string
		def       *policy.Definition
		selectors []string
		want      []string
	}{
		{name: "no restrictions", want: []string{"Platform", "Platform-Legacy", "Tools"}},
		{name: "allowed by name", def: &policy.Definition{AllowedProjects: []string{"tools"}}, want: []string{"Tools"}},
		{name: "allowed by id", def: &policy.Definition{AllowedProjects: []string{platformID.String()}}, want: []string{"Platform"}},
		{name: "selector by name", selectors: []string{"PLATFORM"}, want: []string{"Platform"}},
		{name: "selector by id", selectors: []string{platformID.String()}, want: []string{"Platform"}},
		{name: "glob selector", selectors: []string{"platform*"}, want: []string{"Platform", "Platform-Legacy"}},
		{name: "blank selector matches nothing", selectors: []string{" "}, want: nil},
		{
			name:      "selector and allow list intersect",
			def:       &policy.Definition{AllowedProjects: []string{"Platform-Legacy", "Tools"}},
			selectors: []string{"platform*"},
			want:      []string{"Platform-Legacy"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterProjects(projects, tt.def, tt.selectors, nil)
			assert.Equal(t, tt.want, projectNames(got))
		})
	}
}

func TestFilterRepositories(t *testing.T) {
	repos := []policy.Repository{
		{ID: uuid.New(), Name: "api"},
		{ID: uuid.New(), Name: "archive", Disabled: true},
		{ID: uuid.New(), Name: "web"},
	}

	var names []string
	for _, r := range FilterRepositories(repos, &policy.Definition{}, nil) {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"api", "web"}, names, "disabled repositories are dropped")

	names = nil
	def := &policy.Definition{AllowedRepositories: []string{"WEB", "archive"}}
	for _, r := range FilterRepositories(repos, def, nil) {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"web"}, names)
}

func TestHasGlobChars(t *testing.T) {
	assert.True(t, hasGlobChars("team-*"))
	assert.True(t, hasGlobChars("p?"))
	assert.True(t, hasGlobChars("[ab]"))
	assert.False(t, hasGlobChars("Platform"))
}
