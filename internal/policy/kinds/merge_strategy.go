package kinds

import (
	"errors"

	"branchwarden/internal/policy"

	"github.com/google/uuid"
)

type MergeStrategySettings struct {
	AllowNoFastForward bool `json:"allowNoFastForward"`
	AllowSquash        bool `json:"allowSquash"`
	AllowRebase        bool `json:"allowRebase"`
	AllowRebaseMerge   bool `json:"allowRebaseMerge"`
}

func init() {
	policy.RegisterKind(&settingsKind[MergeStrategySettings]{
		name:        "MergeStrategy",
		displayName: "Require a merge strategy",
		description: "Limits the merge types allowed when completing pull requests.",
		typeID:      uuid.MustParse("fa4e907d-c16b-4a4c-9dfa-4916e5d171ab"),
		fields: []policy.Field{
			{Name: "allowNoFastForward", Description: "Allow basic merge (no fast-forward).", Default: "false"},
			{Name: "allowSquash", Description: "Allow squash merge.", Default: "false"},
			{Name: "allowRebase", Description: "Allow rebase and fast-forward.", Default: "false"},
			{Name: "allowRebaseMerge", Description: "Allow rebase with merge commit.", Default: "false"},
		},
		validate: func(s MergeStrategySettings) error {
			if !s.AllowNoFastForward && !s.AllowSquash && !s.AllowRebase && !s.AllowRebaseMerge {
				return errors.New("at least one merge type must be allowed")
			}
			return nil
		},
	})
}
