package kinds

import (
	"branchwarden/internal/policy"

	"github.com/google/uuid"
)

// noSettings is used by kinds that carry nothing but their scope.
type noSettings struct{}

func init() {
	policy.RegisterKind(&settingsKind[noSettings]{
		name:        "CommentRequirements",
		displayName: "Comment requirements",
		description: "Requires all pull request comments to be resolved before completion.",
		typeID:      uuid.MustParse("c6a1889d-b943-4856-b76f-9e46bb6b0df2"),
	})
	policy.RegisterKind(&settingsKind[noSettings]{
		name:        "WorkItemLinking",
		displayName: "Work item linking",
		description: "Requires pull requests to be linked to at least one work item.",
		typeID:      uuid.MustParse("40e92b44-2fe1-4dd6-b3d8-74a9c21d0c6e"),
	})
}
