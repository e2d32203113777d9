package kinds

import (
	"errors"
	"strings"

	"branchwarden/internal/policy"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

type RequiredReviewersSettings struct {
	RequiredReviewerIDs  []string `json:"requiredReviewerIds"`
	MinimumApproverCount int      `json:"minimumApproverCount,omitempty"`
	CreatorVoteCounts    bool     `json:"creatorVoteCounts"`
	Message              string   `json:"message,omitempty"`
	FilenamePatterns     []string `json:"filenamePatterns,omitempty"`
}

func init() {
	policy.RegisterKind(&settingsKind[RequiredReviewersSettings]{
		name:        "RequiredReviewers",
		displayName: "Required reviewers",
		description: "Automatically adds the given reviewers (identity ids) to pull requests touching the branch.",
		typeID:      uuid.MustParse("fd2167ab-b0be-447a-8ec8-39368250530e"),
		fields: []policy.Field{
			{Name: "requiredReviewerIds", Description: "Identity ids of the required reviewers (order does not matter). Required."},
			{Name: "minimumApproverCount", Description: "Approvals required from the listed reviewers (0 = all).", Default: "0"},
			{Name: "creatorVoteCounts", Description: "The pull request author's vote counts toward approval.", Default: "false"},
			{Name: "message", Description: "Activity feed message shown on the pull request."},
			{Name: "filenamePatterns", Description: "Ordered path filters limiting when reviewers are added."},
		},
		normalize: func(s *RequiredReviewersSettings) {
			for i, id := range s.RequiredReviewerIDs {
				s.RequiredReviewerIDs[i] = strings.ToLower(strings.TrimSpace(id))
			}
			s.Message = strings.TrimSpace(s.Message)
		},
		validate: func(s RequiredReviewersSettings) error {
			if len(s.RequiredReviewerIDs) == 0 {
				return errors.New("requiredReviewerIds must not be empty")
			}
			if s.MinimumApproverCount < 0 {
				return errors.New("minimumApproverCount must be >= 0")
			}
			return nil
		},
		compare: []cmp.Option{unorderedStrings("RequiredReviewerIDs")},
	})
}
