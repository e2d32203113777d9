package kinds

import (
	"errors"

	"branchwarden/internal/policy"

	"github.com/google/uuid"
)

type MinimumReviewersSettings struct {
	MinimumApproverCount        int  `json:"minimumApproverCount"`
	CreatorVoteCounts           bool `json:"creatorVoteCounts"`
	AllowDownvotes              bool `json:"allowDownvotes"`
	ResetOnSourcePush           bool `json:"resetOnSourcePush"`
	ResetRejectionsOnSourcePush bool `json:"resetRejectionsOnSourcePush"`
	RequireVoteOnLastIteration  bool `json:"requireVoteOnLastIteration"`
	RequireVoteOnEachIteration  bool `json:"requireVoteOnEachIteration"`
	BlockLastPusherVote         bool `json:"blockLastPusherVote"`
}

func init() {
	policy.RegisterKind(&settingsKind[MinimumReviewersSettings]{
		name:        "MinimumReviewers",
		displayName: "Minimum number of reviewers",
		description: "Requires a minimum number of approving reviewers on pull requests targeting the branch.",
		typeID:      uuid.MustParse("fa4e907d-c16b-4a4c-9dfa-4906e5d171dd"),
		fields: []policy.Field{
			{Name: "minimumApproverCount", Description: "Number of approvals required. Must be >= 1.", Default: "1"},
			{Name: "creatorVoteCounts", Description: "The pull request author's vote counts toward approval.", Default: "false"},
			{Name: "allowDownvotes", Description: "Allow completion even if some reviewers vote wait or reject.", Default: "false"},
			{Name: "resetOnSourcePush", Description: "Reset all approval votes when new changes are pushed.", Default: "false"},
			{Name: "resetRejectionsOnSourcePush", Description: "Reset rejection votes when new changes are pushed.", Default: "false"},
			{Name: "requireVoteOnLastIteration", Description: "Require approval of the most recent iteration.", Default: "false"},
			{Name: "requireVoteOnEachIteration", Description: "Require a vote on each iteration.", Default: "false"},
			{Name: "blockLastPusherVote", Description: "The most recent pusher's vote does not count.", Default: "false"},
		},
		defaults: func(s *MinimumReviewersSettings) {
			s.MinimumApproverCount = 1
		},
		validate: func(s MinimumReviewersSettings) error {
			if s.MinimumApproverCount < 1 {
				return errors.New("minimumApproverCount must be >= 1")
			}
			return nil
		},
	})
}
