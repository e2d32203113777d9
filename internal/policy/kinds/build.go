package kinds

import (
	"errors"
	"strings"

	"branchwarden/internal/policy"

	"github.com/google/uuid"
)

type BuildSettings struct {
	BuildDefinitionID       int      `json:"buildDefinitionId"`
	DisplayName             string   `json:"displayName,omitempty"`
	QueueOnSourceUpdateOnly bool     `json:"queueOnSourceUpdateOnly"`
	ManualQueueOnly         bool     `json:"manualQueueOnly"`
	ValidDuration           float64  `json:"validDuration"`
	FilenamePatterns        []string `json:"filenamePatterns,omitempty"`
}

func init() {
	policy.RegisterKind(&settingsKind[BuildSettings]{
		name:        "Build",
		displayName: "Build",
		description: "Requires a successful build of the given pipeline definition before pull requests can complete.",
		typeID:      uuid.MustParse("0609b952-1397-4640-95ec-e00a01b2c241"),
		fields: []policy.Field{
			{Name: "buildDefinitionId", Description: "Id of the build definition to queue. Required."},
			{Name: "displayName", Description: "Name shown for the check on pull requests."},
			{Name: "queueOnSourceUpdateOnly", Description: "Only queue a new build when the source branch changes.", Default: "true"},
			{Name: "manualQueueOnly", Description: "Do not queue automatically; reviewers queue the build.", Default: "false"},
			{Name: "validDuration", Description: "Minutes a successful build stays valid (0 = never expires).", Default: "0"},
			{Name: "filenamePatterns", Description: "Ordered path filters; prefix with ! to exclude."},
		},
		defaults: func(s *BuildSettings) {
			s.QueueOnSourceUpdateOnly = true
		},
		normalize: func(s *BuildSettings) {
			s.DisplayName = strings.TrimSpace(s.DisplayName)
		},
		validate: func(s BuildSettings) error {
			if s.BuildDefinitionID <= 0 {
				return errors.New("buildDefinitionId must be > 0")
			}
			if s.ValidDuration < 0 {
				return errors.New("validDuration must be >= 0")
			}
			return nil
		},
	})
}
