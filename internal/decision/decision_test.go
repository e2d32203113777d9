package decision

import (
	"errors"
	"testing"

	"branchwarden/internal/policy"

	"github.com/stretchr/testify/assert"
)

func sampleDecision(action Action) Decision {
	return Decision{
		Action:     action,
		Project:    policy.Project{Name: "Platform"},
		Repository: policy.Repository{Name: "api"},
		Branch:     "main",
		PolicyType: "MinimumReviewers",
		Server:     &policy.ServerPolicy{ID: 41},
	}
}

func TestActionFor(t *testing.T) {
	assert.Equal(t, ActionCreate, ActionFor(policy.VerdictCreate))
	assert.Equal(t, ActionUpdate, ActionFor(policy.VerdictUpdate))
	assert.Equal(t, ActionNoOp, ActionFor(policy.VerdictNoOp))
}

func TestAction_Mutates(t *testing.T) {
	mutating := map[Action]bool{
		ActionCreate:      true,
		ActionUpdate:      true,
		ActionDelete:      true,
		ActionNoOp:        false,
		ActionWouldDelete: false,
	}
	for a, want := range mutating {
		assert.Equal(t, want, a.Mutates(), a)
	}
}

func TestPlannedResult(t *testing.T) {
	tests := []struct {
		action  Action
		status  Status
		message string
	}{
		{ActionCreate, StatusPlanned, ""},
		{ActionUpdate, StatusPlanned, ""},
		{ActionDelete, StatusPlanned, ""},
		{ActionNoOp, StatusUnchanged, ""},
		{ActionWouldDelete, StatusReported, "deletion disabled"},
	}
	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			r := PlannedResult(sampleDecision(tt.action))
			assert.Equal(t, tt.status, r.Status)
			assert.Equal(t, tt.message, r.Message)
			assert.Equal(t, tt.action, r.Action)
			assert.Equal(t, "Platform", r.Project)
			assert.Equal(t, "api", r.Repo)
			assert.Equal(t, 41, r.ServerPolicyID)
		})
	}
}

func TestAppliedResult_TakesNewID(t *testing.T) {
	d := sampleDecision(ActionCreate)
	d.Server = nil

	r := AppliedResult(d, 77)
	assert.Equal(t, StatusApplied, r.Status)
	assert.Equal(t, 77, r.ServerPolicyID)

	r = AppliedResult(sampleDecision(ActionUpdate), 0)
	assert.Equal(t, 41, r.ServerPolicyID)
}

func TestFailedAndProjectResults(t *testing.T) {
	r := FailedResult(sampleDecision(ActionUpdate), errors.New("TF401027"))
	assert.Equal(t, StatusFailed, r.Status)
	assert.Equal(t, "TF401027", r.Message)

	assert.Equal(t, "unknown error", FailedResult(sampleDecision(ActionUpdate), nil).Message)

	p := ProjectFailedResult("Web", "snapshot failed")
	assert.Equal(t, Result{Project: "Web", Status: StatusFailed, Message: "snapshot failed"}, p)
}

func TestStatuses(t *testing.T) {
	assert.Len(t, Statuses(), 6)
}
