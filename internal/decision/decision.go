// Package decision holds what reconciliation decides for each policy and
// what happened when the decision was carried out.
package decision

import (
	"branchwarden/internal/policy"

	"github.com/google/uuid"
)

type Action string

const (
	ActionCreate      Action = "create"
	ActionUpdate      Action = "update"
	ActionNoOp        Action = "noop"
	ActionDelete      Action = "delete"
	ActionWouldDelete Action = "would-delete"
)

// Mutates reports whether carrying out the action changes the server.
func (a Action) Mutates() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	default:
		return false
	}
}

// ActionFor maps a matcher verdict to an action.
func ActionFor(v policy.Verdict) Action {
	switch v {
	case policy.VerdictNoOp:
		return ActionNoOp
	case policy.VerdictUpdate:
		return ActionUpdate
	default:
		return ActionCreate
	}
}

// Decision is one reconciliation outcome for a (repository, branch, type).
type Decision struct {
	Action     Action
	Project    policy.Project
	Repository policy.Repository
	Branch     string
	// PolicyType is the logical kind name. Unclaimed server policies of a
	// type without a registered kind carry the server display name.
	PolicyType string
	TypeID     uuid.UUID
	// Desired is nil for delete and would-delete.
	Desired *policy.Policy
	// Server is nil for create.
	Server *policy.ServerPolicy
}

// ServerPolicyID returns the id of the matched server policy, or 0.
func (d Decision) ServerPolicyID() int {
	if d.Server == nil {
		return 0
	}
	return d.Server.ID
}
