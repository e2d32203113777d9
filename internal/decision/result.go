package decision

type Status string

const (
	StatusUnchanged Status = "UNCHANGED"
	StatusApplied   Status = "APPLIED"
	StatusPlanned   Status = "PLANNED"
	StatusReported  Status = "REPORTED"
	StatusFailed    Status = "FAILED"
	StatusSkipped   Status = "SKIPPED"
)

// Statuses lists every status in display order.
func Statuses() []Status {
	return []Status{StatusUnchanged, StatusApplied, StatusPlanned, StatusReported, StatusFailed, StatusSkipped}
}

type Result struct {
	Project        string `json:"project"`
	Repo           string `json:"repo,omitempty"`
	Branch         string `json:"branch,omitempty"`
	PolicyType     string `json:"policy_type,omitempty"`
	Action         Action `json:"action,omitempty"`
	Status         Status `json:"status"`
	ServerPolicyID int    `json:"server_policy_id,omitempty"`
	Message        string `json:"message,omitempty"`
}

func NewResult(d Decision, status Status, message string) Result {
	return Result{
		Project:        d.Project.Name,
		Repo:           d.Repository.Name,
		Branch:         d.Branch,
		PolicyType:     d.PolicyType,
		Action:         d.Action,
		Status:         status,
		ServerPolicyID: d.ServerPolicyID(),
		Message:        message,
	}
}

// PlannedResult reports d without carrying it out.
func PlannedResult(d Decision) Result {
	switch d.Action {
	case ActionNoOp:
		return NewResult(d, StatusUnchanged, "")
	case ActionWouldDelete:
		return NewResult(d, StatusReported, "deletion disabled")
	default:
		return NewResult(d, StatusPlanned, "")
	}
}

func AppliedResult(d Decision, serverPolicyID int) Result {
	res := NewResult(d, StatusApplied, "")
	if serverPolicyID > 0 {
		res.ServerPolicyID = serverPolicyID
	}
	return res
}

func FailedResult(d Decision, err error) Result {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return NewResult(d, StatusFailed, msg)
}

// ProjectFailedResult is reported when a project could not be reconciled at all.
func ProjectFailedResult(project, message string) Result {
	return Result{Project: project, Status: StatusFailed, Message: message}
}

func SkippedResult(d Decision, message string) Result {
	return NewResult(d, StatusSkipped, message)
}
