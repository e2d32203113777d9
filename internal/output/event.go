package output

import (
	"encoding/json"
	"io"

	"branchwarden/internal/decision"
)

// Lifecycle event types, in the order a run emits them.
const (
	EventRunStarted      = "run.started"
	EventProjectStarted  = "project.started"
	EventRepoStarted     = "repo.started"
	EventPolicyResult    = "policy.result"
	EventRepoFinished    = "repo.finished"
	EventProjectFinished = "project.finished"
	EventRunFinished     = "run.finished"
)

// Event is a lifecycle record for NDJSON streaming output. JSON mode stays
// an aggregate of decision.Result values.
type Event struct {
	Type    string `json:"type"`
	Project string `json:"project,omitempty"`
	Repo    string `json:"repo,omitempty"`
	*decision.Result
	Mode         string `json:"mode,omitempty"`
	Organization string `json:"organization,omitempty"`
	Projects     int    `json:"projects,omitempty"`
	Repos        int    `json:"repos,omitempty"`
	Policies     int    `json:"policies,omitempty"`
	ExitCode     int    `json:"exit_code,omitempty"`
}

func eventFromResult(r decision.Result) Event {
	return Event{Type: EventPolicyResult, Project: r.Project, Repo: r.Repo, Result: &r}
}

type flusher interface {
	Flush() error
}

func flushIfPossible(w io.Writer) error {
	f, ok := w.(flusher)
	if !ok {
		return nil
	}
	return f.Flush()
}

// encodeStream writes v as one NDJSON line. Values other than events and
// results are ignored.
func encodeStream(w io.Writer, v any) error {
	var line any
	switch t := v.(type) {
	case Event:
		line = t
	case decision.Result:
		line = eventFromResult(t)
	default:
		return nil
	}
	if err := json.NewEncoder(w).Encode(line); err != nil {
		return err
	}
	return flushIfPossible(w)
}

// encodeAggregate writes results as one indented JSON array.
func encodeAggregate(w io.Writer, results []decision.Result) error {
	if results == nil {
		results = []decision.Result{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return err
	}
	return flushIfPossible(w)
}
