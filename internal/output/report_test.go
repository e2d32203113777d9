package output

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"branchwarden/internal/decision"
)

func TestReportSink_Render(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.md")
	s, err := NewReportSink(path)
	if err != nil {
		t.Fatalf("NewReportSink failed: %v", err)
	}

	writes := []any{
		Event{Type: EventRunStarted, Mode: "plan", Organization: "contoso"},
		Event{Type: EventProjectStarted, Project: "Empty"},
		decision.Result{Project: "Platform", Repo: "web", Branch: "main", PolicyType: "Build", Action: decision.ActionCreate, Status: decision.StatusPlanned},
		decision.Result{Project: "Platform", Repo: "api", Branch: "main", PolicyType: "MinimumReviewers", Action: decision.ActionNoOp, Status: decision.StatusUnchanged, ServerPolicyID: 41},
		decision.Result{Project: "Platform", Repo: "api", PolicyType: "CommentRequirements", Action: decision.ActionUpdate, Status: decision.StatusFailed, Message: "TF401027: need | permission"},
		Event{Type: EventRunFinished, ExitCode: 2},
	}
	for _, v := range writes {
		if err := s.Write(v); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	out := string(data)

	for _, want := range []string{
		"# Branch Policy Reconciliation Report",
		"Organization: `contoso`",
		"Mode: `plan`",
		"Projects: 2",
		"Exit code: 2 (partial failure)",
		"## Summary",
		"## Failures",
		"Platform/api@* CommentRequirements: TF401027: need | permission",
		"## Project Empty",
		"No policies apply.",
		"## Project Platform",
		"MinimumReviewers",
		"41",
		`need \| permission`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("report missing %q:\n%s", want, out)
		}
	}

	if strings.Contains(out, `\\|`) {
		t.Fatalf("pipe in message escaped twice:\n%s", out)
	}

	// Projects are rendered in name order and repositories sorted within.
	if strings.Index(out, "## Project Empty") > strings.Index(out, "## Project Platform") {
		t.Fatalf("projects not sorted:\n%s", out)
	}
	platform := out[strings.Index(out, "## Project Platform"):]
	if strings.Index(platform, "MinimumReviewers") > strings.Index(platform, "| web") {
		t.Fatalf("repositories not sorted:\n%s", platform)
	}
}

func TestReportSink_NoFailuresSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.md")
	s, err := NewReportSink(path)
	if err != nil {
		t.Fatalf("NewReportSink failed: %v", err)
	}
	_ = s.Write(decision.Result{Project: "p", Repo: "r", PolicyType: "Build", Status: decision.StatusApplied, ServerPolicyID: 3})
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, _ := os.ReadFile(path)
	out := string(data)
	if strings.Contains(out, "## Failures") {
		t.Fatalf("unexpected failures section:\n%s", out)
	}
	if strings.Contains(out, "Exit code") {
		t.Fatalf("exit code rendered without run.finished:\n%s", out)
	}
}

func TestNewReportSink_RequiresPath(t *testing.T) {
	if _, err := NewReportSink(""); err == nil {
		t.Fatalf("expected error")
	}
}

func TestExitCodeMeaning(t *testing.T) {
	want := map[int]string{0: "clean", 1: "drift", 2: "partial failure", 3: "fatal", 9: "unknown"}
	for code, meaning := range want {
		if got := exitCodeMeaning(code); got != meaning {
			t.Fatalf("exitCodeMeaning(%d) = %q, want %q", code, got, meaning)
		}
	}
}
