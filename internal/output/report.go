package output

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"branchwarden/internal/decision"

	"github.com/jedib0t/go-pretty/v6/table"
)

// ReportSink writes a Markdown summary of the run on Close.
type ReportSink struct {
	path string
	file *os.File
	mu   sync.Mutex

	results      []decision.Result
	projects     map[string]struct{}
	mode         string
	organization string
	exitCode     int
	haveExitCode bool
}

func NewReportSink(path string) (*ReportSink, error) {
	if path == "" {
		return nil, fmt.Errorf("report path required")
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create report file: %w", err)
	}
	return &ReportSink{path: path, file: f, projects: make(map[string]struct{})}, nil
}

func (s *ReportSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch t := v.(type) {
	case decision.Result:
		s.results = append(s.results, t)
		if t.Project != "" {
			s.projects[t.Project] = struct{}{}
		}
	case Event:
		switch t.Type {
		case EventRunStarted:
			s.mode = t.Mode
			s.organization = t.Organization
		case EventProjectStarted:
			if t.Project != "" {
				s.projects[t.Project] = struct{}{}
			}
		case EventRunFinished:
			s.exitCode = t.ExitCode
			s.haveExitCode = true
		}
	}
	return nil
}

func (s *ReportSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.file.WriteString(s.render())
	if closeErr := s.file.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

func (s *ReportSink) render() string {
	var b strings.Builder
	b.WriteString("# Branch Policy Reconciliation Report\n\n")

	if s.organization != "" {
		fmt.Fprintf(&b, "- Organization: `%s`\n", s.organization)
	}
	if s.mode != "" {
		fmt.Fprintf(&b, "- Mode: `%s`\n", s.mode)
	}
	fmt.Fprintf(&b, "- Projects: %d\n", len(s.projects))
	if s.haveExitCode {
		fmt.Fprintf(&b, "- Exit code: %d (%s)\n", s.exitCode, exitCodeMeaning(s.exitCode))
	}
	b.WriteString("\n## Summary\n\n")
	b.WriteString(summaryTable(s.results))
	b.WriteString("\n")

	failures := filterStatus(s.results, decision.StatusFailed)
	if len(failures) > 0 {
		b.WriteString("\n## Failures\n\n")
		for _, r := range failures {
			fmt.Fprintf(&b, "- %s: %s\n", location(r), r.Message)
		}
	}

	byProject := make(map[string][]decision.Result)
	for _, r := range s.results {
		byProject[r.Project] = append(byProject[r.Project], r)
	}
	projects := make([]string, 0, len(s.projects))
	for p := range s.projects {
		projects = append(projects, p)
	}
	sort.Strings(projects)

	for _, p := range projects {
		fmt.Fprintf(&b, "\n## Project %s\n\n", p)
		results := byProject[p]
		if len(results) == 0 {
			b.WriteString("No policies apply.\n")
			continue
		}
		b.WriteString(projectTable(results))
		b.WriteString("\n")
	}
	return b.String()
}

func summaryTable(results []decision.Result) string {
	counts := make(map[decision.Status]int)
	for _, r := range results {
		counts[r.Status]++
	}

	t := table.NewWriter()
	t.AppendHeader(table.Row{"Status", "Count"})
	for _, st := range decision.Statuses() {
		t.AppendRow(table.Row{st, counts[st]})
	}
	t.AppendFooter(table.Row{"Total", len(results)})
	return t.RenderMarkdown()
}

func projectTable(results []decision.Result) string {
	sorted := append([]decision.Result(nil), results...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Repo != sorted[j].Repo {
			return sorted[i].Repo < sorted[j].Repo
		}
		return sorted[i].Branch < sorted[j].Branch
	})

	t := table.NewWriter()
	t.AppendHeader(table.Row{"Repository", "Branch", "Policy Type", "Action", "Status", "Server ID", "Message"})
	for _, r := range sorted {
		id := ""
		if r.ServerPolicyID > 0 {
			id = strconv.Itoa(r.ServerPolicyID)
		}
		branch := r.Branch
		if branch == "" && r.PolicyType != "" {
			branch = "*"
		}
		t.AppendRow(table.Row{r.Repo, branch, r.PolicyType, r.Action, r.Status, id, singleLine(r.Message)})
	}
	return t.RenderMarkdown()
}

func filterStatus(results []decision.Result, status decision.Status) []decision.Result {
	var out []decision.Result
	for _, r := range results {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out
}

func location(r decision.Result) string {
	parts := []string{r.Project}
	if r.Repo != "" {
		parts = append(parts, r.Repo)
	}
	loc := strings.Join(parts, "/")
	if r.PolicyType != "" {
		branch := r.Branch
		if branch == "" {
			branch = "*"
		}
		loc += fmt.Sprintf("@%s %s", branch, r.PolicyType)
	}
	return loc
}

// singleLine flattens a message to one table row. go-pretty escapes pipes.
func singleLine(s string) string {
	return strings.ReplaceAll(s, "\n", " ")
}

func exitCodeMeaning(code int) string {
	switch code {
	case 0:
		return "clean"
	case 1:
		return "drift"
	case 2:
		return "partial failure"
	case 3:
		return "fatal"
	default:
		return "unknown"
	}
}
