package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"branchwarden/internal/decision"

	"github.com/fatih/color"
)

// ConsoleSink prints results to a terminal. Formats: text, json, ndjson.
type ConsoleSink struct {
	writer          io.Writer
	format          string
	mu              sync.Mutex
	results         []decision.Result
	allowedStatuses map[decision.Status]bool
	palette         map[decision.Status]*color.Color
}

func NewConsoleSink(w io.Writer, format string, filterStatuses []string) *ConsoleSink {
	if w == nil {
		w = os.Stdout
	}
	if format == "" {
		format = "text"
	}

	s := &ConsoleSink{
		writer:  w,
		format:  format,
		palette: statusPalette(w == os.Stdout),
	}
	if len(filterStatuses) > 0 {
		s.allowedStatuses = make(map[decision.Status]bool)
		for _, st := range filterStatuses {
			s.allowedStatuses[decision.Status(strings.ToUpper(strings.TrimSpace(st)))] = true
		}
	}
	return s
}

// statusPalette colors statuses. Color is only kept for the real stdout;
// fatih/color further disables it when stdout is not a terminal.
func statusPalette(enabled bool) map[decision.Status]*color.Color {
	p := map[decision.Status]*color.Color{
		decision.StatusUnchanged: color.New(color.FgHiBlack),
		decision.StatusApplied:   color.New(color.FgGreen),
		decision.StatusPlanned:   color.New(color.FgYellow),
		decision.StatusReported:  color.New(color.FgCyan),
		decision.StatusFailed:    color.New(color.FgRed, color.Bold),
		decision.StatusSkipped:   color.New(color.FgHiBlack),
	}
	if !enabled {
		for _, c := range p {
			c.DisableColor()
		}
	}
	return p
}

func (s *ConsoleSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := v.(decision.Result); ok && len(s.allowedStatuses) > 0 && !s.allowedStatuses[r.Status] {
		return nil
	}

	switch s.format {
	case "json":
		if r, ok := v.(decision.Result); ok {
			s.results = append(s.results, r)
		}
		return nil
	case "ndjson":
		return encodeStream(s.writer, v)
	case "text":
		r, ok := v.(decision.Result)
		if !ok {
			return nil
		}
		if _, err := fmt.Fprintln(s.writer, s.textLine(r)); err != nil {
			return err
		}
		return flushIfPossible(s.writer)
	default:
		return fmt.Errorf("unsupported console format: %s", s.format)
	}
}

// textLine renders "[STATUS] project/repo@branch Type (action) #id - message".
func (s *ConsoleSink) textLine(r decision.Result) string {
	var b strings.Builder

	status := "[" + string(r.Status) + "]"
	if c := s.palette[r.Status]; c != nil {
		status = c.Sprint(status)
	}
	b.WriteString(status)
	b.WriteString(" ")
	b.WriteString(r.Project)
	if r.Repo != "" {
		b.WriteString("/" + r.Repo)
	}
	if r.PolicyType != "" {
		branch := r.Branch
		if branch == "" {
			branch = "*"
		}
		fmt.Fprintf(&b, "@%s %s", branch, r.PolicyType)
	}
	if r.Action != "" {
		fmt.Fprintf(&b, " (%s)", r.Action)
	}
	if r.ServerPolicyID > 0 {
		fmt.Fprintf(&b, " #%d", r.ServerPolicyID)
	}
	if r.Message != "" {
		b.WriteString(" - " + r.Message)
	}
	return b.String()
}

func (s *ConsoleSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.format {
	case "json":
		return encodeAggregate(s.writer, s.results)
	case "text", "ndjson":
		return nil
	default:
		return fmt.Errorf("unsupported console format: %s", s.format)
	}
}
