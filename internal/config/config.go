package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Run modes.
const (
	ModePlan  = "plan"
	ModeApply = "apply"
)

type Config struct {
	// MAINTAINER NOTE: If you add/change/remove config fields, keep these in sync:
	// - CLI flags in internal/cli/reconcile.go
	// - the settings keys in loader.go
	Target  Target
	Output  Output
	Runtime Runtime
	Logging Logging
}

type Target struct {
	// Organization is the Azure DevOps organization, as a name or as a URL
	// such as https://dev.azure.com/contoso (see --organization).
	Organization string

	// Definition is the path of the policy-definition document (see --definition).
	Definition string

	// Projects narrows the run to projects matching any entry, by name, id or
	// path.Match pattern (see --project). It applies on top of the
	// definition's allowedProjects.
	Projects []string

	// Token is an explicit personal access token (see --token). When empty the
	// credential is resolved from the environment or the Azure CLI.
	Token string
}

type Output struct {
	// ConsoleFormat controls the human-facing console sink format (see --console-format).
	// Allowed values: text, json, ndjson.
	ConsoleFormat string

	// ConsoleFilterStatus filters console output by result status (see --console-filter-status).
	ConsoleFilterStatus []string

	// Report writes a Markdown report to this path (see --report).
	Report string

	// Out writes structured output to this path (see --out).
	Out string

	// OutFormat selects the format for --out (see --out-format).
	// Allowed values: json, ndjson. If empty, it is inferred from the --out file extension.
	OutFormat string

	// Emit writes an additional structured stream to stdout (see --emit).
	Emit []string

	// NoConsole suppresses the console sink and progress lines (see --no-console).
	NoConsole bool
}

type Runtime struct {
	// Mode is plan or apply; it is set by the subcommand, never by flags.
	Mode string

	// Concurrency bounds how many project snapshots are fetched at once (see --concurrency).
	Concurrency int

	// Timeout is the deadline of the whole run (see --timeout).
	Timeout time.Duration

	// Retries is how many times a request is retried on 429 and 5xx (see --retries).
	Retries int

	// FailFast stops the run at the first FAILED result (see --fail-fast).
	FailFast bool

	// Verbose prints every REST request and keeps full remote error text.
	Verbose bool
}

type Logging struct {
	// Level is one of debug, info, warn, error (see --log-level).
	Level string
	// Format is console or structured (see --log-format).
	Format string
}

var validStatuses = map[string]bool{
	"UNCHANGED": true,
	"APPLIED":   true,
	"PLANNED":   true,
	"REPORTED":  true,
	"FAILED":    true,
	"SKIPPED":   true,
}

func New() *Config {
	return &Config{
		Output: Output{
			ConsoleFormat: "text",
		},
		Runtime: Runtime{
			Mode:        ModePlan,
			Concurrency: 4,
			Timeout:     30 * time.Minute,
			Retries:     3,
		},
		Logging: Logging{
			Level:  "info",
			Format: "console",
		},
	}
}

func (c *Config) Validate() error {
	c.Target.Organization = strings.TrimSpace(c.Target.Organization)
	c.Target.Definition = strings.TrimSpace(c.Target.Definition)
	c.Target.Projects = splitCommaList(c.Target.Projects)
	c.Output.ConsoleFilterStatus = splitCommaList(c.Output.ConsoleFilterStatus)
	c.Output.Emit = splitCommaList(c.Output.Emit)

	// Target validation
	if c.Target.Organization == "" {
		return errors.New("--organization is required")
	}
	if c.Target.Definition == "" {
		return errors.New("--definition is required")
	}

	c.Runtime.Mode = normalizeEnumValue(c.Runtime.Mode)
	if c.Runtime.Mode != ModePlan && c.Runtime.Mode != ModeApply {
		return fmt.Errorf("unsupported mode: %q (must be one of: plan, apply)", c.Runtime.Mode)
	}

	// Output validation
	c.Output.ConsoleFormat = normalizeEnumValue(c.Output.ConsoleFormat)
	if c.Output.ConsoleFormat == "" {
		return errors.New("--console-format must be one of: text, json, ndjson")
	}
	if c.Output.ConsoleFormat != "text" && c.Output.ConsoleFormat != "json" && c.Output.ConsoleFormat != "ndjson" {
		return fmt.Errorf("unsupported --console-format: %s (must be one of: text, json, ndjson)", c.Output.ConsoleFormat)
	}

	for i, st := range c.Output.ConsoleFilterStatus {
		st = strings.ToUpper(st)
		if !validStatuses[st] {
			return fmt.Errorf("unsupported --console-filter-status: %s (must be one of: UNCHANGED, APPLIED, PLANNED, REPORTED, FAILED, SKIPPED)", st)
		}
		c.Output.ConsoleFilterStatus[i] = st
	}

	for i, emit := range c.Output.Emit {
		v := normalizeEnumValue(emit)
		if v != "json" && v != "ndjson" {
			return fmt.Errorf("unsupported --emit value: %s (must be one of: json, ndjson)", v)
		}
		c.Output.Emit[i] = v
	}

	if c.Output.Out != "" {
		c.Output.OutFormat = normalizeEnumValue(c.Output.OutFormat)
		if c.Output.OutFormat == "" {
			ext := strings.ToLower(filepath.Ext(c.Output.Out))
			switch ext {
			case ".json":
				c.Output.OutFormat = "json"
			case ".ndjson", ".jsonl":
				c.Output.OutFormat = "ndjson"
			case "":
				return errors.New("cannot infer output format from file extension (missing extension); use --out-format")
			default:
				return fmt.Errorf("cannot infer output format from file extension %q; use --out-format", ext)
			}
		} else if c.Output.OutFormat != "json" && c.Output.OutFormat != "ndjson" {
			return fmt.Errorf("unsupported output format: %s", c.Output.OutFormat)
		}
	}

	// Runtime validation
	if c.Runtime.Concurrency <= 0 {
		return errors.New("--concurrency must be >= 1")
	}
	if c.Runtime.Timeout <= 0 {
		return errors.New("--timeout must be > 0")
	}
	if c.Runtime.Retries < 0 {
		return errors.New("--retries must be >= 0")
	}

	// Logging validation
	c.Logging.Level = normalizeEnumValue(c.Logging.Level)
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported --log-level: %s (must be one of: debug, info, warn, error)", c.Logging.Level)
	}
	c.Logging.Format = normalizeEnumValue(c.Logging.Format)
	if c.Logging.Format != "console" && c.Logging.Format != "structured" {
		return fmt.Errorf("unsupported --log-format: %s (must be one of: console, structured)", c.Logging.Format)
	}

	return nil
}

func normalizeEnumValue(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func splitCommaList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			p := strings.TrimSpace(part)
			if p == "" {
				continue
			}
			out = append(out, p)
		}
	}
	return out
}
