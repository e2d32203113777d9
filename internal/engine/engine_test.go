package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"branchwarden/internal/azdo"
	"branchwarden/internal/config"
	"branchwarden/internal/decision"
	"branchwarden/internal/policy"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseDefinition = `
policies:
  - type: MinimumReviewers
    branch: main
    settings:
      minimumApproverCount: 2
  - type: WorkItemLinking
    branch: main
`

var (
	platformProject = azdo.Project{ID: uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000001"), Name: "Platform"}
	toolsProject    = azdo.Project{ID: uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000002"), Name: "Tools"}

	apiRepo = azdo.Repository{ID: uuid.MustParse("bbbbbbbb-0000-0000-0000-000000000001"), Name: "api", DefaultBranch: "refs/heads/main"}
	webRepo = azdo.Repository{ID: uuid.MustParse("bbbbbbbb-0000-0000-0000-000000000002"), Name: "web", DefaultBranch: "refs/heads/main"}
	cliRepo = azdo.Repository{ID: uuid.MustParse("bbbbbbbb-0000-0000-0000-000000000003"), Name: "cli", DefaultBranch: "refs/heads/main"}
)

func writeDefinition(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policies.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func testConfig(t *testing.T, definitionPath string, mode string) *config.Config {
	t.Helper()
	cfg := config.New()
	cfg.Target.Organization = "contoso"
	cfg.Target.Definition = definitionPath
	cfg.Runtime.Mode = mode
	cfg.Runtime.Concurrency = 2
	cfg.Runtime.Timeout = 10 * time.Second
	cfg.Output.ConsoleFormat = "json"
	require.NoError(t, cfg.Validate())
	return cfg
}

// runEngine runs once and returns the exit code and the console results.
func runEngine(t *testing.T, remote *memoryRemote, cfg *config.Config) (int, []decision.Result) {
	t.Helper()
	var stdout bytes.Buffer
	e := NewEngine(remote, nil)
	e.Stdout = &stdout
	e.Stderr = io.Discard

	code := e.Run(context.Background(), cfg)

	var results []decision.Result
	if stdout.Len() > 0 {
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &results), "console output: %s", stdout.String())
	}
	return code, results
}

func statusCounts(results []decision.Result) map[decision.Status]int {
	out := make(map[decision.Status]int)
	for _, r := range results {
		out[r.Status]++
	}
	return out
}

func TestEngine_PlanApplyConverges(t *testing.T) {
	remote := newMemoryRemote()
	remote.addProject(platformProject, webRepo, apiRepo)
	defPath := writeDefinition(t, baseDefinition)

	code, results := runEngine(t, remote, testConfig(t, defPath, config.ModePlan))
	assert.Equal(t, 1, code, "plan with pending creates reports drift")
	assert.Equal(t, map[decision.Status]int{decision.StatusPlanned: 4}, statusCounts(results))
	assert.Zero(t, remote.creates, "plan never writes")

	// Repositories are processed in name order.
	require.Len(t, results, 4)
	assert.Equal(t, "api", results[0].Repo)
	assert.Equal(t, "web", results[3].Repo)

	code, results = runEngine(t, remote, testConfig(t, defPath, config.ModeApply))
	assert.Equal(t, 0, code)
	assert.Equal(t, map[decision.Status]int{decision.StatusApplied: 4}, statusCounts(results))
	assert.Equal(t, 4, remote.creates)
	for _, r := range results {
		assert.Equal(t, decision.ActionCreate, r.Action)
		assert.Positive(t, r.ServerPolicyID)
	}

	code, results = runEngine(t, remote, testConfig(t, defPath, config.ModeApply))
	assert.Equal(t, 0, code)
	assert.Equal(t, map[decision.Status]int{decision.StatusUnchanged: 4}, statusCounts(results))
	assert.Equal(t, 4, remote.creates, "second apply is a no-op")
	assert.Zero(t, remote.updates)

	code, results = runEngine(t, remote, testConfig(t, defPath, config.ModePlan))
	assert.Equal(t, 0, code)
	assert.Equal(t, map[decision.Status]int{decision.StatusUnchanged: 4}, statusCounts(results))
}

func TestEngine_ApplyUpdatesDriftedSettings(t *testing.T) {
	remote := newMemoryRemote()
	remote.addProject(platformProject, apiRepo)
	id := remote.addConfig("Platform", minReviewersTypeID, apiRepo.ID, "main", map[string]any{"minimumApproverCount": 1})

	def := `
policies:
  - type: MinimumReviewers
    branch: main
    settings:
      minimumApproverCount: 2
`
	code, results := runEngine(t, remote, testConfig(t, writeDefinition(t, def), config.ModeApply))
	assert.Equal(t, 0, code)
	require.Len(t, results, 1)
	assert.Equal(t, decision.ActionUpdate, results[0].Action)
	assert.Equal(t, decision.StatusApplied, results[0].Status)
	assert.Equal(t, id, results[0].ServerPolicyID)

	assert.Equal(t, 1, remote.updates)
	assert.Equal(t, float64(2), remote.settingsOf("Platform", id)["minimumApproverCount"])
}

func TestEngine_DeletionIsGated(t *testing.T) {
	newRemote := func() (*memoryRemote, int) {
		remote := newMemoryRemote()
		remote.addProject(platformProject, apiRepo)
		id := remote.addConfig("Platform", buildTypeID, apiRepo.ID, "main", map[string]any{"buildDefinitionId": 7})
		return remote, id
	}
	empty := "policies: []\n"

	t.Run("reported without allowDeletion", func(t *testing.T) {
		remote, id := newRemote()
		code, results := runEngine(t, remote, testConfig(t, writeDefinition(t, empty), config.ModeApply))
		assert.Equal(t, 0, code)
		require.Len(t, results, 1)
		assert.Equal(t, decision.ActionWouldDelete, results[0].Action)
		assert.Equal(t, decision.StatusReported, results[0].Status)
		assert.Equal(t, "Build", results[0].PolicyType)
		assert.Equal(t, []int{id}, remote.ids("Platform"))
	})

	t.Run("deleted with allowDeletion", func(t *testing.T) {
		remote, id := newRemote()
		code, results := runEngine(t, remote, testConfig(t, writeDefinition(t, "allowDeletion: true\n"+empty), config.ModeApply))
		assert.Equal(t, 0, code)
		require.Len(t, results, 1)
		assert.Equal(t, decision.ActionDelete, results[0].Action)
		assert.Equal(t, decision.StatusApplied, results[0].Status)
		assert.Equal(t, id, results[0].ServerPolicyID)
		assert.Empty(t, remote.ids("Platform"))
	})

	t.Run("planned delete is drift", func(t *testing.T) {
		remote, _ := newRemote()
		code, results := runEngine(t, remote, testConfig(t, writeDefinition(t, "allowDeletion: true\n"+empty), config.ModePlan))
		assert.Equal(t, 1, code)
		require.Len(t, results, 1)
		assert.Equal(t, decision.StatusPlanned, results[0].Status)
		assert.Zero(t, remote.deletes)
	})
}

func TestEngine_ApplyFailureContinues(t *testing.T) {
	remote := newMemoryRemote()
	remote.addProject(platformProject, apiRepo, webRepo)
	remote.writeErr = &azdo.ErrorResponse{StatusCode: 403, Method: "POST", Message: "TF401027: You need the Git 'EditPolicies' permission"}

	code, results := runEngine(t, remote, testConfig(t, writeDefinition(t, baseDefinition), config.ModeApply))
	assert.Equal(t, 2, code)
	assert.Equal(t, map[decision.Status]int{decision.StatusFailed: 4}, statusCounts(results))
	assert.Equal(t, "Azure DevOps request failed (403 Forbidden): TF401027: You need the Git 'EditPolicies' permission", results[0].Message)
}

func TestEngine_FailFastSkipsRemainingDecisions(t *testing.T) {
	remote := newMemoryRemote()
	remote.addProject(platformProject, apiRepo, webRepo)
	remote.addProject(toolsProject, cliRepo)
	remote.writeErr = errors.New("boom")

	cfg := testConfig(t, writeDefinition(t, baseDefinition), config.ModeApply)
	cfg.Runtime.FailFast = true
	cfg.Runtime.Concurrency = 1

	code, results := runEngine(t, remote, cfg)
	assert.Equal(t, 2, code)
	require.Len(t, results, 2, "the failing repository finishes its decisions, later repositories are not started")
	assert.Equal(t, decision.StatusFailed, results[0].Status)
	assert.Equal(t, decision.StatusSkipped, results[1].Status)
	assert.Equal(t, "api", results[1].Repo)
	for _, r := range results {
		assert.Equal(t, "Platform", r.Project, "later projects produce no results")
		assert.NotEqual(t, "web", r.Repo, "later repositories produce no results")
	}
	assert.Zero(t, remote.creates)
}

func TestEngine_SnapshotFailureIsPartial(t *testing.T) {
	remote := newMemoryRemote()
	remote.addProject(platformProject, apiRepo)
	remote.addProject(toolsProject, cliRepo)
	remote.snapshotErrs["Tools"] = &azdo.ErrorResponse{StatusCode: 500, Method: "GET"}

	code, results := runEngine(t, remote, testConfig(t, writeDefinition(t, baseDefinition), config.ModePlan))
	assert.Equal(t, 2, code)

	var failed, planned int
	for _, r := range results {
		switch {
		case r.Status == decision.StatusFailed:
			failed++
			assert.Equal(t, "Tools", r.Project)
			assert.Empty(t, r.Repo)
			assert.Equal(t, "Azure DevOps request failed (500 Internal Server Error)", r.Message)
		case r.Status == decision.StatusPlanned:
			planned++
			assert.Equal(t, "Platform", r.Project)
		}
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, 2, planned)
}

func TestEngine_ProjectSelection(t *testing.T) {
	remote := newMemoryRemote()
	remote.addProject(platformProject, apiRepo)
	remote.addProject(toolsProject, cliRepo)

	cfg := testConfig(t, writeDefinition(t, baseDefinition), config.ModePlan)
	cfg.Target.Projects = []string{"tools"}

	code, results := runEngine(t, remote, cfg)
	assert.Equal(t, 1, code)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Equal(t, "Tools", r.Project)
	}
}

func TestEngine_FatalErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*memoryRemote, *config.Config)
		wantErr string
	}{
		{
			name: "missing definition",
			mutate: func(_ *memoryRemote, cfg *config.Config) {
				cfg.Target.Definition = filepath.Join(t.TempDir(), "missing.yaml")
			},
			wantErr: "Error loading definition",
		},
		{
			name: "project listing fails",
			mutate: func(r *memoryRemote, _ *config.Config) {
				r.listProjectsErr = &azdo.ErrorResponse{StatusCode: 401, Method: "GET", Message: "unauthorized"}
			},
			wantErr: "Error discovering projects: Azure DevOps request failed (401 Unauthorized): unauthorized",
		},
		{
			name: "unknown project",
			mutate: func(_ *memoryRemote, cfg *config.Config) {
				cfg.Target.Projects = []string{"Nope"}
			},
			wantErr: `project "Nope" not found in organization`,
		},
		{
			name: "invalid report path",
			mutate: func(_ *memoryRemote, cfg *config.Config) {
				cfg.Output.Report = filepath.Join(t.TempDir(), "missing-dir", "report.md")
			},
			wantErr: "Error creating output sinks",
		},
		{
			name: "uncreatable out path with json emit",
			mutate: func(_ *memoryRemote, cfg *config.Config) {
				blocker := filepath.Join(t.TempDir(), "blocker")
				require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
				cfg.Output.Out = filepath.Join(blocker, "results.json")
				cfg.Output.Emit = []string{"json"}
			},
			wantErr: "Error creating output sinks",
		},
		{
			name: "report fails after out file opened",
			mutate: func(_ *memoryRemote, cfg *config.Config) {
				dir := t.TempDir()
				cfg.Output.Out = filepath.Join(dir, "results.ndjson")
				cfg.Output.Report = filepath.Join(dir, "missing-dir", "report.md")
			},
			wantErr: "Error creating output sinks",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote := newMemoryRemote()
			remote.addProject(platformProject, apiRepo)
			cfg := testConfig(t, writeDefinition(t, baseDefinition), config.ModePlan)
			tt.mutate(remote, cfg)

			var stdout, stderr bytes.Buffer
			e := NewEngine(remote, nil)
			e.Stdout = &stdout
			e.Stderr = &stderr

			code := e.Run(context.Background(), cfg)
			assert.Equal(t, 3, code)
			assert.Contains(t, stderr.String(), tt.wantErr)
			assert.Empty(t, stdout.String(), "no results are written before the run starts")
		})
	}
}

func TestEngine_NilConfig(t *testing.T) {
	var stderr bytes.Buffer
	e := NewEngine(newMemoryRemote(), nil)
	e.Stderr = &stderr
	assert.Equal(t, 3, e.Run(context.Background(), nil))
	assert.Contains(t, stderr.String(), "engine is not configured")
}

func TestEngine_NDJSONEventOrder(t *testing.T) {
	remote := newMemoryRemote()
	remote.addProject(platformProject, apiRepo)

	cfg := testConfig(t, writeDefinition(t, baseDefinition), config.ModePlan)
	cfg.Output.ConsoleFormat = "ndjson"

	var stdout bytes.Buffer
	e := NewEngine(remote, nil)
	e.Stdout = &stdout
	e.Stderr = io.Discard
	require.Equal(t, 1, e.Run(context.Background(), cfg))

	var types []string
	sc := bufio.NewScanner(&stdout)
	for sc.Scan() {
		var line struct {
			Type     string `json:"type"`
			ExitCode int    `json:"exit_code"`
		}
		require.NoError(t, json.Unmarshal(sc.Bytes(), &line))
		types = append(types, line.Type)
		if line.Type == "run.finished" {
			assert.Equal(t, 1, line.ExitCode)
		}
	}
	assert.Equal(t, []string{
		"run.started",
		"project.started",
		"repo.started",
		"policy.result",
		"policy.result",
		"repo.finished",
		"project.finished",
		"run.finished",
	}, types)
}

func TestEngine_NoConsoleSuppressesProgress(t *testing.T) {
	remote := newMemoryRemote()
	remote.addProject(platformProject, apiRepo)

	cfg := testConfig(t, writeDefinition(t, baseDefinition), config.ModePlan)
	out := filepath.Join(t.TempDir(), "results.ndjson")
	cfg.Output.NoConsole = true
	cfg.Output.Out = out
	require.NoError(t, cfg.Validate())

	var stdout, stderr bytes.Buffer
	e := NewEngine(remote, nil)
	e.Stdout = &stdout
	e.Stderr = &stderr
	assert.Equal(t, 1, e.Run(context.Background(), cfg))
	assert.Empty(t, stdout.String())
	assert.Empty(t, stderr.String())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, 8, strings.Count(strings.TrimSpace(string(data)), "\n")+1)
}

func TestEngine_ProgressLines(t *testing.T) {
	remote := newMemoryRemote()
	remote.addProject(platformProject, apiRepo)

	var stderr bytes.Buffer
	e := NewEngine(remote, nil)
	e.Stdout = io.Discard
	e.Stderr = &stderr
	e.Run(context.Background(), testConfig(t, writeDefinition(t, baseDefinition), config.ModePlan))

	assert.Contains(t, stderr.String(), "Loaded 2 policies.")
	assert.Contains(t, stderr.String(), "Found 1 projects.")
}

func TestEngine_SchedulerErrorIsPartial(t *testing.T) {
	remote := newMemoryRemote()
	remote.addProject(platformProject, apiRepo)

	e := NewEngine(remote, nil)
	e.Stdout = io.Discard
	e.Stderr = io.Discard
	e.schedulerExecute = func(ctx context.Context, _ *config.Config, _ []policy.Project) (<-chan SnapshotResult, <-chan error) {
		resCh := make(chan SnapshotResult)
		errCh := make(chan error, 1)
		close(resCh)
		errCh <- context.DeadlineExceeded
		close(errCh)
		return resCh, errCh
	}

	assert.Equal(t, 2, e.Run(context.Background(), testConfig(t, writeDefinition(t, baseDefinition), config.ModePlan)))
}
