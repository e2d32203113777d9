package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"branchwarden/internal/apply"
	"branchwarden/internal/config"
	"branchwarden/internal/decision"
	"branchwarden/internal/definition"
	"branchwarden/internal/fetcher"
	"branchwarden/internal/output"
	"branchwarden/internal/policy"

	"go.uber.org/zap"
)

func exitCodeForRun(fatal, partial, drift bool) int {
	// Exit code contract:
	// 0 = clean run, nothing pending
	// 1 = drift (plan mode found creates, updates or deletes)
	// 2 = partial failure (a FAILED result or a project snapshot failure)
	// 3 = fatal error (run did not start)
	if fatal {
		return 3
	}
	if partial {
		return 2
	}
	if drift {
		return 1
	}
	return 0
}

func setupOutputManager(cfg *config.Config, stdout io.Writer) (*output.Manager, error) {
	var sinks []output.Sink

	// Emit Sinks (additional structured streams)
	var emitSinks []output.Sink
	for _, emit := range cfg.Output.Emit {
		es, err := output.NewEmitSink(stdout, emit)
		if err != nil {
			return nil, err
		}
		emitSinks = append(emitSinks, es)
	}

	// File and report sinks open files, so they are created before anything
	// that writes to stdout. A failure here leaves stdout untouched.
	var fileSinks []output.Sink
	if cfg.Output.Out != "" {
		fs, err := output.NewFileSink(cfg.Output.Out, cfg.Output.OutFormat)
		if err != nil {
			return nil, err
		}
		fileSinks = append(fileSinks, fs)
	}
	if cfg.Output.Report != "" {
		rs, err := output.NewReportSink(cfg.Output.Report)
		if err != nil {
			for _, s := range fileSinks {
				_ = s.Close()
			}
			return nil, err
		}
		fileSinks = append(fileSinks, rs)
	}

	// Console Sink
	if !cfg.Output.NoConsole {
		sinks = append(sinks, output.NewConsoleSink(stdout, cfg.Output.ConsoleFormat, cfg.Output.ConsoleFilterStatus))
	}
	sinks = append(sinks, emitSinks...)
	sinks = append(sinks, fileSinks...)

	outMgr := output.NewManager()
	for _, s := range sinks {
		if err := outMgr.AddSink(s); err != nil {
			outMgr.Close()
			return nil, err
		}
	}
	return outMgr, nil
}

// Remote is the part of the Azure DevOps API a run uses.
type Remote interface {
	fetcher.Remote
	apply.Writer
}

type Engine struct {
	Remote Remote
	Log    *zap.Logger

	// Stdout receives console and emit output; Stderr receives progress and
	// fatal errors. Both default to the process streams.
	Stdout io.Writer
	Stderr io.Writer

	// schedulerExecute is a test seam for streaming execution.
	// If nil, Engine uses the real scheduler.
	schedulerExecute func(ctx context.Context, cfg *config.Config, projects []policy.Project) (<-chan SnapshotResult, <-chan error)
}

func NewEngine(remote Remote, log *zap.Logger) *Engine {
	return &Engine{
		Remote: remote,
		Log:    log,
	}
}

func (e *Engine) logger() *zap.Logger {
	if e.Log == nil {
		return zap.NewNop()
	}
	return e.Log
}

func (e *Engine) stdout() io.Writer {
	if e.Stdout == nil {
		return os.Stdout
	}
	return e.Stdout
}

func (e *Engine) stderr() io.Writer {
	if e.Stderr == nil {
		return os.Stderr
	}
	return e.Stderr
}

func (e *Engine) progress(cfg *config.Config, format string, args ...any) {
	if cfg.Output.NoConsole {
		return
	}
	fmt.Fprintf(e.stderr(), format+"\n", args...)
}

func (e *Engine) executeStream(ctx context.Context, cfg *config.Config, source SnapshotSource, projects []policy.Project) (<-chan SnapshotResult, <-chan error) {
	if e.schedulerExecute != nil {
		return e.schedulerExecute(ctx, cfg, projects)
	}

	scheduler, err := NewScheduler(source, cfg.Runtime.Concurrency)
	if err != nil {
		resCh := make(chan SnapshotResult)
		errCh := make(chan error, 1)
		close(resCh)
		errCh <- err
		close(errCh)
		return resCh, errCh
	}
	return scheduler.Execute(ctx, projects)
}

func (e *Engine) loadDefinition(cfg *config.Config) (*policy.Definition, bool) {
	e.progress(cfg, "Loading definition %s...", cfg.Target.Definition)
	def, err := definition.LoadFile(cfg.Target.Definition)
	if err != nil {
		fmt.Fprintf(e.stderr(), "Error loading definition: %v\n", err)
		return nil, false
	}
	e.progress(cfg, "Loaded %d policies.", len(def.Policies))
	return def, true
}

func (e *Engine) discoverProjects(ctx context.Context, cfg *config.Config, lister ProjectLister, def *policy.Definition) ([]policy.Project, bool) {
	e.progress(cfg, "Discovering projects...")
	projects, err := ResolveProjects(ctx, lister, def, cfg.Target.Projects, e.logger())
	if err != nil {
		fmt.Fprintf(e.stderr(), "Error discovering projects: %s\n", presentRemoteError(err, cfg.Runtime.Verbose))
		return nil, false
	}
	e.progress(cfg, "Found %d projects.", len(projects))
	return projects, true
}

// Run reconciles every selected project and returns the process exit code.
func (e *Engine) Run(ctx context.Context, cfg *config.Config) int {
	if cfg == nil || e.Remote == nil {
		fmt.Fprintln(e.stderr(), "Error: engine is not configured")
		return exitCodeForRun(true, false, false)
	}

	def, ok := e.loadDefinition(cfg)
	if !ok {
		return exitCodeForRun(true, false, false)
	}

	if cfg.Runtime.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Runtime.Timeout)
		defer cancel()
	}

	f := fetcher.NewFetcher(e.Remote)
	projects, ok := e.discoverProjects(ctx, cfg, f, def)
	if !ok {
		return exitCodeForRun(true, false, false)
	}

	outMgr, err := setupOutputManager(cfg, e.stdout())
	if err != nil {
		fmt.Fprintf(e.stderr(), "Error creating output sinks: %v\n", err)
		return exitCodeForRun(true, false, false)
	}
	defer outMgr.Close()

	_ = outMgr.Write(output.Event{
		Type:         output.EventRunStarted,
		Mode:         cfg.Runtime.Mode,
		Organization: cfg.Target.Organization,
		Projects:     len(projects),
	})

	ev := &evaluator{
		cfg:        cfg,
		reconciler: &Reconciler{Definition: def, Log: e.logger()},
		out:        outMgr,
		log:        e.logger(),
	}
	if cfg.Runtime.Mode == config.ModeApply {
		ev.registry = apply.NewRemoteRegistry(e.Remote)
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	resCh, errCh := e.executeStream(runCtx, cfg, f, projects)
	for res := range resCh {
		if ev.stopped {
			// Drain so the scheduler can exit.
			continue
		}
		ev.project(runCtx, def, res)
		if ev.stopped {
			stop()
		}
	}

	var schedErr error
	for err := range errCh {
		if err != nil {
			schedErr = err
		}
	}
	partial := ev.failed
	if schedErr != nil && !ev.stopped {
		e.logger().Error("run interrupted", zap.Error(schedErr))
		fmt.Fprintf(e.stderr(), "Error: %s\n", presentRemoteError(schedErr, cfg.Runtime.Verbose))
		partial = true
	}

	code := exitCodeForRun(false, partial, ev.drift)
	_ = outMgr.Write(output.Event{Type: output.EventRunFinished, Mode: cfg.Runtime.Mode, ExitCode: code})
	return code
}

// evaluator consumes snapshots one at a time, so none of its state is shared.
type evaluator struct {
	cfg        *config.Config
	reconciler *Reconciler
	// registry is nil in plan mode.
	registry *apply.Registry
	out      *output.Manager
	log      *zap.Logger

	drift   bool
	failed  bool
	stopped bool
}

func (ev *evaluator) project(ctx context.Context, def *policy.Definition, res SnapshotResult) {
	name := res.Project.Name
	_ = ev.out.Write(output.Event{Type: output.EventProjectStarted, Project: name})

	if res.Err != nil || res.Snapshot == nil {
		err := res.Err
		if err == nil {
			err = fmt.Errorf("snapshot %s: empty result", name)
		}
		ev.log.Error("project snapshot failed", zap.String("project", name), zap.Error(err))
		ev.emit(decision.ProjectFailedResult(name, presentRemoteError(err, ev.cfg.Runtime.Verbose)))
		_ = ev.out.Write(output.Event{Type: output.EventProjectFinished, Project: name})
		return
	}

	snap := res.Snapshot
	if snap.Unreadable > 0 {
		ev.log.Warn("policy configurations with unreadable scope skipped",
			zap.String("project", name),
			zap.Int("count", snap.Unreadable))
	}

	types := policy.NewTypeIndex(snap.Types)
	repos := FilterRepositories(snap.Repositories, def, ev.log.With(zap.String("project", name)))
	sort.SliceStable(repos, func(i, j int) bool {
		return strings.ToLower(repos[i].Name) < strings.ToLower(repos[j].Name)
	})

	for _, repo := range repos {
		if ev.stopped {
			break
		}
		ev.repository(ctx, snap.Project, repo, types, snap.Policies)
	}

	_ = ev.out.Write(output.Event{Type: output.EventProjectFinished, Project: name, Repos: len(repos)})
}

func (ev *evaluator) repository(ctx context.Context, project policy.Project, repo policy.Repository, types *policy.TypeIndex, servers []policy.ServerPolicy) {
	_ = ev.out.Write(output.Event{Type: output.EventRepoStarted, Project: project.Name, Repo: repo.Name})

	plan := ev.reconciler.PlanRepository(project, repo, types, servers)
	for _, d := range plan.Decisions {
		if ev.stopped {
			ev.emit(decision.SkippedResult(d, "run stopped after a failure (--fail-fast)"))
			continue
		}
		ev.emit(ev.carryOut(ctx, d))
	}

	_ = ev.out.Write(output.Event{
		Type:     output.EventRepoFinished,
		Project:  project.Name,
		Repo:     repo.Name,
		Policies: len(plan.Decisions),
	})
}

// carryOut turns a decision into a result: reported in plan mode, executed
// through the applier registry in apply mode.
func (ev *evaluator) carryOut(ctx context.Context, d decision.Decision) decision.Result {
	if ev.registry == nil || !d.Action.Mutates() {
		return decision.PlannedResult(d)
	}

	fields := []zap.Field{
		zap.String("project", d.Project.Name),
		zap.String("repository", d.Repository.Name),
		zap.String("branch", d.Branch),
		zap.String("type", d.PolicyType),
		zap.String("action", string(d.Action)),
	}

	applier, ok := ev.registry.Lookup(d.PolicyType)
	if !ok {
		err := fmt.Errorf("no applier for policy type %q", d.PolicyType)
		ev.log.Error("apply failed", append(fields, zap.Error(err))...)
		return decision.FailedResult(d, err)
	}

	id, err := apply.Execute(ctx, applier, d)
	if err != nil {
		ev.log.Error("apply failed", append(fields, zap.Error(err))...)
		return decision.NewResult(d, decision.StatusFailed, presentRemoteError(err, ev.cfg.Runtime.Verbose))
	}
	ev.log.Info("policy applied", append(fields, zap.Int("policy_id", id))...)
	return decision.AppliedResult(d, id)
}

func (ev *evaluator) emit(res decision.Result) {
	switch res.Status {
	case decision.StatusPlanned:
		ev.drift = true
	case decision.StatusFailed:
		ev.failed = true
		if ev.cfg.Runtime.FailFast {
			ev.stopped = true
		}
	}
	_ = ev.out.Write(res)
}
