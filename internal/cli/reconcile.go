package cli

import (
	"context"
	"fmt"
	"io"

	"branchwarden/internal/azdo"
	"branchwarden/internal/config"
	"branchwarden/internal/engine"
	"branchwarden/internal/fetcher"
	"branchwarden/internal/flags"
	"branchwarden/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const reconcileHelpTemplate = `{{with (or .Long .Short)}}{{. | trimTrailingWhitespaces}}

{{end}}Usage:
  {{.UseLine}}

{{if .HasAvailableLocalFlags}}Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}{{if .HasAvailableInheritedFlags}}Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}Environment:
  Branchwarden authenticates to Azure DevOps with the first credential found:

  1) --token (personal access token)
  2) AZURE_DEVOPS_EXT_PAT environment variable (personal access token)
  3) SYSTEM_ACCESSTOKEN environment variable (pipeline job token)
  4) Azure CLI via az account get-access-token (if az is installed and logged in)

  Token guidance (brief):
  - PAT: Code (Read) to list repositories, Project and Team (Read) to list
    projects; apply additionally needs permission to edit policies.
  - Pipelines: map System.AccessToken into SYSTEM_ACCESSTOKEN.

  Examples:
    # macOS/Linux
    export AZURE_DEVOPS_EXT_PAT="<your_token>"
    branchwarden plan --organization contoso --definition policies.yaml

    # Azure CLI auth
    az login
    branchwarden plan --organization contoso --definition policies.yaml
`

var reconcileLong = map[string]string{
	config.ModePlan: `Compare every repository's branch policies with the definition and report
what apply would change. Plan never writes to Azure DevOps.

Creates, updates and deletes are reported as PLANNED, policies that already
match as UNCHANGED, and unclaimed policies that deletion is not allowed for
as REPORTED.

Output:
	Console output is controlled by --console-format (default: text).
	Structured outputs can be written via:
	- --out / --out-format: write an aggregate JSON array or NDJSON stream to a file
	- --emit: write an additional structured stream to stdout (json or ndjson)
	- --report: write a Markdown summary
	- --no-console: suppress the console sink and progress lines

	NDJSON mode emits one JSON object per line with a "type" field
	(run.started, project.started, repo.started, policy.result, repo.finished,
	project.finished, run.finished).

Exit codes:
	0 = nothing to change
	1 = drift (creates, updates or deletes pending)
	2 = partial failure (a project or policy errored)
	3 = fatal error (run did not start)

Examples:
	branchwarden plan --organization contoso --definition policies.yaml
	branchwarden plan --organization contoso --definition policies.yaml --project 'team-*' --no-console --emit ndjson
`,
	config.ModeApply: `Compare every repository's branch policies with the definition and execute
the creates, updates and deletes needed to converge.

Unclaimed server policies are only deleted when the definition sets
allowDeletion; otherwise they are reported. With --fail-fast the first
failure stops the run: the remaining decisions of that repository are
reported as SKIPPED and later repositories and projects are not started.

Exit codes:
	0 = converged
	2 = partial failure (a project or policy errored)
	3 = fatal error (run did not start)

Examples:
	branchwarden apply --organization contoso --definition policies.yaml
	branchwarden apply --organization https://dev.azure.com/contoso --definition policies.toml --fail-fast
`,
}

var reconcileShort = map[string]string{
	config.ModePlan:  "Report the changes needed to converge branch policies",
	config.ModeApply: "Converge branch policies to the definition",
}

// remoteFactory builds the Azure DevOps client a run talks to.
type remoteFactory func(ctx context.Context, cfg *config.Config, verboseOut io.Writer) (engine.Remote, error)

func newAzureDevOpsRemote(ctx context.Context, cfg *config.Config, verboseOut io.Writer) (engine.Remote, error) {
	cred, err := azdo.ResolveCredential(ctx, cfg.Target.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve Azure DevOps credential: %w", err)
	}
	if cred.Token == "" {
		return nil, fmt.Errorf("Azure DevOps credential is required (pass --token, set AZURE_DEVOPS_EXT_PAT or run 'az login')")
	}

	budget := fetcher.NewRequestBudget()
	client, err := azdo.NewClient(ctx, cfg.Target.Organization, cred,
		azdo.WithVerbose(cfg.Runtime.Verbose, verboseOut),
		azdo.WithRetries(cfg.Runtime.Retries),
		azdo.WithRequestGate(budget.Wait),
		azdo.WithResponseObserver(budget.Observe),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure DevOps client: %w", err)
	}
	return client, nil
}

func newReconcileCommand(opts *rootOptions, mode string) *cobra.Command {
	return newReconcileCommandWith(opts, mode, newAzureDevOpsRemote)
}

func newReconcileCommandWith(opts *rootOptions, mode string, newRemote remoteFactory) *cobra.Command {
	cfg := opts.cfg
	cmd := &cobra.Command{
		Use:   mode,
		Short: reconcileShort[mode],
		Long:  reconcileLong[mode],
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Runtime.Mode = mode
			return exitCode(runReconcile(cmd, opts, newRemote))
		},
	}
	cmd.SetHelpTemplate(reconcileHelpTemplate)

	fs := cmd.Flags()

	// Target
	fs.StringVar(&cfg.Target.Organization, flags.FlagOrganization, "", "Azure DevOps organization (name or URL)")
	fs.StringVar(&cfg.Target.Definition, flags.FlagDefinition, "", "Definition document (.yaml, .yml, .json or .toml)")
	fs.StringSliceVar(&cfg.Target.Projects, flags.FlagProject, nil, "Only reconcile these projects: name, id or path.Match glob (repeatable; comma-separated accepted)")
	fs.StringVar(&cfg.Target.Token, flags.FlagToken, "", "Azure DevOps personal access token (see Environment)")

	// Output
	fs.StringVar(&cfg.Output.ConsoleFormat, flags.FlagConsoleFormat, cfg.Output.ConsoleFormat, "Console output format: text|json|ndjson")
	fs.StringSliceVar(&cfg.Output.ConsoleFilterStatus, flags.FlagConsoleFilterStatus, nil, "Filter console output by status (UNCHANGED, APPLIED, PLANNED, REPORTED, FAILED, SKIPPED). Comma-separated.")
	fs.StringVar(&cfg.Output.Report, flags.FlagReport, "", "Write a Markdown report to this path")
	fs.StringVar(&cfg.Output.Out, flags.FlagOut, "", "Write structured output to this path")
	fs.StringVar(&cfg.Output.OutFormat, flags.FlagOutFormat, "", "Structured output format for --out: json|ndjson (default: inferred from file extension)")
	fs.StringSliceVar(&cfg.Output.Emit, flags.FlagEmit, nil, "Emit additional structured stream to stdout: json|ndjson (repeatable; comma-separated accepted)")
	fs.BoolVar(&cfg.Output.NoConsole, flags.FlagNoConsole, false, "Suppress console output and progress lines (use with --emit/--out/--report)")

	// Runtime
	fs.IntVar(&cfg.Runtime.Concurrency, flags.FlagConcurrency, cfg.Runtime.Concurrency, "Projects fetched concurrently")
	fs.DurationVar(&cfg.Runtime.Timeout, flags.FlagTimeout, cfg.Runtime.Timeout, "Global timeout")
	fs.IntVar(&cfg.Runtime.Retries, flags.FlagRetries, cfg.Runtime.Retries, "Retries per request on throttling and server errors")
	fs.BoolVar(&cfg.Runtime.FailFast, flags.FlagFailFast, false, "Stop on the first failure; later repositories and projects are not started")

	return cmd
}

func runReconcile(cmd *cobra.Command, opts *rootOptions, newRemote remoteFactory) int {
	cfg := opts.cfg
	stderr := cmd.ErrOrStderr()

	used, err := config.NewLoader().Load(opts.configFile, cmd.Flags(), cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 3
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 3
	}

	log, err := logging.NewWithWriter(logging.Level(cfg.Logging.Level), logging.Format(cfg.Logging.Format), stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 3
	}
	defer func() { _ = log.Sync() }()
	if used != "" {
		log.Debug("configuration loaded", zap.String("file", used))
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	remote, err := newRemote(ctx, cfg, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 3
	}

	eng := engine.NewEngine(remote, log.With(zap.String("organization", cfg.Target.Organization), zap.String("mode", cfg.Runtime.Mode)))
	eng.Stdout = cmd.OutOrStdout()
	eng.Stderr = stderr
	return eng.Run(ctx, cfg)
}
