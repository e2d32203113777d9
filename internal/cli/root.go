package cli

import (
	"errors"
	"fmt"
	"os"

	"branchwarden/internal/config"
	"branchwarden/internal/flags"

	"github.com/spf13/cobra"
)

var (
	buildVersion = "dev"
	buildCommit  = "unknown"
	buildDate    = "unknown"
)

const rootLong = `Branchwarden reconciles Azure DevOps branch policies against a declarative
definition document.

The definition lists the policies every repository should carry. A run lists
the projects of an organization, compares each repository's policy
configurations with the definition and reports (plan) or executes (apply)
the creates, updates and deletes needed to converge.

Examples:
	# Show what would change in every project of an organization
	branchwarden plan --organization contoso --definition policies.yaml

	# Converge two projects
	branchwarden apply --organization contoso --definition policies.yaml --project Platform --project Tools

	# List the policy kinds this build understands
	branchwarden kinds list

	# Print build info
	branchwarden version

Configuration:
	Every flag can also be set in branchwarden.yaml (in the working directory,
	$HOME/.config/branchwarden, or the file named by --config) or through a
	BRANCHWARDEN_ environment variable, e.g. BRANCHWARDEN_ORGANIZATION.
	Flags win over the environment, which wins over the file.`

// exitCodeError carries a run's exit code through cobra.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func exitCode(code int) error {
	if code == 0 {
		return nil
	}
	return &exitCodeError{code: code}
}

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configFile string
	cfg        *config.Config
}

// NewRootCommand builds the command tree. Each call returns an independent
// tree with its own configuration.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{cfg: config.New()}

	root := &cobra.Command{
		Use:           "branchwarden",
		Short:         "Reconcile Azure DevOps branch policies against a definition",
		Long:          rootLong,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.Version = fmt.Sprintf("%s (%s) %s", buildVersion, buildCommit, buildDate)
	root.SetVersionTemplate("{{.Version}}\n")

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configFile, flags.FlagConfig, "", "Configuration file (default: branchwarden.yaml in . or $HOME/.config/branchwarden)")
	pf.BoolVar(&opts.cfg.Runtime.Verbose, flags.FlagVerbose, false, "Enable verbose output (prints every Azure DevOps request and full error details)")
	pf.StringVar(&opts.cfg.Logging.Level, flags.FlagLogLevel, opts.cfg.Logging.Level, "Log level: debug|info|warn|error")
	pf.StringVar(&opts.cfg.Logging.Format, flags.FlagLogFormat, opts.cfg.Logging.Format, "Log format: console|structured")

	root.AddCommand(
		newReconcileCommand(opts, config.ModePlan),
		newReconcileCommand(opts, config.ModeApply),
		newKindsCommand(),
		newVersionCommand(),
	)
	return root
}

func SetBuildInfo(version, commit, date string) {
	if version != "" {
		buildVersion = version
	}
	if commit != "" {
		buildCommit = commit
	}
	if date != "" {
		buildDate = date
	}
}

func BuildInfo() (version, commit, date string) {
	return buildVersion, buildCommit, buildDate
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	return run(NewRootCommand(), os.Args[1:])
}

func run(root *cobra.Command, args []string) int {
	root.SetArgs(args)
	err := root.Execute()
	if err == nil {
		return 0
	}
	var ec *exitCodeError
	if errors.As(err, &ec) {
		return ec.code
	}
	fmt.Fprintf(root.ErrOrStderr(), "Error: %v\n", err)
	return 3
}
