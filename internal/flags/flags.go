// Package flags defines canonical CLI flag names shared by the CLI and the
// configuration loader.
//
// IMPORTANT: These are flag *names* without leading dashes. They double as the
// keys of the configuration file and, upper-cased with dashes replaced by
// underscores, of BRANCHWARDEN_ environment variables.
//
//	cmd.Flags().StringVar(&cfg.Target.Organization, flags.FlagOrganization, "", "...")
package flags

const (
	// Global
	FlagConfig    = "config"
	FlagVerbose   = "verbose"
	FlagLogLevel  = "log-level"
	FlagLogFormat = "log-format"

	// Target
	FlagOrganization = "organization"
	FlagDefinition   = "definition"
	FlagProject      = "project"
	FlagToken        = "token"

	// Output
	FlagConsoleFormat       = "console-format"
	FlagConsoleFilterStatus = "console-filter-status"
	FlagReport              = "report"
	FlagOut                 = "out"
	FlagOutFormat           = "out-format"
	FlagEmit                = "emit"
	FlagNoConsole           = "no-console"

	// Runtime
	FlagConcurrency = "concurrency"
	FlagTimeout     = "timeout"
	FlagRetries     = "retries"
	FlagFailFast    = "fail-fast"

	// kinds list
	FlagQuiet = "quiet"
)
