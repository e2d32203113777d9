package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"branchwarden/internal/flags"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	configName = "branchwarden"
	configType = "yaml"
	envPrefix  = "BRANCHWARDEN"
)

// settings is the flat shape of the configuration file and environment. Keys
// are the flag names.
type settings struct {
	Organization        string        `mapstructure:"organization"`
	Definition          string        `mapstructure:"definition"`
	Projects            []string      `mapstructure:"project"`
	Token               string        `mapstructure:"token"`
	ConsoleFormat       string        `mapstructure:"console-format"`
	ConsoleFilterStatus []string      `mapstructure:"console-filter-status"`
	Report              string        `mapstructure:"report"`
	Out                 string        `mapstructure:"out"`
	OutFormat           string        `mapstructure:"out-format"`
	Emit                []string      `mapstructure:"emit"`
	NoConsole           bool          `mapstructure:"no-console"`
	Concurrency         int           `mapstructure:"concurrency"`
	Timeout             time.Duration `mapstructure:"timeout"`
	Retries             int           `mapstructure:"retries"`
	FailFast            bool          `mapstructure:"fail-fast"`
	Verbose             bool          `mapstructure:"verbose"`
	LogLevel            string        `mapstructure:"log-level"`
	LogFormat           string        `mapstructure:"log-format"`
}

// Loader layers a configuration file, BRANCHWARDEN_* environment variables
// and command-line flags over a Config. Flags that were set explicitly win,
// then the environment, then the file, then the Config's current values.
type Loader struct {
	searchPaths []string
}

// NewLoader searches the given directories for branchwarden.yaml. With no
// arguments it searches the working directory and
// $HOME/.config/branchwarden.
func NewLoader(searchPaths ...string) *Loader {
	if len(searchPaths) == 0 {
		searchPaths = []string{"."}
		if home, err := os.UserHomeDir(); err == nil {
			searchPaths = append(searchPaths, filepath.Join(home, ".config", configName))
		}
	}
	return &Loader{searchPaths: append([]string(nil), searchPaths...)}
}

// Load merges every source into cfg and returns the configuration file used,
// if any. An explicit configFile must exist.
func (l *Loader) Load(configFile string, fs *pflag.FlagSet, cfg *Config) (string, error) {
	if cfg == nil {
		return "", errors.New("config is nil")
	}

	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType(configType)
	for _, p := range l.searchPaths {
		v.AddConfigPath(p)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	for key, value := range defaultsFrom(cfg) {
		v.SetDefault(key, value)
	}

	if fs != nil {
		var bindErr error
		fs.VisitAll(func(f *pflag.Flag) {
			if _, ok := settingKeys[f.Name]; !ok || bindErr != nil {
				return
			}
			bindErr = v.BindPFlag(f.Name, f)
		})
		if bindErr != nil {
			return "", fmt.Errorf("failed to bind flags: %w", bindErr)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	}
	if err := v.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return "", fmt.Errorf("failed to read configuration: %w", err)
		}
	}

	var s settings
	if err := v.Unmarshal(&s); err != nil {
		return "", fmt.Errorf("failed to parse configuration: %w", err)
	}
	s.applyTo(cfg)
	return v.ConfigFileUsed(), nil
}

var settingKeys = map[string]struct{}{
	flags.FlagOrganization:        {},
	flags.FlagDefinition:          {},
	flags.FlagProject:             {},
	flags.FlagToken:               {},
	flags.FlagConsoleFormat:       {},
	flags.FlagConsoleFilterStatus: {},
	flags.FlagReport:              {},
	flags.FlagOut:                 {},
	flags.FlagOutFormat:           {},
	flags.FlagEmit:                {},
	flags.FlagNoConsole:           {},
	flags.FlagConcurrency:         {},
	flags.FlagTimeout:             {},
	flags.FlagRetries:             {},
	flags.FlagFailFast:            {},
	flags.FlagVerbose:             {},
	flags.FlagLogLevel:            {},
	flags.FlagLogFormat:           {},
}

func defaultsFrom(cfg *Config) map[string]any {
	return map[string]any{
		flags.FlagOrganization:        cfg.Target.Organization,
		flags.FlagDefinition:          cfg.Target.Definition,
		flags.FlagProject:             cfg.Target.Projects,
		flags.FlagToken:               cfg.Target.Token,
		flags.FlagConsoleFormat:       cfg.Output.ConsoleFormat,
		flags.FlagConsoleFilterStatus: cfg.Output.ConsoleFilterStatus,
		flags.FlagReport:              cfg.Output.Report,
		flags.FlagOut:                 cfg.Output.Out,
		flags.FlagOutFormat:           cfg.Output.OutFormat,
		flags.FlagEmit:                cfg.Output.Emit,
		flags.FlagNoConsole:           cfg.Output.NoConsole,
		flags.FlagConcurrency:         cfg.Runtime.Concurrency,
		flags.FlagTimeout:             cfg.Runtime.Timeout,
		flags.FlagRetries:             cfg.Runtime.Retries,
		flags.FlagFailFast:            cfg.Runtime.FailFast,
		flags.FlagVerbose:             cfg.Runtime.Verbose,
		flags.FlagLogLevel:            cfg.Logging.Level,
		flags.FlagLogFormat:           cfg.Logging.Format,
	}
}

func (s settings) applyTo(cfg *Config) {
	cfg.Target.Organization = s.Organization
	cfg.Target.Definition = s.Definition
	cfg.Target.Projects = s.Projects
	cfg.Target.Token = s.Token
	cfg.Output.ConsoleFormat = s.ConsoleFormat
	cfg.Output.ConsoleFilterStatus = s.ConsoleFilterStatus
	cfg.Output.Report = s.Report
	cfg.Output.Out = s.Out
	cfg.Output.OutFormat = s.OutFormat
	cfg.Output.Emit = s.Emit
	cfg.Output.NoConsole = s.NoConsole
	cfg.Runtime.Concurrency = s.Concurrency
	cfg.Runtime.Timeout = s.Timeout
	cfg.Runtime.Retries = s.Retries
	cfg.Runtime.FailFast = s.FailFast
	cfg.Runtime.Verbose = s.Verbose
	cfg.Logging.Level = s.LogLevel
	cfg.Logging.Format = s.LogFormat
}
