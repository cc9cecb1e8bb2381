package main

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"
)

// errInvalid marks a submission that failed validation. It maps to exit
// code 2 so scripts can tell it apart from operational failures.
var errInvalid = errors.New("submission is invalid")

func exitCode(err error) int {
	if errors.Is(err, errInvalid) {
		return 2
	}
	return 1
}

// app holds the state resolved before a subcommand runs.
type app struct {
	deps       *Deps
	configFile string
	envFile    string

	cfg *appConfig
	log *slog.Logger
}

// NewRootCmd creates the root command with default dependencies.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&Deps{})
}

func newRootCmd(deps *Deps) *cobra.Command {
	a := &app{deps: deps}

	cmd := &cobra.Command{
		Use:   "authforms",
		Short: "Account forms: registration, login and password recovery",
		Long: `authforms builds the registration, login, password reset and
verification forms, validates submissions against them and serves them
over HTTP backed by an in-memory store or Ory Kratos.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "YAML config file path")
	flags.StringVar(&a.envFile, "env-file", ".env", "dotenv file with AUTHFORMS_ variables (ignored when missing)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text or json)")
	flags.String("backend", backendMemory, "identity backend (memory or kratos)")
	flags.Bool("terms", false, "use the registration form with the terms checkbox")

	cmd.AddCommand(newFormsCmd(a))
	cmd.AddCommand(newValidateCmd(a))
	cmd.AddCommand(newPromptCmd(a))
	cmd.AddCommand(newOpenAPICmd(a))
	cmd.AddCommand(newServeCmd(a))

	return cmd
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := loadConfig(configSources{
		file:    a.configFile,
		envFile: a.envFile,
		flags:   cmd.Flags(),
	})
	if err != nil {
		return err
	}
	log, err := newLogger(cfg, a.deps.LogWriter)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = log
	return nil
}
