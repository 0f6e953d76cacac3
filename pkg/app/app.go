package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	cliflag "k8s.io/component-base/cli/flag"
	"k8s.io/component-base/cli/globalflag"
	"k8s.io/component-base/term"
)

// RunFunc is the body of a command, called after options are loaded and validated.
type RunFunc func() error

// App is a command line application built on cobra and viper.
type App struct {
	name        string
	shortDesc   string
	description string
	run         RunFunc
	options     NamedFlagSetOptions
	args        cobra.PositionalArgs
	watch       bool
	silence     bool
	cfgFile     string

	v   *viper.Viper
	cmd *cobra.Command
}

// Option configures an App.
type Option func(*App)

// WithDescription sets the long description shown by --help.
func WithDescription(desc string) Option {
	return func(a *App) {
		a.description = desc
	}
}

// WithOptions sets the options the command line and config file are loaded into.
func WithOptions(opts NamedFlagSetOptions) Option {
	return func(a *App) {
		a.options = opts
	}
}

// WithRunFunc sets the function run by the command.
func WithRunFunc(run RunFunc) Option {
	return func(a *App) {
		a.run = run
	}
}

// WithDefaultValidArgs rejects any positional argument.
func WithDefaultValidArgs() Option {
	return func(a *App) {
		a.args = func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				if len(arg) > 0 {
					return fmt.Errorf("%q does not take any arguments, got %q", cmd.CommandPath(), args)
				}
			}
			return nil
		}
	}
}

// WithWatchConfig reloads the log level whenever the config file changes.
func WithWatchConfig() Option {
	return func(a *App) {
		a.watch = true
	}
}

// WithSilence suppresses the startup banner and the effective flag table.
func WithSilence() Option {
	return func(a *App) {
		a.silence = true
	}
}

// NewApp builds an App with the given name and short description.
func NewApp(name string, shortDesc string, opts ...Option) *App {
	a := &App{
		name:      name,
		shortDesc: shortDesc,
		v:         viper.New(),
	}
	for _, o := range opts {
		o(a)
	}

	a.buildCommand()
	return a
}

// Command returns the underlying cobra command.
func (a *App) Command() *cobra.Command {
	return a.cmd
}

// Run executes the command and exits the process on failure.
func (a *App) Run() {
	if err := a.cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func (a *App) buildCommand() {
	cmd := &cobra.Command{
		Use:           a.name,
		Short:         a.shortDesc,
		Long:          a.description,
		SilenceUsage:  true,
		SilenceErrors: false,
		Args:          a.args,
		RunE:          a.runCommand,
	}
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)
	cmd.Flags().SortFlags = true

	var namedFlagSets cliflag.NamedFlagSets
	if a.options != nil {
		namedFlagSets = a.options.Flags()
	}
	a.addConfigFlag(namedFlagSets.FlagSet("global"), a.name)
	globalflag.AddGlobalFlags(namedFlagSets.FlagSet("global"), cmd.Name())

	fs := cmd.Flags()
	for _, f := range namedFlagSets.FlagSets {
		fs.AddFlagSet(f)
	}

	cols, _, _ := term.TerminalSize(cmd.OutOrStdout())
	cliflag.SetUsageAndHelpFunc(cmd, namedFlagSets, cols)

	a.cmd = cmd
}

func (a *App) runCommand(cmd *cobra.Command, args []string) error {
	if err := a.loadConfig(cmd.Flags()); err != nil {
		return err
	}

	if a.options != nil {
		if err := a.v.Unmarshal(a.options); err != nil {
			return fmt.Errorf("failed to decode options: %w", err)
		}
		if err := a.options.Complete(); err != nil {
			return err
		}
		if err := a.options.Validate(); err != nil {
			return err
		}
	}

	if !a.silence {
		fmt.Fprintf(cmd.OutOrStdout(), "Starting %s ...\n", a.name)
		printFlags(cmd.OutOrStdout(), cmd.Flags())
	}

	if a.run == nil {
		return nil
	}
	return a.run()
}
