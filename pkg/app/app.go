// Package app builds the cobra command shared by the crossway daemons:
// grouped flags, an optional YAML config file, CROSSWAY_* environment
// overrides and option validation ahead of the run function.
package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	cliflag "k8s.io/component-base/cli/flag"
	"k8s.io/component-base/cli/globalflag"
	"k8s.io/component-base/term"
	"k8s.io/component-base/version/verflag"
)

// RunFunc runs the application after the options are complete and valid.
type RunFunc func() error

// Option configures an App.
type Option func(*App)

type App struct {
	basename    string
	shortDesc   string
	description string
	options     NamedFlagSetOptions
	runFunc     RunFunc
	args        cobra.PositionalArgs
	cmd         *cobra.Command
}

func WithDescription(desc string) Option {
	return func(a *App) { a.description = desc }
}

func WithOptions(opts NamedFlagSetOptions) Option {
	return func(a *App) { a.options = opts }
}

func WithRunFunc(run RunFunc) Option {
	return func(a *App) { a.runFunc = run }
}

// WithDefaultValidArgs rejects positional arguments.
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

// NewApp creates an application with the given binary name.
func NewApp(basename, shortDesc string, opts ...Option) *App {
	a := &App{
		basename:  basename,
		shortDesc: shortDesc,
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
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (a *App) buildCommand() {
	cmd := &cobra.Command{
		Use:           a.basename,
		Short:         a.shortDesc,
		Long:          a.description,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          a.args,
	}
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)
	cmd.Flags().SortFlags = true

	var namedfs cliflag.NamedFlagSets
	if a.options != nil {
		namedfs = a.options.Flags()
	}
	global := namedfs.FlagSet("global")
	verflag.AddFlags(global)
	cfgFile := addConfigFlag(global, a.basename)
	globalflag.AddGlobalFlags(global, cmd.Name())

	fs := cmd.Flags()
	for _, f := range namedfs.FlagSets {
		fs.AddFlagSet(f)
	}

	cols, _, _ := term.TerminalSize(cmd.OutOrStdout())
	cliflag.SetUsageAndHelpFunc(cmd, namedfs, cols)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		verflag.PrintAndExitIfRequested()
		return a.runCommand(cmd, *cfgFile)
	}
	a.cmd = cmd
}

func (a *App) runCommand(cmd *cobra.Command, cfgFile string) error {
	if a.options != nil {
		v, err := loadConfig(a.basename, cfgFile, cmd.Flags())
		if err != nil {
			return err
		}
		if err := v.Unmarshal(a.options); err != nil {
			return fmt.Errorf("failed to decode configuration: %w", err)
		}
		if err := a.options.Complete(); err != nil {
			return err
		}
		if err := a.options.Validate(); err != nil {
			return err
		}
	}

	if a.runFunc == nil {
		return nil
	}
	return a.runFunc()
}
