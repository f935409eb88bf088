// Package cli implements the qsp-cli commands.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	qsp "github.com/BackendStack21/qsp-go"
	"github.com/BackendStack21/qsp-go/core"
	"github.com/BackendStack21/qsp-go/internal/config"
	"github.com/BackendStack21/qsp-go/internal/logging"
	"github.com/BackendStack21/qsp-go/internal/metrics"
)

// app holds the state shared by all commands of one invocation.
type app struct {
	// ConfigFile is the path to the YAML configuration file
	ConfigFile string

	// LogLevel overrides logging.level from the configuration
	LogLevel string

	// MetricsFile overrides metrics.textfile from the configuration
	MetricsFile string

	// OutputFormat controls output formatting (text, json)
	OutputFormat string

	cfg    *config.Config
	params qsp.Params
	log    *logging.Logger
}

func newApp() *app {
	return &app{cfg: config.Default(), params: core.DefaultParams}
}

// rootCommand builds the command tree bound to a.
func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "qsp-cli",
		Short: "qsp-cli - Post-quantum image lock and unlock",
		Long: `qsp-cli splits a secret image into threshold shares, hides every share
inside a cover image and restores the secret once enough share owners
authenticate with their lattice identities.

Typical flow:
  qsp-cli identity create alice      create owner identities
  qsp-cli lock --secret secret.png   lock the secret into carriers
  qsp-cli unlock                     restore it from the carriers`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	root.PersistentFlags().StringVar(&a.ConfigFile, "config", "",
		"config file (YAML, defaults apply when empty)")
	root.PersistentFlags().StringVar(&a.LogLevel, "log-level", "",
		"log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&a.MetricsFile, "metrics-file", "",
		"write Prometheus metrics to this textfile on exit")
	root.PersistentFlags().StringVarP(&a.OutputFormat, "output", "o", "text",
		"output format (text, json)")

	root.AddCommand(a.versionCommand())
	root.AddCommand(a.identityCommand())
	root.AddCommand(a.setupCommand())
	root.AddCommand(a.lockCommand())
	root.AddCommand(a.unlockCommand())
	root.AddCommand(a.thresholdSignCommand())
	root.AddCommand(a.inspectCommand())
	return root
}

// setup loads the configuration and builds the logger before any command runs.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.ConfigFile)
	if err != nil {
		return err
	}
	if a.LogLevel != "" {
		cfg.Logging.Level = a.LogLevel
	}
	if a.MetricsFile != "" {
		cfg.Metrics.Textfile = a.MetricsFile
	}
	switch a.OutputFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown output format: %s", a.OutputFormat)
	}

	log, err := logging.NewLogger(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	params, err := cfg.Apply(core.DefaultParams)
	if err != nil {
		return err
	}
	if cfg.Metrics.Enabled {
		metrics.Enable()
	} else {
		metrics.Disable()
	}

	a.cfg, a.log, a.params = cfg, log, params
	return nil
}

// flushMetrics writes the metrics textfile when one is configured.
func (a *app) flushMetrics() error {
	if a.cfg == nil || !a.cfg.Metrics.Enabled || a.cfg.Metrics.Textfile == "" {
		return nil
	}
	return metrics.WriteTextfile(a.cfg.Metrics.Textfile)
}

func (a *app) printer(w io.Writer) *Printer {
	return NewPrinter(a.OutputFormat, w)
}

// Execute runs the root command with os.Args and flushes metrics.
func Execute() error {
	return run(os.Args[1:], os.Stdout, os.Stderr)
}

func run(args []string, stdout, stderr io.Writer) error {
	a := newApp()
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if ferr := a.flushMetrics(); ferr != nil && err == nil {
		err = ferr
	}
	return err
}
