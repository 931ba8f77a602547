package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotstats/internal/shared"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config      *shared.Config
	logger      *log.Logger
	output      io.Writer
	palette     *Palette
	registry    *prometheus.Registry
	lookupEnv   func(string) (string, bool)
	openBrowser func(string) error
}

// RunnerOpts contains configuration options for creating a Runner.
//
// A nil Config means each command loads its own from --config, the env files and the environment.
type RunnerOpts struct {
	Config      *shared.Config
	Logger      *log.Logger
	Output      io.Writer
	Registry    *prometheus.Registry
	LookupEnv   func(string) (string, bool)
	OpenBrowser func(string) error
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	if opts.LookupEnv == nil {
		opts.LookupEnv = os.LookupEnv
	}
	if opts.OpenBrowser == nil {
		opts.OpenBrowser = shared.OpenBrowser
	}

	return &Runner{
		config:      opts.Config,
		logger:      opts.Logger,
		output:      opts.Output,
		palette:     DefaultPalette(),
		registry:    opts.Registry,
		lookupEnv:   opts.LookupEnv,
		openBrowser: opts.OpenBrowser,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){serveCommand, authCommand, setupCommand} {
		commands = append(commands, fn(r))
	}

	return commands
}

// loadConfig layers the config file (when present), the env files and the process environment over the
// embedded defaults.
func (r *Runner) loadConfig(cmd *cli.Command) (*shared.Config, error) {
	if r.config != nil {
		return r.config, nil
	}

	config := shared.DefaultConfig()
	if path := cmd.String("config"); path != "" {
		if _, err := os.Stat(path); err == nil {
			if config, err = shared.LoadConfig(path); err != nil {
				return nil, err
			}
			r.logger.Debug("loaded config file", "path", path)
		}
	}

	if err := shared.LoadEnvFiles(cmd.StringSlice("env-file")...); err != nil {
		return nil, err
	}
	if err := config.ApplyEnv(r.lookupEnv); err != nil {
		return nil, err
	}

	return config, nil
}

// writeLine writes s followed by a newline without interpreting it as a format string.
func (r *Runner) writeLine(s string) error {
	if _, err := io.WriteString(r.output, s+"\n"); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
