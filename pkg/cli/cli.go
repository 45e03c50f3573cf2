// Package cli provides the command-line interface for coreobjects
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/coreobjects/coreobjects/pkg/config"
	"github.com/coreobjects/coreobjects/pkg/logger"
	"github.com/coreobjects/coreobjects/pkg/types"
)

// EnvPrefix prefixes every environment variable the CLI reads
const EnvPrefix = "COREOBJECTS"

// CLI wires the cobra command tree to an isolated viper instance so several
// CLIs can coexist in one process
type CLI struct {
	config   *Config
	rootCmd  *cobra.Command
	viper    *viper.Viper
	manager  *config.Manager
	logger   logger.Logger
	console  *logger.ConsoleLogger
	output   io.Writer
	errorOut io.Writer
}

// NewCLI creates a new CLI instance with the given configuration
func NewCLI(cfg *Config) *CLI {
	return NewCLIWithOutput(cfg, os.Stdout, os.Stderr)
}

// NewCLIWithOutput creates a CLI with custom output writers
func NewCLIWithOutput(cfg *Config, output, errorOut io.Writer) *CLI {
	if cfg == nil {
		cfg = NewConfig()
	}
	c := &CLI{
		config:   cfg,
		viper:    viper.New(),
		manager:  config.NewManager(),
		logger:   logger.NewNop(),
		console:  logger.NewConsoleLogger(output, errorOut),
		output:   output,
		errorOut: errorOut,
	}
	c.setupCommands()
	return c
}

// Execute runs the CLI with the given arguments
func (c *CLI) Execute(args []string) error {
	return c.ExecuteContext(context.Background(), args)
}

// ExecuteContext runs the CLI with context support
func (c *CLI) ExecuteContext(ctx context.Context, args []string) error {
	c.rootCmd.SetArgs(args)
	return c.rootCmd.ExecuteContext(ctx)
}

func (c *CLI) setupCommands() {
	c.rootCmd = &cobra.Command{
		Use:   "coreobjects",
		Short: "Incremental garbage collector for reflected object graphs",
		Long: `♻️ coreobjects - an incremental, time budgeted tracing collector

coreobjects keeps a universe of reflected objects, traces it a little at a
time under a per-call budget and destroys whatever became unreachable.`,
		SilenceUsage:      true,
		PersistentPreRunE: c.initializeConfig,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}
	c.rootCmd.SetOut(c.output)
	c.rootCmd.SetErr(c.errorOut)

	flags := c.rootCmd.PersistentFlags()
	flags.StringVar(&c.config.ConfigFile, "config", "", "config file (default: ./coreobjects.{json,yaml})")
	flags.StringVarP(&c.config.Verbosity, "verbosity", "v", "", "log level (debug, info, warn, error)")

	c.rootCmd.Version = c.config.Version
	c.rootCmd.SetVersionTemplate("♻️ coreobjects v{{.Version}}\n")

	c.rootCmd.AddCommand(c.newRunCmd())
	c.rootCmd.AddCommand(c.newSimulateCmd())
	c.rootCmd.AddCommand(c.newStatusCmd())
	c.rootCmd.AddCommand(c.newConfigCmd())
	c.rootCmd.AddCommand(c.newVersionCmd())
}

// initializeConfig locates the config file and sets up environment lookup
func (c *CLI) initializeConfig(cmd *cobra.Command, args []string) error {
	if c.config.ConfigFile != "" {
		c.viper.SetConfigFile(c.config.ConfigFile)
	} else {
		c.viper.AddConfigPath(".")
		c.viper.SetConfigName("coreobjects")
	}

	c.viper.SetEnvPrefix(EnvPrefix)
	c.viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.viper.AutomaticEnv()

	if err := c.viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}

	if err := c.viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}
	return nil
}

// overridden reports whether key was given as a flag or environment
// variable. Values from the config file go through the config manager so
// they share its duration parsing.
func (c *CLI) overridden(cmd *cobra.Command, key string) bool {
	if f := cmd.Flags().Lookup(key); f != nil && f.Changed {
		return true
	}
	_, ok := os.LookupEnv(EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_")))
	return ok
}

// loadConfig returns the configuration from the discovered file, or the
// defaults, with flag and environment overrides applied
func (c *CLI) loadConfig(cmd *cobra.Command) (*types.CollectorConfig, error) {
	cfg := c.manager.GetDefaultConfig()
	if path := c.viper.ConfigFileUsed(); path != "" {
		loaded, err := c.manager.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if c.overridden(cmd, "budget") {
		cfg.Budget = types.Duration(c.viper.GetDuration("budget"))
	}
	if c.overridden(cmd, "tick-interval") {
		cfg.TickInterval = types.Duration(c.viper.GetDuration("tick-interval"))
	}
	if cfg.Workload == nil {
		cfg.Workload = c.manager.GetDefaultConfig().Workload
	}
	if c.overridden(cmd, "seed") {
		cfg.Workload.Seed = c.viper.GetInt64("seed")
	}
	if c.overridden(cmd, "ticks") {
		cfg.Workload.Ticks = c.viper.GetInt("ticks")
	}
	if c.overridden(cmd, "churn") {
		cfg.Workload.Churn = c.viper.GetFloat64("churn")
	}
	if c.overridden(cmd, "metrics-address") {
		if cfg.Metrics == nil {
			cfg.Metrics = c.manager.GetDefaultConfig().Metrics
		}
		cfg.Metrics.Enabled = true
		cfg.Metrics.Address = c.viper.GetString("metrics-address")
	}
	if c.config.Verbosity != "" {
		cfg.LogLevel = types.LogLevel(c.config.Verbosity)
	}

	if err := c.manager.ValidateConfig(cfg); err != nil {
		return nil, err
	}

	level := string(cfg.LogLevel)
	if level == "" {
		level = string(types.LogLevelInfo)
	}
	if cfg.LogFile != "" {
		c.logger = logger.CreateLogger(cfg.LogFile, level)
	} else {
		c.logger = logger.CreateLoggerWithOutput("", level, c.errorOut)
	}
	return cfg, nil
}

// addCollectorFlags registers the flags shared by run and simulate
func addCollectorFlags(flags *pflag.FlagSet) {
	flags.Duration("budget", 0, "time budget per Collect call (0 runs whole cycles)")
	flags.Duration("tick-interval", 0, "time between engine ticks")
	flags.Int64("seed", 0, "workload random seed")
	flags.Float64("churn", 0, "fraction of live actors mutated per tick")
}
