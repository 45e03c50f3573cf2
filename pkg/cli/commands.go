package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/coreobjects/coreobjects/internal/engine"
	"github.com/coreobjects/coreobjects/internal/state"
	"github.com/coreobjects/coreobjects/internal/workload"
	"github.com/coreobjects/coreobjects/pkg/gc"
	"github.com/coreobjects/coreobjects/pkg/logger"
	"github.com/coreobjects/coreobjects/pkg/object"
	"github.com/coreobjects/coreobjects/pkg/types"
)

// SimulationResult is the summary printed by simulate
type SimulationResult struct {
	Seed     int64               `json:"seed"`
	Ticks    int                 `json:"ticks"`
	Objects  int                 `json:"objects"`
	Cleared  int                 `json:"cleared"`
	Cycles   []types.CycleReport `json:"cycles"`
	Workload workload.Stats      `json:"workload"`
}

func (c *CLI) newRunCmd() *cobra.Command {
	var (
		duration  time.Duration
		stateFile string
		heartbeat time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the collector engine over a churning synthetic scene",
		Long: `Run populates a synthetic scene, then ticks the engine until interrupted.
Every tick mutates the scene and advances the collector by one budget. The
configuration file is watched and budget or tick interval changes apply live.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runEngine(cmd, duration, stateFile, heartbeat)
		},
	}
	addCollectorFlags(cmd.Flags())
	cmd.Flags().String("metrics-address", "", "serve prometheus metrics on this address")
	cmd.Flags().DurationVar(&duration, "duration", 0, "stop after this long (0 runs until interrupted)")
	cmd.Flags().StringVar(&stateFile, "state-file", "", "write engine status to this file")
	cmd.Flags().DurationVar(&heartbeat, "heartbeat", time.Second, "how often the status file is rewritten")
	return cmd
}

func (c *CLI) runEngine(cmd *cobra.Command, duration time.Duration, stateFile string, heartbeat time.Duration) error {
	ctx := cmd.Context()
	cfg, err := c.loadConfig(cmd)
	if err != nil {
		return err
	}

	u, gen, err := c.newScene(cfg)
	if err != nil {
		return err
	}

	opts := []engine.Option{
		engine.WithTickFunc(func(_ context.Context, u *object.Universe, _ uint64) error {
			return gen.Tick(u)
		}),
	}
	if path := c.viper.ConfigFileUsed(); path != "" {
		opts = append(opts, engine.WithConfigPath(path))
	}
	e := engine.New(u, cfg, c.logger, opts...)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	var sm *state.StateManager
	if stateFile != "" {
		sm = state.NewStateManager(stateFile, c.logger)
		if _, err := sm.Initialize(); err != nil {
			return err
		}
	}

	if err := e.Start(ctx); err != nil {
		if sm != nil {
			_ = sm.Cleanup(err)
		}
		return err
	}
	if sm != nil {
		if heartbeat <= 0 {
			heartbeat = time.Second
		}
		sm.StartHeartbeat(ctx, heartbeat, sampleEngine(e))
	}
	if addr := e.MetricsAddr(); addr != "" {
		c.console.Info(fmt.Sprintf("Metrics on http://%s%s", addr, cfg.Metrics.Path))
	}
	c.console.Info("Engine running, press Ctrl+C to stop")

	select {
	case <-ctx.Done():
	case <-waitChan(e):
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	runErr := e.Stop(stopCtx)
	if errors.Is(runErr, engine.ErrEngineNotRunning) {
		runErr = nil
	}
	if runErr == nil {
		runErr = e.Err()
	}
	if sm != nil {
		sm.StopHeartbeat()
		if err := sm.Beat(stopCtx, finalSample(e)); err != nil {
			c.logger.Warn("Failed to write final status", logger.WithField("error", err))
		}
		if err := sm.Cleanup(runErr); err != nil {
			c.logger.Warn("Failed to mark run finished", logger.WithField("error", err))
		}
	}
	if runErr != nil {
		return runErr
	}

	report := e.LastReport()
	c.console.Success(fmt.Sprintf("Stopped after %d ticks, last cycle cleared %d objects",
		e.Ticks(), report.ObjectsCleared))
	return nil
}

// sampleEngine reads collector state on the engine goroutine
func sampleEngine(e *engine.Engine) state.SampleFunc {
	return func(ctx context.Context, s *state.EngineState) error {
		var (
			objects int
			gcState types.GCState
		)
		err := e.Submit(ctx, func(u *object.Universe) {
			objects = u.ObjectCount()
			gcState = e.Collector().State()
		})
		if err == nil {
			s.Objects, s.GCState = objects, gcState
		}
		fillReport(e, s)
		return err
	}
}

// finalSample only uses fields that stay readable after the engine stopped
func finalSample(e *engine.Engine) state.SampleFunc {
	return func(_ context.Context, s *state.EngineState) error {
		fillReport(e, s)
		return nil
	}
}

func fillReport(e *engine.Engine, s *state.EngineState) {
	s.Ticks = e.Ticks()
	if report := e.LastReport(); report.CycleID != "" {
		s.LastCycle = &report
	}
}

func waitChan(e *engine.Engine) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		e.Wait()
		close(ch)
	}()
	return ch
}

func (c *CLI) newSimulateCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a deterministic simulation and print a summary",
		Long: `Simulate runs the workload for a fixed number of ticks without wall clock
pacing. The same seed always produces the same scene and the same result.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(cmd)
			if err != nil {
				return err
			}
			result, err := c.simulate(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return c.printSimulation(result, asJSON)
		},
	}
	addCollectorFlags(cmd.Flags())
	cmd.Flags().Int("ticks", 0, "number of ticks to simulate")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

func (c *CLI) simulate(ctx context.Context, cfg *types.CollectorConfig) (*SimulationResult, error) {
	u, gen, err := c.newScene(cfg)
	if err != nil {
		return nil, err
	}
	collector := gc.NewCollector(u, gc.WithLogger(c.logger))

	result := &SimulationResult{Seed: cfg.Workload.Seed, Ticks: cfg.Workload.Ticks}
	for i := 0; i < cfg.Workload.Ticks; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := gen.Tick(u); err != nil {
			return nil, fmt.Errorf("tick %d: %w", i+1, err)
		}
		collector.Collect(cfg.Budget.Std())
		if collector.IsGCComplete() {
			result.Cycles = append(result.Cycles, collector.Stats())
		}
	}

	// Drain the cycle in flight so the summary reflects a settled scene
	if !collector.IsGCComplete() {
		collector.Collect(0)
		result.Cycles = append(result.Cycles, collector.Stats())
	}

	for _, r := range result.Cycles {
		result.Cleared += r.ObjectsCleared
	}
	result.Objects = u.ObjectCount()
	result.Workload = gen.Stats()
	return result, nil
}

func (c *CLI) newScene(cfg *types.CollectorConfig) (*object.Universe, *workload.Generator, error) {
	u := object.NewUniverse(object.WithLogger(c.logger))
	if err := workload.RegisterClasses(u); err != nil {
		return nil, nil, err
	}
	gen := workload.New(*cfg.Workload, c.logger)
	if err := gen.Populate(u); err != nil {
		return nil, nil, fmt.Errorf("failed to populate scene: %w", err)
	}
	return u, gen, nil
}

func (c *CLI) printSimulation(r *SimulationResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(c.output)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}

	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(c.output, "%s\n", bold("Simulation summary"))
	fmt.Fprintf(c.output, "  Seed:      %d\n", r.Seed)
	fmt.Fprintf(c.output, "  Ticks:     %d\n", r.Ticks)
	fmt.Fprintf(c.output, "  Cycles:    %d\n", len(r.Cycles))
	fmt.Fprintf(c.output, "  Cleared:   %d\n", r.Cleared)
	fmt.Fprintf(c.output, "  Objects:   %d\n", r.Objects)
	fmt.Fprintf(c.output, "  Created:   %d  Condemned: %d  Rewired: %d  Dropped: %d\n",
		r.Workload.Created, r.Workload.Condemned, r.Workload.Rewired, r.Workload.Dropped)
	return nil
}

func (c *CLI) newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create and check configuration files",
	}
	cmd.AddCommand(c.newConfigInitCmd())
	cmd.AddCommand(c.newConfigValidateCmd())
	return cmd
}

func (c *CLI) newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a default configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "coreobjects.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", path)
			}

			if err := c.manager.SaveConfig(c.manager.GetDefaultConfig(), path); err != nil {
				return err
			}
			abs, _ := filepath.Abs(path)
			c.console.Success(fmt.Sprintf("Created %s", abs))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	return cmd
}

func (c *CLI) newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [path]",
		Short: "Validate a configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := c.viper.ConfigFileUsed()
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return fmt.Errorf("no configuration file found")
			}

			cfg, err := c.manager.LoadConfig(path)
			if err != nil {
				c.console.Error(fmt.Sprintf("%s is invalid: %v", path, err))
				return err
			}

			c.console.Success(fmt.Sprintf("%s is valid", path))
			fields := []string{
				fmt.Sprintf("budget=%s", cfg.Budget.Std()),
				fmt.Sprintf("tickInterval=%s", cfg.TickInterval.Std()),
			}
			if cfg.Metrics != nil && cfg.Metrics.Enabled {
				fields = append(fields, fmt.Sprintf("metrics=%s%s", cfg.Metrics.Address, cfg.Metrics.Path))
			}
			c.console.Info(strings.Join(fields, " "))
			return nil
		},
	}
}

func (c *CLI) newStatusCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status <state-file>",
		Short: "Show the status written by run --state-file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := state.ReadState(args[0])
			if err != nil {
				return fmt.Errorf("failed to read status: %w", err)
			}
			locked, err := state.IsLocked(args[0])
			if err != nil {
				return err
			}
			return c.printStatus(s, locked, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the status as JSON")
	return cmd
}

func (c *CLI) printStatus(s *state.EngineState, live bool, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(c.output)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}

	bold := color.New(color.Bold).SprintFunc()
	status := color.New(color.FgYellow).Sprint("stopped")
	switch {
	case live:
		status = color.New(color.FgGreen).Sprint("running")
	case s.Running:
		status = color.New(color.FgRed).Sprint("stale")
	}

	fmt.Fprintf(c.output, "%s %s (pid %d)\n", bold("Engine"), status, s.ProcessID)
	fmt.Fprintf(c.output, "  Heartbeat: %s\n", s.Heartbeat.Format(time.RFC3339))
	fmt.Fprintf(c.output, "  Ticks:     %d\n", s.Ticks)
	fmt.Fprintf(c.output, "  Objects:   %d\n", s.Objects)
	fmt.Fprintf(c.output, "  Cycles:    %d\n", s.Cycles)
	if s.LastCycle != nil {
		fmt.Fprintf(c.output, "  Last cycle: %s cleared %d of %d scanned\n",
			s.LastCycle.CycleID, s.LastCycle.ObjectsCleared, s.LastCycle.ObjectsScanned)
	}
	if s.LastError != "" {
		fmt.Fprintf(c.output, "  Error:     %s\n", s.LastError)
	}
	return nil
}

func (c *CLI) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(c.output, "♻️ coreobjects v%s\n", c.config.Version)
		},
	}
}
