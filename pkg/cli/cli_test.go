package cli_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/coreobjects/coreobjects/internal/state"
	"github.com/coreobjects/coreobjects/pkg/cli"
	"github.com/coreobjects/coreobjects/pkg/config"
)

func newCLI() (*cli.CLI, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	c := cli.NewCLIWithOutput(&cli.Config{Version: "1.2.3"}, &out, &errOut)
	return c, &out, &errOut
}

func simulate(t *testing.T, args ...string) cli.SimulationResult {
	t.Helper()
	c, out, errOut := newCLI()
	args = append([]string{"simulate", "--json", "-v", "error"}, args...)
	if err := c.Execute(args); err != nil {
		t.Fatalf("simulate failed: %v\n%s", err, errOut.String())
	}

	var result cli.SimulationResult
	if err := json.Unmarshal(out.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode output: %v\n%s", err, out.String())
	}
	return result
}

func TestVersionCommand(t *testing.T) {
	c, out, _ := newCLI()
	if err := c.Execute([]string{"version"}); err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(out.String(), "1.2.3") {
		t.Errorf("expected version in output, got %q", out.String())
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	tests := []struct {
		name string
		file string
	}{
		{"yaml", "coreobjects.yaml"},
		{"json", "coreobjects.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)

			c, out, _ := newCLI()
			if err := c.Execute([]string{"config", "init", path}); err != nil {
				t.Fatalf("config init failed: %v", err)
			}
			if !strings.Contains(out.String(), "Created") {
				t.Errorf("unexpected output %q", out.String())
			}
			if _, err := config.NewManager().LoadConfig(path); err != nil {
				t.Fatalf("written config does not load: %v", err)
			}

			c, _, _ = newCLI()
			if err := c.Execute([]string{"config", "init", path}); err == nil {
				t.Error("expected error when the file exists")
			}
			c, _, _ = newCLI()
			if err := c.Execute([]string{"config", "init", "--force", path}); err != nil {
				t.Errorf("--force should overwrite: %v", err)
			}

			c, out, _ = newCLI()
			if err := c.Execute([]string{"--config", path, "config", "validate"}); err != nil {
				t.Fatalf("config validate failed: %v", err)
			}
			if !strings.Contains(out.String(), "is valid") {
				t.Errorf("unexpected output %q", out.String())
			}
		})
	}
}

func TestConfigValidate_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte(`{"version": "9"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	c, _, errOut := newCLI()
	if err := c.Execute([]string{"config", "validate", path}); err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(errOut.String(), "is invalid") {
		t.Errorf("expected error output, got %q", errOut.String())
	}
}

func TestSimulate_Deterministic(t *testing.T) {
	first := simulate(t, "--seed", "11", "--ticks", "6")
	second := simulate(t, "--seed", "11", "--ticks", "6")

	if first.Seed != 11 || first.Ticks != 6 {
		t.Errorf("flags not applied: %+v", first)
	}
	if first.Objects != second.Objects || first.Cleared != second.Cleared {
		t.Errorf("same seed gave different results: %+v vs %+v", first, second)
	}
	if first.Workload != second.Workload {
		t.Errorf("same seed gave different workloads: %+v vs %+v", first.Workload, second.Workload)
	}
	if len(first.Cycles) == 0 {
		t.Error("expected completed cycles")
	}
}

func TestSimulate_TinyBudgetStillCompletes(t *testing.T) {
	result := simulate(t, "--seed", "3", "--ticks", "4", "--budget", "1ns")
	if len(result.Cycles) == 0 {
		t.Fatal("expected at least the drained cycle")
	}
	last := result.Cycles[len(result.Cycles)-1]
	if last.CycleID == "" {
		t.Error("expected a cycle ID")
	}
}

func TestSimulate_EnvOverride(t *testing.T) {
	t.Setenv("COREOBJECTS_SEED", "77")
	result := simulate(t, "--ticks", "1")
	if result.Seed != 77 {
		t.Errorf("expected seed from environment, got %d", result.Seed)
	}
}

func TestSimulate_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sim.yaml")
	content := `version: "1.0"
budget: 0
tickInterval: 16ms
workload:
  seed: 5
  packages: 2
  objectsPerPackage: 10
  churn: 0.2
  ticks: 3
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	result := simulate(t, "--config", path)
	if result.Seed != 5 || result.Ticks != 3 {
		t.Errorf("config file not applied: %+v", result)
	}
	if len(result.Cycles) != 3 {
		t.Errorf("unbounded budget should complete one cycle per tick, got %d", len(result.Cycles))
	}
}

func TestSimulate_InvalidFlags(t *testing.T) {
	c, _, _ := newCLI()
	if err := c.Execute([]string{"simulate", "--churn", "2"}); err == nil {
		t.Error("expected churn validation error")
	}
}

func TestRun_StopsAfterDuration(t *testing.T) {
	c, out, errOut := newCLI()
	args := []string{"run", "-v", "error", "--duration", "100ms", "--tick-interval", "5ms"}
	if err := c.Execute(args); err != nil {
		t.Fatalf("run failed: %v\n%s", err, errOut.String())
	}
	if !strings.Contains(out.String(), "Stopped after") {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestRun_WritesStateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.json")
	c, _, errOut := newCLI()
	args := []string{"run", "-v", "error", "--duration", "150ms", "--tick-interval", "5ms",
		"--state-file", path, "--heartbeat", "20ms"}
	if err := c.Execute(args); err != nil {
		t.Fatalf("run failed: %v\n%s", err, errOut.String())
	}

	s, err := state.ReadState(path)
	if err != nil {
		t.Fatalf("failed to read state file: %v", err)
	}
	if s.Running {
		t.Error("expected the run to be marked finished")
	}
	if s.ProcessID != os.Getpid() {
		t.Errorf("expected pid %d, got %d", os.Getpid(), s.ProcessID)
	}
	if s.Ticks == 0 {
		t.Error("expected ticks to be recorded")
	}

	c, out, errOut := newCLI()
	if err := c.Execute([]string{"status", path}); err != nil {
		t.Fatalf("status failed: %v\n%s", err, errOut.String())
	}
	if !strings.Contains(out.String(), "stopped") {
		t.Errorf("unexpected status output %q", out.String())
	}

	c, out, _ = newCLI()
	if err := c.Execute([]string{"status", "--json", path}); err != nil {
		t.Fatalf("status --json failed: %v", err)
	}
	var decoded state.EngineState
	if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("failed to decode status: %v\n%s", err, out.String())
	}
	if decoded.Ticks != s.Ticks {
		t.Errorf("expected %d ticks, got %d", s.Ticks, decoded.Ticks)
	}
}

func TestStatus_MissingFile(t *testing.T) {
	c, _, _ := newCLI()
	if err := c.Execute([]string{"status", filepath.Join(t.TempDir(), "none.json")}); err == nil {
		t.Error("expected error for missing status file")
	}
}
