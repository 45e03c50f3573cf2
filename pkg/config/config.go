// Package config handles configuration loading and management
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/coreobjects/coreobjects/pkg/types"
	"gopkg.in/yaml.v3"
)

// CurrentVersion is the only configuration version understood
const CurrentVersion = "1.0"

// ErrUnsupportedVersion is returned for configuration files of another version
var ErrUnsupportedVersion = errors.New("unsupported config version")

// Manager handles configuration operations
type Manager struct{}

// NewManager creates a new configuration manager
func NewManager() *Manager {
	return &Manager{}
}

// LoadConfig loads configuration from a file
func (m *Manager) LoadConfig(path string) (*types.CollectorConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return m.ParseConfig(data)
}

// ParseConfig parses JSON or YAML configuration data and validates it.
// Missing fields take their default values.
func (m *Manager) ParseConfig(data []byte) (*types.CollectorConfig, error) {
	cfg := m.GetDefaultConfig()

	// Try JSON first
	if err := json.Unmarshal(data, cfg); err == nil {
		return m.validateConfig(cfg)
	}

	// YAML goes through JSON so durations share one decoder
	var yamlData map[string]interface{}
	if err := yaml.Unmarshal(data, &yamlData); err != nil {
		return nil, fmt.Errorf("failed to parse config as JSON or YAML: %w", err)
	}
	jsonData, err := json.Marshal(yamlData)
	if err != nil {
		return nil, fmt.Errorf("failed to convert YAML config: %w", err)
	}
	cfg = m.GetDefaultConfig()
	if err := json.Unmarshal(jsonData, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config as JSON or YAML: %w", err)
	}
	return m.validateConfig(cfg)
}

// ValidateConfig validates a configuration
func (m *Manager) ValidateConfig(config *types.CollectorConfig) error {
	if config.Version != CurrentVersion {
		return fmt.Errorf("%w: %s", ErrUnsupportedVersion, config.Version)
	}
	if config.Budget.Std() < 0 {
		return fmt.Errorf("budget must not be negative: %s", config.Budget.Std())
	}
	if config.TickInterval.Std() <= 0 {
		return fmt.Errorf("tick interval must be positive: %s", config.TickInterval.Std())
	}

	switch config.LogLevel {
	case "", types.LogLevelDebug, types.LogLevelInfo, types.LogLevelWarn, types.LogLevelError:
	default:
		return fmt.Errorf("invalid log level: %s", config.LogLevel)
	}

	if config.Metrics != nil && config.Metrics.Enabled {
		if config.Metrics.Address == "" {
			return fmt.Errorf("metrics: missing address")
		}
		if !strings.HasPrefix(config.Metrics.Path, "/") {
			return fmt.Errorf("metrics: path must start with /: %q", config.Metrics.Path)
		}
	}

	if w := config.Workload; w != nil {
		if w.Packages < 0 || w.ObjectsPerPackage < 0 || w.Ticks < 0 {
			return fmt.Errorf("workload: counts must not be negative")
		}
		if w.Churn < 0 || w.Churn > 1 {
			return fmt.Errorf("workload: churn must be within [0, 1], got %v", w.Churn)
		}
	}
	return nil
}

// GetDefaultConfig returns the default configuration
func (m *Manager) GetDefaultConfig() *types.CollectorConfig {
	return &types.CollectorConfig{
		Version:      CurrentVersion,
		Budget:       types.Duration(2 * time.Millisecond),
		TickInterval: types.Duration(16 * time.Millisecond),
		LogLevel:     types.LogLevelInfo,
		Metrics: &types.MetricsConfig{
			Enabled: false,
			Address: ":9464",
			Path:    "/metrics",
		},
		Workload: &types.WorkloadConfig{
			Seed:              1,
			Packages:          4,
			ObjectsPerPackage: 64,
			Churn:             0.1,
			Ticks:             120,
		},
	}
}

// SaveConfig writes config to path, as YAML when the extension says so
// and as indented JSON otherwise
func (m *Manager) SaveConfig(config *types.CollectorConfig, path string) error {
	if err := m.ValidateConfig(config); err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var generic map[string]interface{}
		if err := json.Unmarshal(data, &generic); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		if data, err = yaml.Marshal(generic); err != nil {
			return fmt.Errorf("failed to encode config as YAML: %w", err)
		}
	default:
		data = append(data, '\n')
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func (m *Manager) validateConfig(cfg *types.CollectorConfig) (*types.CollectorConfig, error) {
	if err := m.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
