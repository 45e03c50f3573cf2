// Package types provides core types and configurations for coreobjects
package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ObjectFlags is the bitset carried by every managed object
type ObjectFlags uint64

const (
	// FlagDefault marks the per-class default object. Never collected.
	FlagDefault ObjectFlags = 1 << iota
	// FlagMarkedForDelete condemns an object; the next cycle destroys it
	// whether or not it is referenced and severs references to it.
	FlagMarkedForDelete
	// FlagGCPurge is set when the whole object universe is being torn down
	FlagGCPurge
	// FlagRootObject exempts an object from reachability based collection
	FlagRootObject
	// FlagTransient objects are never serialized with their package
	FlagTransient
	// Package and template state bits, reserved for package loading and
	// object templates. The collector never sets or reads them.
	FlagPackageDirty
	FlagPackageLoadPending
	FlagPackageLoaded
	FlagTemplateDefault
	FlagFromTemplate
	// FlagDeleted is set once the object has been destroyed
	FlagDeleted
)

var flagNames = []struct {
	flag ObjectFlags
	name string
}{
	{FlagDefault, "Default"},
	{FlagMarkedForDelete, "MarkedForDelete"},
	{FlagGCPurge, "GCPurge"},
	{FlagRootObject, "RootObject"},
	{FlagTransient, "Transient"},
	{FlagPackageDirty, "PackageDirty"},
	{FlagPackageLoadPending, "PackageLoadPending"},
	{FlagPackageLoaded, "PackageLoaded"},
	{FlagTemplateDefault, "TemplateDefault"},
	{FlagFromTemplate, "FromTemplate"},
	{FlagDeleted, "Deleted"},
}

// Has reports whether every bit of mask is set
func (f ObjectFlags) Has(mask ObjectFlags) bool { return f&mask == mask }

// HasAny reports whether at least one bit of mask is set
func (f ObjectFlags) HasAny(mask ObjectFlags) bool { return f&mask != 0 }

// With returns f with mask set
func (f ObjectFlags) With(mask ObjectFlags) ObjectFlags { return f | mask }

// Without returns f with mask cleared
func (f ObjectFlags) Without(mask ObjectFlags) ObjectFlags { return f &^ mask }

// String renders the set bits as "A|B"
func (f ObjectFlags) String() string {
	if f == 0 {
		return "None"
	}
	var names []string
	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			names = append(names, fn.name)
		}
	}
	return strings.Join(names, "|")
}

// AllocIdx is a slot index inside a per-class allocator
type AllocIdx uint32

// DbIdx is a node handle inside the objects database
type DbIdx uint64

const (
	InvalidAllocIdx AllocIdx = ^AllocIdx(0)
	InvalidDbIdx    DbIdx    = ^DbIdx(0)
)

// GCState represents the phase the incremental collector is in
type GCState string

const (
	GCStateNew        GCState = "new"
	GCStateCollecting GCState = "collecting"
	GCStateClearing   GCState = "clearing"
)

// MarkStep is the sub-step of the collecting phase
type MarkStep string

const (
	MarkStepRoots    MarkStep = "roots"
	MarkStepPackages MarkStep = "packages"
	MarkStepExternal MarkStep = "external"
	MarkStepTrace    MarkStep = "trace"
)

// LogLevel represents logging verbosity levels
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Duration is a time.Duration that reads "2ms" style strings or plain
// millisecond numbers from configuration files
type Duration time.Duration

// MarshalJSON implements json.Marshaler
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case float64:
		*d = Duration(time.Duration(v * float64(time.Millisecond)))
		return nil
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
		return nil
	default:
		return fmt.Errorf("invalid duration: %s", string(data))
	}
}

// Std returns the standard library duration
func (d Duration) Std() time.Duration { return time.Duration(d) }

// MetricsConfig configures the prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Address string `json:"address,omitempty" yaml:"address,omitempty"`
	Path    string `json:"path,omitempty" yaml:"path,omitempty"`
}

// WorkloadConfig shapes the synthetic object scene used by simulations
type WorkloadConfig struct {
	Seed              int64   `json:"seed" yaml:"seed"`
	Packages          int     `json:"packages" yaml:"packages"`
	ObjectsPerPackage int     `json:"objectsPerPackage" yaml:"objectsPerPackage"`
	Churn             float64 `json:"churn" yaml:"churn"`
	Ticks             int     `json:"ticks" yaml:"ticks"`
}

// CollectorConfig represents the complete coreobjects configuration
type CollectorConfig struct {
	Version      string          `json:"version" yaml:"version"`
	Budget       Duration        `json:"budget" yaml:"budget"`
	TickInterval Duration        `json:"tickInterval" yaml:"tickInterval"`
	LogLevel     LogLevel        `json:"logLevel,omitempty" yaml:"logLevel,omitempty"`
	LogFile      string          `json:"logFile,omitempty" yaml:"logFile,omitempty"`
	Metrics      *MetricsConfig  `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Workload     *WorkloadConfig `json:"workload,omitempty" yaml:"workload,omitempty"`
}

// PhaseTimings accumulates time spent in each collector phase
type PhaseTimings struct {
	MarkRoots     time.Duration `json:"markRoots"`
	RefCollectors time.Duration `json:"refCollectors"`
	Collection    time.Duration `json:"collection"`
	Clear         time.Duration `json:"clear"`
}

// Total returns the sum of all phases
func (p PhaseTimings) Total() time.Duration {
	return p.MarkRoots + p.RefCollectors + p.Collection + p.Clear
}

// CycleReport summarises one completed collection cycle
type CycleReport struct {
	CycleID        string       `json:"cycleId"`
	StartedAt      time.Time    `json:"startedAt"`
	CompletedAt    time.Time    `json:"completedAt"`
	CollectCalls   int          `json:"collectCalls"`
	ObjectsScanned int          `json:"objectsScanned"`
	ObjectsCleared int          `json:"objectsCleared"`
	KeysDropped    int          `json:"keysDropped,omitempty"`
	Timings        PhaseTimings `json:"timings"`
}
