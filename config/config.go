// Package config loads and validates the Configuration capability (C14):
// YAML-sourced bounds for the tool invocation layer and the approval gate.
// Unlike state.New's max_iterations clamping, out-of-bounds values here fail
// the load rather than silently clamping, so a misconfigured deployment is
// caught at startup instead of silently running with a different budget
// than the operator intended.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration document, typically loaded from
// researchd.yaml.
type Config struct {
	Tooling  ToolingConfig  `yaml:"tooling"`
	Approval ApprovalConfig `yaml:"approval"`
	LLM      LLMConfig      `yaml:"llm"`
	Storage  StorageConfig  `yaml:"storage"`
}

// ToolingConfig bounds the C1 invocation layer.
type ToolingConfig struct {
	MaxToolCallsPerRun int           `yaml:"max_tool_calls_per_run"`
	MaxRepeats         int           `yaml:"max_repeats"`
	ToolTimeout        time.Duration `yaml:"tool_timeout"`
}

// ApprovalConfig bounds the C5 approval gate.
type ApprovalConfig struct {
	Timeout         time.Duration `yaml:"timeout"`
	ConfidenceFloor float64       `yaml:"confidence_floor"`
}

// LLMConfig selects and configures the model binding.
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // "anthropic" or "openai"
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// StorageConfig selects the run/memory persistence backend.
type StorageConfig struct {
	Backend  string `yaml:"backend"` // "inmem" or "mongo"
	MongoURI string `yaml:"mongo_uri"`
	Database string `yaml:"database"`
}

const (
	// MaxToolCallsPerRunHardCap mirrors tooling.MaxToolCallsPerRun; the
	// config's value is rejected above this.
	MaxToolCallsPerRunHardCap = 50

	minToolTimeout = 1 * time.Second
	maxToolTimeout = 120 * time.Second

	minApprovalTimeout = 1 * time.Second
	maxApprovalTimeout = 900 * time.Second

	defaultMaxRepeats = 3
)

// Default returns a Config with every bound set to the tooling package's
// documented defaults.
func Default() Config {
	return Config{
		Tooling: ToolingConfig{
			MaxToolCallsPerRun: MaxToolCallsPerRunHardCap,
			MaxRepeats:         defaultMaxRepeats,
			ToolTimeout:        30 * time.Second,
		},
		Approval: ApprovalConfig{
			Timeout:         300 * time.Second,
			ConfidenceFloor: 0.85,
		},
		LLM: LLMConfig{
			Provider:    "anthropic",
			Model:       "claude-sonnet-4-20250514",
			Temperature: 0.2,
			MaxTokens:   4096,
		},
		Storage: StorageConfig{Backend: "inmem"},
	}
}

// Load reads and validates a YAML configuration file at path, merging onto
// Default() so an omitted section keeps its default values intact.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every bound and fails closed: it returns an error rather
// than clamping an out-of-range value, so misconfiguration surfaces at
// startup instead of silently changing runtime behavior. The one exception
// to fail-closed bounds handling in this module is state.New's
// max_iterations clamp, which belongs to the research state machine, not
// this ambient configuration.
func Validate(cfg Config) error {
	if cfg.Tooling.MaxToolCallsPerRun <= 0 || cfg.Tooling.MaxToolCallsPerRun > MaxToolCallsPerRunHardCap {
		return fmt.Errorf("tooling.max_tool_calls_per_run must be in (0, %d], got %d", MaxToolCallsPerRunHardCap, cfg.Tooling.MaxToolCallsPerRun)
	}
	if cfg.Tooling.MaxRepeats <= 0 {
		return fmt.Errorf("tooling.max_repeats must be positive, got %d", cfg.Tooling.MaxRepeats)
	}
	if cfg.Tooling.ToolTimeout < minToolTimeout || cfg.Tooling.ToolTimeout > maxToolTimeout {
		return fmt.Errorf("tooling.tool_timeout must be in [%s, %s], got %s", minToolTimeout, maxToolTimeout, cfg.Tooling.ToolTimeout)
	}
	if cfg.Approval.Timeout < minApprovalTimeout || cfg.Approval.Timeout > maxApprovalTimeout {
		return fmt.Errorf("approval.timeout must be in [%s, %s], got %s", minApprovalTimeout, maxApprovalTimeout, cfg.Approval.Timeout)
	}
	if cfg.Approval.ConfidenceFloor < 0 || cfg.Approval.ConfidenceFloor > 1 {
		return fmt.Errorf("approval.confidence_floor must be in [0, 1], got %v", cfg.Approval.ConfidenceFloor)
	}
	switch cfg.LLM.Provider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("llm.provider must be \"anthropic\" or \"openai\", got %q", cfg.LLM.Provider)
	}
	switch cfg.Storage.Backend {
	case "inmem", "mongo":
	default:
		return fmt.Errorf("storage.backend must be \"inmem\" or \"mongo\", got %q", cfg.Storage.Backend)
	}
	if cfg.Storage.Backend == "mongo" && cfg.Storage.MongoURI == "" {
		return fmt.Errorf("storage.mongo_uri is required when storage.backend is \"mongo\"")
	}
	return nil
}
