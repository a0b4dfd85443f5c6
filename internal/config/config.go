// Copyright 2024 LatentFS Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the global (per-machine) and per-project YAML
// settings that parameterize an Engine, grounded on the teacher's
// internal/daemon/config.go: the same getConfigDir/EnsureConfigDir/
// embedded-default shape, generalized from LatentFS's autosave/mount
// settings to the engine's timing constants and worker command.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"texpressocore/internal/artifacts"
)

// getConfigDir returns the config directory, honoring
// TEXPRESSO_CONFIG_DIR for test isolation the way the teacher's
// LATENTFS_CONFIG_DIR does.
func getConfigDir() string {
	if dir := os.Getenv("TEXPRESSO_CONFIG_DIR"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".texpresso-core")
}

// ConfigDir returns the configuration directory path.
func ConfigDir() string {
	return getConfigDir()
}

// GlobalSettingsPath returns the global settings file path.
func GlobalSettingsPath() string {
	return filepath.Join(getConfigDir(), "settings.yaml")
}

// EnsureConfigDir creates the config directory if it doesn't exist.
func EnsureConfigDir() error {
	return os.MkdirAll(getConfigDir(), 0700)
}

// InitConfigDir creates the config directory and writes the embedded
// default global settings file if one is not already present.
func InitConfigDir() error {
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	path := GlobalSettingsPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, artifacts.GlobalSettings, 0600); err != nil {
			return fmt.Errorf("failed to create default settings: %w", err)
		}
	}
	return nil
}

// GlobalSettings holds machine-wide defaults, loaded from
// ~/.texpresso-core/settings.yaml.
type GlobalSettings struct {
	LogLevel string `yaml:"log_level"` // trace, debug, info, warn, off (default: off)

	// SnapshotHysteresisMillis overrides need_snapshot's 500ms thrash
	// guard (spec.md §4.7). Zero keeps the built-in default.
	SnapshotHysteresisMillis int64 `yaml:"snapshot_hysteresis_millis"`

	// Fence timing overrides for compute_fences (spec.md §4.9). Zero
	// fields keep the built-in defaults.
	FenceReadClampBytes    int64 `yaml:"fence_read_clamp_bytes"`
	FenceInitialGapMillis  int64 `yaml:"fence_initial_gap_millis"`
	FenceLeadMillis        int64 `yaml:"fence_lead_millis"`

	// EarlyForkUnsafe gates need_snapshot condition (a) behind the
	// decoder having produced output, for platforms where an early
	// fork is unsafe (spec.md §4.7). Defaults to false.
	EarlyForkUnsafe bool `yaml:"early_fork_unsafe"`
}

// LoadGlobalSettings loads settings.yaml, falling back to the embedded
// defaults if the file doesn't exist yet.
func LoadGlobalSettings() (*GlobalSettings, error) {
	data, err := os.ReadFile(GlobalSettingsPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		data = artifacts.GlobalSettings
	}
	var s GlobalSettings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse %s: %w", GlobalSettingsPath(), err)
	}
	return &s, nil
}

// SaveGlobalSettings writes settings back to disk.
func SaveGlobalSettings(s *GlobalSettings) error {
	if err := EnsureConfigDir(); err != nil {
		return err
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(GlobalSettingsPath(), data, 0600)
}

// ProjectConfig is the per-document configuration living at
// {projectDir}/.texpresso/config.yaml: which worker to spawn and where
// it should look for bare (non-absolute) filenames.
type ProjectConfig struct {
	// WorkerCommand is the compiler worker binary and leading
	// arguments, passed to internal/spawn.Options.Command.
	WorkerCommand []string `yaml:"worker_command"`

	// InclusionPath lists the directories searched, in order, when
	// resolving a bare filename (spec.md §4.2's inclusion path).
	InclusionPath []string `yaml:"inclusion_path"`

	// EarlyForkUnsafe overrides the global setting for this project.
	EarlyForkUnsafe *bool `yaml:"early_fork_unsafe"`
}

// ApplyDefaults fills zero-value fields with their defaults.
func (cfg *ProjectConfig) ApplyDefaults() {
	if cfg.InclusionPath == nil {
		cfg.InclusionPath = []string{"."}
	}
}

// LoadProjectConfig loads {projectDir}/.texpresso/config.yaml. Returns
// nil (not an error) if the file does not exist, matching the
// teacher's LoadProjectConfig contract.
func LoadProjectConfig(projectDir string) (*ProjectConfig, error) {
	if projectDir == "" {
		return nil, nil
	}
	path := filepath.Join(projectDir, ".texpresso", "config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var cfg ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// LoggingEnabled reports whether log_level names a level: it is false
// when log_level is empty, "off" or "none" (case-insensitive).
func (s *GlobalSettings) LoggingEnabled() bool {
	level := strings.ToLower(s.LogLevel)
	return level != "" && level != "off" && level != "none"
}
