package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// DirName is the name of the global (~/.brsave) and repo (.brsave) config directories.
const DirName = ".brsave"

// Config holds application configuration.
type Config struct {
	// SharedSchemaFolders lists folder names whose .mps files share one
	// <Folder>Shared.schema found in the folder or one of its ancestors.
	SharedSchemaFolders []string `json:"shared_schema_folders,omitempty"`

	// DumpDir is the base directory for filesystem dumps.
	// A dump of save "world" is written to DumpDir/world.
	DumpDir string `json:"dump_dir,omitempty"`

	// LogLevel is one of trace, debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty"`

	// DataModes are path-pattern rules that attach global lookup context
	// to specific .mps files. First matching rule wins.
	DataModes []DataModeConfig `json:"data_modes,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`
}

// DataModeConfig describes one data-mode rule.
type DataModeConfig struct {
	// Pattern is a path.Match pattern against the full .mps path,
	// e.g. "World/*/Bricks/Grids/*/Chunks/*.mps".
	Pattern string `json:"pattern"`

	// Globals is the .mps file whose decoded record supplies lookup tables.
	Globals string `json:"globals"`

	// Lookups maps a decoded field name to a field of the globals record.
	Lookups map[string]string `json:"lookups"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		SharedSchemaFolders: []string{"Chunks", "Components", "Wires"},
		DumpDir:             "dump",
		LogLevel:            "info",
	}
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.brsave) and repo (.brsave) directories.
// Repo config is found by walking upward from startDir to find the nearest .brsave/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repoConfigPath := FindRepoConfig(startDir)
	repo, err := loadFileRaw(repoConfigPath)
	if err != nil {
		return nil, err
	}

	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .brsave/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	if startDir == "" {
		return ""
	}
	dir := startDir
	for {
		configPath := filepath.Join(dir, DirName, "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the path is empty or the file doesn't exist.
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
// Data-mode rules are concatenated, base first.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.DumpDir = overlay.DumpDir
	if result.DumpDir == "" {
		result.DumpDir = base.DumpDir
	}

	result.LogLevel = overlay.LogLevel
	if result.LogLevel == "" {
		result.LogLevel = base.LogLevel
	}

	result.SharedSchemaFolders = mergeStringSlice(base.SharedSchemaFolders, overlay.SharedSchemaFolders)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	if n := len(base.DataModes) + len(overlay.DataModes); n > 0 {
		result.DataModes = make([]DataModeConfig, 0, n)
		result.DataModes = append(result.DataModes, base.DataModes...)
		result.DataModes = append(result.DataModes, overlay.DataModes...)
	}

	return result
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
