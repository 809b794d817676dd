package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/studiowebux/swarmcli/internal/types"
)

const (
	// FilePermissions is the default permission mode for regular files (read/write for owner, read for others)
	FilePermissions = 0644
	// DirPermissions is the default permission mode for directories (rwxr-xr-x)
	DirPermissions = 0755
)

// Environment variables read after LoadEnv
const (
	EnvHome   = "SWARMCLI_HOME"   // overrides ~/.swarmcli
	EnvMaster = "SWARMCLI_MASTER" // default master url for workers
	EnvListen = "SWARMCLI_LISTEN" // default listen address for the master
)

var (
	// ConfigDir is the global configuration directory (~/.swarmcli)
	ConfigDir string

	// DatabasePath is the SQLite database file for run history
	DatabasePath string

	// LogPath is the file the buffered test logger flushes into
	LogPath string
)

// LoadEnv loads variables from the given .env files, or ./.env when none
// are given. Variables already set in the environment are kept. A missing
// file is not an error.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}

	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}

	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// Getenv returns the environment variable key or fallback when unset
func Getenv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

// Initialize sets up the configuration directory
// It creates ~/.swarmcli/ (or $SWARMCLI_HOME) if it doesn't exist
func Initialize() error {
	dir := os.Getenv(EnvHome)
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(homeDir, ".swarmcli")
	}

	// Set global paths
	ConfigDir = dir
	DatabasePath = filepath.Join(ConfigDir, "swarmcli.db")
	LogPath = filepath.Join(ConfigDir, "swarmcli.log")

	if err := os.MkdirAll(ConfigDir, DirPermissions); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", ConfigDir, err)
	}

	return nil
}

// LoadTestFile loads a test definition from a .yaml, .yml, .json or .jsonc
// file and validates it
func LoadTestFile(path string) (*types.TestConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("test file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read test file: %w", err)
	}

	config, err := ParseTestConfig(data, filepath.Ext(path))
	if err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid test file %s: %w", path, err)
	}
	return config, nil
}

// ParseTestConfig decodes a test definition in the format named by ext
func ParseTestConfig(data []byte, ext string) (*types.TestConfig, error) {
	var config types.TestConfig

	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	case ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSONC: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported test file format: %s (use .yaml, .yml, .json, or .jsonc)", ext)
	}

	return &config, nil
}
