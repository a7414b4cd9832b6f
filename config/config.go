// Package config handles studio.toml configuration and the API token.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Defaults for a config with no studio.toml.
const (
	DefaultEndpoint           = "mainnet.eth.streamingfast.io:443"
	DefaultTokenEnv           = "SUBSTREAMS_API_TOKEN"
	DefaultSingleBlockPackage = "https://spkg.io/streamingfast/ethereum-explorer-v0.1.2.spkg"
	DefaultSingleBlockModule  = "map_block_meta"
	DefaultWorkspace          = "studio.db"
)

// Config is the studio.toml configuration: which endpoint and package to
// stream, the default block range, where the API token lives and where
// workspaces are stored.
type Config struct {
	Endpoint           string `toml:"endpoint"`
	Package            string `toml:"package"`
	ModuleName         string `toml:"module-name"`
	StartBlock         int64  `toml:"start-block"`
	StopBlock          uint64 `toml:"stop-block"`
	TokenEnv           string `toml:"token-env"`
	SingleBlockPackage string `toml:"single-block-package"`
	SingleBlockModule  string `toml:"single-block-module"`
	Workspace          string `toml:"workspace"`

	// Dir is the directory containing the studio.toml file (set at load time).
	Dir string `toml:"-"`
}

// Default returns the configuration used when no studio.toml exists.
func Default() *Config {
	c := &Config{Dir: "."}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.TokenEnv == "" {
		c.TokenEnv = DefaultTokenEnv
	}
	if c.SingleBlockPackage == "" {
		c.SingleBlockPackage = DefaultSingleBlockPackage
	}
	if c.SingleBlockModule == "" {
		c.SingleBlockModule = DefaultSingleBlockModule
	}
	if c.Workspace == "" {
		c.Workspace = DefaultWorkspace
	}
}

// Load parses a studio.toml file from the given directory.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, "studio.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	c.applyDefaults()
	return &c, nil
}

// FindAndLoad walks up from startDir to find a studio.toml file, then
// loads and returns it. Returns the defaults if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "studio.toml")
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}

// WorkspacePath returns the workspace database path, resolved against
// the config directory when relative.
func (c *Config) WorkspacePath() string {
	if filepath.IsAbs(c.Workspace) {
		return c.Workspace
	}
	return filepath.Join(c.Dir, c.Workspace)
}

// Token reads the API token from the configured environment variable,
// loading a .env file next to the config first if one exists.
func (c *Config) Token() string {
	godotenv.Load(filepath.Join(c.Dir, ".env"))
	return os.Getenv(c.TokenEnv)
}
