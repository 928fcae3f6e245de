// Package config loads the service configuration from a TOML file with
// environment fallbacks for the settings the deployment scripts already
// export.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config holds everything the sync service needs at startup. Zero values
// are filled with defaults by Load, so a missing config file yields a
// runnable local setup.
type Config struct {
	Addr          string `toml:"addr"`
	RealtimePath  string `toml:"realtime_path"`
	RelayPath     string `toml:"relay_path"`
	MessengerPath string `toml:"messenger_path"`

	PostgresDSN string `toml:"postgres_dsn"`

	BlobDir string `toml:"blob_dir"`

	// DefaultSkybox toggles the environment-map bootstrap for freshly
	// created scenes. SkyboxSource is the bundled env-atlas uploaded once
	// per project/branch.
	DefaultSkybox bool   `toml:"default_skybox"`
	SkyboxSource  string `toml:"skybox_source"`

	SceneSeedLimit int `toml:"scene_seed_limit"`
	AssetSeedLimit int `toml:"asset_seed_limit"`

	LogPath string `toml:"log_path"`
}

// Load reads the config at path, or builds a default config when path is
// empty. Environment variables override file values for the keys the
// hosting environment traditionally sets.
func Load(path string) (Config, error) {
	cfg := Config{DefaultSkybox: true}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if c.PostgresDSN == "" {
		c.PostgresDSN = os.Getenv("DATABASE_URL")
	}
	if os.Getenv("PIXLLAND_DEFAULT_SKYBOX") == "0" {
		c.DefaultSkybox = false
	}
	if v := os.Getenv("PIXLLAND_SKYBOX_SOURCE"); v != "" && c.SkyboxSource == "" {
		c.SkyboxSource = v
	}
}

func (c *Config) applyDefaults() {
	if c.Addr == "" {
		c.Addr = ":3001"
	}
	if c.RealtimePath == "" {
		c.RealtimePath = "/realtime"
	}
	if c.RelayPath == "" {
		c.RelayPath = "/relay"
	}
	if c.MessengerPath == "" {
		c.MessengerPath = "/messenger"
	}
	if c.BlobDir == "" {
		c.BlobDir = "data/blobs"
	}
	if c.SceneSeedLimit <= 0 {
		c.SceneSeedLimit = 200
	}
	if c.AssetSeedLimit <= 0 {
		c.AssetSeedLimit = 500
	}
}

func (c *Config) validate() error {
	for _, p := range []string{c.RealtimePath, c.RelayPath, c.MessengerPath} {
		if p == "" || p[0] != '/' {
			return fmt.Errorf("endpoint path %q must start with '/'", p)
		}
	}
	if c.RealtimePath == c.RelayPath || c.RelayPath == c.MessengerPath || c.RealtimePath == c.MessengerPath {
		return fmt.Errorf("endpoint paths must be distinct")
	}
	return nil
}
