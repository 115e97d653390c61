package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v10"
	"github.com/evallife/polychat/internal/types"
)

const EnvPrefix = "POLYCHAT_"

func GetConfigPath() string {
	if p := os.Getenv(EnvPrefix + "CONFIG"); p != "" {
		return p
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".polychat.json")
}

func Default() types.Config {
	home, _ := os.UserHomeDir()
	return types.Config{
		DBPath:                filepath.Join(home, ".polychat.db"),
		LogLevel:              "info",
		LogFormat:             "console",
		LogFile:               filepath.Join(home, ".polychat.log"),
		RequestTimeoutSeconds: 60,
		Temperature:           0.7,
		MaxTokens:             4096,
		DefaultModel:          "gemini-2.0-flash",
	}
}

// LoadConfig reads the config file at path over the defaults, then applies
// POLYCHAT_* environment overrides. A missing file is created with the
// defaults.
func LoadConfig(path string) (types.Config, error) {
	cfg := Default()
	file, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := SaveConfig(path, cfg); err != nil {
			return cfg, err
		}
	case err != nil:
		return cfg, fmt.Errorf("read config: %w", err)
	default:
		if err := json.Unmarshal(file, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	normalize(&cfg)
	return cfg, nil
}

func SaveConfig(path string, cfg types.Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	// The file may hold seed API keys.
	return os.WriteFile(path, data, 0600)
}

func normalize(cfg *types.Config) {
	def := Default()
	if cfg.RequestTimeoutSeconds <= 0 {
		cfg.RequestTimeoutSeconds = def.RequestTimeoutSeconds
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = def.Temperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.DBPath == "" {
		cfg.DBPath = def.DBPath
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = def.LogLevel
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = def.LogFormat
	}
}
