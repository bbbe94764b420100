// Package config loads daemon settings from a YAML file, with the API
// key taken from the environment (optionally via a .env file).
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/studyfocus/focusmon/internal/domain"
)

// Config is the daemon configuration. Everything has a working default;
// the config file is optional.
type Config struct {
	// WorkDuration and RestDuration are the interval lengths in seconds.
	WorkDuration int `yaml:"work_duration"`
	RestDuration int `yaml:"rest_duration"`

	// DevToolsEndpoint is the browser debugging endpoint.
	DevToolsEndpoint string `yaml:"devtools_endpoint"`

	// DataDir holds the state file, task database and key file.
	DataDir string `yaml:"data_dir"`

	// LogPath is the daemon log file. Empty logs to stderr.
	LogPath string `yaml:"log_path"`

	// GeminiAPIKey comes from the environment, never from the YAML file.
	GeminiAPIKey string `yaml:"-"`
}

// DefaultPath returns the config file location under the user config dir.
func DefaultPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(base, "focusmon", "config.yaml"), nil
}

func defaults() (Config, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return Config{}, fmt.Errorf("resolve config dir: %w", err)
	}
	dataDir := filepath.Join(base, "focusmon")
	return Config{
		WorkDuration:     domain.DefaultWorkDuration,
		RestDuration:     domain.DefaultRestDuration,
		DevToolsEndpoint: "http://127.0.0.1:9222",
		DataDir:          dataDir,
		LogPath:          filepath.Join(dataDir, "focusmon.log"),
	}, nil
}

// Load reads the config file at path (optional) and overlays environment
// values. A .env file in the working directory is honored when present.
func Load(path string) (Config, error) {
	cfg, err := defaults()
	if err != nil {
		return Config{}, err
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Optional file; defaults apply.
		case err != nil:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	// Missing .env is the normal case.
	_ = godotenv.Load()
	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.WorkDuration < domain.MinWorkDuration {
		return fmt.Errorf("work_duration must be at least %d seconds, got %d",
			domain.MinWorkDuration, c.WorkDuration)
	}
	if c.RestDuration <= 0 {
		return fmt.Errorf("rest_duration must be positive, got %d", c.RestDuration)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	return nil
}

// StatePath returns the state file location under the data dir.
func (c *Config) StatePath() string {
	return filepath.Join(c.DataDir, "state.json")
}
