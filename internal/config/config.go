// Package config holds runtime configuration loaded from a TOML file with
// sensible defaults for local development.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Server contains the HTTP listener configuration.
type Server struct {
	Bind               string   `toml:"bind"`
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`
}

// Storage contains the data directory configuration.
type Storage struct {
	DataDir string `toml:"data_dir"`
}

// Render contains the transcoder configuration.
type Render struct {
	FFmpegBinary  string `toml:"ffmpeg_binary"`
	FFprobeBinary string `toml:"ffprobe_binary"`
	Workers       int    `toml:"workers"`
}

// Logging contains log output configuration.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config is the full runtime configuration.
type Config struct {
	Server  Server  `toml:"server"`
	Storage Storage `toml:"storage"`
	Render  Render  `toml:"render"`
	Logging Logging `toml:"logging"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Server: Server{
			Bind: "0.0.0.0:8080",
			CORSAllowedOrigins: []string{
				"http://localhost:8081",
				"http://localhost:5173",
			},
		},
		Storage: Storage{
			DataDir: "./data",
		},
		Render: Render{
			FFmpegBinary:  "ffmpeg",
			FFprobeBinary: "ffprobe",
			Workers:       2,
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
	}
}

// Sample returns the annotated sample configuration file.
func Sample() string {
	return sampleConfig
}

// Load reads the configuration from path. An empty path or a missing file
// yields the defaults; a present-but-invalid file is an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Bind) == "" {
		return errors.New("server.bind must not be empty")
	}
	if strings.TrimSpace(c.Storage.DataDir) == "" {
		return errors.New("storage.data_dir must not be empty")
	}
	if c.Render.Workers <= 0 {
		return errors.New("render.workers must be positive")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "text":
	default:
		return fmt.Errorf("logging.format %q is not json or text", c.Logging.Format)
	}
	return nil
}

// LockPath returns the single-instance lock file location under the data
// directory.
func (c *Config) LockPath() string {
	return filepath.Join(c.Storage.DataDir, "driplink.lock")
}
