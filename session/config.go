package session

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/nasdf/jvivo/storage"
	"gopkg.in/yaml.v3"
)

// Log formats supported by NewLogger.
const (
	LogFormatTint = "tint"
	LogFormatJSON = "json"
	LogFormatText = "text"
)

// Config contains the settings used to create a Session.
type Config struct {
	// Directory is the root directory records are persisted to.
	Directory string `yaml:"directory"`
	// Extension is the file extension of persisted records.
	Extension string `yaml:"extension"`
	// Log configures the session logger.
	Log LogConfig `yaml:"log"`
}

type LogConfig struct {
	// Format is one of tint, json, or text.
	Format string `yaml:"format"`
	// Level is one of debug, info, warn, or error.
	Level string `yaml:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Directory: "jvivo",
		Extension: storage.DefaultExtension,
		Log: LogConfig{
			Format: LogFormatTint,
			Level:  "info",
		},
	}
}

// LoadConfig reads a YAML config file. Settings missing from the file keep their default.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate returns an error if the configuration is not usable.
func (c Config) Validate() error {
	var errs []error
	if c.Directory == "" {
		errs = append(errs, errors.New("directory is required"))
	}
	if strings.ContainsAny(strings.TrimPrefix(c.Extension, "."), `/\*?[`) {
		errs = append(errs, fmt.Errorf("invalid extension %q", c.Extension))
	}
	switch c.Log.Format {
	case "", LogFormatTint, LogFormatJSON, LogFormatText:
	default:
		errs = append(errs, fmt.Errorf("invalid log format %q", c.Log.Format))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func parseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if level == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return l, fmt.Errorf("invalid log level %q", level)
	}
	return l, nil
}
