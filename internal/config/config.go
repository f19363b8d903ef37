// Package config holds the application configuration: built-in defaults,
// overlaid by a TOML file, overlaid by APKEDIT_* environment variables.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"

	"github.com/dshills/apkedit/internal/config/loader"
)

// Config is the application configuration.
type Config struct {
	Logging LoggingConfig `toml:"logging"`
	Plugins PluginsConfig `toml:"plugins"`
	Tools   ToolsConfig   `toml:"tools"`
	Paths   PathsConfig   `toml:"paths"`
	Editor  EditorConfig  `toml:"editor"`
	Metrics MetricsConfig `toml:"metrics"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `toml:"level"`  // logrus level name
	Format string `toml:"format"` // text or json
	File   string `toml:"file"`   // empty logs to stderr
}

// PluginsConfig configures plugin discovery.
type PluginsConfig struct {
	Dir              string   `toml:"dir"`
	Extensions       []string `toml:"extensions"`
	Disabled         []string `toml:"disabled"`
	Watch            bool     `toml:"watch"`
	Debounce         Duration `toml:"debounce"`
	ExecutionTimeout Duration `toml:"executionTimeout"`
	Concurrency      int      `toml:"concurrency"`
}

// ToolsConfig configures external tool resolution.
type ToolsConfig struct {
	ToolchainDir string   `toml:"toolchainDir"`
	BundledDir   string   `toml:"bundledDir"`
	Java         string   `toml:"java"`
	PollInterval Duration `toml:"pollInterval"`
	GracePeriod  Duration `toml:"gracePeriod"`
}

// PathsConfig locates application data.
type PathsConfig struct {
	DataDir string `toml:"dataDir"`
}

// EditorConfig holds editor preferences that are not per-user settings.
type EditorConfig struct {
	Locale      string `toml:"locale"`
	RecentLimit int    `toml:"recentLimit"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `toml:"addr"` // empty disables the endpoint
}

// DefaultDataDir returns the per-user application directory.
func DefaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "apkedit")
}

// DefaultPath returns the default configuration file path.
func DefaultPath() string {
	return filepath.Join(DefaultDataDir(), "config.toml")
}

// Default returns the built-in configuration rooted at dataDir.
func Default(dataDir string) *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Plugins: PluginsConfig{
			Dir:              filepath.Join(dataDir, "plugins"),
			Extensions:       []string{".jar", ".zip"},
			Watch:            false,
			Debounce:         Duration(250 * time.Millisecond),
			ExecutionTimeout: Duration(5 * time.Second),
		},
		Tools: ToolsConfig{
			BundledDir:   filepath.Join(dataDir, "tools"),
			Java:         "java",
			PollInterval: Duration(50 * time.Millisecond),
			GracePeriod:  Duration(2 * time.Second),
		},
		Paths: PathsConfig{
			DataDir: dataDir,
		},
		Editor: EditorConfig{
			Locale:      "en",
			RecentLimit: 10,
		},
	}
}

// SettingsPath returns the settings store file.
func (c *Config) SettingsPath() string {
	return filepath.Join(c.Paths.DataDir, "settings.json")
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: logging.level: %v", ErrValidationFailed, err)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("%w: logging.format must be text or json, got %q", ErrValidationFailed, c.Logging.Format)
	}
	if c.Plugins.ExecutionTimeout < 0 {
		return fmt.Errorf("%w: plugins.executionTimeout must not be negative", ErrValidationFailed)
	}
	if c.Plugins.Concurrency < 0 {
		return fmt.Errorf("%w: plugins.concurrency must not be negative", ErrValidationFailed)
	}
	if c.Tools.PollInterval <= 0 {
		return fmt.Errorf("%w: tools.pollInterval must be positive", ErrValidationFailed)
	}
	if c.Tools.GracePeriod < 0 {
		return fmt.Errorf("%w: tools.gracePeriod must not be negative", ErrValidationFailed)
	}
	if c.Editor.RecentLimit <= 0 {
		return fmt.Errorf("%w: editor.recentLimit must be positive", ErrValidationFailed)
	}
	return nil
}

// Options controls where Load reads from.
type Options struct {
	// Path is the TOML file; empty uses DefaultPath. A missing file is not
	// an error.
	Path string

	// FS reads the file; nil uses the OS.
	FS loader.FileSystem

	// Environ overrides os.Environ.
	Environ []string

	// DataDir overrides DefaultDataDir for defaults.
	DataDir string
}

// Load builds the configuration from defaults, the TOML file and the
// environment, in increasing precedence.
func Load(opts Options) (*Config, error) {
	if opts.DataDir == "" {
		opts.DataDir = DefaultDataDir()
	}
	if opts.Path == "" {
		opts.Path = DefaultPath()
	}
	if opts.FS == nil {
		opts.FS = loader.OSFS{}
	}

	fileMap, err := loader.NewTOMLLoaderWithFS(opts.FS, opts.Path).Load()
	if err != nil {
		return nil, err
	}

	env := loader.NewEnvLoader(loader.DefaultPrefix)
	if opts.Environ != nil {
		env = loader.NewEnvLoaderFrom(loader.DefaultPrefix, opts.Environ)
	}
	envMap, err := env.Load()
	if err != nil {
		return nil, err
	}

	merged := loader.DeepMerge(fileMap, envMap)

	cfg := Default(opts.DataDir)
	if err := decode(merged, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode overlays m onto cfg through a TOML round trip.
func decode(m map[string]any, cfg *Config) error {
	if len(m) == 0 {
		return nil
	}
	data, err := toml.Marshal(m)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if err := toml.NewDecoder(bytes.NewReader(data)).Decode(cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return nil
}

// Encode returns cfg as TOML.
func Encode(cfg *Config) ([]byte, error) {
	return toml.Marshal(cfg)
}

// Write encodes cfg as TOML to path.
func Write(cfg *Config, path string) error {
	data, err := Encode(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
