// Package config loads Volt settings from viper: a .volt.yml file, VOLT_
// environment variables, .env files and command-line flags.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/conneroisu/volt/internal/cache"
	"github.com/conneroisu/volt/internal/errors"
	"github.com/conneroisu/volt/internal/logging"
)

// Config is the resolved configuration of a Volt project.
type Config struct {
	Views    ViewsConfig    `mapstructure:"views"    yaml:"views"    json:"views"`
	Compiler CompilerConfig `mapstructure:"compiler" yaml:"compiler" json:"compiler"`
	Cache    CacheConfig    `mapstructure:"cache"    yaml:"cache"    json:"cache"`
	Log      LogConfig      `mapstructure:"log"      yaml:"log"      json:"log"`
	Watch    WatchConfig    `mapstructure:"watch"    yaml:"watch"    json:"watch"`
}

// ViewsConfig locates template sources.
type ViewsConfig struct {
	Dir       string `mapstructure:"dir"       yaml:"dir"       json:"dir"`
	Extension string `mapstructure:"extension" yaml:"extension" json:"extension"`
}

// CompilerConfig controls compilation and artifact reuse.
type CompilerConfig struct {
	CompiledDir   string `mapstructure:"compiled_dir"   yaml:"compiled_dir"   json:"compiled_dir"`
	Autoescape    bool   `mapstructure:"autoescape"     yaml:"autoescape"     json:"autoescape"`
	Stat          bool   `mapstructure:"stat"           yaml:"stat"           json:"stat"`
	AlwaysCompile bool   `mapstructure:"always_compile" yaml:"always_compile" json:"always_compile"`
	Workers       int    `mapstructure:"workers"        yaml:"workers"        json:"workers"`
}

// CacheConfig configures the backend behind cache blocks.
type CacheConfig struct {
	Prefix     string        `mapstructure:"prefix"      yaml:"prefix"      json:"prefix"`
	DefaultTTL time.Duration `mapstructure:"default_ttl" yaml:"default_ttl" json:"default_ttl"`
	MaxSize    int64         `mapstructure:"max_size"    yaml:"max_size"    json:"max_size"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"  json:"level"`
	Format string `mapstructure:"format" yaml:"format" json:"format"`
}

// WatchConfig configures the watch command.
type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce" json:"debounce"`
	Ignore   []string      `mapstructure:"ignore"   yaml:"ignore"   json:"ignore"`
}

// Defaults are registered with viper before unmarshalling so a missing key
// never overrides a true boolean with its zero value.
var defaults = map[string]any{
	"views.dir":               "./views",
	"views.extension":         ".volt",
	"compiler.compiled_dir":   "./.volt/compiled",
	"compiler.autoescape":     true,
	"compiler.stat":           true,
	"compiler.always_compile": false,
	"compiler.workers":        0,
	"cache.prefix":            "",
	"cache.default_ttl":       "0s",
	"cache.max_size":          0,
	"log.level":               "info",
	"log.format":              "text",
	"watch.debounce":          "100ms",
	"watch.ignore":            []string{},
}

// SetDefaults registers the default value of every key with v.
func SetDefaults(v *viper.Viper) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads and validates the configuration held by v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		ce := errors.NewConfigError(errors.ErrCodeConfigInvalid, "cannot decode configuration")
		ce.Cause = err
		return nil, ce
	}

	config.Views.Extension = normalizeExtension(config.Views.Extension)

	if err := validateConfig(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadEnvFiles loads KEY=VALUE pairs from the given .env files into the
// process environment. Missing files are skipped; variables already set are
// left alone.
func LoadEnvFiles(paths ...string) error {
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		ce := errors.NewConfigError(errors.ErrCodeConfigInvalid, "cannot load environment file")
		ce.Cause = err
		return ce
	}
	return nil
}

// NewLogger builds the logger described by the log section.
func (c LogConfig) NewLogger(out io.Writer) *logging.VoltLogger {
	level, err := logging.ParseLevel(c.Level)
	if err != nil {
		level = logging.LevelInfo
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: c.Format,
		Output: out,
	})
}

// NewBackend builds the in-memory backend described by the cache section.
func (c CacheConfig) NewBackend() cache.Backend {
	var backend cache.Backend = cache.NewMemoryBackend(c.MaxSize, c.DefaultTTL)
	if c.Prefix != "" {
		backend = cache.Prefixed{Backend: backend, Prefix: c.Prefix}
	}
	return backend
}

func normalizeExtension(ext string) string {
	ext = strings.TrimSpace(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// validateConfig returns the first problem Validate reports.
func validateConfig(config *Config) error {
	result := Validate(config)
	if !result.HasErrors() {
		return nil
	}
	first := result.Errors[0]
	ce := errors.NewConfigError(errors.ErrCodeConfigInvalid, first.Error())
	return ce.WithContext("field", first.Field)
}

func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.ToSlash(filepath.Clean(path))
	for _, segment := range strings.Split(cleanPath, "/") {
		if segment == ".." {
			return fmt.Errorf("path contains traversal: %s", path)
		}
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "<", ">", "\"", "'"}
	for _, char := range dangerousChars {
		if strings.Contains(cleanPath, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}
