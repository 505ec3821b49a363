package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/volt/internal/cache"
	"github.com/conneroisu/volt/internal/errors"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		setup       func()
		expectError bool
		errorField  string
		check       func(t *testing.T, cfg *Config)
	}{
		{
			name:  "defaults",
			setup: func() { viper.Reset() },
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "./views", cfg.Views.Dir)
				assert.Equal(t, ".volt", cfg.Views.Extension)
				assert.Equal(t, "./.volt/compiled", cfg.Compiler.CompiledDir)
				assert.True(t, cfg.Compiler.Autoescape)
				assert.True(t, cfg.Compiler.Stat)
				assert.False(t, cfg.Compiler.AlwaysCompile)
				assert.Equal(t, time.Duration(0), cfg.Cache.DefaultTTL)
				assert.Equal(t, "info", cfg.Log.Level)
				assert.Equal(t, "text", cfg.Log.Format)
				assert.Equal(t, 100*time.Millisecond, cfg.Watch.Debounce)
			},
		},
		{
			name: "explicit false overrides true default",
			setup: func() {
				viper.Reset()
				viper.Set("compiler.autoescape", false)
				viper.Set("compiler.stat", false)
			},
			check: func(t *testing.T, cfg *Config) {
				assert.False(t, cfg.Compiler.Autoescape)
				assert.False(t, cfg.Compiler.Stat)
			},
		},
		{
			name: "durations from strings",
			setup: func() {
				viper.Reset()
				viper.Set("cache.default_ttl", "5m")
				viper.Set("watch.debounce", "250ms")
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 5*time.Minute, cfg.Cache.DefaultTTL)
				assert.Equal(t, 250*time.Millisecond, cfg.Watch.Debounce)
			},
		},
		{
			name: "extension without dot",
			setup: func() {
				viper.Reset()
				viper.Set("views.extension", "tpl")
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, ".tpl", cfg.Views.Extension)
			},
		},
		{
			name: "undecodable value",
			setup: func() {
				viper.Reset()
				viper.Set("compiler.workers", "many")
			},
			expectError: true,
		},
		{
			name: "traversal in views dir",
			setup: func() {
				viper.Reset()
				viper.Set("views.dir", "../outside")
			},
			expectError: true,
			errorField:  "views.dir",
		},
		{
			name: "compiled dir equals views dir",
			setup: func() {
				viper.Reset()
				viper.Set("views.dir", "./views")
				viper.Set("compiler.compiled_dir", "views")
			},
			expectError: true,
			errorField:  "compiler.compiled_dir",
		},
		{
			name: "negative ttl",
			setup: func() {
				viper.Reset()
				viper.Set("cache.default_ttl", "-1s")
			},
			expectError: true,
			errorField:  "cache.default_ttl",
		},
		{
			name: "unknown log level",
			setup: func() {
				viper.Reset()
				viper.Set("log.level", "chatty")
			},
			expectError: true,
			errorField:  "log.level",
		},
		{
			name: "zero debounce",
			setup: func() {
				viper.Reset()
				viper.Set("watch.debounce", "0s")
			},
			expectError: true,
			errorField:  "watch.debounce",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()
			defer viper.Reset()

			cfg, err := Load()
			if tt.expectError {
				require.Error(t, err)
				assert.Nil(t, cfg)
				assert.True(t, errors.IsConfigError(err), "got %v", err)
				if tt.errorField != "" {
					var ve *errors.VoltError
					require.True(t, errors.As(err, &ve))
					assert.Equal(t, tt.errorField, ve.Context["field"])
				}
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".volt.yml")
	content := `views:
  dir: ./templates
compiler:
  compiled_dir: ./build/views
  always_compile: true
cache:
  prefix: "site:"
  max_size: 4096
log:
  level: debug
  format: json
watch:
  ignore: ["*.swp"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := LoadFrom(v)
	require.NoError(t, err)
	assert.Equal(t, "./templates", cfg.Views.Dir)
	assert.Equal(t, ".volt", cfg.Views.Extension)
	assert.Equal(t, "./build/views", cfg.Compiler.CompiledDir)
	assert.True(t, cfg.Compiler.AlwaysCompile)
	assert.True(t, cfg.Compiler.Autoescape)
	assert.Equal(t, "site:", cfg.Cache.Prefix)
	assert.Equal(t, int64(4096), cfg.Cache.MaxSize)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, []string{"*.swp"}, cfg.Watch.Ignore)
}

func TestLoadWithEnvironment(t *testing.T) {
	t.Setenv("VOLT_VIEWS_DIR", "./env-views")
	t.Setenv("VOLT_COMPILER_AUTOESCAPE", "false")
	t.Setenv("VOLT_CACHE_DEFAULT_TTL", "30s")

	v := viper.New()
	v.SetEnvPrefix("VOLT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg, err := LoadFrom(v)
	require.NoError(t, err)
	assert.Equal(t, "./env-views", cfg.Views.Dir)
	assert.False(t, cfg.Compiler.Autoescape)
	assert.Equal(t, 30*time.Second, cfg.Cache.DefaultTTL)
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("VOLT_TEST_FROM_DOTENV=loaded\n"), 0o644))
	t.Setenv("VOLT_TEST_FROM_DOTENV", "")
	require.NoError(t, os.Unsetenv("VOLT_TEST_FROM_DOTENV"))

	require.NoError(t, LoadEnvFiles(filepath.Join(dir, "missing.env"), envFile))
	assert.Equal(t, "loaded", os.Getenv("VOLT_TEST_FROM_DOTENV"))

	require.NoError(t, LoadEnvFiles(filepath.Join(dir, "nothing-here")))
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Views:    ViewsConfig{Dir: "./views", Extension: ".volt"},
			Compiler: CompilerConfig{CompiledDir: "./compiled", Autoescape: true, Stat: true},
			Log:      LogConfig{Level: "info", Format: "text"},
			Watch:    WatchConfig{Debounce: time.Second},
		}
	}

	tests := []struct {
		name     string
		mutate   func(c *Config)
		errors   []string
		warnings []string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{
			name:   "empty extension",
			mutate: func(c *Config) { c.Views.Extension = "" },
			errors: []string{"views.extension"},
		},
		{
			name:   "extension with separator",
			mutate: func(c *Config) { c.Views.Extension = ".a/b" },
			errors: []string{"views.extension"},
		},
		{
			name:   "dangerous compiled dir",
			mutate: func(c *Config) { c.Compiler.CompiledDir = "./out;rm -rf" },
			errors: []string{"compiler.compiled_dir"},
		},
		{
			name:   "negative workers",
			mutate: func(c *Config) { c.Compiler.Workers = -1 },
			errors: []string{"compiler.workers"},
		},
		{
			name:   "negative max size",
			mutate: func(c *Config) { c.Cache.MaxSize = -5 },
			errors: []string{"cache.max_size"},
		},
		{
			name:   "bad format",
			mutate: func(c *Config) { c.Log.Format = "xml" },
			errors: []string{"log.format"},
		},
		{
			name:   "bad ignore glob",
			mutate: func(c *Config) { c.Watch.Ignore = []string{"[a-"} },
			errors: []string{"watch.ignore"},
		},
		{
			name:     "autoescape disabled",
			mutate:   func(c *Config) { c.Compiler.Autoescape = false },
			warnings: []string{"compiler.autoescape"},
		},
		{
			name:     "stat ignored",
			mutate:   func(c *Config) { c.Compiler.AlwaysCompile, c.Compiler.Stat = true, false },
			warnings: []string{"compiler.stat"},
		},
		{
			name:     "tiny ttl",
			mutate:   func(c *Config) { c.Cache.DefaultTTL = time.Millisecond },
			warnings: []string{"cache.default_ttl"},
		},
	}

	fields := func(issues []ValidationError) []string {
		var out []string
		for _, issue := range issues {
			out = append(out, issue.Field)
		}
		return out
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)

			result := Validate(cfg)
			assert.Equal(t, tt.errors, fields(result.Errors))
			assert.Equal(t, tt.warnings, fields(result.Warnings))
			assert.Equal(t, len(tt.errors) == 0, result.Valid)
		})
	}
}

func TestValidatePath(t *testing.T) {
	tests := []struct {
		path    string
		wantErr bool
	}{
		{"./views", false},
		{"/srv/app/views", false},
		{"views/..hidden", false},
		{"", true},
		{"../views", true},
		{"views/../../etc", true},
		{"views`id`", true},
		{"views$HOME", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			err := validatePath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidationResultString(t *testing.T) {
	result := &ValidationResult{
		Errors:   []ValidationError{{Field: "log.level", Message: "bad", Suggestions: []string{"use info"}}},
		Warnings: []ValidationError{{Field: "compiler.autoescape", Message: "off"}},
	}

	out := result.String()
	assert.Contains(t, out, "Validation errors:\n  • log.level: bad\n    - use info\n")
	assert.Contains(t, out, "Validation warnings:\n  • compiler.autoescape: off\n")
}

func TestNewBackend(t *testing.T) {
	plain := CacheConfig{}.NewBackend()
	_, ok := plain.(*cache.MemoryBackend)
	assert.True(t, ok)

	prefixed := CacheConfig{Prefix: "p:"}.NewBackend()
	p, ok := prefixed.(cache.Prefixed)
	require.True(t, ok)
	assert.Equal(t, "p:", p.Prefix)
}
