package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/conneroisu/volt/internal/logging"
)

// ValidationError represents a configuration validation error with suggestions
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation
type ValidationResult struct {
	Valid    bool
	Errors   []ValidationError
	Warnings []ValidationError
}

// HasErrors returns true if there are any validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings
func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var builder strings.Builder

	write := func(title string, issues []ValidationError) {
		builder.WriteString(title + ":\n")
		for _, issue := range issues {
			builder.WriteString(fmt.Sprintf("  • %s: %s\n", issue.Field, issue.Message))
			for _, suggestion := range issue.Suggestions {
				builder.WriteString(fmt.Sprintf("    - %s\n", suggestion))
			}
		}
	}

	if vr.HasErrors() {
		write("Validation errors", vr.Errors)
	}
	if vr.HasWarnings() {
		if vr.HasErrors() {
			builder.WriteString("\n")
		}
		write("Validation warnings", vr.Warnings)
	}

	return builder.String()
}

func (vr *ValidationResult) fail(field string, value interface{}, message string, suggestions ...string) {
	vr.Errors = append(vr.Errors, ValidationError{Field: field, Value: value, Message: message, Suggestions: suggestions})
}

func (vr *ValidationResult) warn(field string, value interface{}, message string, suggestions ...string) {
	vr.Warnings = append(vr.Warnings, ValidationError{Field: field, Value: value, Message: message, Suggestions: suggestions})
}

// Validate checks every section and collects errors and warnings.
func Validate(config *Config) *ValidationResult {
	result := &ValidationResult{
		Errors:   []ValidationError{},
		Warnings: []ValidationError{},
	}

	validateViews(&config.Views, result)
	validateCompiler(&config.Compiler, &config.Views, result)
	validateCache(&config.Cache, result)
	validateLog(&config.Log, result)
	validateWatch(&config.Watch, result)

	result.Valid = !result.HasErrors()
	return result
}

func validateViews(views *ViewsConfig, result *ValidationResult) {
	if err := validatePath(views.Dir); err != nil {
		result.fail("views.dir", views.Dir, err.Error(),
			"Point views.dir at the directory holding your templates, e.g. ./views")
	}

	switch {
	case views.Extension == "" || views.Extension == ".":
		result.fail("views.extension", views.Extension, "extension cannot be empty",
			"Use the default .volt extension")
	case strings.ContainsAny(views.Extension, `/\`):
		result.fail("views.extension", views.Extension, "extension cannot contain path separators")
	}
}

func validateCompiler(compiler *CompilerConfig, views *ViewsConfig, result *ValidationResult) {
	if err := validatePath(compiler.CompiledDir); err != nil {
		result.fail("compiler.compiled_dir", compiler.CompiledDir, err.Error(),
			"Use a dedicated directory such as ./.volt/compiled")
	} else if views.Dir != "" && filepath.Clean(compiler.CompiledDir) == filepath.Clean(views.Dir) {
		result.fail("compiler.compiled_dir", compiler.CompiledDir, "compiled_dir must differ from views.dir",
			"volt clean removes artifacts from compiled_dir; keep sources elsewhere")
	}

	if compiler.Workers < 0 {
		result.fail("compiler.workers", compiler.Workers, "workers cannot be negative",
			"Use 0 to compile with one worker per CPU")
	}

	if !compiler.Autoescape {
		result.warn("compiler.autoescape", compiler.Autoescape, "autoescaping is disabled for every template",
			"Prefer {% autoescape false %} around the few regions that emit trusted HTML")
	}
	if compiler.AlwaysCompile && !compiler.Stat {
		result.warn("compiler.stat", compiler.Stat, "stat has no effect while always_compile is set")
	}
}

func validateCache(cache *CacheConfig, result *ValidationResult) {
	if cache.DefaultTTL < 0 {
		result.fail("cache.default_ttl", cache.DefaultTTL, "default_ttl cannot be negative",
			"Use 0 to keep fragments until they are evicted")
	} else if cache.DefaultTTL > 0 && cache.DefaultTTL < time.Second {
		result.warn("cache.default_ttl", cache.DefaultTTL, "default_ttl below one second expires fragments almost immediately")
	}

	if cache.MaxSize < 0 {
		result.fail("cache.max_size", cache.MaxSize, "max_size cannot be negative",
			"Use 0 for an unbounded cache")
	}
}

func validateLog(log *LogConfig, result *ValidationResult) {
	if _, err := logging.ParseLevel(log.Level); err != nil {
		result.fail("log.level", log.Level, err.Error(),
			"Valid levels: debug, info, warn, error")
	}

	if log.Format != "text" && log.Format != "json" {
		result.fail("log.format", log.Format, fmt.Sprintf("unknown log format %q", log.Format),
			"Valid formats: text, json")
	}
}

func validateWatch(watch *WatchConfig, result *ValidationResult) {
	if watch.Debounce <= 0 {
		result.fail("watch.debounce", watch.Debounce, "debounce must be positive",
			"A value between 50ms and 500ms works well for editors that write in bursts")
	}

	for _, pattern := range watch.Ignore {
		if _, err := filepath.Match(pattern, ""); err != nil {
			result.fail("watch.ignore", pattern, fmt.Sprintf("invalid glob pattern: %v", err))
		}
	}
}
