package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Output formats accepted by -o.
const (
	FormatTable = "table"
	FormatText  = "text"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// formatValue is a pflag.Value restricted to a fixed set of formats.
type formatValue struct {
	value   string
	allowed []string
}

var _ pflag.Value = (*formatValue)(nil)

func (f *formatValue) String() string { return f.value }

func (f *formatValue) Type() string { return "format" }

func (f *formatValue) Set(s string) error {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, a := range f.allowed {
		if s == a {
			f.value = s
			return nil
		}
	}
	return fmt.Errorf("invalid output format %q, must be one of: %s", s, strings.Join(f.allowed, ", "))
}

// addOutputFlag registers -o/--output on cmd.
func addOutputFlag(cmd *cobra.Command, def string, allowed ...string) *formatValue {
	f := &formatValue{value: def, allowed: allowed}
	cmd.Flags().VarP(f, "output", "o", fmt.Sprintf("output format (%s)", strings.Join(allowed, "|")))
	return f
}

// writeStructured encodes v as JSON or YAML.
func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported structured format %q", format)
	}
}

// loadBindings reads template variables from a JSON or YAML file, or from
// stdin when path is "-". The format follows the file extension; stdin and
// unknown extensions are tried as JSON first, then YAML.
func loadBindings(path string, stdin io.Reader) (map[string]any, error) {
	bindings := make(map[string]any)
	if path == "" {
		return bindings, nil
	}

	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read data file %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &bindings)
	case ".yml", ".yaml":
		err = yaml.Unmarshal(data, &bindings)
	default:
		if err = json.Unmarshal(data, &bindings); err != nil {
			bindings = make(map[string]any)
			err = yaml.Unmarshal(data, &bindings)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("invalid data in %s: %w", path, err)
	}
	return bindings, nil
}

// applySets merges key=value assignments into bindings. Dotted keys create
// nested maps. Values that parse as JSON keep their type; anything else is
// a string.
func applySets(bindings map[string]any, sets []string) error {
	for _, set := range sets {
		key, raw, ok := strings.Cut(set, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return fmt.Errorf("invalid --set %q, expected key=value", set)
		}

		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}

		parts := strings.Split(key, ".")
		target := bindings
		for _, part := range parts[:len(parts)-1] {
			next, err := cast.ToStringMapE(target[part])
			if err != nil || target[part] == nil {
				next = make(map[string]any)
			}
			target[part] = next
			target = next
		}
		target[parts[len(parts)-1]] = value
	}
	return nil
}
