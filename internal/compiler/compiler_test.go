package compiler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/volt/internal/errors"
	"github.com/conneroisu/volt/internal/filters"
)

func newCompiler(files map[string]string, opts ...Option) *Compiler {
	return New(NewMapLoader(".volt", files), filters.Builtins(), opts...)
}

func compileSource(t *testing.T, files map[string]string, name string, opts ...Option) string {
	t.Helper()
	res, err := newCompiler(files, opts...).Compile(context.Background(), name)
	require.NoError(t, err)
	return res.Source
}

func compileErr(t *testing.T, files map[string]string, name string) *errors.VoltError {
	t.Helper()
	_, err := newCompiler(files).Compile(context.Background(), name)
	require.Error(t, err)
	var ve *errors.VoltError
	require.True(t, errors.As(err, &ve), "expected VoltError, got %T: %v", err, err)
	return ve
}

func TestCompileEmission(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "literal only",
			src:  "<p>Hello, world!</p>\n",
			want: "<p>Hello, world!</p>\n",
		},
		{
			name: "escaped expression",
			src:  "Hi {{ name }}",
			want: `Hi {{volt_escape "name" $}}`,
		},
		{
			name: "safe filter is echoed",
			src:  "{{ html|raw }}",
			want: `{{volt_echo "volt_raw(html)" $}}`,
		},
		{
			name: "autoescape disabled",
			src:  "{% autoescape false %}{{ x }}{% endautoescape %}{{ x }}",
			want: `{{volt_echo "x" $}}{{volt_escape "x" $}}`,
		},
		{
			name: "autoescape nesting",
			src:  "{% autoescape false %}{% autoescape true %}{{ x }}{% endautoescape %}{{ y }}{% endautoescape %}",
			want: `{{volt_escape "x" $}}{{volt_echo "y" $}}`,
		},
		{
			name: "raw text with delimiters is quoted",
			src:  "{% raw %}{{ x }}{% endraw %}",
			want: `{{"{{ x }}"}}`,
		},
		{
			name: "if elseif else",
			src:  "{% if a %}x{% elseif b %}y{% else %}z{% endif %}",
			want: `{{if volt_test "a" $}}x{{else if volt_test "b" $}}y{{else}}z{{end}}`,
		},
		{
			name: "for loop",
			src:  "{% for item in items %}{{ item }}{% else %}none{% endfor %}",
			want: `{{$volt_outer_0 := volt_lookup $ "loop"}}` +
				`{{range $volt_item_0 := volt_iter (volt_eval "items" $)}}` +
				`{{volt_loop $ "" "item" $volt_item_0}}{{volt_escape "item" $}}` +
				`{{else}}none{{end}}{{volt_bind $ "loop" $volt_outer_0}}`,
		},
		{
			name: "for loop with key",
			src:  "{% for k, v in m %}{% endfor %}",
			want: `{{$volt_outer_0 := volt_lookup $ "loop"}}` +
				`{{range $volt_item_0 := volt_iter (volt_eval "m" $)}}` +
				`{{volt_loop $ "k" "v" $volt_item_0}}{{end}}{{volt_bind $ "loop" $volt_outer_0}}`,
		},
		{
			name: "set",
			src:  "{% set x = 1 %}",
			want: `{{volt_bind $ "x" (volt_eval "1" $)}}`,
		},
		{
			name: "cache with ttl",
			src:  `{% cache "k" 60 %}body{% endcache %}`,
			want: `{{$volt_key_0 := volt_eval "\"k\"" $}}{{with volt_cache_get $volt_key_0}}{{.Payload}}{{else}}` +
				`{{volt_cache_set $volt_key_0 60 (volt_render "cache:0" $)}}{{end}}` +
				`{{define "cache:0"}}body{{end}}`,
		},
		{
			name: "cache without ttl",
			src:  `{% cache id %}{{ x }}{% endcache %}`,
			want: `{{$volt_key_0 := volt_eval "id" $}}{{with volt_cache_get $volt_key_0}}{{.Payload}}{{else}}` +
				`{{volt_cache_set $volt_key_0 0 (volt_render "cache:0" $)}}{{end}}` +
				`{{define "cache:0"}}{{volt_escape "x" $}}{{end}}`,
		},
		{
			name: "macro",
			src:  "{% macro greet(name) %}Hi {{ name }}{% endmacro %}{{ greet(user) }}",
			want: `{{template "macro:greet" (volt_args "name" (volt_eval "user" $))}}` +
				`{{define "macro:greet"}}Hi {{volt_escape "name" $}}{{end}}`,
		},
		{
			name: "macro keeps the escaping of its definition",
			src:  "{% autoescape false %}{% macro m() %}{{ x }}{% endmacro %}{% endautoescape %}{{ m() }}",
			want: `{{template "macro:m" (volt_args)}}{{define "macro:m"}}{{volt_echo "x" $}}{{end}}`,
		},
		{
			name: "block in a root layout",
			src:  "<h1>{% block title %}Default{% endblock %}</h1>",
			want: "<h1>Default</h1>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := compileSource(t, map[string]string{"main": tt.src}, "main")
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompileInheritance(t *testing.T) {
	files := map[string]string{
		"parent": "<title>{% block title %}Default{% endblock %}</title>{% block body %}B{% endblock %}",
		"child":  `{% extends "parent" %}{% block title %}Custom{% endblock %}ignored`,
		"super":  `{% extends "parent" %}{% block title %}{{ super() }} | Custom{% endblock %}`,
		"grand":  `{% extends "super" %}{% block title %}[{{ super() }}]{% endblock %}{% block body %}G{{ super() }}{% endblock %}`,
	}

	tests := []struct {
		name string
		want string
	}{
		{"child", "<title>Custom</title>B"},
		{"super", "<title>Default | Custom</title>B"},
		{"grand", "<title>[Default | Custom]</title>GB"},
		{"parent", "<title>Default</title>B"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, compileSource(t, files, tt.name))
		})
	}
}

func TestCompileNestedBlockOverride(t *testing.T) {
	files := map[string]string{
		"base":  "{% block outer %}[{% block inner %}i{% endblock %}]{% endblock %}",
		"child": `{% extends "base" %}{% block inner %}I{% endblock %}`,
	}
	assert.Equal(t, "[I]", compileSource(t, files, "child"))
}

func TestCompileBlockKeepsEscapingOfItsDefinition(t *testing.T) {
	files := map[string]string{
		"raw_parent":     `{% autoescape false %}{{ html }}{% block body %}{% endblock %}{% endautoescape %}`,
		"escaping_child": `{% extends "raw_parent" %}{% autoescape true %}{% block body %}{{ comment }}{% endblock %}{% endautoescape %}`,
		"parent":         "{% block body %}{{ x }}{% endblock %}",
		"raw_child":      `{% extends "parent" %}{% autoescape false %}{% block body %}{{ x }}|{{ super() }}{% endblock %}{% endautoescape %}`,
	}

	tests := []struct {
		name string
		want string
	}{
		{"escaping_child", `{{volt_echo "html" $}}{{volt_escape "comment" $}}`},
		{"raw_child", `{{volt_echo "x" $}}|{{volt_escape "x" $}}`},
		{"raw_parent", `{{volt_echo "html" $}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, compileSource(t, files, tt.name))
		})
	}
}

func TestCompileInclude(t *testing.T) {
	files := map[string]string{
		"main":    `a{% include "partial" %}b{% autoescape false %}{% include "partial" %}{% endautoescape %}`,
		"partial": "P{{ x }}",
	}
	want := `aP{{volt_escape "x" $}}bP{{volt_echo "x" $}}`
	assert.Equal(t, want, compileSource(t, files, "main"))
}

func TestCompileIncludedMacro(t *testing.T) {
	files := map[string]string{
		"main":   `{% include "macros" %}{{ badge(1) }}`,
		"macros": "{% macro badge(n) %}<i>{{ n }}</i>{% endmacro %}",
	}
	want := `{{template "macro:badge" (volt_args "n" (volt_eval "1" $))}}` +
		`{{define "macro:badge"}}<i>{{volt_escape "n" $}}</i>{{end}}`
	assert.Equal(t, want, compileSource(t, files, "main"))
}

func TestCompileGlobalAutoescapeOff(t *testing.T) {
	got := compileSource(t, map[string]string{"main": "{{ x }}"}, "main", WithAutoescape(false))
	assert.Equal(t, `{{volt_echo "x" $}}`, got)
}

func TestCompileDependencies(t *testing.T) {
	loader := NewMapLoader(".volt", nil)
	t0 := time.Unix(1000, 0)
	loader.Set("parent", "{% block a %}{% include \"part\" %}{% endblock %}", t0)
	loader.Set("child", `{% extends "parent" %}`, t0.Add(time.Second))
	loader.Set("part", "p", t0.Add(2*time.Second))

	res, err := New(loader, filters.Builtins()).Compile(context.Background(), "child")
	require.NoError(t, err)

	assert.Equal(t, "child.volt", res.Path)
	assert.Equal(t, []Dependency{
		{Path: "child.volt", ModTime: t0.Add(time.Second)},
		{Path: "parent.volt", ModTime: t0},
		{Path: "part.volt", ModTime: t0.Add(2 * time.Second)},
	}, res.Dependencies)
}

func TestCompileIsDeterministic(t *testing.T) {
	files := map[string]string{
		"main": `{% cache "a" %}{% for x in xs %}{% cache x %}{{ x }}{% endcache %}{% endfor %}{% endcache %}` +
			`{% macro b() %}b{% endmacro %}{% macro a() %}a{% endmacro %}{{ a() }}{{ b() }}`,
	}
	c := newCompiler(files)
	first, err := c.Compile(context.Background(), "main")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := c.Compile(context.Background(), "main")
		require.NoError(t, err)
		assert.Equal(t, first.Source, again.Source)
	}
	assert.Contains(t, first.Source, `{{define "cache:1"}}`)
	assert.Contains(t, first.Source, `{{define "macro:b"}}b{{end}}{{define "macro:a"}}a{{end}}`)
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name     string
		files    map[string]string
		template string
		errType  errors.ErrorType
		code     string
		file     string
		line     int
	}{
		{
			name:     "extends cycle",
			files:    map[string]string{"a": `{% extends "b" %}`, "b": `{% extends "a" %}`},
			template: "a",
			errType:  errors.ErrorTypeSemantic,
			code:     errors.ErrCodeExtendsCycle,
			file:     "b.volt",
			line:     1,
		},
		{
			name:     "self extends",
			files:    map[string]string{"a": "\n{% extends \"a\" %}"},
			template: "a",
			errType:  errors.ErrorTypeSemantic,
			code:     errors.ErrCodeExtendsCycle,
			file:     "a.volt",
			line:     2,
		},
		{
			name:     "missing parent",
			files:    map[string]string{"a": `{% extends "nope" %}`},
			template: "a",
			errType:  errors.ErrorTypeIO,
			code:     errors.ErrCodeTemplateNotFound,
			file:     "a.volt",
			line:     1,
		},
		{
			name:     "include cycle",
			files:    map[string]string{"a": `{% include "b" %}`, "b": `{% include "a" %}`},
			template: "a",
			errType:  errors.ErrorTypeSemantic,
			code:     errors.ErrCodeIncludeCycle,
			file:     "b.volt",
			line:     1,
		},
		{
			name:     "included template extends",
			files:    map[string]string{"a": `{% include "b" %}`, "b": `{% extends "c" %}`, "c": ""},
			template: "a",
			errType:  errors.ErrorTypeSemantic,
			code:     errors.ErrCodeMisplacedExtends,
			file:     "a.volt",
			line:     1,
		},
		{
			name: "duplicate macro",
			files: map[string]string{
				"a": "{% macro m() %}{% endmacro %}\n{% macro m() %}{% endmacro %}",
			},
			template: "a",
			errType:  errors.ErrorTypeSemantic,
			code:     errors.ErrCodeDuplicateMacro,
			file:     "a.volt",
			line:     2,
		},
		{
			name: "duplicate macro across include",
			files: map[string]string{
				"a": "{% include \"b\" %}{% macro m() %}{% endmacro %}",
				"b": "{% macro m() %}{% endmacro %}",
			},
			template: "a",
			errType:  errors.ErrorTypeSemantic,
			code:     errors.ErrCodeDuplicateMacro,
			file:     "a.volt",
			line:     1,
		},
		{
			name:     "empty block name",
			files:    map[string]string{"a": "{% block %}x{% endblock %}"},
			template: "a",
			errType:  errors.ErrorTypeSemantic,
			code:     errors.ErrCodeEmptyBlockName,
			file:     "a.volt",
			line:     1,
		},
		{
			name:     "duplicate block",
			files:    map[string]string{"a": "{% block x %}{% endblock %}\n{% block x %}{% endblock %}"},
			template: "a",
			errType:  errors.ErrorTypeSemantic,
			code:     errors.ErrCodeDuplicateBlock,
			file:     "a.volt",
			line:     2,
		},
		{
			name:     "unknown filter",
			files:    map[string]string{"a": "\n\n{{ x|shout }}"},
			template: "a",
			errType:  errors.ErrorTypeSemantic,
			code:     errors.ErrCodeUnknownFilter,
			file:     "a.volt",
			line:     3,
		},
		{
			name:     "unknown function",
			files:    map[string]string{"a": "{{ shout(x) }}"},
			template: "a",
			errType:  errors.ErrorTypeSemantic,
			code:     errors.ErrCodeUnknownFunction,
			file:     "a.volt",
			line:     1,
		},
		{
			name:     "unknown filter in a condition",
			files:    map[string]string{"a": "{% if x|shout %}{% endif %}"},
			template: "a",
			errType:  errors.ErrorTypeSemantic,
			code:     errors.ErrCodeUnknownFilter,
			file:     "a.volt",
			line:     1,
		},
		{
			name:     "macro arity",
			files:    map[string]string{"a": "{% macro m(a, b) %}{% endmacro %}{{ m(1) }}"},
			template: "a",
			errType:  errors.ErrorTypeSemantic,
			code:     errors.ErrCodeMacroArity,
			file:     "a.volt",
			line:     1,
		},
		{
			name:     "macro call inside an expression",
			files:    map[string]string{"a": "{% macro m() %}{% endmacro %}{{ m()|upper }}"},
			template: "a",
			errType:  errors.ErrorTypeSemantic,
			code:     errors.ErrCodeMisplacedMacroCall,
			file:     "a.volt",
			line:     1,
		},
		{
			name:     "super outside a block",
			files:    map[string]string{"a": "{{ super() }}"},
			template: "a",
			errType:  errors.ErrorTypeSemantic,
			code:     errors.ErrCodeMisplacedSuper,
			file:     "a.volt",
			line:     1,
		},
		{
			name:     "super without a parent block",
			files:    map[string]string{"a": "{% block t %}{{ super() }}{% endblock %}"},
			template: "a",
			errType:  errors.ErrorTypeSemantic,
			code:     errors.ErrCodeMisplacedSuper,
			file:     "a.volt",
			line:     1,
		},
		{
			name:     "syntax error in a parent",
			files:    map[string]string{"a": `{% extends "b" %}`, "b": "{% if x %}"},
			template: "a",
			errType:  errors.ErrorTypeSyntax,
			code:     errors.ErrCodeUnbalanced,
			file:     "b.volt",
			line:     1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ve := compileErr(t, tt.files, tt.template)
			assert.Equal(t, tt.errType, ve.Type, ve.Error())
			assert.Equal(t, tt.code, ve.Code, ve.Error())
			assert.Equal(t, tt.file, ve.FilePath)
			assert.Equal(t, tt.line, ve.Line)
		})
	}
}

func TestCompileString(t *testing.T) {
	files := map[string]string{"layout": "[{% block c %}{% endblock %}]"}
	res, err := newCompiler(files).CompileString(context.Background(), "inline",
		`{% extends "layout" %}{% block c %}{{ v }}{% endblock %}`)
	require.NoError(t, err)
	assert.Equal(t, `[{{volt_escape "v" $}}]`, res.Source)
	require.Len(t, res.Dependencies, 1)
	assert.Equal(t, "layout.volt", res.Dependencies[0].Path)
}

func TestCompileCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newCompiler(map[string]string{"a": "x"}).Compile(ctx, "a")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFileLoader(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "layouts"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "layouts", "base.volt"), []byte("base"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "home.volt"), []byte("home"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("skip"), 0o644))

	l := NewFileLoader(root, ".volt")

	rel, err := l.Resolve("layouts/base")
	require.NoError(t, err)
	assert.Equal(t, "layouts/base.volt", rel)

	rel, err = l.Resolve(filepath.Join(root, "home.volt"))
	require.NoError(t, err)
	assert.Equal(t, "home.volt", rel)

	src, err := l.Load("layouts/base.volt")
	require.NoError(t, err)
	assert.Equal(t, "base", src.Text)
	assert.False(t, src.ModTime.IsZero())

	names, err := l.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"home.volt", "layouts/base.volt"}, names)

	for _, bad := range []string{"../secret", "a/../../b", filepath.Join(filepath.Dir(root), "x.volt")} {
		_, err := l.Resolve(bad)
		var ve *errors.VoltError
		require.True(t, errors.As(err, &ve), bad)
		assert.Equal(t, errors.ErrCodePathTraversal, ve.Code, bad)
	}

	_, err = l.Load("missing.volt")
	assert.True(t, errors.IsIOError(err))

	c := New(l, filters.Builtins())
	res, err := c.Compile(context.Background(), "home")
	require.NoError(t, err)
	assert.Equal(t, "home", res.Source)
}
