package filters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/volt/internal/errors"
)

func call(t *testing.T, name string, args ...any) any {
	t.Helper()
	fn, ok := Builtins().Lookup(name)
	require.True(t, ok, "missing builtin %q", name)
	out, err := fn(args...)
	require.NoError(t, err)
	return out
}

func callErr(t *testing.T, name string, args ...any) error {
	t.Helper()
	fn, ok := Builtins().Lookup(name)
	require.True(t, ok, "missing builtin %q", name)
	_, err := fn(args...)
	require.Error(t, err)
	return err
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.HasFilter("shout"))

	r.Register("shout", func(args ...any) (any, error) { return "!", nil })
	assert.True(t, r.HasFilter("shout"))
	assert.True(t, r.HasFunction("shout"))
	assert.Equal(t, []string{"shout"}, r.Names())

	b := Builtins()
	for _, name := range []string{"length", "slice", "sort", "convertEncoding", "isIncluded"} {
		assert.True(t, b.HasFunction(name), name)
	}
}

func TestLength(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  int
	}{
		{"ascii", "hello", 5},
		{"unicode", "héllo wörld", 11},
		{"slice", []any{1, 2, 3}, 3},
		{"map", map[string]any{"a": 1}, 1},
		{"nil", nil, 0},
		{"number", 12345, 5},
		{"invalid utf8 bytes", []byte{0xff, 0xfe}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, call(t, "length", tt.input))
		})
	}
}

func TestIsIncluded(t *testing.T) {
	tests := []struct {
		name     string
		needle   any
		haystack any
		want     bool
	}{
		{"substring", "ell", "hello", true},
		{"missing substring", "xyz", "hello", false},
		{"sequence", "b", []string{"a", "b"}, true},
		{"numeric loose", int64(2), []any{1, 2, 3}, true},
		{"map key", "k", map[string]int{"k": 1}, true},
		{"nil haystack", "a", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, call(t, "isIncluded", tt.needle, tt.haystack))
		})
	}
}

func TestSlice(t *testing.T) {
	assert.Equal(t, "ell", call(t, "slice", "hello", 1, 3))
	assert.Equal(t, "llo", call(t, "slice", "hello", 2))
	assert.Equal(t, "ö", call(t, "slice", "wörld", 1, 1))
	assert.Equal(t, []int{2, 3}, call(t, "slice", []int{1, 2, 3, 4}, 1, 2))
	assert.Equal(t, []int{1, 2}, call(t, "slice", [3]int{1, 2, 3}, 0, 1))
	assert.Equal(t, []any{"b"}, call(t, "slice", map[string]string{"x": "a", "y": "b"}, 1, 1))

	ch := make(chan int, 3)
	ch <- 7
	ch <- 8
	ch <- 9
	close(ch)
	assert.Equal(t, []any{8, 9}, call(t, "slice", ch, 1, 2))

	for _, args := range [][]any{
		{"abc", 2, 1},
		{"abc", -1, 1},
		{"abc", 0, 3},
		{[]int{1}, 0, 5},
	} {
		err := callErr(t, "slice", args...)
		assert.True(t, errors.IsFilterError(err))
		var ve *errors.VoltError
		require.True(t, errors.As(err, &ve))
		assert.Equal(t, errors.ErrCodeInvalidSlice, ve.Code)
	}
}

func TestSort(t *testing.T) {
	ints := []int{3, 1, 2}
	assert.Equal(t, []int{1, 2, 3}, call(t, "sort", ints))
	assert.Equal(t, []int{1, 2, 3}, ints, "sort is in place")

	assert.Equal(t, []string{"a", "b"}, call(t, "sort", []string{"b", "a"}))
	assert.Equal(t, []any{int64(1), 2.5, 3}, call(t, "sort", []any{3, int64(1), 2.5}))
	assert.Equal(t, []any{"a", "c"}, call(t, "sort", []any{"c", "a"}))

	assert.True(t, errors.IsFilterError(callErr(t, "sort", []any{"a", 1})))
	assert.True(t, errors.IsFilterError(callErr(t, "sort", 42)))
}

func TestConvertEncoding(t *testing.T) {
	latin1 := string([]byte{'c', 'a', 'f', 0xe9})
	assert.Equal(t, "café", call(t, "convertEncoding", latin1, "latin1", "utf8"))
	assert.Equal(t, latin1, call(t, "convert_encoding", "café", "UTF-8", "ISO-8859-1"))
	assert.Equal(t, "same", call(t, "convertEncoding", "same", "utf-8", "UTF8"))

	sjis := call(t, "convertEncoding", "日本", "utf8", "shift_jis")
	assert.NotEqual(t, "日本", sjis)
	assert.Equal(t, "日本", call(t, "convertEncoding", sjis, "shift_jis", "utf8"))

	err := callErr(t, "convertEncoding", "x", "utf8", "klingon")
	var ve *errors.VoltError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, errors.ErrCodeUnsupportedEncoding, ve.Code)
	assert.True(t, errors.IsFilterError(err))
}

func TestStringFilters(t *testing.T) {
	tests := []struct {
		name   string
		filter string
		args   []any
		want   any
	}{
		{"escape", "e", []any{`<a href="x">&</a>`}, "&lt;a href=&#34;x&#34;&gt;&amp;&lt;/a&gt;"},
		{"raw", "raw", []any{"<b>"}, "<b>"},
		{"upper", "upper", []any{"abc"}, "ABC"},
		{"capitalize", "capitalize", []any{"hELLO"}, "Hello"},
		{"title", "title", []any{"hello world"}, "Hello World"},
		{"trim", "trim", []any{"  x \n"}, "x"},
		{"left_trim", "left_trim", []any{"  x "}, "x "},
		{"striptags", "striptags", []any{"<p>Hi <b>there</b></p>"}, "Hi there"},
		{"nl2br", "nl2br", []any{"a\nb"}, "a<br />\nb"},
		{"url_encode", "url_encode", []any{"a b&c"}, "a+b%26c"},
		{"default nil", "default", []any{nil, "fallback"}, "fallback"},
		{"default empty", "default", []any{"", "fallback"}, "fallback"},
		{"default set", "default", []any{"v", "fallback"}, "v"},
		{"join", "join", []any{[]any{"a", 1, true}, ", "}, "a, 1, true"},
		{"json", "json_encode", []any{map[string]any{"a": []int{1}}}, `{"a":[1]}`},
		{"keys", "keys", []any{map[string]int{"b": 1, "a": 2}}, []any{"a", "b"}},
		{"abs int", "abs", []any{-3}, int64(3)},
		{"abs float", "abs", []any{-1.5}, 1.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, call(t, tt.filter, tt.args...))
		})
	}
}

func TestArgumentCounts(t *testing.T) {
	assert.True(t, errors.IsFilterError(callErr(t, "length")))
	assert.True(t, errors.IsFilterError(callErr(t, "slice", "abc")))
	assert.True(t, errors.IsFilterError(callErr(t, "convertEncoding", "abc", "utf8")))
}

func TestTruthy(t *testing.T) {
	falsy := []any{nil, false, 0, int64(0), 0.0, "", []any{}, map[string]any{}, (*int)(nil)}
	truthy := []any{true, 1, -1, 0.1, "0", []int{0}, map[string]int{"a": 0}, struct{}{}}

	for _, v := range falsy {
		assert.False(t, Truthy(v), "%#v", v)
	}
	for _, v := range truthy {
		assert.True(t, Truthy(v), "%#v", v)
	}
}

func TestIterate(t *testing.T) {
	pairs, err := Iterate(map[string]int{"b": 2, "a": 1})
	require.NoError(t, err)
	assert.Equal(t, []Pair{{Key: "a", Value: 1}, {Key: "b", Value: 2}}, pairs)

	pairs, err = Iterate("hé")
	require.NoError(t, err)
	assert.Equal(t, []Pair{{Key: 0, Value: "h"}, {Key: 1, Value: "é"}}, pairs)

	pairs, err = Iterate(nil)
	require.NoError(t, err)
	assert.Empty(t, pairs)

	_, err = Iterate(42)
	assert.Error(t, err)
}

func TestIndex(t *testing.T) {
	type user struct{ Name string }

	tests := []struct {
		name      string
		container any
		key       any
		want      any
	}{
		{"map", map[string]int{"a": 1}, "a", 1},
		{"map missing", map[string]int{"a": 1}, "b", nil},
		{"map converted key", map[int]string{2: "two"}, int64(2), "two"},
		{"slice", []string{"x", "y"}, int64(1), "y"},
		{"slice negative", []string{"x", "y"}, -1, "y"},
		{"slice out of range", []string{"x"}, 5, nil},
		{"string", "héllo", 1, "é"},
		{"struct", user{Name: "Ann"}, "Name", "Ann"},
		{"pointer", &user{Name: "Bo"}, "Name", "Bo"},
		{"nil", nil, "a", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Index(tt.container, tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Index(42, 0)
	assert.Error(t, err)
	_, err = Index([]int{1}, "x")
	assert.Error(t, err)
}
