package filters

import (
	"fmt"
	"html"
	"math"
	"net/url"
	"reflect"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/microcosm-cc/bluemonday"
	"github.com/spf13/cast"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/conneroisu/volt/internal/errors"
)

func builtins() map[string]Func {
	strict := bluemonday.StrictPolicy()

	return map[string]Func{
		"length":           unary(Length),
		"isIncluded":       binary(IsIncluded),
		"convertEncoding":  convertEncodingFunc,
		"convert_encoding": convertEncodingFunc,
		"slice":            sliceFunc,
		"sort":             unaryErr(Sort),
		"e":                unary(Escape),
		"escape":           unary(Escape),
		"raw":              unary(func(v any) any { return v }),
		"upper":            text(strings.ToUpper),
		"lower":            text(strings.ToLower),
		"trim":             text(strings.TrimSpace),
		"left_trim":        text(func(s string) string { return strings.TrimLeftFunc(s, unicode.IsSpace) }),
		"right_trim":       text(func(s string) string { return strings.TrimRightFunc(s, unicode.IsSpace) }),
		"capitalize":       text(Capitalize),
		"title":            text(func(s string) string { return cases.Title(language.Und).String(s) }),
		"nl2br":            text(func(s string) string { return strings.ReplaceAll(s, "\n", "<br />\n") }),
		"url_encode":       text(url.QueryEscape),
		"striptags":        text(strict.Sanitize),
		"default":          defaultFunc,
		"join":             joinFunc,
		"keys":             unaryErr(Keys),
		"json_encode":      unaryErr(JSONEncode),
		"abs":              unaryErr(Abs),
	}
}

func argCount(name string, args []any, min, max int) error {
	if len(args) < min || len(args) > max {
		if min == max {
			return errors.NewFilterError(errors.ErrCodeInvalidArgument,
				fmt.Sprintf("%s expects %d argument(s), got %d", name, min, len(args)))
		}
		return errors.NewFilterError(errors.ErrCodeInvalidArgument,
			fmt.Sprintf("%s expects %d to %d arguments, got %d", name, min, max, len(args)))
	}
	return nil
}

func unary(fn func(any) any) Func {
	return func(args ...any) (any, error) {
		if err := argCount("filter", args, 1, 1); err != nil {
			return nil, err
		}
		return fn(args[0]), nil
	}
}

func unaryErr(fn func(any) (any, error)) Func {
	return func(args ...any) (any, error) {
		if err := argCount("filter", args, 1, 1); err != nil {
			return nil, err
		}
		return fn(args[0])
	}
}

func binary(fn func(a, b any) any) Func {
	return func(args ...any) (any, error) {
		if err := argCount("function", args, 2, 2); err != nil {
			return nil, err
		}
		return fn(args[0], args[1]), nil
	}
}

func text(fn func(string) string) Func {
	return unary(func(v any) any { return fn(ToString(v)) })
}

// Length returns the element count of collections and the character
// count of everything else.
func Length(v any) any {
	if v == nil {
		return 0
	}
	switch x := v.(type) {
	case string:
		return utf8.RuneCountInString(x)
	case []byte:
		if utf8.Valid(x) {
			return utf8.RuneCount(x)
		}
		return len(x)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Chan:
		return rv.Len()
	}
	return utf8.RuneCountInString(ToString(v))
}

// IsIncluded tests membership: substring search for text, element search
// for sequences and key lookup for maps.
func IsIncluded(needle, haystack any) any {
	if haystack == nil {
		return false
	}
	if s, ok := haystack.(string); ok {
		return strings.Contains(s, ToString(needle))
	}

	rv := reflect.ValueOf(haystack)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if looseEqual(rv.Index(i).Interface(), needle) {
				return true
			}
		}
	case reflect.Map:
		for _, k := range rv.MapKeys() {
			if looseEqual(k.Interface(), needle) {
				return true
			}
		}
	}
	return false
}

// looseEqual compares numbers by value so an int64 literal matches an int
// element.
func looseEqual(a, b any) bool {
	if isNumber(a) && isNumber(b) {
		return cast.ToFloat64(a) == cast.ToFloat64(b)
	}
	return reflect.DeepEqual(a, b)
}

// Escape HTML-escapes the string form of v.
func Escape(v any) any {
	return html.EscapeString(ToString(v))
}

// Capitalize upper-cases the first character and lower-cases the rest.
func Capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

func convertEncodingFunc(args ...any) (any, error) {
	if err := argCount("convertEncoding", args, 3, 3); err != nil {
		return nil, err
	}
	return ConvertEncoding(ToString(args[0]), ToString(args[1]), ToString(args[2]))
}

func sliceFunc(args ...any) (any, error) {
	if err := argCount("slice", args, 2, 3); err != nil {
		return nil, err
	}
	start, err := cast.ToIntE(args[1])
	if err != nil {
		return nil, errors.NewFilterError(errors.ErrCodeInvalidArgument, "slice start must be an integer")
	}
	end := -1
	hasEnd := len(args) == 3 && args[2] != nil
	if hasEnd {
		if end, err = cast.ToIntE(args[2]); err != nil {
			return nil, errors.NewFilterError(errors.ErrCodeInvalidArgument, "slice end must be an integer")
		}
	}
	return Slice(args[0], start, end, hasEnd)
}

// Slice returns the inclusive range [start, end] of v. Without an end the
// range runs to the last element. Text is sliced by character.
func Slice(v any, start, end int, hasEnd bool) (any, error) {
	if s, ok := v.(string); ok {
		runes := []rune(s)
		lo, hi, err := bounds(len(runes), start, end, hasEnd)
		if err != nil {
			return nil, err
		}
		return string(runes[lo:hi]), nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		lo, hi, err := bounds(rv.Len(), start, end, hasEnd)
		if err != nil {
			return nil, err
		}
		if rv.Kind() == reflect.Array {
			out := reflect.MakeSlice(reflect.SliceOf(rv.Type().Elem()), hi-lo, hi-lo)
			reflect.Copy(out, rv.Slice(lo, hi))
			return out.Interface(), nil
		}
		return rv.Slice(lo, hi).Interface(), nil
	}

	pairs, err := Iterate(v)
	if err != nil {
		return nil, errors.NewFilterError(errors.ErrCodeInvalidArgument, err.Error())
	}
	values := make([]any, len(pairs))
	for i, p := range pairs {
		values[i] = p.Value
	}
	lo, hi, err := bounds(len(values), start, end, hasEnd)
	if err != nil {
		return nil, err
	}
	return values[lo:hi], nil
}

// bounds converts an inclusive [start, end] into half-open [lo, hi).
func bounds(length, start, end int, hasEnd bool) (int, int, error) {
	if !hasEnd {
		end = length - 1
	}
	if start < 0 || end >= length || start > end {
		return 0, 0, errors.NewFilterError(errors.ErrCodeInvalidSlice,
			fmt.Sprintf("invalid slice bounds [%d, %d] for length %d", start, end, length))
	}
	return start, end + 1, nil
}

// Sort sorts a sequence ascending in place and returns it.
func Sort(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return []any{}, nil
	case []int:
		sort.Ints(x)
		return x, nil
	case []float64:
		sort.Float64s(x)
		return x, nil
	case []string:
		sort.Strings(x)
		return x, nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, errors.NewFilterError(errors.ErrCodeInvalidArgument,
			fmt.Sprintf("sort expects a sequence, got %T", v))
	}

	numeric, textual := 0, 0
	for i := 0; i < rv.Len(); i++ {
		elem := rv.Index(i).Interface()
		switch {
		case isNumber(elem):
			numeric++
		case reflect.ValueOf(elem).Kind() == reflect.String:
			textual++
		default:
			return nil, errors.NewFilterError(errors.ErrCodeInvalidArgument,
				fmt.Sprintf("sort cannot order elements of type %T", elem))
		}
	}
	if numeric > 0 && textual > 0 {
		return nil, errors.NewFilterError(errors.ErrCodeInvalidArgument, "sort cannot mix numbers and strings")
	}

	swap := reflect.Swapper(v)
	sort.Sort(reflectSorter{rv: rv, swap: swap})
	return v, nil
}

type reflectSorter struct {
	rv   reflect.Value
	swap func(i, j int)
}

func (s reflectSorter) Len() int      { return s.rv.Len() }
func (s reflectSorter) Swap(i, j int) { s.swap(i, j) }
func (s reflectSorter) Less(i, j int) bool {
	return lessValues(s.rv.Index(i).Interface(), s.rv.Index(j).Interface())
}

func defaultFunc(args ...any) (any, error) {
	if err := argCount("default", args, 2, 2); err != nil {
		return nil, err
	}
	if args[0] == nil {
		return args[1], nil
	}
	if s, ok := args[0].(string); ok && s == "" {
		return args[1], nil
	}
	return args[0], nil
}

func joinFunc(args ...any) (any, error) {
	if err := argCount("join", args, 1, 2); err != nil {
		return nil, err
	}
	sep := ""
	if len(args) == 2 {
		sep = ToString(args[1])
	}
	pairs, err := Iterate(args[0])
	if err != nil {
		return nil, errors.NewFilterError(errors.ErrCodeInvalidArgument, err.Error())
	}
	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = ToString(p.Value)
	}
	return strings.Join(parts, sep), nil
}

// Keys returns the keys of a map in sorted order.
func Keys(v any) (any, error) {
	rv := reflect.ValueOf(v)
	if v == nil || rv.Kind() != reflect.Map {
		return nil, errors.NewFilterError(errors.ErrCodeInvalidArgument,
			fmt.Sprintf("keys expects a mapping, got %T", v))
	}
	pairs, err := Iterate(v)
	if err != nil {
		return nil, err
	}
	keys := make([]any, len(pairs))
	for i, p := range pairs {
		keys[i] = p.Key
	}
	return keys, nil
}

// JSONEncode renders v as JSON text.
func JSONEncode(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.NewFilterError(errors.ErrCodeInvalidArgument, "json_encode: "+err.Error())
	}
	return string(data), nil
}

// Abs returns the absolute value, keeping integers integral.
func Abs(v any) (any, error) {
	switch reflect.ValueOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := cast.ToInt64(v)
		if n < 0 {
			n = -n
		}
		return n, nil
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return nil, errors.NewFilterError(errors.ErrCodeInvalidArgument,
			fmt.Sprintf("abs expects a number, got %T", v))
	}
	return math.Abs(f), nil
}
