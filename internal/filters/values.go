package filters

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/spf13/cast"
)

// Truthy applies template truthiness: nil, false, zero numbers, empty
// strings and empty collections are false.
func Truthy(v any) bool {
	if v == nil {
		return false
	}
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return x != ""
	case []byte:
		return len(x) > 0
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.Slice, reflect.Array, reflect.Map, reflect.String:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}

// ToString renders v for output. nil renders as the empty string.
func ToString(v any) string {
	if v == nil {
		return ""
	}
	if s, err := cast.ToStringE(v); err == nil {
		return s
	}
	return fmt.Sprint(v)
}

// Pair is one element of an iteration: the index or map key, and the
// value.
type Pair struct {
	Key   any
	Value any
}

// Iterate materializes v into key/value pairs by stepping through it once.
// Maps are visited in sorted key order, strings rune by rune and channels
// until closed. nil yields no pairs.
func Iterate(v any) ([]Pair, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(string); ok {
		pairs := make([]Pair, 0, len(s))
		i := 0
		for _, r := range s {
			pairs = append(pairs, Pair{Key: i, Value: string(r)})
			i++
		}
		return pairs, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		pairs := make([]Pair, rv.Len())
		for i := range pairs {
			pairs[i] = Pair{Key: i, Value: rv.Index(i).Interface()}
		}
		return pairs, nil
	case reflect.Map:
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool {
			return lessValues(keys[i].Interface(), keys[j].Interface())
		})
		pairs := make([]Pair, len(keys))
		for i, k := range keys {
			pairs[i] = Pair{Key: k.Interface(), Value: rv.MapIndex(k).Interface()}
		}
		return pairs, nil
	case reflect.Chan:
		var pairs []Pair
		for i := 0; ; i++ {
			x, ok := rv.Recv()
			if !ok {
				return pairs, nil
			}
			pairs = append(pairs, Pair{Key: i, Value: x.Interface()})
		}
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, nil
		}
		return Iterate(rv.Elem().Interface())
	}
	return nil, fmt.Errorf("value of type %T is not iterable", v)
}

// lessValues orders mixed keys: numbers numerically, everything else by
// string form.
func lessValues(a, b any) bool {
	fa, errA := cast.ToFloat64E(a)
	fb, errB := cast.ToFloat64E(b)
	if errA == nil && errB == nil && isNumber(a) && isNumber(b) {
		return fa < fb
	}
	return ToString(a) < ToString(b)
}

func isNumber(v any) bool {
	switch reflect.ValueOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// Index looks up key in container. Missing keys and out-of-range indexes
// yield nil; negative indexes count from the end.
func Index(container, key any) (any, error) {
	if container == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(container)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map:
		k := reflect.ValueOf(key)
		if !k.IsValid() {
			return nil, nil
		}
		keyType := rv.Type().Key()
		if !k.Type().AssignableTo(keyType) {
			switch {
			case keyType.Kind() == reflect.String:
				k = reflect.ValueOf(ToString(key)).Convert(keyType)
			case isNumber(key) && isNumber(reflect.Zero(keyType).Interface()):
				k = k.Convert(keyType)
			default:
				return nil, nil
			}
		}
		v := rv.MapIndex(k)
		if !v.IsValid() {
			return nil, nil
		}
		return v.Interface(), nil
	case reflect.Slice, reflect.Array, reflect.String:
		i, err := cast.ToIntE(key)
		if err != nil {
			return nil, fmt.Errorf("index must be an integer, got %T", key)
		}
		if rv.Kind() == reflect.String {
			runes := []rune(rv.String())
			if i < 0 {
				i += len(runes)
			}
			if i < 0 || i >= len(runes) {
				return nil, nil
			}
			return string(runes[i]), nil
		}
		if i < 0 {
			i += rv.Len()
		}
		if i < 0 || i >= rv.Len() {
			return nil, nil
		}
		return rv.Index(i).Interface(), nil
	case reflect.Struct:
		name, ok := key.(string)
		if !ok {
			return nil, nil
		}
		f := rv.FieldByName(name)
		if !f.IsValid() || !f.CanInterface() {
			return nil, nil
		}
		return f.Interface(), nil
	}
	return nil, fmt.Errorf("cannot index value of type %T", container)
}
