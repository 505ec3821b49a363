package expression

import (
	"fmt"
	"strconv"
	"strings"
)

// FuncPrefix is prepended to every filter and function name in translated
// source so registry names never collide with expr-lang builtins.
const FuncPrefix = "volt_"

// Runtime helpers the translator emits unconditionally. The view engine
// provides them alongside the registry.
const (
	FuncConcat   = FuncPrefix + "concat"
	FuncTruthy   = FuncPrefix + "truthy"
	FuncIndex    = FuncPrefix + "index"
	FuncIncluded = FuncPrefix + "isIncluded"
)

// Resolver answers whether a filter or function name exists.
type Resolver interface {
	HasFilter(name string) bool
	HasFunction(name string) bool
}

// UnknownNameError is returned when an expression references a filter or
// function the resolver does not know.
type UnknownNameError struct {
	Kind string // "filter" or "function"
	Name string
}

func (e *UnknownNameError) Error() string {
	return fmt.Sprintf("unknown %s %q", e.Kind, e.Name)
}

// reserved identifiers cannot be referenced bare in expr-lang source.
var reserved = map[string]bool{
	"let": true, "if": true, "else": true, "nil": true, "matches": true,
	"contains": true, "startsWith": true, "endsWith": true, "not": true,
	"in": true, "and": true, "or": true, "true": true, "false": true,
}

// Translate renders e as expr-lang source.
func Translate(e Expr, r Resolver) (string, error) {
	var b strings.Builder
	if err := translate(&b, e, r); err != nil {
		return "", err
	}
	return b.String(), nil
}

func translate(b *strings.Builder, e Expr, r Resolver) error {
	switch n := e.(type) {
	case *Literal:
		b.WriteString(literal(n.Value))
	case *Ident:
		if reserved[n.Name] {
			fmt.Fprintf(b, "$env[%s]", strconv.Quote(n.Name))
		} else {
			b.WriteString(n.Name)
		}
	case *Member:
		if err := translate(b, n.X, r); err != nil {
			return err
		}
		b.WriteString("?.")
		b.WriteString(n.Name)
	case *Index:
		return call(b, FuncIndex, r, n.X, n.Index)
	case *Call:
		return translateCall(b, n, r)
	case *Filter:
		if !r.HasFilter(n.Name) {
			return &UnknownNameError{Kind: "filter", Name: n.Name}
		}
		return call(b, FuncPrefix+n.Name, r, append([]Expr{n.X}, n.Args...)...)
	case *Unary:
		if n.Op == "not" {
			b.WriteString("!")
			return condition(b, n.X, r)
		}
		b.WriteString("(-")
		if err := translate(b, n.X, r); err != nil {
			return err
		}
		b.WriteString(")")
	case *Binary:
		return translateBinary(b, n, r)
	case *Ternary:
		b.WriteString("(")
		if err := condition(b, n.Cond, r); err != nil {
			return err
		}
		b.WriteString(" ? ")
		if err := translate(b, n.Then, r); err != nil {
			return err
		}
		b.WriteString(" : ")
		if err := translate(b, n.Else, r); err != nil {
			return err
		}
		b.WriteString(")")
	case *List:
		b.WriteString("[")
		if err := list(b, n.Elems, r); err != nil {
			return err
		}
		b.WriteString("]")
	case *Map:
		b.WriteString("{")
		for i, entry := range n.Entries {
			if i > 0 {
				b.WriteString(", ")
			}
			if err := translate(b, entry.Key, r); err != nil {
				return err
			}
			b.WriteString(": ")
			if err := translate(b, entry.Value, r); err != nil {
				return err
			}
		}
		b.WriteString("}")
	default:
		return fmt.Errorf("unsupported expression node %T", e)
	}
	return nil
}

func translateCall(b *strings.Builder, n *Call, r Resolver) error {
	switch fn := n.Fn.(type) {
	case *Ident:
		if !r.HasFunction(fn.Name) {
			return &UnknownNameError{Kind: "function", Name: fn.Name}
		}
		return call(b, FuncPrefix+fn.Name, r, n.Args...)
	case *Member:
		if err := translate(b, fn.X, r); err != nil {
			return err
		}
		b.WriteString(".")
		b.WriteString(fn.Name)
		b.WriteString("(")
		if err := list(b, n.Args, r); err != nil {
			return err
		}
		b.WriteString(")")
		return nil
	default:
		return fmt.Errorf("expression is not callable")
	}
}

func translateBinary(b *strings.Builder, n *Binary, r Resolver) error {
	switch n.Op {
	case "~":
		return call(b, FuncConcat, r, n.Left, n.Right)
	case "in":
		return call(b, FuncIncluded, r, n.Left, n.Right)
	case "not in":
		b.WriteString("!")
		return call(b, FuncIncluded, r, n.Left, n.Right)
	case "and", "or":
		op := " && "
		if n.Op == "or" {
			op = " || "
		}
		b.WriteString("(")
		if err := condition(b, n.Left, r); err != nil {
			return err
		}
		b.WriteString(op)
		if err := condition(b, n.Right, r); err != nil {
			return err
		}
		b.WriteString(")")
		return nil
	default:
		b.WriteString("(")
		if err := translate(b, n.Left, r); err != nil {
			return err
		}
		b.WriteString(" " + n.Op + " ")
		if err := translate(b, n.Right, r); err != nil {
			return err
		}
		b.WriteString(")")
		return nil
	}
}

// condition emits e coerced to bool.
func condition(b *strings.Builder, e Expr, r Resolver) error {
	if IsBoolean(e) {
		b.WriteString("(")
		if err := translate(b, e, r); err != nil {
			return err
		}
		b.WriteString(")")
		return nil
	}
	return call(b, FuncTruthy, r, e)
}

// IsBoolean reports whether e always evaluates to a bool.
func IsBoolean(e Expr) bool {
	switch n := e.(type) {
	case *Literal:
		_, ok := n.Value.(bool)
		return ok
	case *Unary:
		return n.Op == "not"
	case *Binary:
		switch n.Op {
		case "and", "or", "in", "not in":
			return true
		}
		return comparisonOps[n.Op]
	}
	return false
}

func call(b *strings.Builder, name string, r Resolver, args ...Expr) error {
	b.WriteString(name)
	b.WriteString("(")
	if err := list(b, args, r); err != nil {
		return err
	}
	b.WriteString(")")
	return nil
}

func list(b *strings.Builder, elems []Expr, r Resolver) error {
	for i, e := range elems {
		if i > 0 {
			b.WriteString(", ")
		}
		if err := translate(b, e, r); err != nil {
			return err
		}
	}
	return nil
}

func literal(v any) string {
	switch x := v.(type) {
	case nil:
		return "nil"
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		s := strconv.FormatFloat(x, 'f', -1, 64)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return s
	case string:
		return strconv.Quote(x)
	default:
		return strconv.Quote(fmt.Sprint(x))
	}
}
