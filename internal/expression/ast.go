// Package expression parses Volt expressions and translates them into
// expr-lang source evaluated by the view runtime.
package expression

// Expr is a parsed Volt expression. The set of implementations is closed.
type Expr interface {
	expr()
}

// Literal is a string, number, boolean or null constant.
type Literal struct {
	// Value is string, int64, float64, bool or nil.
	Value any
}

// Ident is a bare variable reference.
type Ident struct {
	Name string
}

// Member is x.name.
type Member struct {
	X    Expr
	Name string
}

// Index is x[index].
type Index struct {
	X     Expr
	Index Expr
}

// Call is fn(args...). Fn is an Ident for named functions and macros, or
// a Member for method calls.
type Call struct {
	Fn   Expr
	Args []Expr
}

// Filter is x|name or x|name(args...).
type Filter struct {
	X    Expr
	Name string
	Args []Expr
}

// Unary is a prefix operator: "not" or "-".
type Unary struct {
	Op string
	X  Expr
}

// Binary is an infix operator. Op is the Volt spelling ("and", "~", "in",
// "not in", "==", ...).
type Binary struct {
	Op    string
	Left  Expr
	Right Expr
}

// Ternary is cond ? then : else.
type Ternary struct {
	Cond Expr
	Then Expr
	Else Expr
}

// List is [a, b, ...].
type List struct {
	Elems []Expr
}

// MapEntry is one key: value pair of a Map.
type MapEntry struct {
	Key   Expr
	Value Expr
}

// Map is {key: value, ...}. Bare identifier keys are string keys.
type Map struct {
	Entries []MapEntry
}

func (*Literal) expr() {}
func (*Ident) expr()   {}
func (*Member) expr()  {}
func (*Index) expr()   {}
func (*Call) expr()    {}
func (*Filter) expr()  {}
func (*Unary) expr()   {}
func (*Binary) expr()  {}
func (*Ternary) expr() {}
func (*List) expr()    {}
func (*Map) expr()     {}

// CallName returns the function name when e is a call of a bare
// identifier, such as a macro invocation.
func CallName(e Expr) (string, []Expr, bool) {
	call, ok := e.(*Call)
	if !ok {
		return "", nil, false
	}
	ident, ok := call.Fn.(*Ident)
	if !ok {
		return "", nil, false
	}
	return ident.Name, call.Args, true
}

// safeFilters mark output that must not be escaped again.
var safeFilters = map[string]bool{"e": true, "escape": true, "raw": true}

// IsSafe reports whether the outermost operation of e is a filter whose
// output is already safe for direct emission.
func IsSafe(e Expr) bool {
	f, ok := e.(*Filter)
	return ok && safeFilters[f.Name]
}
