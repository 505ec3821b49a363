// Package ir defines the typed node tree produced by the parser and
// consumed by the compiler.
package ir

import (
	"fmt"

	"github.com/conneroisu/volt/internal/expression"
)

// Pos locates a node in its source file.
type Pos struct {
	File string
	Line int
}

func (p Pos) String() string {
	return fmt.Sprintf("%s:%d", p.File, p.Line)
}

// Node is one element of a template body. The set of implementations is
// closed: only types in this package satisfy it.
type Node interface {
	Position() Pos
	node()
}

// Raw is literal text emitted verbatim.
type Raw struct {
	Pos
	Text string
}

// Expression is an output tag.
type Expression struct {
	Pos
	Source string
	Expr   expression.Expr
}

// Block is a named, overridable region.
type Block struct {
	Pos
	Name string
	Body []Node
}

// Extends declares the parent layout. It renders nothing.
type Extends struct {
	Pos
	Parent string
}

// Macro is a reusable fragment with positional parameters.
type Macro struct {
	Pos
	Name   string
	Params []string
	Body   []Node
}

// Cache memoizes its rendered body under an evaluated key.
type Cache struct {
	Pos
	KeySource string
	Key       expression.Expr
	// TTL is in seconds; nil lets the backend apply its default.
	TTL  *int
	Body []Node
}

// Autoescape toggles expression escaping for its body.
type Autoescape struct {
	Pos
	Enabled bool
	Body    []Node
}

// Branch is one condition/body pair of an If.
type Branch struct {
	Pos
	Source string
	Cond   expression.Expr
	Body   []Node
}

// If renders the body of the first branch whose condition is truthy, or
// Else when none is.
type If struct {
	Pos
	Branches []Branch
	Else     []Node
}

// For iterates a sequence or mapping. Key is empty for the single-variable
// form. Else renders when the iterable is empty.
type For struct {
	Pos
	Key        string
	Value      string
	IterSource string
	Iter       expression.Expr
	Body       []Node
	Else       []Node
}

// Set assigns a variable in the render scope.
type Set struct {
	Pos
	Name   string
	Source string
	Value  expression.Expr
}

// Include inlines another template at compile time.
type Include struct {
	Pos
	Path string
}

// Position implements Node.
func (p Pos) Position() Pos { return p }

func (*Raw) node()        {}
func (*Expression) node() {}
func (*Block) node()      {}
func (*Extends) node()    {}
func (*Macro) node()      {}
func (*Cache) node()      {}
func (*Autoescape) node() {}
func (*If) node()         {}
func (*For) node()        {}
func (*Set) node()        {}
func (*Include) node()    {}

// Template is the parsed form of one source file.
type Template struct {
	SourcePath string
	Nodes      []Node
	// Extends is the parent path, empty for a root layout.
	Extends    string
	ExtendsPos Pos
}

// Children returns every body list directly owned by n.
func Children(n Node) [][]Node {
	switch v := n.(type) {
	case *Block:
		return [][]Node{v.Body}
	case *Macro:
		return [][]Node{v.Body}
	case *Cache:
		return [][]Node{v.Body}
	case *Autoescape:
		return [][]Node{v.Body}
	case *If:
		bodies := make([][]Node, 0, len(v.Branches)+1)
		for _, br := range v.Branches {
			bodies = append(bodies, br.Body)
		}
		return append(bodies, v.Else)
	case *For:
		return [][]Node{v.Body, v.Else}
	default:
		return nil
	}
}

// Walk visits nodes depth-first in source order. Returning false from fn
// skips the children of that node.
func Walk(nodes []Node, fn func(Node) bool) {
	for _, n := range nodes {
		if !fn(n) {
			continue
		}
		for _, body := range Children(n) {
			Walk(body, fn)
		}
	}
}
