// Package compiler turns Volt templates into Go text/template source.
//
// A compilation resolves the whole extends chain of a template, inlines its
// includes and flattens blocks to their most-derived bodies, so the output
// is a single self-contained template set: the main body followed by
// hoisted {{define}} sections for macros and cache bodies.
package compiler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/conneroisu/volt/internal/errors"
	"github.com/conneroisu/volt/internal/expression"
	"github.com/conneroisu/volt/internal/ir"
	"github.com/conneroisu/volt/internal/logging"
	"github.com/conneroisu/volt/internal/parser"
)

// Dependency is one source file read during a compilation.
type Dependency struct {
	Path    string    `json:"path"`
	ModTime time.Time `json:"mtime"`
}

// Result is the output of a compilation.
type Result struct {
	// Path is the resolved name of the compiled template.
	Path   string
	Source string
	// Dependencies lists every file read, the compiled template first.
	Dependencies []Dependency
}

// Compiler compiles templates read through a Loader. It holds no mutable
// state and may be shared between goroutines.
type Compiler struct {
	loader     Loader
	resolver   expression.Resolver
	autoescape bool
	logger     logging.Logger
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithAutoescape sets the escaping mode at the top of every template.
// The default is true.
func WithAutoescape(enabled bool) Option {
	return func(c *Compiler) { c.autoescape = enabled }
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(c *Compiler) { c.logger = logger }
}

// New creates a compiler. The resolver decides which filter and function
// names are known at compile time.
func New(loader Loader, resolver expression.Resolver, opts ...Option) *Compiler {
	c := &Compiler{
		loader:     loader,
		resolver:   resolver,
		autoescape: true,
		logger:     logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithComponent("compiler")
	return c
}

// Loader returns the loader templates are read through.
func (c *Compiler) Loader() Loader {
	return c.loader
}

// Compile compiles the template called name.
func (c *Compiler) Compile(ctx context.Context, name string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rel, err := c.loader.Resolve(name)
	if err != nil {
		return nil, err
	}

	perf := logging.StartOperation(c.logger, "compile")
	p := newPass(c)
	source, err := p.run(rel)
	if err != nil {
		perf.EndWithError(ctx, err, "template", rel)
		return nil, err
	}
	perf.End(ctx, "template", rel, "dependencies", len(p.deps))

	return &Result{Path: rel, Source: source, Dependencies: p.deps}, nil
}

// CompileString compiles text as if it were a template called name. Extends
// and include paths in text are resolved through the loader.
func (c *Compiler) CompileString(ctx context.Context, name, text string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := newPass(c)
	tpl, err := parser.Parse(name, text)
	if err != nil {
		return nil, err
	}
	p.templates[name] = tpl
	source, err := p.run(name)
	if err != nil {
		return nil, err
	}
	return &Result{Path: name, Source: source, Dependencies: p.deps}, nil
}

// blockDef is one body of a block with the escaping mode in force where
// that body was written.
type blockDef struct {
	node       *ir.Block
	autoescape bool
}

// macroDef is a macro with the escaping mode in force where it was defined.
type macroDef struct {
	node       *ir.Macro
	autoescape bool
}

// pass holds the registries of a single compilation. Nothing in it outlives
// the call to Compile.
type pass struct {
	c *Compiler

	templates map[string]*ir.Template
	deps      []Dependency
	seenDeps  map[string]bool

	// blocks maps a block name to its bodies along the extends chain,
	// root layout first.
	blocks    map[string][]blockDef
	inherited map[*ir.Block]bool

	macros     map[string]macroDef
	macroOrder []string
	collected  map[string]bool

	hoisted  strings.Builder
	cacheSeq int
	loopSeq  int
}

func newPass(c *Compiler) *pass {
	return &pass{
		c:         c,
		templates: make(map[string]*ir.Template),
		seenDeps:  make(map[string]bool),
		blocks:    make(map[string][]blockDef),
		inherited: make(map[*ir.Block]bool),
		macros:    make(map[string]macroDef),
		collected: make(map[string]bool),
	}
}

// load parses rel once per pass and records it as a dependency.
func (p *pass) load(rel string) (*ir.Template, error) {
	if tpl, ok := p.templates[rel]; ok {
		p.addDependency(rel, time.Time{})
		return tpl, nil
	}
	src, err := p.c.loader.Load(rel)
	if err != nil {
		return nil, err
	}
	p.addDependency(rel, src.ModTime)
	tpl, err := parser.Parse(rel, src.Text)
	if err != nil {
		return nil, err
	}
	p.templates[rel] = tpl
	return tpl, nil
}

func (p *pass) addDependency(rel string, modTime time.Time) {
	if p.seenDeps[rel] {
		return
	}
	if modTime.IsZero() {
		// Sources handed to CompileString are not on the loader.
		if mt, err := p.c.loader.ModTime(rel); err == nil {
			modTime = mt
		} else {
			return
		}
	}
	p.seenDeps[rel] = true
	p.deps = append(p.deps, Dependency{Path: rel, ModTime: modTime})
}

// resolveAt resolves a path named by a directive, attaching the directive's
// location to failures.
func (p *pass) resolveAt(name string, pos ir.Pos) (string, error) {
	rel, err := p.c.loader.Resolve(name)
	if err != nil {
		return "", locate(err, pos)
	}
	return rel, nil
}

func (p *pass) loadAt(rel string, pos ir.Pos) (*ir.Template, error) {
	tpl, err := p.load(rel)
	if err != nil {
		return nil, locate(err, pos)
	}
	return tpl, nil
}

func locate(err error, pos ir.Pos) error {
	var ve *errors.VoltError
	if errors.As(err, &ve) && ve.FilePath == "" {
		ve.WithLocation(pos.File, pos.Line, 0)
	}
	return err
}

func (p *pass) run(rel string) (string, error) {
	chain, err := p.chain(rel)
	if err != nil {
		return "", err
	}

	// Root layout first, so block bodies are registered parent before child.
	for i := len(chain) - 1; i >= 0; i-- {
		if err := p.collect(chain[i], true, p.c.autoescape, nil); err != nil {
			return "", err
		}
	}

	var out strings.Builder
	root := chain[len(chain)-1]
	if err := p.emitNodes(&out, root.Nodes, scope{autoescape: p.c.autoescape}); err != nil {
		return "", err
	}
	if err := p.emitMacros(); err != nil {
		return "", err
	}
	out.WriteString(p.hoisted.String())
	return out.String(), nil
}

// chain loads rel and its ancestors, most-derived first.
func (p *pass) chain(rel string) ([]*ir.Template, error) {
	tpl, err := p.load(rel)
	if err != nil {
		return nil, err
	}

	chain := []*ir.Template{tpl}
	visited := map[string]bool{rel: true}
	path := []string{rel}
	for tpl.Extends != "" {
		parent, err := p.resolveAt(tpl.Extends, tpl.ExtendsPos)
		if err != nil {
			return nil, err
		}
		path = append(path, parent)
		if visited[parent] {
			return nil, errors.NewSemanticError(errors.ErrCodeExtendsCycle,
				"extends cycle: "+strings.Join(path, " -> "),
				tpl.ExtendsPos.File, tpl.ExtendsPos.Line)
		}
		visited[parent] = true
		if tpl, err = p.loadAt(parent, tpl.ExtendsPos); err != nil {
			return nil, err
		}
		chain = append(chain, tpl)
	}
	return chain, nil
}

// collect registers the blocks and macros of tpl and, recursively, of the
// templates it includes. Blocks of included templates stay local to them.
func (p *pass) collect(tpl *ir.Template, inherit, autoescape bool, stack []string) error {
	if !inherit {
		if p.collected[tpl.SourcePath] {
			return nil
		}
		p.collected[tpl.SourcePath] = true
	}
	stack = append(stack, tpl.SourcePath)
	names := make(map[string]ir.Pos)
	return p.collectNodes(tpl.Nodes, inherit, autoescape, stack, names)
}

func (p *pass) collectNodes(nodes []ir.Node, inherit, autoescape bool, stack []string, names map[string]ir.Pos) error {
	for _, n := range nodes {
		pos := n.Position()
		switch v := n.(type) {
		case *ir.Block:
			if v.Name == "" {
				return errors.NewSemanticError(errors.ErrCodeEmptyBlockName,
					"block name must not be empty", pos.File, pos.Line)
			}
			if first, dup := names[v.Name]; dup {
				return errors.NewSemanticError(errors.ErrCodeDuplicateBlock,
					fmt.Sprintf("block %q already defined at %s", v.Name, first), pos.File, pos.Line)
			}
			names[v.Name] = pos
			if inherit {
				p.blocks[v.Name] = append(p.blocks[v.Name], blockDef{node: v, autoescape: autoescape})
				p.inherited[v] = true
			}
		case *ir.Macro:
			if first, dup := p.macros[v.Name]; dup {
				return errors.NewSemanticError(errors.ErrCodeDuplicateMacro,
					fmt.Sprintf("macro %q already defined at %s", v.Name, first.node.Pos), pos.File, pos.Line)
			}
			p.macros[v.Name] = macroDef{node: v, autoescape: autoescape}
			p.macroOrder = append(p.macroOrder, v.Name)
		case *ir.Autoescape:
			if err := p.collectNodes(v.Body, inherit, v.Enabled, stack, names); err != nil {
				return err
			}
			continue
		case *ir.Include:
			if err := p.collectInclude(v, autoescape, stack); err != nil {
				return err
			}
			continue
		}
		for _, body := range ir.Children(n) {
			if err := p.collectNodes(body, inherit, autoescape, stack, names); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *pass) collectInclude(inc *ir.Include, autoescape bool, stack []string) error {
	rel, err := p.resolveAt(inc.Path, inc.Pos)
	if err != nil {
		return err
	}
	for _, s := range stack {
		if s == rel {
			return errors.NewSemanticError(errors.ErrCodeIncludeCycle,
				"include cycle: "+strings.Join(append(stack, rel), " -> "), inc.File, inc.Line)
		}
	}
	tpl, err := p.loadAt(rel, inc.Pos)
	if err != nil {
		return err
	}
	if tpl.Extends != "" {
		return errors.NewSemanticError(errors.ErrCodeMisplacedExtends,
			fmt.Sprintf("included template %q must not use extends", rel), inc.File, inc.Line)
	}
	return p.collect(tpl, false, autoescape, stack)
}
