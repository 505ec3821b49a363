package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/conneroisu/volt/internal/errors"
	"github.com/conneroisu/volt/internal/expression"
	"github.com/conneroisu/volt/internal/ir"
)

// Names of the runtime helpers referenced by generated source. The view
// package provides them in its FuncMap.
const (
	FuncEscape     = "volt_escape"
	FuncEcho       = "volt_echo"
	FuncEval       = "volt_eval"
	FuncTest       = "volt_test"
	FuncBind       = "volt_bind"
	FuncLookup     = "volt_lookup"
	FuncIter       = "volt_iter"
	FuncLoop       = "volt_loop"
	FuncArgs       = "volt_args"
	FuncRender     = "volt_render"
	FuncCacheGet   = "volt_cache_get"
	FuncCacheSet   = "volt_cache_set"
	MacroPrefix    = "macro:"
	CachePrefix    = "cache:"
	LoopVar        = "loop"
	superFunction  = "super"
	keyVarPrefix   = "$volt_key_"
	itemVarPrefix  = "$volt_item_"
	outerVarPrefix = "$volt_outer_"
)

// scope is the emission context of a node list.
type scope struct {
	autoescape bool
	// block and level identify the block body being emitted, for super().
	block string
	level int
}

func (p *pass) emitNodes(w *strings.Builder, nodes []ir.Node, sc scope) error {
	for _, n := range nodes {
		if err := p.emitNode(w, n, sc); err != nil {
			return err
		}
	}
	return nil
}

func (p *pass) emitNode(w *strings.Builder, n ir.Node, sc scope) error {
	switch v := n.(type) {
	case *ir.Raw:
		writeText(w, v.Text)
	case *ir.Expression:
		return p.emitExpression(w, v, sc)
	case *ir.Block:
		return p.emitBlock(w, v, sc)
	case *ir.Extends, *ir.Macro:
		// Extends is resolved before emission; macros are hoisted.
	case *ir.Cache:
		return p.emitCache(w, v, sc)
	case *ir.Autoescape:
		inner := sc
		inner.autoescape = v.Enabled
		return p.emitNodes(w, v.Body, inner)
	case *ir.If:
		return p.emitIf(w, v, sc)
	case *ir.For:
		return p.emitFor(w, v, sc)
	case *ir.Set:
		src, err := p.translate(v.Value, v.Pos)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "{{%s $ %s (%s)}}", FuncBind, strconv.Quote(v.Name), eval(src))
	case *ir.Include:
		return p.emitInclude(w, v, sc)
	default:
		pos := n.Position()
		return errors.NewInternalError(errors.ErrCodeInternalError,
			fmt.Sprintf("%s: cannot emit node %T", pos, n), nil)
	}
	return nil
}

// writeText emits literal text. Text that text/template would read as an
// action is written as a quoted string action instead.
func writeText(w *strings.Builder, text string) {
	if text == "" {
		return
	}
	if strings.Contains(text, "{{") || strings.Contains(text, "}}") || strings.HasSuffix(text, "{") {
		w.WriteString("{{")
		w.WriteString(strconv.Quote(text))
		w.WriteString("}}")
		return
	}
	w.WriteString(text)
}

func eval(src string) string {
	return FuncEval + " " + strconv.Quote(src) + " $"
}

func (p *pass) emitExpression(w *strings.Builder, n *ir.Expression, sc scope) error {
	if name, args, ok := expression.CallName(n.Expr); ok {
		if name == superFunction {
			return p.emitSuper(w, n, args, sc)
		}
		if def, isMacro := p.macros[name]; isMacro {
			return p.emitMacroCall(w, n, def.node, args)
		}
	}

	src, err := p.translate(n.Expr, n.Pos)
	if err != nil {
		return err
	}
	helper := FuncEscape
	if !sc.autoescape || expression.IsSafe(n.Expr) {
		helper = FuncEcho
	}
	fmt.Fprintf(w, "{{%s %s $}}", helper, strconv.Quote(src))
	return nil
}

// translate converts an expression to runtime source, mapping unknown names
// to semantic errors. A macro name used inside a larger expression is
// reported as such.
func (p *pass) translate(e expression.Expr, pos ir.Pos) (string, error) {
	src, err := expression.Translate(e, p.c.resolver)
	if err == nil {
		return src, nil
	}

	var unknown *expression.UnknownNameError
	if errors.As(err, &unknown) {
		switch {
		case unknown.Name == superFunction:
			return "", errors.NewSemanticError(errors.ErrCodeMisplacedSuper,
				"super() must be used on its own inside a block", pos.File, pos.Line)
		case p.macros[unknown.Name].node != nil:
			return "", errors.NewSemanticError(errors.ErrCodeMisplacedMacroCall,
				fmt.Sprintf("macro %q must be called as a standalone expression", unknown.Name), pos.File, pos.Line)
		case unknown.Kind == "filter":
			return "", errors.NewSemanticError(errors.ErrCodeUnknownFilter,
				unknown.Error(), pos.File, pos.Line)
		default:
			return "", errors.NewSemanticError(errors.ErrCodeUnknownFunction,
				unknown.Error(), pos.File, pos.Line)
		}
	}
	ve := errors.NewSemanticError(errors.ErrCodeMalformedExpression, "cannot translate expression", pos.File, pos.Line)
	ve.Cause = err
	return "", ve
}

func (p *pass) emitBlock(w *strings.Builder, b *ir.Block, sc scope) error {
	if !p.inherited[b] {
		inner := sc
		inner.block, inner.level = "", 0
		return p.emitNodes(w, b.Body, inner)
	}
	bodies := p.blocks[b.Name]
	level := len(bodies) - 1
	inner := sc
	inner.block, inner.level = b.Name, level
	inner.autoescape = bodies[level].autoescape
	return p.emitNodes(w, bodies[level].node.Body, inner)
}

func (p *pass) emitSuper(w *strings.Builder, n *ir.Expression, args []expression.Expr, sc scope) error {
	if len(args) != 0 {
		return errors.NewSemanticError(errors.ErrCodeMisplacedSuper,
			"super() takes no arguments", n.File, n.Line)
	}
	if sc.block == "" {
		return errors.NewSemanticError(errors.ErrCodeMisplacedSuper,
			"super() used outside of a block", n.File, n.Line)
	}
	if sc.level == 0 {
		return errors.NewSemanticError(errors.ErrCodeMisplacedSuper,
			fmt.Sprintf("block %q has no parent version for super()", sc.block), n.File, n.Line)
	}
	inner := sc
	inner.level--
	def := p.blocks[sc.block][inner.level]
	inner.autoescape = def.autoescape
	return p.emitNodes(w, def.node.Body, inner)
}

func (p *pass) emitMacroCall(w *strings.Builder, n *ir.Expression, m *ir.Macro, args []expression.Expr) error {
	if len(args) != len(m.Params) {
		return errors.NewSemanticError(errors.ErrCodeMacroArity,
			fmt.Sprintf("macro %q takes %d argument(s), called with %d", m.Name, len(m.Params), len(args)),
			n.File, n.Line)
	}
	fmt.Fprintf(w, "{{template %s (%s", strconv.Quote(MacroPrefix+m.Name), FuncArgs)
	for i, arg := range args {
		src, err := p.translate(arg, n.Pos)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, " %s (%s)", strconv.Quote(m.Params[i]), eval(src))
	}
	w.WriteString(")}}")
	return nil
}

// emitMacros hoists every registered macro into a define section, in
// registration order.
func (p *pass) emitMacros() error {
	for _, name := range p.macroOrder {
		def := p.macros[name]
		var body strings.Builder
		if err := p.emitNodes(&body, def.node.Body, scope{autoescape: def.autoescape}); err != nil {
			return err
		}
		fmt.Fprintf(&p.hoisted, "{{define %s}}%s{{end}}", strconv.Quote(MacroPrefix+name), body.String())
	}
	return nil
}

func (p *pass) emitCache(w *strings.Builder, c *ir.Cache, sc scope) error {
	id := p.cacheSeq
	p.cacheSeq++
	name := strconv.Quote(CachePrefix + strconv.Itoa(id))

	key, err := p.translate(c.Key, c.Pos)
	if err != nil {
		return err
	}
	var body strings.Builder
	if err := p.emitNodes(&body, c.Body, sc); err != nil {
		return err
	}
	fmt.Fprintf(&p.hoisted, "{{define %s}}%s{{end}}", name, body.String())

	ttl := 0
	if c.TTL != nil {
		ttl = *c.TTL
	}
	keyVar := keyVarPrefix + strconv.Itoa(id)
	fmt.Fprintf(w, "{{%s := %s}}", keyVar, eval(key))
	fmt.Fprintf(w, "{{with %s %s}}{{.Payload}}{{else}}", FuncCacheGet, keyVar)
	fmt.Fprintf(w, "{{%s %s %d (%s %s $)}}{{end}}", FuncCacheSet, keyVar, ttl, FuncRender, name)
	return nil
}

func (p *pass) emitIf(w *strings.Builder, n *ir.If, sc scope) error {
	for i, br := range n.Branches {
		src, err := p.translate(br.Cond, br.Pos)
		if err != nil {
			return err
		}
		keyword := "if"
		if i > 0 {
			keyword = "else if"
		}
		fmt.Fprintf(w, "{{%s %s %s $}}", keyword, FuncTest, strconv.Quote(src))
		if err := p.emitNodes(w, br.Body, sc); err != nil {
			return err
		}
	}
	if len(n.Else) > 0 {
		w.WriteString("{{else}}")
		if err := p.emitNodes(w, n.Else, sc); err != nil {
			return err
		}
	}
	w.WriteString("{{end}}")
	return nil
}

// emitFor ranges over the iterable with the loop variables rebound into the
// render scope for each item. The enclosing loop variable is restored after
// the range so nested loops see their own metadata.
func (p *pass) emitFor(w *strings.Builder, n *ir.For, sc scope) error {
	id := strconv.Itoa(p.loopSeq)
	p.loopSeq++

	src, err := p.translate(n.Iter, n.Pos)
	if err != nil {
		return err
	}
	outer, item := outerVarPrefix+id, itemVarPrefix+id
	fmt.Fprintf(w, "{{%s := %s $ %s}}", outer, FuncLookup, strconv.Quote(LoopVar))
	fmt.Fprintf(w, "{{range %s := %s (%s)}}", item, FuncIter, eval(src))
	fmt.Fprintf(w, "{{%s $ %s %s %s}}", FuncLoop, strconv.Quote(n.Key), strconv.Quote(n.Value), item)
	if err := p.emitNodes(w, n.Body, sc); err != nil {
		return err
	}
	if len(n.Else) > 0 {
		w.WriteString("{{else}}")
		if err := p.emitNodes(w, n.Else, sc); err != nil {
			return err
		}
	}
	w.WriteString("{{end}}")
	fmt.Fprintf(w, "{{%s $ %s %s}}", FuncBind, strconv.Quote(LoopVar), outer)
	return nil
}

func (p *pass) emitInclude(w *strings.Builder, inc *ir.Include, sc scope) error {
	rel, err := p.resolveAt(inc.Path, inc.Pos)
	if err != nil {
		return err
	}
	tpl, err := p.loadAt(rel, inc.Pos)
	if err != nil {
		return err
	}
	return p.emitNodes(w, tpl.Nodes, scope{autoescape: sc.autoescape})
}
