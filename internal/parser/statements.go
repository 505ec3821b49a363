package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/conneroisu/volt/internal/errors"
	"github.com/conneroisu/volt/internal/expression"
	"github.com/conneroisu/volt/internal/ir"
	"github.com/conneroisu/volt/internal/lexer"
)

// parseBlock handles {% block NAME %}...{% endblock [NAME] %}. A missing
// name is accepted here and rejected by the compiler.
func (p *Parser) parseBlock(tok lexer.Token, rest string) (ir.Node, error) {
	if rest != "" && !isIdentifier(rest) {
		return nil, p.syntaxError(errors.ErrCodeMalformedDirective, tok.Line,
			fmt.Sprintf("invalid block name %q", rest))
	}

	body, end, err := p.parseBody(tok, []string{"endblock"})
	if err != nil {
		return nil, err
	}
	if _, endName := splitWord(end.Text); endName != "" && endName != rest {
		return nil, p.syntaxError(errors.ErrCodeUnbalanced, end.Line,
			fmt.Sprintf("endblock %q does not match block %q", endName, rest))
	}

	return &ir.Block{Pos: p.pos(tok), Name: rest, Body: body}, nil
}

// parseExtends handles {% extends "PATH" %}. Only a quoted literal is
// accepted, at most once, and only at the top level of a template.
func (p *Parser) parseExtends(tok lexer.Token, rest string) (ir.Node, error) {
	path, err := p.quotedPath(tok, "extends", rest)
	if err != nil {
		return nil, err
	}
	if p.depth > 1 {
		return nil, p.semanticError(errors.ErrCodeMisplacedExtends, tok.Line,
			"extends must appear at the top level of a template")
	}
	if p.tmpl.Extends != "" {
		return nil, p.semanticError(errors.ErrCodeMisplacedExtends, tok.Line,
			fmt.Sprintf("template already extends %q", p.tmpl.Extends))
	}

	p.tmpl.Extends = path
	p.tmpl.ExtendsPos = p.pos(tok)
	return &ir.Extends{Pos: p.pos(tok), Parent: path}, nil
}

// parseMacro handles {% macro NAME(a, b) %}...{% endmacro %}.
func (p *Parser) parseMacro(tok lexer.Token, rest string) (ir.Node, error) {
	open := strings.IndexByte(rest, '(')
	if open < 0 || !strings.HasSuffix(rest, ")") {
		return nil, p.syntaxError(errors.ErrCodeMalformedDirective, tok.Line,
			fmt.Sprintf("macro %q must declare a parameter list", rest))
	}
	name := strings.TrimSpace(rest[:open])
	if !isIdentifier(name) {
		return nil, p.syntaxError(errors.ErrCodeMalformedDirective, tok.Line,
			fmt.Sprintf("invalid macro name %q", name))
	}

	var params []string
	if inner := strings.TrimSpace(rest[open+1 : len(rest)-1]); inner != "" {
		seen := make(map[string]bool)
		for _, raw := range strings.Split(inner, ",") {
			param := strings.TrimSpace(raw)
			if !isIdentifier(param) {
				return nil, p.syntaxError(errors.ErrCodeMalformedDirective, tok.Line,
					fmt.Sprintf("invalid parameter %q in macro %q", param, name))
			}
			if seen[param] {
				return nil, p.syntaxError(errors.ErrCodeMalformedDirective, tok.Line,
					fmt.Sprintf("duplicate parameter %q in macro %q", param, name))
			}
			seen[param] = true
			params = append(params, param)
		}
	}

	body, _, err := p.parseBody(tok, []string{"endmacro"})
	if err != nil {
		return nil, err
	}

	return &ir.Macro{Pos: p.pos(tok), Name: name, Params: params, Body: body}, nil
}

// parseCache handles {% cache KEY_EXPR [TTL] %}...{% endcache %}.
func (p *Parser) parseCache(tok lexer.Token, rest string) (ir.Node, error) {
	if rest == "" {
		return nil, p.syntaxError(errors.ErrCodeMalformedDirective, tok.Line, "cache requires a key expression")
	}
	key, stop, err := expression.ParsePrefix(rest)
	if err != nil {
		return nil, p.expressionError(tok, rest, err)
	}
	keySource := strings.TrimSpace(rest[:stop])

	node := &ir.Cache{Pos: p.pos(tok), KeySource: keySource, Key: key}
	if trailing := strings.TrimSpace(rest[stop:]); trailing != "" {
		ttl, err := strconv.Atoi(trailing)
		if err != nil {
			return nil, p.syntaxError(errors.ErrCodeMalformedDirective, tok.Line,
				fmt.Sprintf("cache TTL must be an integer literal, got %q", trailing))
		}
		if ttl <= 0 {
			return nil, p.syntaxError(errors.ErrCodeInvalidTTL, tok.Line,
				fmt.Sprintf("cache TTL must be positive, got %d", ttl))
		}
		node.TTL = &ttl
	}

	body, _, err := p.parseBody(tok, []string{"endcache"})
	if err != nil {
		return nil, err
	}
	node.Body = body
	return node, nil
}

// parseAutoescape handles {% autoescape true|false %}.
func (p *Parser) parseAutoescape(tok lexer.Token, rest string) (ir.Node, error) {
	var enabled bool
	switch rest {
	case "true":
		enabled = true
	case "false":
		enabled = false
	default:
		return nil, p.syntaxError(errors.ErrCodeMalformedDirective, tok.Line,
			fmt.Sprintf("autoescape expects true or false, got %q", rest))
	}

	body, _, err := p.parseBody(tok, []string{"endautoescape"})
	if err != nil {
		return nil, err
	}
	return &ir.Autoescape{Pos: p.pos(tok), Enabled: enabled, Body: body}, nil
}

// parseRaw consumes the verbatim body the lexer queued after a raw tag.
func (p *Parser) parseRaw(tok lexer.Token) (ir.Node, error) {
	var text strings.Builder
	for {
		next, err := p.lex.Next()
		if err != nil {
			return nil, p.syntaxError(errors.ErrCodeUnbalanced, tok.Line, "raw block is missing endraw")
		}
		if next.Kind == lexer.Statement && next.Text == "endraw" {
			break
		}
		text.WriteString(next.Text)
	}
	return &ir.Raw{Pos: p.pos(tok), Text: text.String()}, nil
}

// parseIf handles if/elseif/else/endif chains.
func (p *Parser) parseIf(tok lexer.Token, rest string) (ir.Node, error) {
	node := &ir.If{Pos: p.pos(tok)}
	branchTok, cond := tok, rest

	for {
		if cond == "" {
			return nil, p.syntaxError(errors.ErrCodeMalformedDirective, branchTok.Line, "if requires a condition")
		}
		e, err := p.parseExpression(branchTok, cond)
		if err != nil {
			return nil, err
		}
		body, end, err := p.parseBody(tok, []string{"elseif", "elif", "else", "endif"})
		if err != nil {
			return nil, err
		}
		node.Branches = append(node.Branches, ir.Branch{Pos: p.pos(branchTok), Source: cond, Cond: e, Body: body})

		word, endRest := splitWord(end.Text)
		switch word {
		case "endif":
			return node, nil
		case "else":
			elseBody, _, err := p.parseBody(tok, []string{"endif"})
			if err != nil {
				return nil, err
			}
			node.Else = elseBody
			return node, nil
		default:
			branchTok, cond = end, endRest
		}
	}
}

// parseFor handles {% for [k,] v in EXPR %}...[{% else %}...]{% endfor %}.
func (p *Parser) parseFor(tok lexer.Token, rest string) (ir.Node, error) {
	head, iterSource, found := cutKeyword(rest, "in")
	if !found || iterSource == "" {
		return nil, p.syntaxError(errors.ErrCodeMalformedDirective, tok.Line,
			fmt.Sprintf("for expects \"name in expression\", got %q", rest))
	}

	node := &ir.For{Pos: p.pos(tok), IterSource: iterSource}
	vars := strings.Split(head, ",")
	switch len(vars) {
	case 1:
		node.Value = strings.TrimSpace(vars[0])
	case 2:
		node.Key = strings.TrimSpace(vars[0])
		node.Value = strings.TrimSpace(vars[1])
		if !isIdentifier(node.Key) {
			return nil, p.syntaxError(errors.ErrCodeMalformedDirective, tok.Line,
				fmt.Sprintf("invalid loop variable %q", node.Key))
		}
	default:
		return nil, p.syntaxError(errors.ErrCodeMalformedDirective, tok.Line,
			fmt.Sprintf("too many loop variables in %q", head))
	}
	if !isIdentifier(node.Value) {
		return nil, p.syntaxError(errors.ErrCodeMalformedDirective, tok.Line,
			fmt.Sprintf("invalid loop variable %q", node.Value))
	}

	iter, err := p.parseExpression(tok, iterSource)
	if err != nil {
		return nil, err
	}
	node.Iter = iter

	body, end, err := p.parseBody(tok, []string{"else", "endfor"})
	if err != nil {
		return nil, err
	}
	node.Body = body

	if word, _ := splitWord(end.Text); word == "else" {
		elseBody, _, err := p.parseBody(tok, []string{"endfor"})
		if err != nil {
			return nil, err
		}
		node.Else = elseBody
	}
	return node, nil
}

// parseSet handles {% set name = EXPR %}.
func (p *Parser) parseSet(tok lexer.Token, rest string) (ir.Node, error) {
	eq := strings.IndexByte(rest, '=')
	if eq < 0 || strings.HasPrefix(rest[eq:], "==") {
		return nil, p.syntaxError(errors.ErrCodeMalformedDirective, tok.Line,
			fmt.Sprintf("set expects \"name = expression\", got %q", rest))
	}
	name := strings.TrimSpace(rest[:eq])
	source := strings.TrimSpace(rest[eq+1:])
	if !isIdentifier(name) {
		return nil, p.syntaxError(errors.ErrCodeMalformedDirective, tok.Line,
			fmt.Sprintf("invalid variable name %q", name))
	}

	value, err := p.parseExpression(tok, source)
	if err != nil {
		return nil, err
	}
	return &ir.Set{Pos: p.pos(tok), Name: name, Source: source, Value: value}, nil
}

// parseInclude handles {% include "PATH" %}.
func (p *Parser) parseInclude(tok lexer.Token, rest string) (ir.Node, error) {
	path, err := p.quotedPath(tok, "include", rest)
	if err != nil {
		return nil, err
	}
	return &ir.Include{Pos: p.pos(tok), Path: path}, nil
}

func (p *Parser) quotedPath(tok lexer.Token, directive, rest string) (string, error) {
	e, err := expression.Parse(rest)
	if err == nil {
		if lit, ok := e.(*expression.Literal); ok {
			if path, ok := lit.Value.(string); ok && path != "" {
				return path, nil
			}
		}
	}
	return "", p.syntaxError(errors.ErrCodeMalformedDirective, tok.Line,
		fmt.Sprintf("%s requires a quoted template path, got %q", directive, rest))
}

// cutKeyword splits s around the first standalone occurrence of word.
func cutKeyword(s, word string) (before, after string, found bool) {
	isSpace := func(i int) bool {
		return i < 0 || i >= len(s) || strings.IndexByte(" \t\r\n", s[i]) >= 0
	}
	for i := 0; i+len(word) <= len(s); i++ {
		if s[i:i+len(word)] == word && isSpace(i-1) && isSpace(i+len(word)) {
			return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+len(word):]), true
		}
	}
	return s, "", false
}
