// Package parser builds the IR of one Volt template from its token stream.
//
// Parsing is recursive descent over the lexer's tokens: each directive has
// its own parse function, and directives with a body recurse into
// parseBody until their closing tag.
package parser

import (
	"fmt"
	"io"
	"strings"

	"github.com/conneroisu/volt/internal/errors"
	"github.com/conneroisu/volt/internal/expression"
	"github.com/conneroisu/volt/internal/ir"
	"github.com/conneroisu/volt/internal/lexer"
)

// Parser holds the state for parsing one template.
type Parser struct {
	file  string
	lex   *lexer.Tokenizer
	depth int
	tmpl  *ir.Template
}

// Parse parses src into a template unit. file is the source path recorded
// on every node.
func Parse(file, src string) (*ir.Template, error) {
	p := &Parser{
		file: file,
		lex:  lexer.New(file, src),
		tmpl: &ir.Template{SourcePath: file},
	}

	nodes, _, err := p.parseBody(lexer.Token{}, nil)
	if err != nil {
		return nil, err
	}
	p.tmpl.Nodes = nodes
	return p.tmpl, nil
}

// parseBody collects nodes until a statement whose directive is one of
// ends, which it returns. opener is the tag that started the body, used for
// error reporting; with no ends the body runs to end of input.
func (p *Parser) parseBody(opener lexer.Token, ends []string) ([]ir.Node, lexer.Token, error) {
	var nodes []ir.Node
	for {
		tok, err := p.lex.Next()
		if err == io.EOF {
			if len(ends) > 0 {
				return nil, lexer.Token{}, p.syntaxError(errors.ErrCodeUnbalanced, opener.Line,
					fmt.Sprintf("%q is never closed, expected {%% %s %%}", opener.Text, ends[len(ends)-1]))
			}
			return nodes, lexer.Token{}, nil
		}
		if err != nil {
			return nil, lexer.Token{}, err
		}

		switch tok.Kind {
		case lexer.Literal:
			nodes = append(nodes, &ir.Raw{Pos: p.pos(tok), Text: tok.Text})
		case lexer.Expression:
			e, err := p.parseExpression(tok, tok.Text)
			if err != nil {
				return nil, lexer.Token{}, err
			}
			nodes = append(nodes, &ir.Expression{Pos: p.pos(tok), Source: tok.Text, Expr: e})
		case lexer.Statement:
			word, _ := splitWord(tok.Text)
			for _, end := range ends {
				if word == end {
					return nodes, tok, nil
				}
			}
			node, err := p.parseStatement(tok)
			if err != nil {
				return nil, lexer.Token{}, err
			}
			if node != nil {
				nodes = append(nodes, node)
			}
		}
	}
}

// parseStatement dispatches on the directive word.
func (p *Parser) parseStatement(tok lexer.Token) (ir.Node, error) {
	word, rest := splitWord(tok.Text)

	p.depth++
	defer func() { p.depth-- }()

	switch word {
	case "block":
		return p.parseBlock(tok, rest)
	case "extends":
		return p.parseExtends(tok, rest)
	case "macro":
		return p.parseMacro(tok, rest)
	case "cache":
		return p.parseCache(tok, rest)
	case "autoescape":
		return p.parseAutoescape(tok, rest)
	case "raw":
		return p.parseRaw(tok)
	case "if":
		return p.parseIf(tok, rest)
	case "for":
		return p.parseFor(tok, rest)
	case "set":
		return p.parseSet(tok, rest)
	case "include":
		return p.parseInclude(tok, rest)
	case "endblock", "endmacro", "endcache", "endautoescape", "endraw",
		"endif", "endfor", "else", "elseif", "elif":
		return nil, p.syntaxError(errors.ErrCodeUnbalanced, tok.Line,
			fmt.Sprintf("unexpected {%% %s %%}", word))
	case "":
		return nil, p.syntaxError(errors.ErrCodeMalformedDirective, tok.Line, "empty statement tag")
	default:
		return nil, p.syntaxError(errors.ErrCodeUnknownDirective, tok.Line,
			fmt.Sprintf("unknown directive %q", word))
	}
}

func (p *Parser) parseExpression(tok lexer.Token, src string) (expression.Expr, error) {
	e, err := expression.Parse(src)
	if err != nil {
		return nil, p.expressionError(tok, src, err)
	}
	return e, nil
}

func (p *Parser) expressionError(tok lexer.Token, src string, err error) error {
	line := tok.Line
	if syntax, ok := err.(*expression.SyntaxError); ok && syntax.Offset <= len(src) {
		line += strings.Count(src[:syntax.Offset], "\n")
	}
	ve := p.syntaxError(errors.ErrCodeMalformedExpression, line, fmt.Sprintf("malformed expression %q", src))
	ve.Cause = err
	return ve
}

func (p *Parser) pos(tok lexer.Token) ir.Pos {
	return ir.Pos{File: p.file, Line: tok.Line}
}

func (p *Parser) syntaxError(code string, line int, msg string) *errors.VoltError {
	return errors.NewSyntaxError(code, msg, p.file, line)
}

func (p *Parser) semanticError(code string, line int, msg string) *errors.VoltError {
	return errors.NewSemanticError(code, msg, p.file, line)
}

// splitWord returns the first whitespace-delimited word of text and the
// trimmed remainder.
func splitWord(text string) (string, string) {
	text = strings.TrimSpace(text)
	i := strings.IndexAny(text, " \t\r\n")
	if i < 0 {
		return text, ""
	}
	return text[:i], strings.TrimSpace(text[i:])
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
