package expression

import (
	"fmt"
	"strconv"
	"strings"
)

// SyntaxError reports malformed expression source. Offset is relative to
// the start of the parsed text.
type SyntaxError struct {
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("offset %d: %s", e.Offset, e.Msg)
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokInt
	tokFloat
	tokString
	tokPunct
)

type token struct {
	kind   tokenKind
	text   string
	value  any
	offset int
}

var twoCharOps = []string{"==", "!=", "<=", ">=", "&&", "||"}

const oneCharOps = "+-*/%~|.,:?()[]{}<>!"

func scan(src string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case isIdentStart(c):
			j := i + 1
			for j < len(src) && isIdentPart(src[j]) {
				j++
			}
			tokens = append(tokens, token{kind: tokIdent, text: src[i:j], offset: i})
			i = j
		case c >= '0' && c <= '9':
			tok, next, err := scanNumber(src, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
			i = next
		case c == '"' || c == '\'':
			tok, next, err := scanString(src, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
			i = next
		default:
			matched := false
			for _, op := range twoCharOps {
				if strings.HasPrefix(src[i:], op) {
					tokens = append(tokens, token{kind: tokPunct, text: op, offset: i})
					i += 2
					matched = true
					break
				}
			}
			if matched {
				continue
			}
			if strings.IndexByte(oneCharOps, c) >= 0 {
				tokens = append(tokens, token{kind: tokPunct, text: string(c), offset: i})
				i++
				continue
			}
			return nil, &SyntaxError{Offset: i, Msg: fmt.Sprintf("unexpected character %q", c)}
		}
	}
	tokens = append(tokens, token{kind: tokEOF, offset: len(src)})
	return tokens, nil
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func scanNumber(src string, i int) (token, int, error) {
	j := i
	for j < len(src) && src[j] >= '0' && src[j] <= '9' {
		j++
	}
	isFloat := false
	if j+1 < len(src) && src[j] == '.' && src[j+1] >= '0' && src[j+1] <= '9' {
		isFloat = true
		j++
		for j < len(src) && src[j] >= '0' && src[j] <= '9' {
			j++
		}
	}
	text := src[i:j]
	if isFloat {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return token{}, 0, &SyntaxError{Offset: i, Msg: "invalid number " + text}
		}
		return token{kind: tokFloat, text: text, value: f, offset: i}, j, nil
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return token{}, 0, &SyntaxError{Offset: i, Msg: "invalid number " + text}
	}
	return token{kind: tokInt, text: text, value: n, offset: i}, j, nil
}

func scanString(src string, i int) (token, int, error) {
	quote := src[i]
	var b strings.Builder
	for j := i + 1; j < len(src); j++ {
		c := src[j]
		switch c {
		case quote:
			return token{kind: tokString, text: src[i : j+1], value: b.String(), offset: i}, j + 1, nil
		case '\\':
			j++
			if j >= len(src) {
				break
			}
			switch src[j] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			default:
				b.WriteByte(src[j])
			}
		default:
			b.WriteByte(c)
		}
	}
	return token{}, 0, &SyntaxError{Offset: i, Msg: "unterminated string literal"}
}

type parser struct {
	tokens []token
	pos    int
}

// Parse parses src as one complete expression.
func Parse(src string) (Expr, error) {
	e, rest, err := ParsePrefix(src)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(src[rest:]) != "" {
		return nil, &SyntaxError{Offset: rest, Msg: fmt.Sprintf("unexpected %q", src[rest:])}
	}
	return e, nil
}

// ParsePrefix parses the longest expression at the start of src and returns
// the offset at which parsing stopped. Directives use it to split an
// expression from trailing arguments such as a cache TTL.
func ParsePrefix(src string) (Expr, int, error) {
	tokens, err := scan(src)
	if err != nil {
		return nil, 0, err
	}
	p := &parser{tokens: tokens}
	if p.peek().kind == tokEOF {
		return nil, 0, &SyntaxError{Offset: 0, Msg: "empty expression"}
	}
	e, err := p.parseTernary()
	if err != nil {
		return nil, 0, err
	}
	return e, p.peek().offset, nil
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) peekAt(n int) token {
	if p.pos+n >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos+n]
}

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) isPunct(text string) bool {
	tok := p.peek()
	return tok.kind == tokPunct && tok.text == text
}

func (p *parser) isKeyword(word string) bool {
	tok := p.peek()
	return tok.kind == tokIdent && tok.text == word
}

func (p *parser) expect(text string) error {
	if !p.isPunct(text) {
		return p.errorf("expected %q", text)
	}
	p.next()
	return nil
}

func (p *parser) errorf(format string, args ...any) error {
	tok := p.peek()
	msg := fmt.Sprintf(format, args...)
	if tok.kind == tokEOF {
		msg += " at end of expression"
	} else {
		msg += fmt.Sprintf(", found %q", tok.text)
	}
	return &SyntaxError{Offset: tok.offset, Msg: msg}
}

func (p *parser) parseTernary() (Expr, error) {
	cond, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.isPunct("?") {
		return cond, nil
	}
	p.next()
	then, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	if err := p.expect(":"); err != nil {
		return nil, err
	}
	els, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	return &Ternary{Cond: cond, Then: then, Else: els}, nil
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("or") || p.isPunct("||") {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: "or", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("and") || p.isPunct("&&") {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: "and", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (Expr, error) {
	if p.isKeyword("not") || p.isPunct("!") {
		p.next()
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: "not", X: x}, nil
	}
	return p.parseCompare()
}

var comparisonOps = map[string]bool{"==": true, "!=": true, "<": true, ">": true, "<=": true, ">=": true}

func (p *parser) parseCompare() (Expr, error) {
	left, err := p.parseConcat()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		tok := p.peek()
		switch {
		case tok.kind == tokPunct && comparisonOps[tok.text]:
			op = tok.text
			p.next()
		case p.isKeyword("in"):
			op = "in"
			p.next()
		case p.isKeyword("not") && p.peekAt(1).kind == tokIdent && p.peekAt(1).text == "in":
			op = "not in"
			p.next()
			p.next()
		default:
			return left, nil
		}
		right, err := p.parseConcat()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseConcat() (Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for p.isPunct("~") {
		p.next()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: "~", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAdditive() (Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.isPunct("+") || p.isPunct("-") {
		op := p.next().text
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseMultiplicative() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.isPunct("*") || p.isPunct("/") || p.isPunct("%") {
		op := p.next().text
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Expr, error) {
	if p.isPunct("-") {
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: "-", X: x}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (Expr, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.isPunct("."):
			p.next()
			if p.peek().kind != tokIdent {
				return nil, p.errorf("expected attribute name after \".\"")
			}
			x = &Member{X: x, Name: p.next().text}
		case p.isPunct("["):
			p.next()
			idx, err := p.parseTernary()
			if err != nil {
				return nil, err
			}
			if err := p.expect("]"); err != nil {
				return nil, err
			}
			x = &Index{X: x, Index: idx}
		case p.isPunct("("):
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			x = &Call{Fn: x, Args: args}
		case p.isPunct("|"):
			p.next()
			tok := p.peek()
			if tok.kind != tokIdent {
				return nil, p.errorf("expected filter name after \"|\"")
			}
			p.next()
			f := &Filter{X: x, Name: tok.text}
			if p.isPunct("(") {
				args, err := p.parseArgs()
				if err != nil {
					return nil, err
				}
				f.Args = args
			}
			x = f
		default:
			return x, nil
		}
	}
}

func (p *parser) parseArgs() ([]Expr, error) {
	if err := p.expect("("); err != nil {
		return nil, err
	}
	var args []Expr
	for !p.isPunct(")") {
		arg, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if !p.isPunct(",") {
			break
		}
		p.next()
	}
	if err := p.expect(")"); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *parser) parsePrimary() (Expr, error) {
	tok := p.peek()
	switch tok.kind {
	case tokInt, tokFloat, tokString:
		p.next()
		return &Literal{Value: tok.value}, nil
	case tokIdent:
		switch tok.text {
		case "true":
			p.next()
			return &Literal{Value: true}, nil
		case "false":
			p.next()
			return &Literal{Value: false}, nil
		case "null":
			p.next()
			return &Literal{Value: nil}, nil
		case "and", "or", "not", "in":
			return nil, p.errorf("unexpected keyword")
		}
		p.next()
		return &Ident{Name: tok.text}, nil
	case tokPunct:
		switch tok.text {
		case "(":
			p.next()
			e, err := p.parseTernary()
			if err != nil {
				return nil, err
			}
			if err := p.expect(")"); err != nil {
				return nil, err
			}
			return e, nil
		case "[":
			return p.parseList()
		case "{":
			return p.parseMap()
		}
	}
	return nil, p.errorf("unexpected token")
}

func (p *parser) parseList() (Expr, error) {
	p.next()
	list := &List{}
	for !p.isPunct("]") {
		e, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		list.Elems = append(list.Elems, e)
		if !p.isPunct(",") {
			break
		}
		p.next()
	}
	if err := p.expect("]"); err != nil {
		return nil, err
	}
	return list, nil
}

func (p *parser) parseMap() (Expr, error) {
	p.next()
	m := &Map{}
	for !p.isPunct("}") {
		var key Expr
		tok := p.peek()
		switch {
		case tok.kind == tokIdent:
			p.next()
			key = &Literal{Value: tok.text}
		case tok.kind == tokString || tok.kind == tokInt:
			p.next()
			key = &Literal{Value: tok.value}
		default:
			return nil, p.errorf("expected map key")
		}
		if err := p.expect(":"); err != nil {
			return nil, err
		}
		value, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		m.Entries = append(m.Entries, MapEntry{Key: key, Value: value})
		if !p.isPunct(",") {
			break
		}
		p.next()
	}
	if err := p.expect("}"); err != nil {
		return nil, err
	}
	return m, nil
}
