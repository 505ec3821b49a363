// Package lexer splits Volt template source into literal, statement and
// expression tokens.
//
// The tokenizer is a position-tracking scanner: it walks the source once,
// tracking line numbers as it goes, and hands tokens out lazily through
// Next. Comments ({# ... #}) are dropped, and the body of a
// {% raw %}...{% endraw %} pair is returned as a single literal token.
package lexer

import (
	"fmt"
	"io"
	"strings"

	"github.com/conneroisu/volt/internal/errors"
)

// Kind identifies the type of a Token.
type Kind int

const (
	// Literal is text outside any delimiter pair.
	Literal Kind = iota
	// Statement is the inside of a {% %} pair.
	Statement
	// Expression is the inside of a {{ }} pair.
	Expression
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case Literal:
		return "literal"
	case Statement:
		return "statement"
	case Expression:
		return "expression"
	default:
		return "unknown"
	}
}

// Delimiters.
const (
	StatementOpen   = "{%"
	StatementClose  = "%}"
	ExpressionOpen  = "{{"
	ExpressionClose = "}}"
	CommentOpen     = "{#"
	CommentClose    = "#}"
)

// Token is one span of template source.
//
// For Statement and Expression tokens Text holds the trimmed inside of the
// delimiters. Offset and Line locate the start of the span (the opening
// delimiter for tags).
type Token struct {
	Kind   Kind
	Text   string
	Offset int
	Line   int
}

func (t Token) String() string {
	return fmt.Sprintf("%s(%q)@%d", t.Kind, t.Text, t.Line)
}

// Tokenizer produces tokens from one source string. It holds no state
// shared with other tokenizers.
type Tokenizer struct {
	file   string
	src    string
	pos    int
	line   int
	rawEnd bool
	queue  []Token
}

// New returns a tokenizer over src. file is used for error locations only.
func New(file, src string) *Tokenizer {
	return &Tokenizer{file: file, src: src, line: 1}
}

// Tokenize scans the whole source.
func Tokenize(file, src string) ([]Token, error) {
	t := New(file, src)
	var tokens []Token
	for {
		tok, err := t.Next()
		if err == io.EOF {
			return tokens, nil
		}
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
	}
}

// Next returns the next token, or io.EOF once the source is exhausted.
func (t *Tokenizer) Next() (Token, error) {
	if len(t.queue) > 0 {
		tok := t.queue[0]
		t.queue = t.queue[1:]
		return tok, nil
	}

	for t.pos < len(t.src) {
		open := t.nextOpen()
		if open > t.pos {
			return t.literal(open), nil
		}

		switch t.src[t.pos : t.pos+2] {
		case CommentOpen:
			if err := t.skipComment(); err != nil {
				return Token{}, err
			}
			continue
		case StatementOpen:
			tok, err := t.tag(Statement, StatementClose)
			if err != nil {
				return Token{}, err
			}
			if isRawOpen(tok.Text) {
				if err := t.scanRaw(tok); err != nil {
					return Token{}, err
				}
			}
			return tok, nil
		default:
			return t.tag(Expression, ExpressionClose)
		}
	}

	return Token{}, io.EOF
}

// nextOpen returns the offset of the next opening delimiter, or len(src).
func (t *Tokenizer) nextOpen() int {
	i := t.pos
	for {
		j := strings.IndexByte(t.src[i:], '{')
		if j < 0 || i+j+1 >= len(t.src) {
			return len(t.src)
		}
		i += j
		switch t.src[i+1] {
		case '{', '%', '#':
			return i
		}
		i++
	}
}

func (t *Tokenizer) literal(end int) Token {
	tok := Token{Kind: Literal, Text: t.src[t.pos:end], Offset: t.pos, Line: t.line}
	t.advance(end)
	return tok
}

func (t *Tokenizer) advance(to int) {
	t.line += strings.Count(t.src[t.pos:to], "\n")
	t.pos = to
}

// tag scans one statement or expression tag starting at t.pos. Quoted
// strings are skipped, and for expressions a closing "}}" only counts once
// every brace opened inside the tag has been closed.
func (t *Tokenizer) tag(kind Kind, closer string) (Token, error) {
	start, line := t.pos, t.line
	i := start + 2
	depth := 0

	for i < len(t.src) {
		c := t.src[i]
		switch {
		case c == '"' || c == '\'':
			end := skipQuoted(t.src, i)
			if end < 0 {
				return Token{}, t.unterminated(kind, start)
			}
			i = end
			continue
		case kind == Expression && c == '{':
			depth++
		case kind == Expression && c == '}' && depth > 0:
			depth--
		case strings.HasPrefix(t.src[i:], closer):
			tok := Token{
				Kind:   kind,
				Text:   strings.TrimSpace(t.src[start+2 : i]),
				Offset: start,
				Line:   line,
			}
			t.advance(i + 2)
			return tok, nil
		}
		i++
	}

	return Token{}, t.unterminated(kind, start)
}

func (t *Tokenizer) skipComment() error {
	end := strings.Index(t.src[t.pos+2:], CommentClose)
	if end < 0 {
		line, _ := errors.LineAt(t.src, t.pos)
		return errors.NewSyntaxError(errors.ErrCodeUnterminated, "unterminated comment", t.file, line)
	}
	t.advance(t.pos + 2 + end + 2)
	return nil
}

// scanRaw queues the verbatim body and the closing endraw tag that follow a
// raw statement.
func (t *Tokenizer) scanRaw(open Token) error {
	search := t.pos
	for {
		rel := strings.Index(t.src[search:], StatementOpen)
		if rel < 0 {
			line, _ := errors.LineAt(t.src, open.Offset)
			return errors.NewSyntaxError(errors.ErrCodeUnterminated,
				"raw block is missing endraw", t.file, line)
		}
		at := search + rel
		closeRel := strings.Index(t.src[at+2:], StatementClose)
		if closeRel >= 0 && strings.TrimSpace(t.src[at+2:at+2+closeRel]) == "endraw" {
			if at > t.pos {
				t.queue = append(t.queue, t.literal(at))
			}
			end, err := t.tag(Statement, StatementClose)
			if err != nil {
				return err
			}
			t.queue = append(t.queue, end)
			return nil
		}
		search = at + 2
	}
}

func (t *Tokenizer) unterminated(kind Kind, offset int) error {
	line, _ := errors.LineAt(t.src, offset)
	return errors.NewSyntaxError(errors.ErrCodeUnterminated,
		fmt.Sprintf("unterminated %s tag", kind), t.file, line)
}

func isRawOpen(text string) bool {
	return text == "raw"
}

// skipQuoted returns the offset just past the string literal opening at i,
// or -1 when the literal is not closed.
func skipQuoted(src string, i int) int {
	quote := src[i]
	for j := i + 1; j < len(src); j++ {
		switch src[j] {
		case '\\':
			j++
		case quote:
			return j + 1
		}
	}
	return -1
}
