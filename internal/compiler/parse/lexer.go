// Package parse turns policy source text into the AST types C4-C6
// already consume (expr.Node, body.Statement, policy.Document), the way
// the teacher's own go.mod signals ANTLR-generated parsing for its CEL
// condition strings (cel-go pulls in github.com/antlr4-go/antlr
// transitively for its own grammar). That dependency is generated code
// for CEL's grammar specifically and isn't retargetable to a different,
// hand-designed policy-source grammar without running antlr's code
// generator — which the no-toolchain constraint on this rework rules
// out — so this package is a small hand-written recursive-descent
// lexer/parser instead, the same approach cel-go itself falls back to
// for anything ANTLR doesn't already generate for it.
package parse

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokPunct // operators and single-char punctuation, literal text in Text
	tokKeyword
)

type token struct {
	kind   tokenKind
	text   string
	line   int
	startC int
	endC   int
}

var keywords = map[string]bool{
	"policy": true, "set": true, "permit": true, "deny": true,
	"where": true, "var": true, "obligation": true, "advice": true,
	"transform": true, "true": true, "false": true, "null": true,
	"undefined": true, "in": true,
}

// lexer tokenizes policy source into a flat token stream, one document
// per Parse call's input.
type lexer struct {
	src  string
	pos  int
	line int
	col  int
	name string
}

func newLexer(name, src string) *lexer {
	return &lexer{src: src, line: 1, col: 0, name: name}
}

func (l *lexer) peekByte() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *lexer) advance() byte {
	b := l.src[l.pos]
	l.pos++
	if b == '\n' {
		l.line++
		l.col = 0
	} else {
		l.col++
	}
	return b
}

func (l *lexer) skipSpaceAndComments() {
	for l.pos < len(l.src) {
		b := l.peekByte()
		switch {
		case b == ' ' || b == '\t' || b == '\r' || b == '\n':
			l.advance()
		case b == '/' && l.pos+1 < len(l.src) && l.src[l.pos+1] == '/':
			for l.pos < len(l.src) && l.peekByte() != '\n' {
				l.advance()
			}
		case b == '/' && l.pos+1 < len(l.src) && l.src[l.pos+1] == '*':
			l.advance()
			l.advance()
			for l.pos < len(l.src) {
				if l.peekByte() == '*' && l.pos+1 < len(l.src) && l.src[l.pos+1] == '/' {
					l.advance()
					l.advance()
					break
				}
				l.advance()
			}
		default:
			return
		}
	}
}

func isIdentStart(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || (r >= '0' && r <= '9')
}

func (l *lexer) next() (token, error) {
	l.skipSpaceAndComments()
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, line: l.line, startC: l.col}, nil
	}
	startLine, startCol := l.line, l.col
	r, _ := utf8.DecodeRuneInString(l.src[l.pos:])

	switch {
	case isIdentStart(r):
		start := l.pos
		for l.pos < len(l.src) {
			rr, size := utf8.DecodeRuneInString(l.src[l.pos:])
			if !isIdentPart(rr) {
				break
			}
			l.pos += size
			l.col++
		}
		text := l.src[start:l.pos]
		kind := tokIdent
		if keywords[text] {
			kind = tokKeyword
		}
		return token{kind: kind, text: text, line: startLine, startC: startCol, endC: l.col}, nil

	case r >= '0' && r <= '9':
		start := l.pos
		for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			l.advance()
		}
		if l.peekByte() == '.' && l.pos+1 < len(l.src) && isDigit(l.src[l.pos+1]) {
			l.advance()
			for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
				l.advance()
			}
		}
		if l.peekByte() == 'e' || l.peekByte() == 'E' {
			save := l.pos
			l.advance()
			if l.peekByte() == '+' || l.peekByte() == '-' {
				l.advance()
			}
			if isDigit(l.peekByte()) {
				for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
					l.advance()
				}
			} else {
				l.pos = save
			}
		}
		return token{kind: tokNumber, text: l.src[start:l.pos], line: startLine, startC: startCol, endC: l.col}, nil

	case r == '"' || r == '\'':
		quote := byte(r)
		l.advance()
		var sb strings.Builder
		for {
			if l.pos >= len(l.src) {
				return token{}, fmt.Errorf("parse: %s:%d: unterminated string", l.name, startLine)
			}
			b := l.peekByte()
			if b == quote {
				l.advance()
				break
			}
			if b == '\\' {
				l.advance()
				esc := l.advance()
				switch esc {
				case 'n':
					sb.WriteByte('\n')
				case 't':
					sb.WriteByte('\t')
				case '\\', '"', '\'':
					sb.WriteByte(esc)
				default:
					sb.WriteByte(esc)
				}
				continue
			}
			sb.WriteByte(l.advance())
		}
		return token{kind: tokString, text: sb.String(), line: startLine, startC: startCol, endC: l.col}, nil

	default:
		two := ""
		if l.pos+1 < len(l.src) {
			two = l.src[l.pos : l.pos+2]
		}
		switch two {
		case "==", "!=", "<=", ">=", "&&", "||":
			l.advance()
			l.advance()
			return token{kind: tokPunct, text: two, line: startLine, startC: startCol, endC: l.col}, nil
		}
		b := l.advance()
		return token{kind: tokPunct, text: string(b), line: startLine, startC: startCol, endC: l.col}, nil
	}
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// tokenize drains the whole source into a slice; policy documents are
// small enough that buffering the stream keeps the parser's lookahead
// logic simple (no manual unget-stack).
func tokenize(name, src string) ([]token, error) {
	l := newLexer(name, src)
	var toks []token
	for {
		t, err := l.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, t)
		if t.kind == tokEOF {
			return toks, nil
		}
	}
}
