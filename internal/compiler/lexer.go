package compiler

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/aretw0/weave/pkg/domain"
)

type tokenType int

const (
	tokEOF tokenType = iota
	tokWord
	tokNumber
	tokLess
	tokGreater
	tokArrow
	tokLParen
	tokRParen
	tokComma
	tokLBrace
	tokRBrace
	tokDot
	tokSemi
)

var tokenNames = map[tokenType]string{
	tokEOF:     "end of input",
	tokWord:    "identifier",
	tokNumber:  "number",
	tokLess:    "'<'",
	tokGreater: "'>'",
	tokArrow:   "'=>'",
	tokLParen:  "'('",
	tokRParen:  "')'",
	tokComma:   "','",
	tokLBrace:  "'{'",
	tokRBrace:  "'}'",
	tokDot:     "'.'",
	tokSemi:    "';'",
}

func (t tokenType) String() string {
	if n, ok := tokenNames[t]; ok {
		return n
	}
	return fmt.Sprintf("token(%d)", int(t))
}

type token struct {
	typ  tokenType
	text string
	line int
	col  int
}

// lexer turns source text into tokens. Whitespace and line comments
// ("//" or "#") separate tokens and are otherwise ignored.
type lexer struct {
	src  string
	pos  int
	line int
	col  int
}

func newLexer(src string) *lexer {
	return &lexer{src: src, line: 1, col: 1}
}

func (l *lexer) scan() ([]token, error) {
	var toks []token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.typ == tokEOF {
			return toks, nil
		}
	}
}

func (l *lexer) peekAt(off int) byte {
	if l.pos+off >= len(l.src) {
		return 0
	}
	return l.src[l.pos+off]
}

func (l *lexer) advance() byte {
	c := l.src[l.pos]
	l.pos++
	if c == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return c
}

func (l *lexer) skipTrivia() {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			l.advance()
		case c == '#' || (c == '/' && l.peekAt(1) == '/'):
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.advance()
			}
		default:
			return
		}
	}
}

func (l *lexer) next() (token, error) {
	l.skipTrivia()
	if l.pos >= len(l.src) {
		return token{typ: tokEOF, line: l.line, col: l.col}, nil
	}

	line, col, start := l.line, l.col, l.pos
	emit := func(t tokenType) (token, error) {
		return token{typ: t, text: l.src[start:l.pos], line: line, col: col}, nil
	}

	c := l.src[l.pos]
	switch {
	case isWordStart(c) || (isDigit(c) && l.digitLedWordAt(0)):
		for l.pos < len(l.src) && isWordChar(l.src[l.pos]) {
			l.advance()
		}
		return emit(tokWord)
	case c == '.' && l.digitLedWordAt(1):
		l.advance()
		return emit(tokDot)
	case startsNumber(c, l.peekAt(1), l.peekAt(2)):
		l.scanNumber()
		return emit(tokNumber)
	}

	l.advance()
	switch c {
	case '<':
		return emit(tokLess)
	case '>':
		return emit(tokGreater)
	case '(':
		return emit(tokLParen)
	case ')':
		return emit(tokRParen)
	case ',':
		return emit(tokComma)
	case '{':
		return emit(tokLBrace)
	case '}':
		return emit(tokRBrace)
	case '.':
		return emit(tokDot)
	case ';':
		return emit(tokSemi)
	case '=':
		if l.peekAt(0) == '>' {
			l.advance()
			return emit(tokArrow)
		}
	}

	r, _ := utf8.DecodeRuneInString(l.src[start:])
	return token{}, &domain.SyntaxError{
		Line:  line,
		Col:   col,
		Token: string(r),
		Msg:   "unexpected character",
	}
}

// scanNumber consumes the longest run that could belong to a numeric literal,
// including trailing word characters, so that "1.0x" surfaces as one bad token
// for the parser to reject instead of two valid ones.
func (l *lexer) scanNumber() {
	if c := l.src[l.pos]; c == '+' || c == '-' {
		l.advance()
	}
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case isDigit(c) || c == '.' || isWordChar(c):
			if (c == 'e' || c == 'E') && (l.peekAt(1) == '+' || l.peekAt(1) == '-') {
				l.advance()
			}
			l.advance()
		default:
			return
		}
	}
}

// digitLedWordAt reports whether the word run starting off bytes ahead is an
// identifier such as "3d" or "2nd" rather than a numeric literal. Runs that a
// float parser accepts, or that continue into an exponent sign, stay numbers
// so that number() decides whether they are well formed.
func (l *lexer) digitLedWordAt(off int) bool {
	from := l.pos + off
	end := from
	for end < len(l.src) && isWordChar(l.src[end]) {
		end++
	}
	run := l.src[from:end]
	if run == "" || !isDigit(run[0]) {
		return false
	}
	if end < len(l.src) {
		after, last := l.src[end], run[len(run)-1]
		if (after == '+' || after == '-') && (last == 'e' || last == 'E') {
			return false
		}
	}
	if !strings.ContainsFunc(run, func(r rune) bool { return isWordStart(byte(r)) }) {
		return false
	}
	if decimalLiteral.MatchString(run) {
		return false
	}
	_, err := strconv.ParseFloat(run, 64)
	return err != nil
}

func isDigit(c byte) bool     { return c >= '0' && c <= '9' }
func isWordStart(c byte) bool { return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isWordChar(c byte) bool  { return isWordStart(c) || isDigit(c) }

func startsNumber(c, next, after byte) bool {
	switch {
	case isDigit(c):
		return true
	case c == '.':
		return isDigit(next)
	case c == '+' || c == '-':
		return isDigit(next) || (next == '.' && isDigit(after))
	}
	return false
}
