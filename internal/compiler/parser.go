package compiler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/aretw0/weave/pkg/domain"
)

// decimalLiteral is the accepted float syntax; hex floats, underscores and
// trailing garbage are rejected even where strconv would accept them.
var decimalLiteral = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

// DefaultMaxDepth bounds loop nesting when no explicit limit is configured.
const DefaultMaxDepth = 64

// Parser converts WeaveLang source text into a Program.
// The whole text is parsed before anything runs, so a syntax error anywhere
// (including inside loop bodies) is reported before any state is touched.
type Parser struct {
	maxDepth int
}

// Option configures a Parser.
type Option func(*Parser)

// WithMaxDepth sets the loop nesting limit. Values <= 0 select DefaultMaxDepth.
func WithMaxDepth(depth int) Option {
	return func(p *Parser) {
		if depth > 0 {
			p.maxDepth = depth
		}
	}
}

// NewParser creates a new parser instance.
func NewParser(opts ...Option) *Parser {
	p := &Parser{maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MaxDepth returns the configured nesting limit.
func (p *Parser) MaxDepth() int { return p.maxDepth }

// Parse returns the statement list for src.
// Errors are *domain.SyntaxError or, for excessive loop nesting, *domain.ResourceError.
func (p *Parser) Parse(src string) (*Program, error) {
	toks, err := newLexer(src).scan()
	if err != nil {
		return nil, err
	}
	ps := &parseState{toks: toks, maxDepth: p.maxDepth}
	prog, err := ps.program(0)
	if err != nil {
		return nil, err
	}
	if t := ps.peek(); t.typ != tokEOF {
		return nil, ps.fail(t, "", fmt.Sprintf("unexpected %s at top level", t.typ))
	}
	return prog, nil
}

// Parse parses src with default settings.
func Parse(src string) (*Program, error) {
	return NewParser().Parse(src)
}

type parseState struct {
	toks     []token
	pos      int
	maxDepth int
}

func (ps *parseState) peek() token { return ps.toks[ps.pos] }

func (ps *parseState) next() token {
	t := ps.toks[ps.pos]
	if t.typ != tokEOF {
		ps.pos++
	}
	return t
}

func (ps *parseState) fail(t token, stmt, msg string) *domain.SyntaxError {
	return &domain.SyntaxError{Line: t.line, Col: t.col, Statement: stmt, Token: t.text, Msg: msg}
}

// program parses statements until end of input or a closing brace.
func (ps *parseState) program(depth int) (*Program, error) {
	prog := &Program{Depth: depth}
	for {
		t := ps.peek()
		switch t.typ {
		case tokSemi:
			ps.next()
			continue
		case tokEOF, tokRBrace:
			return prog, nil
		}

		stmt, err := ps.statement(depth)
		if err != nil {
			return nil, err
		}
		if loop, ok := stmt.(*LoopStmt); ok && loop.Body.Depth > prog.Depth {
			prog.Depth = loop.Body.Depth
		}
		prog.Statements = append(prog.Statements, stmt)
	}
}

func (ps *parseState) statement(depth int) (Statement, error) {
	kw := ps.next()
	if kw.typ != tokWord {
		return nil, ps.fail(kw, "", "expected statement keyword")
	}
	at := Position{Line: kw.line, Col: kw.col}

	switch kw.text {
	case "field":
		name, err := ps.ident("field", "field name")
		if err != nil {
			return nil, err
		}
		return &FieldStmt{At: at, Name: name}, nil

	case "tension":
		return ps.tension(at)

	case "drift":
		param, err := ps.name("drift", "parameter name")
		if err != nil {
			return nil, err
		}
		return &DriftStmt{At: at, Param: param}, nil

	case "resolve":
		sensor, err := ps.ident("resolve", "sensor name")
		if err != nil {
			return nil, err
		}
		if _, err := ps.expect(tokDot, "resolve", "expected '.' between sensor and parameter"); err != nil {
			return nil, err
		}
		param, err := ps.name("resolve", "parameter name")
		if err != nil {
			return nil, err
		}
		return &ResolveStmt{At: at, Sensor: sensor, Param: param}, nil

	case "metaweave":
		prim, err := ps.ident("metaweave", "primitive name")
		if err != nil {
			return nil, err
		}
		action, err := ps.ident("metaweave", "action name")
		if err != nil {
			return nil, err
		}
		return &MetaweaveStmt{At: at, Primitive: prim, Action: action}, nil

	case "extend":
		return ps.extend(at)

	case "loop":
		return ps.loop(at, depth)
	}

	return nil, ps.fail(kw, "", "unknown statement")
}

func (ps *parseState) tension(at Position) (Statement, error) {
	const stmt = "tension"
	sensor, err := ps.ident(stmt, "sensor name")
	if err != nil {
		return nil, err
	}

	var cmp Comparator
	switch t := ps.next(); t.typ {
	case tokLess:
		cmp = Less
	case tokGreater:
		cmp = Greater
	default:
		return nil, ps.fail(t, stmt, "expected comparator '<' or '>'")
	}

	param, err := ps.name(stmt, "parameter name")
	if err != nil {
		return nil, err
	}
	if _, err := ps.expect(tokArrow, stmt, "expected '=>'"); err != nil {
		return nil, err
	}

	action, err := ps.ident(stmt, "action name")
	if err != nil {
		return nil, err
	}
	if _, err := ps.expect(tokLParen, stmt, "expected '(' after action name"); err != nil {
		return nil, err
	}
	v0, err := ps.number(stmt)
	if err != nil {
		return nil, err
	}
	if _, err := ps.expect(tokComma, stmt, "expected ',' between action values"); err != nil {
		return nil, err
	}
	v1, err := ps.number(stmt)
	if err != nil {
		return nil, err
	}
	if _, err := ps.expect(tokRParen, stmt, "expected ')' after action values"); err != nil {
		return nil, err
	}

	return &TensionStmt{
		At:         at,
		Sensor:     sensor,
		Comparator: cmp,
		Param:      param,
		Action:     Action{Name: action, Value: [2]float64{v0, v1}},
	}, nil
}

func (ps *parseState) extend(at Position) (Statement, error) {
	const stmt = "extend"
	field, err := ps.ident(stmt, "field name")
	if err != nil {
		return nil, err
	}
	param, err := ps.name(stmt, "parameter name")
	if err != nil {
		return nil, err
	}
	value, err := ps.number(stmt)
	if err != nil {
		return nil, err
	}
	lit, err := ps.expect(tokWord, stmt, "expected boolean literal")
	if err != nil {
		return nil, err
	}
	return &ExtendStmt{
		At:    at,
		Field: field,
		Param: param,
		Value: value,
		// Any token containing "true" counts as true ("untrue" included).
		Literal:   lit.text,
		Condition: strings.Contains(lit.text, "true"),
	}, nil
}

func (ps *parseState) loop(at Position, depth int) (Statement, error) {
	const stmt = "loop"
	t := ps.next()
	if t.typ != tokNumber {
		return nil, ps.fail(t, stmt, "expected iteration count")
	}
	count, err := strconv.ParseUint(t.text, 10, 64)
	if err != nil {
		return nil, ps.fail(t, stmt, "iteration count must be a non-negative integer")
	}

	open, err := ps.expect(tokLBrace, stmt, "expected '{'")
	if err != nil {
		return nil, err
	}
	if depth+1 > ps.maxDepth {
		return nil, &domain.ResourceError{Depth: depth + 1, Limit: ps.maxDepth, Line: open.line}
	}

	body, err := ps.program(depth + 1)
	if err != nil {
		return nil, err
	}
	if _, err := ps.expect(tokRBrace, stmt, "unterminated loop block, expected '}'"); err != nil {
		return nil, err
	}
	return &LoopStmt{At: at, Count: count, Body: body}, nil
}

func (ps *parseState) expect(typ tokenType, stmt, msg string) (token, error) {
	t := ps.next()
	if t.typ != typ {
		return t, ps.fail(t, stmt, msg)
	}
	return t, nil
}

// ident reads a single word.
func (ps *parseState) ident(stmt, what string) (string, error) {
	t, err := ps.expect(tokWord, stmt, "expected "+what)
	if err != nil {
		return "", err
	}
	return t.text, nil
}

// name reads a dotted parameter key such as "generalist.safety_metric".
func (ps *parseState) name(stmt, what string) (string, error) {
	first, err := ps.ident(stmt, what)
	if err != nil {
		return "", err
	}
	parts := []string{first}
	for ps.peek().typ == tokDot {
		ps.next()
		part, err := ps.ident(stmt, what+" segment after '.'")
		if err != nil {
			return "", err
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, "."), nil
}

func (ps *parseState) number(stmt string) (float64, error) {
	t := ps.next()
	if t.typ != tokNumber {
		return 0, ps.fail(t, stmt, "expected numeric literal")
	}
	if !decimalLiteral.MatchString(t.text) {
		return 0, ps.fail(t, stmt, "malformed numeric literal")
	}
	v, err := strconv.ParseFloat(t.text, 64)
	if err != nil {
		return 0, ps.fail(t, stmt, "malformed numeric literal")
	}
	return v, nil
}
