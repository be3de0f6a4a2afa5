package compiler

import "fmt"

// Kind tags each statement with one of the seven statement forms.
type Kind int

const (
	KindField Kind = iota
	KindTension
	KindDrift
	KindResolve
	KindMetaweave
	KindExtend
	KindLoop
)

var kindNames = [...]string{
	KindField:     "field",
	KindTension:   "tension",
	KindDrift:     "drift",
	KindResolve:   "resolve",
	KindMetaweave: "metaweave",
	KindExtend:    "extend",
	KindLoop:      "loop",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Position locates a statement in the source text (1-based).
type Position struct {
	Line int
	Col  int
}

// Statement is a node of the syntax tree.
type Statement interface {
	Kind() Kind
	Pos() Position
}

// Program is an ordered list of top-level statements.
type Program struct {
	Statements []Statement

	// Depth is the deepest loop nesting in the program (0 without loops).
	Depth int
}

// Comparator is the relational operator of a tension rule.
type Comparator byte

const (
	Less    Comparator = '<'
	Greater Comparator = '>'
)

func (c Comparator) String() string { return string(rune(c)) }

// Holds reports whether "observed <c> expected" is true.
func (c Comparator) Holds(observed, expected float64) bool {
	switch c {
	case Less:
		return observed < expected
	case Greater:
		return observed > expected
	}
	return false
}

// Action is a host command with its two-value argument.
type Action struct {
	Name  string
	Value [2]float64
}

// FieldStmt: field <ident>
type FieldStmt struct {
	At   Position
	Name string
}

// TensionStmt: tension <sensor> <cmp> <param> => <action>(<v0>, <v1>)
type TensionStmt struct {
	At         Position
	Sensor     string
	Comparator Comparator
	Param      string
	Action     Action
}

// DriftStmt: drift <param>
type DriftStmt struct {
	At    Position
	Param string
}

// ResolveStmt: resolve <sensor>.<param>
type ResolveStmt struct {
	At     Position
	Sensor string
	Param  string
}

// MetaweaveStmt: metaweave <primitive> <action>
type MetaweaveStmt struct {
	At        Position
	Primitive string
	Action    string
}

// ExtendStmt: extend <field> <param> <number> <bool>
type ExtendStmt struct {
	At    Position
	Field string
	Param string
	Value float64

	// Literal is the boolean token as written; Condition is derived from it.
	Literal   string
	Condition bool
}

// Key returns the model key written by the statement.
func (s *ExtendStmt) Key() string { return s.Field + "." + s.Param }

// LoopStmt: loop <count> { <statements> }
type LoopStmt struct {
	At    Position
	Count uint64
	Body  *Program
}

func (s *FieldStmt) Kind() Kind     { return KindField }
func (s *TensionStmt) Kind() Kind   { return KindTension }
func (s *DriftStmt) Kind() Kind     { return KindDrift }
func (s *ResolveStmt) Kind() Kind   { return KindResolve }
func (s *MetaweaveStmt) Kind() Kind { return KindMetaweave }
func (s *ExtendStmt) Kind() Kind    { return KindExtend }
func (s *LoopStmt) Kind() Kind      { return KindLoop }

func (s *FieldStmt) Pos() Position     { return s.At }
func (s *TensionStmt) Pos() Position   { return s.At }
func (s *DriftStmt) Pos() Position     { return s.At }
func (s *ResolveStmt) Pos() Position   { return s.At }
func (s *MetaweaveStmt) Pos() Position { return s.At }
func (s *ExtendStmt) Pos() Position    { return s.At }
func (s *LoopStmt) Pos() Position      { return s.At }

// Walk visits every statement depth-first, descending into loop bodies once.
// Returning false from fn stops the descent into that statement's children.
func Walk(p *Program, fn func(s Statement, depth int) bool) {
	walk(p, 0, fn)
}

func walk(p *Program, depth int, fn func(Statement, int) bool) {
	if p == nil {
		return
	}
	for _, s := range p.Statements {
		if !fn(s, depth) {
			continue
		}
		if loop, ok := s.(*LoopStmt); ok {
			walk(loop.Body, depth+1, fn)
		}
	}
}
