package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrSyntax matches every *SyntaxError via errors.Is.
var ErrSyntax = errors.New("syntax error")

// ErrResourceExhausted matches every *ResourceError via errors.Is.
var ErrResourceExhausted = errors.New("resource exhausted")

// SyntaxError reports source text that does not conform to the grammar.
// Line and Col are 1-based.
type SyntaxError struct {
	Line      int
	Col       int
	Statement string // keyword of the statement being parsed, empty at statement start
	Token     string // offending token text, empty at end of input
	Msg       string
}

func (e *SyntaxError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "syntax error at %d:%d", e.Line, e.Col)
	if e.Statement != "" {
		fmt.Fprintf(&b, " in %s statement", e.Statement)
	}
	b.WriteString(": ")
	b.WriteString(e.Msg)
	if e.Token != "" {
		fmt.Fprintf(&b, ", found %q", e.Token)
	} else {
		b.WriteString(", found end of input")
	}
	return b.String()
}

func (e *SyntaxError) Is(target error) bool { return target == ErrSyntax }

// ResourceError is raised when loop nesting exceeds the configured depth limit.
type ResourceError struct {
	Depth int
	Limit int
	Line  int
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("resource exhausted: loop nesting depth %d exceeds limit %d (line %d)", e.Depth, e.Limit, e.Line)
}

func (e *ResourceError) Is(target error) bool { return target == ErrResourceExhausted }

// FormatSyntaxError renders a syntax error with a caret under the offending column,
// showing one line of context on each side. Other errors are returned as their message.
func FormatSyntaxError(err error, src string) string {
	var se *SyntaxError
	if !errors.As(err, &se) {
		return err.Error()
	}

	lines := strings.Split(strings.ReplaceAll(src, "\r\n", "\n"), "\n")
	line := min(max(se.Line, 1), len(lines))
	col := max(se.Col, 1)

	var b strings.Builder
	b.WriteString(se.Error())
	b.WriteString("\n\n")

	width := len(fmt.Sprint(min(line+1, len(lines))))
	for n := max(line-1, 1); n <= min(line+1, len(lines)); n++ {
		fmt.Fprintf(&b, "%*d | %s\n", width, n, lines[n-1])
		if n == line {
			fmt.Fprintf(&b, "%s | %s^\n", strings.Repeat(" ", width), strings.Repeat(" ", col-1))
		}
	}
	return b.String()
}
