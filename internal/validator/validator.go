package validator

import (
	"fmt"
	"slices"
	"strings"

	"github.com/aretw0/weave/internal/compiler"
)

// Issue is a lint finding. Issues never stop a program from running.
type Issue struct {
	Line    int
	Col     int
	Code    string
	Message string
}

func (i Issue) String() string {
	return fmt.Sprintf("%d:%d: %s (%s)", i.Line, i.Col, i.Message, i.Code)
}

// Issue codes.
const (
	CodeUnsetParam      = "unset-param"
	CodeDriftNoEffect   = "drift-no-effect"
	CodeEmptyLoop       = "empty-loop"
	CodeAmbiguousBool   = "ambiguous-bool"
	CodeUnknownSensor   = "unknown-sensor"
	CodeUnknownAction   = "unknown-action"
	CodePrimitiveAction = "primitive-action"
	CodeRedefined       = "redefined-primitive"
)

// Environment describes what the host provides. Nil lists disable the matching checks.
type Environment struct {
	Model     []string // keys seeded before the first tick
	Sensors   []string
	Actuators []string // "*" accepts every action
}

// Lint reports statements that parse but probably do not do what the author meant.
func Lint(prog *compiler.Program, env Environment) []Issue {
	written := writtenKeys(prog)
	for _, k := range env.Model {
		written[k] = true
	}
	primitives := make(map[string]int)

	var issues []Issue
	add := func(s compiler.Statement, code, format string, args ...any) {
		pos := s.Pos()
		issues = append(issues, Issue{Line: pos.Line, Col: pos.Col, Code: code, Message: fmt.Sprintf(format, args...)})
	}

	compiler.Walk(prog, func(s compiler.Statement, depth int) bool {
		switch st := s.(type) {
		case *compiler.TensionStmt:
			if !written[st.Param] {
				add(s, CodeUnsetParam, "parameter %q is never written and reads 0", st.Param)
			}
			if env.Sensors != nil && !slices.Contains(env.Sensors, st.Sensor) {
				add(s, CodeUnknownSensor, "sensor %q is not provided by the host and reads 0", st.Sensor)
			}
			if _, ok := primitives[st.Action.Name]; ok {
				add(s, CodePrimitiveAction, "%q is a metaweave primitive; it is sent to the host as a plain action", st.Action.Name)
			} else if env.Actuators != nil && !slices.Contains(env.Actuators, st.Action.Name) && !slices.Contains(env.Actuators, "*") {
				add(s, CodeUnknownAction, "action %q has no actuator and will be dropped", st.Action.Name)
			}
		case *compiler.ResolveStmt:
			if env.Sensors != nil && !slices.Contains(env.Sensors, st.Sensor) {
				add(s, CodeUnknownSensor, "sensor %q is not provided by the host and reads 0", st.Sensor)
			}
		case *compiler.DriftStmt:
			add(s, CodeDriftNoEffect, "drift %s computes a candidate but changes no state; use resolve to commit", st.Param)
		case *compiler.ExtendStmt:
			if st.Literal != "true" && st.Literal != "false" {
				add(s, CodeAmbiguousBool, "condition %q is read as %t", st.Literal, st.Condition)
			}
		case *compiler.MetaweaveStmt:
			if line, ok := primitives[st.Primitive]; ok {
				add(s, CodeRedefined, "primitive %q was already defined on line %d", st.Primitive, line)
			}
			primitives[st.Primitive] = st.At.Line
		case *compiler.LoopStmt:
			if st.Count == 0 || len(st.Body.Statements) == 0 {
				add(s, CodeEmptyLoop, "loop body never runs")
			}
		}
		return true
	})
	return issues
}

// writtenKeys collects every model key a statement of prog can write.
func writtenKeys(prog *compiler.Program) map[string]bool {
	keys := make(map[string]bool)
	compiler.Walk(prog, func(s compiler.Statement, _ int) bool {
		switch st := s.(type) {
		case *compiler.FieldStmt:
			keys[st.Name+".created"] = true
		case *compiler.ResolveStmt:
			keys[st.Param] = true
		case *compiler.ExtendStmt:
			keys[st.Key()] = true
		}
		return true
	})
	return keys
}

// ValidateProgram parses src and fails on syntax errors or, with strict set, on any lint issue.
func ValidateProgram(src string, env Environment, strict bool) ([]Issue, error) {
	prog, err := compiler.Parse(src)
	if err != nil {
		return nil, err
	}
	issues := Lint(prog, env)
	if strict && len(issues) > 0 {
		lines := make([]string, len(issues))
		for i, is := range issues {
			lines[i] = is.String()
		}
		return issues, fmt.Errorf("found %d issues:\n- %s", len(issues), strings.Join(lines, "\n- "))
	}
	return issues, nil
}
