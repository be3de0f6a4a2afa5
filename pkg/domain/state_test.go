package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_DefaultsAndClone(t *testing.T) {
	s := NewState("s1")
	assert.Equal(t, 0.0, s.Get("never_written"))

	_, ok := s.MeanTension()
	assert.False(t, ok)

	s.TensionHistory = []float64{1, 2, 3}
	mean, ok := s.MeanTension()
	require.True(t, ok)
	assert.InDelta(t, 2.0, mean, 1e-12)

	s.SetVector("position", []float64{1, 2})
	c := s.Clone()
	c.VectorModel["position"][0] = 99
	c.TensionHistory[0] = 42
	c.Model["x"] = 1

	v, _ := s.Vector("position")
	assert.Equal(t, []float64{1, 2}, v)
	assert.Equal(t, 1.0, s.TensionHistory[0])
	assert.NotContains(t, s.Model, "x")
}

func TestState_NormalizeAfterDecode(t *testing.T) {
	var s State
	require.NoError(t, json.Unmarshal([]byte(`{"coherence":0.5}`), &s))
	s.Normalize()

	assert.NotNil(t, s.Model)
	assert.NotNil(t, s.VectorModel)
	assert.NotNil(t, s.Primitives)
	assert.NotNil(t, s.TensionHistory)
	assert.Equal(t, 0.5, s.Coherence)
}

func TestEvent_Message(t *testing.T) {
	assert.Equal(t, "Tension: 1", Event{Type: EventTension, Tension: 1.0}.Message())
	assert.Equal(t, "Resolved: Coherence 0.5", Event{Type: EventResolve, Coherence: 0.5}.Message())
	assert.Equal(t, "Defined new primitive: turn as rotate",
		Event{Type: EventMetaweave, Primitive: "turn", Action: "rotate"}.Message())
}

func TestErrors_Taxonomy(t *testing.T) {
	var err error = &SyntaxError{Line: 1, Col: 15, Statement: "tension", Token: ">", Msg: "expected parameter name"}
	assert.True(t, errors.Is(err, ErrSyntax))
	assert.False(t, errors.Is(err, ErrResourceExhausted))
	assert.Equal(t, `syntax error at 1:15 in tension statement: expected parameter name, found ">"`, err.Error())

	err = &ResourceError{Depth: 65, Limit: 64, Line: 3}
	assert.True(t, errors.Is(err, ErrResourceExhausted))
	assert.False(t, errors.Is(err, ErrSyntax))
}

func TestFormatSyntaxError(t *testing.T) {
	src := "field light\ntension light <> threshold => move(1.0)\ndrift x"
	err := &SyntaxError{Line: 2, Col: 16, Statement: "tension", Token: ">", Msg: "expected parameter name"}

	out := FormatSyntaxError(err, src)
	assert.Contains(t, out, "1 | field light")
	assert.Contains(t, out, "2 | tension light <> threshold => move(1.0)")
	assert.Contains(t, out, "  |"+strings.Repeat(" ", 16)+"^\n")
	assert.Contains(t, out, "3 | drift x")

	plain := errors.New("boom")
	assert.Equal(t, "boom", FormatSyntaxError(plain, src))
}
