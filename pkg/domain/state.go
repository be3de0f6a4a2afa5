package domain

import "maps"

// State is the interpreter's mutable world.
// All five structures are created empty and only ever grow: keys are inserted on
// first write and never deleted, and TensionHistory is append-only.
type State struct {
	// SessionID identifies the state in a StateStore. Empty for embedded interpreters.
	SessionID string `json:"session_id,omitempty"`

	// Model maps parameter names to scalar values. Absent keys read as 0.0.
	Model map[string]float64 `json:"model"`

	// VectorModel maps names to numeric vectors (e.g. "position").
	VectorModel map[string][]float64 `json:"vector_model"`

	// TensionHistory holds one entry per evaluated tension rule.
	TensionHistory []float64 `json:"tension_history"`

	// Coherence is updated only by a successful resolve.
	Coherence float64 `json:"coherence"`

	// Primitives maps metaweave-declared primitive names to action names.
	Primitives map[string]string `json:"primitives"`

	// Ticks counts completed Execute calls.
	Ticks uint64 `json:"ticks"`

	// Envelope carries sealed state when a persistence middleware encrypts it.
	Envelope string `json:"envelope,omitempty"`
}

// NewState creates an empty state.
func NewState(sessionID string) *State {
	return &State{
		SessionID:      sessionID,
		Model:          make(map[string]float64),
		VectorModel:    make(map[string][]float64),
		TensionHistory: []float64{},
		Primitives:     make(map[string]string),
	}
}

// Normalize allocates any nil maps, e.g. after decoding a partial JSON document.
func (s *State) Normalize() *State {
	if s.Model == nil {
		s.Model = make(map[string]float64)
	}
	if s.VectorModel == nil {
		s.VectorModel = make(map[string][]float64)
	}
	if s.TensionHistory == nil {
		s.TensionHistory = []float64{}
	}
	if s.Primitives == nil {
		s.Primitives = make(map[string]string)
	}
	return s
}

// Get returns the model value for name, or 0.0 if it was never written.
func (s *State) Get(name string) float64 {
	return s.Model[name]
}

// Vector returns a copy of the named vector.
func (s *State) Vector(name string) ([]float64, bool) {
	v, ok := s.VectorModel[name]
	if !ok {
		return nil, false
	}
	return append([]float64(nil), v...), true
}

// SetVector stores a copy of v under name.
func (s *State) SetVector(name string, v []float64) {
	s.VectorModel[name] = append([]float64(nil), v...)
}

// MeanTension returns the arithmetic mean of TensionHistory.
// The boolean is false when the history is empty.
func (s *State) MeanTension() (float64, bool) {
	if len(s.TensionHistory) == 0 {
		return 0, false
	}
	var sum float64
	for _, t := range s.TensionHistory {
		sum += t
	}
	return sum / float64(len(s.TensionHistory)), true
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s *State) Clone() *State {
	c := *s
	c.Model = maps.Clone(s.Model)
	c.Primitives = maps.Clone(s.Primitives)
	c.TensionHistory = append([]float64(nil), s.TensionHistory...)
	c.VectorModel = make(map[string][]float64, len(s.VectorModel))
	for k, v := range s.VectorModel {
		c.VectorModel[k] = append([]float64(nil), v...)
	}
	return c.Normalize()
}
