package domain

import (
	"slices"
)

// StateDiff represents the changes between two states.
// It is designed to be serialized to JSON for partial updates on the client.
// Since no structure ever deletes entries, a diff only carries additions and updates.
type StateDiff struct {
	// SessionID is always present to identify the target.
	SessionID string `json:"session_id"`

	// Model holds added or modified scalar entries.
	Model map[string]float64 `json:"model,omitempty"`

	// VectorModel holds added or modified vectors.
	VectorModel map[string][]float64 `json:"vector_model,omitempty"`

	// TensionAppended holds the entries appended to TensionHistory.
	TensionAppended []float64 `json:"tension_appended,omitempty"`

	// Coherence is set when the value changed.
	Coherence *float64 `json:"coherence,omitempty"`

	// Primitives holds added or redefined primitives.
	Primitives map[string]string `json:"primitives,omitempty"`

	Ticks *uint64 `json:"ticks,omitempty"`
}

// Diff calculates the difference between oldState and newState.
// If oldState is nil, it returns a diff representing the entire newState (initial load).
// It returns nil when nothing changed.
func Diff(oldState, newState *State) *StateDiff {
	if newState == nil {
		return nil
	}
	if oldState == nil {
		oldState = NewState(newState.SessionID)
	}

	diff := &StateDiff{
		SessionID:       newState.SessionID,
		Model:           diffModel(oldState.Model, newState.Model),
		VectorModel:     diffVectors(oldState.VectorModel, newState.VectorModel),
		TensionAppended: diffHistory(oldState.TensionHistory, newState.TensionHistory),
		Primitives:      diffPrimitives(oldState.Primitives, newState.Primitives),
	}

	if oldState.Coherence != newState.Coherence {
		c := newState.Coherence
		diff.Coherence = &c
	}
	if oldState.Ticks != newState.Ticks {
		t := newState.Ticks
		diff.Ticks = &t
	}

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

func diffModel(old, new map[string]float64) map[string]float64 {
	delta := make(map[string]float64)
	for k, v := range new {
		if ov, ok := old[k]; !ok || ov != v {
			delta[k] = v
		}
	}
	if len(delta) == 0 {
		return nil
	}
	return delta
}

func diffVectors(old, new map[string][]float64) map[string][]float64 {
	delta := make(map[string][]float64)
	for k, v := range new {
		if ov, ok := old[k]; !ok || !slices.Equal(ov, v) {
			delta[k] = append([]float64(nil), v...)
		}
	}
	if len(delta) == 0 {
		return nil
	}
	return delta
}

func diffPrimitives(old, new map[string]string) map[string]string {
	delta := make(map[string]string)
	for k, v := range new {
		if ov, ok := old[k]; !ok || ov != v {
			delta[k] = v
		}
	}
	if len(delta) == 0 {
		return nil
	}
	return delta
}

// diffHistory relies on TensionHistory being append-only.
func diffHistory(old, new []float64) []float64 {
	if len(new) <= len(old) {
		return nil
	}
	return append([]float64(nil), new[len(old):]...)
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *StateDiff) IsEmpty() bool {
	return len(d.Model) == 0 &&
		len(d.VectorModel) == 0 &&
		len(d.TensionAppended) == 0 &&
		d.Coherence == nil &&
		len(d.Primitives) == 0 &&
		d.Ticks == nil
}
