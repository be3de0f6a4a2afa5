package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/aretw0/weave/pkg/domain"
)

// LogObserver writes every event to a structured logger at info level.
type LogObserver struct {
	logger *slog.Logger
}

// NewLogObserver creates an observer that logs to logger.
func NewLogObserver(logger *slog.Logger) *LogObserver {
	return &LogObserver{logger: logger}
}

func (o *LogObserver) Observe(ctx context.Context, ev domain.Event) {
	attrs := []any{
		"type", ev.Type,
		"line", ev.Line,
	}
	switch ev.Type {
	case domain.EventTension:
		attrs = append(attrs, "sensor", ev.Sensor, "param", ev.Param, "tension", ev.Tension, "fired", ev.Fired)
		if ev.Fired {
			attrs = append(attrs, "action", ev.Action)
		}
	case domain.EventResolve:
		attrs = append(attrs, "param", ev.Param, "candidate", ev.Candidate, "coherence", ev.Coherence)
	case domain.EventMetaweave:
		attrs = append(attrs, "primitive", ev.Primitive, "action", ev.Action)
	}
	o.logger.InfoContext(ctx, ev.Message(), attrs...)
}

// WriterObserver prints Event.Message lines, the format hosts show to users.
type WriterObserver struct {
	mu     sync.Mutex
	w      io.Writer
	prefix string
}

// NewWriterObserver creates an observer printing to w. Each line starts with prefix.
func NewWriterObserver(w io.Writer, prefix string) *WriterObserver {
	return &WriterObserver{w: w, prefix: prefix}
}

func (o *WriterObserver) Observe(_ context.Context, ev domain.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fmt.Fprintf(o.w, "%s%s\n", o.prefix, ev.Message())
}

// Recorder keeps every observed event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *Recorder) Observe(_ context.Context, ev domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.events...)
}

// Messages returns the Message of every recorded event.
func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Message()
	}
	return out
}

// Reset drops all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
