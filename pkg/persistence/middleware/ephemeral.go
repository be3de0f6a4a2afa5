package middleware

import (
	"context"
	"regexp"

	"github.com/aretw0/weave/pkg/domain"
	"github.com/aretw0/weave/pkg/ports"
)

type ephemeralMiddleware struct {
	next     ports.StateStore
	patterns []*regexp.Regexp
}

// NewEphemeralMiddleware keeps model and vector entries whose names match any
// pattern out of the store. Hosts use it for values they re-seed every tick,
// such as a synced "position".
func NewEphemeralMiddleware(patterns ...string) (Middleware, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, re)
	}
	return func(next ports.StateStore) ports.StateStore {
		return &ephemeralMiddleware{next: next, patterns: compiled}
	}, nil
}

func (m *ephemeralMiddleware) matches(key string) bool {
	for _, p := range m.patterns {
		if p.MatchString(key) {
			return true
		}
	}
	return false
}

func (m *ephemeralMiddleware) Save(ctx context.Context, sessionID string, state *domain.State) error {
	c := state.Clone()
	for k := range c.Model {
		if m.matches(k) {
			delete(c.Model, k)
		}
	}
	for k := range c.VectorModel {
		if m.matches(k) {
			delete(c.VectorModel, k)
		}
	}
	return m.next.Save(ctx, sessionID, c)
}

func (m *ephemeralMiddleware) Load(ctx context.Context, sessionID string) (*domain.State, error) {
	return m.next.Load(ctx, sessionID)
}

func (m *ephemeralMiddleware) Delete(ctx context.Context, sessionID string) error {
	return m.next.Delete(ctx, sessionID)
}

func (m *ephemeralMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}
