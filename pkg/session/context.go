package session

import (
	"context"

	"github.com/aretw0/weave/pkg/domain"
)

// stateContextKey is the context key for the state a tick started from.
type stateContextKey struct{}

// ContextWithState attaches st to ctx. Manager.Execute binds a snapshot of the
// loaded session this way, so host channels shared by many sessions read the
// state of the session they are sensing for.
func ContextWithState(ctx context.Context, st *domain.State) context.Context {
	return context.WithValue(ctx, stateContextKey{}, st)
}

// StateFromContext returns the state bound by ContextWithState, or nil.
func StateFromContext(ctx context.Context) *domain.State {
	st, _ := ctx.Value(stateContextKey{}).(*domain.State)
	return st
}
