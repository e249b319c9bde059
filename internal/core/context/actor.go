// Package context provides request-scoped values extraction.
package context

import (
	"context"
)

// Actor identifies who triggered a cascade. It is recorded in audit entries
// and attached to log lines; the engine itself performs no authorization.
type Actor struct {
	UserID string
	Email  string
	// Source names the entry point (e.g., "cli", "worker").
	Source string
}

type actorContextKey struct{}

// WithActor adds Actor to context.
func WithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// GetActor returns Actor from context.
func GetActor(ctx context.Context) *Actor {
	if v, ok := ctx.Value(actorContextKey{}).(*Actor); ok {
		return v
	}
	return nil
}

// GetActorID returns the actor's user ID or empty string.
func GetActorID(ctx context.Context) string {
	if a := GetActor(ctx); a != nil {
		return a.UserID
	}
	return ""
}
