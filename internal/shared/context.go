package shared

import "context"

type actorContextKey struct{}

// Actor identifies the acting user for attribution on ledger entries and audit
// records. Identity itself is resolved upstream; this core only consumes it.
type Actor struct {
	ID   string
	Name string
}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) Actor {
	actor, _ := ctx.Value(actorContextKey{}).(Actor)
	return actor
}

// Operator returns the display name used on ledger entries, falling back to
// the id when no name is set.
func (a Actor) Operator() string {
	if a.Name != "" {
		return a.Name
	}
	return a.ID
}
