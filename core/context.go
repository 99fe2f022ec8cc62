package core

import "context"

type actorCtxKey struct{}

// Actor identifies who is performing an operation, for audit purposes.
type Actor struct {
	ID   string
	Name string
}

func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorCtxKey{}, actor)
}

func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorCtxKey{}).(Actor)
	return actor, ok
}
