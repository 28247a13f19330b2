package authtest

import "context"

func withUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, ctxUserKey{}, u)
}

func userFrom(ctx context.Context) User {
	u, _ := ctx.Value(ctxUserKey{}).(User)
	return u
}
