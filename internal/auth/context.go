package auth

import (
	"context"

	"github.com/kjstillabower/lunar-fishing-service/internal/models"
)

type contextKey struct{}

// WithUser returns ctx carrying the signed-in user.
func WithUser(ctx context.Context, u models.User) context.Context {
	return context.WithValue(ctx, contextKey{}, u)
}

// UserFrom returns the signed-in user, if any.
func UserFrom(ctx context.Context) (models.User, bool) {
	u, ok := ctx.Value(contextKey{}).(models.User)
	return u, ok
}
