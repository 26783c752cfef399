package middleware

import (
	"context"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/gamehost-backend/pkg/errors"
)

type contextKey string

const ctxIdentity = contextKey("identity")

// identity is what Auth learned about the caller. Both fields are kept as
// the raw claim strings; handlers parse what they need.
type identity struct {
	userID string
	role   string
}

func identityFrom(ctx context.Context) identity {
	if ctx == nil {
		return identity{}
	}
	id, _ := ctx.Value(ctxIdentity).(identity)
	return id
}

func withIdentity(ctx context.Context, id identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxIdentity, id)
}

func UserIDFromContext(ctx context.Context) string { return identityFrom(ctx).userID }

func RoleFromContext(ctx context.Context) string { return identityFrom(ctx).role }

// UserUUIDFromContext returns the authenticated user id, if any.
func UserUUIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(UserIDFromContext(ctx))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// RequireUserID is UserUUIDFromContext for handlers behind Auth.
func RequireUserID(ctx context.Context) (uuid.UUID, error) {
	if id, ok := UserUUIDFromContext(ctx); ok {
		return id, nil
	}
	return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
}

// WithUserID sets the caller id, keeping any role already present.
func WithUserID(ctx context.Context, userID string) context.Context {
	id := identityFrom(ctx)
	id.userID = userID
	return withIdentity(ctx, id)
}

// WithRole sets the caller role, keeping any user id already present.
func WithRole(ctx context.Context, role string) context.Context {
	id := identityFrom(ctx)
	id.role = role
	return withIdentity(ctx, id)
}
