package auth

import (
	"context"

	"github.com/joao-fontenele/medstore/internal/domain"
)

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Email  string
	Role   domain.Role
}

func (p Principal) IsStaff() bool {
	return p.Role.IsStaff()
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
