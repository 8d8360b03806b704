package auth

import (
	"context"

	"github.com/frahmantamala/orgtree/internal"
	"github.com/frahmantamala/orgtree/internal/token"
)

// Credential is what login needs to know about a stored user.
type Credential struct {
	Actor        internal.Actor
	PasswordHash string
	// Profile is the public projection returned to the client after login.
	Profile interface{}
}

// CredentialStore looks users up by email. It returns internal.ErrUserNotFound
// for unknown or archived users.
type CredentialStore interface {
	CredentialByEmail(ctx context.Context, email string) (*Credential, error)
}

// TokenManager is the subset of the token service that authentication uses.
type TokenManager interface {
	Issue(ctx context.Context, actor internal.Actor, kind token.Kind, nonExpiring bool) (string, error)
	Decode(tokenString string) (*token.Claims, error)
	Validate(ctx context.Context, tokenString string, kind token.Kind) (*token.Claims, error)
	Revoke(ctx context.Context, tokenString string, kind token.Kind) error
	Renew(ctx context.Context, tokenString string, kind token.Kind) (string, error)
}

// Session is the result of a successful user login.
type Session struct {
	AccessToken  string
	RefreshToken string
	Actor        internal.Actor
	Profile      interface{}
}
