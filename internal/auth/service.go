package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/frahmantamala/orgtree/internal"
	"github.com/frahmantamala/orgtree/internal/token"
	"golang.org/x/crypto/bcrypt"
)

type Service struct {
	tokens      TokenManager
	credentials CredentialStore
	admin       internal.AdminConfig
	logger      *slog.Logger
}

func NewService(tokens TokenManager, credentials CredentialStore, admin internal.AdminConfig, logger *slog.Logger) *Service {
	return &Service{
		tokens:      tokens,
		credentials: credentials,
		admin:       admin,
		logger:      logger,
	}
}

// AdminLogin checks the configured admin credentials and issues an access
// token for the admin sentinel. rememberMe issues a non-expiring token.
func (s *Service) AdminLogin(ctx context.Context, dto AdminLoginDTO) (string, error) {
	if err := dto.Validate(); err != nil {
		return "", err
	}
	if !s.admin.Configured() {
		s.logger.Error("admin login attempted without configured credentials")
		return "", internal.ErrAdminNotConfigured
	}

	hashErr := bcrypt.CompareHashAndPassword([]byte(s.admin.PasswordHash), []byte(dto.Password))
	if hashErr != nil || dto.Username != s.admin.Username {
		s.logger.Warn("admin login rejected", "username", dto.Username)
		return "", internal.ErrInvalidCredentials
	}

	admin := internal.Actor{ID: internal.AdminID, Role: internal.RoleAdmin}
	return s.tokens.Issue(ctx, admin, token.Access, dto.RememberMe)
}

// UserLogin authenticates a stored user and issues an access/refresh pair.
func (s *Service) UserLogin(ctx context.Context, dto UserLoginDTO) (*Session, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	cred, err := s.credentials.CredentialByEmail(ctx, dto.Email)
	if errors.Is(err, internal.ErrUserNotFound) {
		return nil, internal.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(dto.Password)); err != nil {
		s.logger.Warn("user login rejected", "user_id", cred.Actor.ID)
		return nil, internal.ErrInvalidCredentials
	}

	access, err := s.tokens.Issue(ctx, cred.Actor, token.Access, dto.RememberMe)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.Issue(ctx, cred.Actor, token.Refresh, false)
	if err != nil {
		// the caller never receives this access token
		_ = s.tokens.Revoke(ctx, access, token.Access)
		return nil, err
	}

	s.logger.Info("user logged in", "user_id", cred.Actor.ID, "role", cred.Actor.Role)
	return &Session{
		AccessToken:  access,
		RefreshToken: refresh,
		Actor:        cred.Actor,
		Profile:      cred.Profile,
	}, nil
}

// Refresh rotates an access token. The old access token may already be
// expired, so it is only decoded; the refresh token must be valid and belong
// to the same identity.
func (s *Service) Refresh(ctx context.Context, accessToken, refreshToken string) (string, error) {
	if accessToken == "" || refreshToken == "" {
		return "", internal.ErrMissingToken
	}

	accessClaims, err := s.tokens.Decode(accessToken)
	if err != nil {
		return "", err
	}
	refreshClaims, err := s.tokens.Validate(ctx, refreshToken, token.Refresh)
	if err != nil {
		return "", err
	}
	if accessClaims.UserID != refreshClaims.UserID {
		s.logger.Warn("refresh rejected: token identities differ",
			"access_id", accessClaims.UserID,
			"refresh_id", refreshClaims.UserID)
		return "", internal.ErrTokenMismatch
	}

	if err := s.tokens.Revoke(ctx, accessToken, token.Access); err != nil {
		return "", err
	}
	return s.tokens.Issue(ctx, refreshClaims.Actor(), token.Access, false)
}

// Logout revokes the access token and, when given, the refresh token.
func (s *Service) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if err := s.tokens.Revoke(ctx, accessToken, token.Access); err != nil {
		return err
	}
	if refreshToken == "" {
		return nil
	}
	return s.tokens.Revoke(ctx, refreshToken, token.Refresh)
}

// Authenticate turns a bearer access token into the acting identity.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (internal.Actor, error) {
	claims, err := s.tokens.Validate(ctx, accessToken, token.Access)
	if err != nil {
		return internal.Actor{}, err
	}
	actor := claims.Actor()
	if !actor.Role.Valid() || actor.ID == "" {
		return internal.Actor{}, internal.ErrInvalidToken
	}
	return actor, nil
}

// RenewAccess slides a session forward. Inside the renew threshold the
// access token is replaced by a fresh one; otherwise, or when renewal is
// disabled, the token comes back unchanged.
func (s *Service) RenewAccess(ctx context.Context, accessToken string) (string, error) {
	fresh, err := s.tokens.Renew(ctx, accessToken, token.Access)
	if errors.Is(err, internal.ErrRenewNotAllowed) {
		return accessToken, nil
	}
	if err != nil {
		return "", err
	}
	if fresh != accessToken {
		s.logger.Info("access token renewed")
	}
	return fresh, nil
}
