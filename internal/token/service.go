package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/orgtree/internal"
	"github.com/frahmantamala/orgtree/internal/cache"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type Service struct {
	store    cache.Store
	policies map[Kind]policy
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now, used for issuing and for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store cache.Store, cfg internal.SecurityConfig, logger *slog.Logger, opts ...Option) (*Service, error) {
	access, err := newPolicy(cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("access token policy: %w", err)
	}
	refresh, err := newPolicy(cfg.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("refresh token policy: %w", err)
	}

	s := &Service{
		store:    store,
		policies: map[Kind]policy{Access: access, Refresh: refresh},
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) policy(kind Kind) (policy, error) {
	p, ok := s.policies[kind]
	if !ok {
		return policy{}, fmt.Errorf("unknown token kind %q", kind)
	}
	return p, nil
}

// Issue signs a token for actor and records it as valid in the ledger.
// A non-expiring token carries no exp claim and no ledger TTL; it stays valid
// until it is revoked.
func (s *Service) Issue(ctx context.Context, actor internal.Actor, kind Kind, nonExpiring bool) (string, error) {
	p, err := s.policy(kind)
	if err != nil {
		return "", err
	}

	now := s.now()
	claims := &Claims{
		UserID: actor.ID,
		Role:   actor.Role,
		Email:  actor.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       uuid.NewString(),
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	var ttl time.Duration
	if !nonExpiring {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(p.cfg.ExpiresIn))
		ttl = p.cfg.ExpiresIn
	}

	signed, err := jwt.NewWithClaims(p.method, claims).SignedString([]byte(p.cfg.Secret))
	if err != nil {
		return "", internal.NewInternalError("failed to sign token", err)
	}

	if err := s.store.Set(ctx, p.key(signed), kind.validValue(), ttl); err != nil {
		s.logger.Error("failed to record issued token", "kind", kind, "error", err)
		return "", internal.NewInternalError("failed to record token", err)
	}

	tokensIssued.WithLabelValues(string(kind)).Inc()
	return signed, nil
}

// Decode extracts claims without verifying the signature. It is not an
// authentication check.
func (s *Service) Decode(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, internal.ErrMissingToken
	}
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, internal.ErrInvalidToken.WithCause(err)
	}
	return claims, nil
}

// Validate verifies the signature with the kind's key and then consults the
// ledger. Any ledger failure is reported as an authentication failure.
func (s *Service) Validate(ctx context.Context, tokenString string, kind Kind) (*Claims, error) {
	if tokenString == "" {
		return nil, s.reject(kind, "missing", internal.ErrMissingToken)
	}
	p, err := s.policy(kind)
	if err != nil {
		return nil, err
	}

	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{p.method.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	_, err = parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(p.cfg.Secret), nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, s.reject(kind, "expired", internal.ErrTokenExpired)
	case err != nil:
		return nil, s.reject(kind, "signature", internal.ErrInvalidToken.WithCause(err))
	}

	state, err := s.store.Get(ctx, p.key(tokenString))
	switch {
	case errors.Is(err, cache.ErrNotFound):
		return nil, s.reject(kind, "unknown", internal.ErrTokenUnknown)
	case err != nil:
		s.logger.Error("token ledger unavailable", "kind", kind, "error", err)
		return nil, s.reject(kind, "ledger", internal.ErrLedgerUnavailable.WithCause(err))
	case state == kind.blockedValue():
		return nil, s.reject(kind, "revoked", internal.ErrTokenRevoked)
	case state != kind.validValue():
		return nil, s.reject(kind, "unknown", internal.ErrTokenUnknown)
	}

	return claims, nil
}

func (s *Service) reject(kind Kind, reason string, err error) error {
	validationFailures.WithLabelValues(string(kind), reason).Inc()
	return err
}

// Revoke blocks a token. An expiring token is marked blocked until its natural
// expiry; a non-expiring one is simply dropped from the ledger. Revoking a
// token that cannot be decoded is a no-op.
func (s *Service) Revoke(ctx context.Context, tokenString string, kind Kind) error {
	if tokenString == "" {
		return internal.ErrMissingToken
	}
	p, err := s.policy(kind)
	if err != nil {
		return err
	}

	claims, err := s.Decode(tokenString)
	if err != nil {
		s.logger.Debug("ignoring revoke of undecodable token", "kind", kind)
		return nil
	}

	key := p.key(tokenString)
	if claims.Expiring() {
		if remaining := claims.Remaining(s.now()); remaining > 0 {
			err = s.store.Set(ctx, key, kind.blockedValue(), remaining)
		} else {
			err = s.store.Delete(ctx, key)
		}
	} else {
		err = s.store.Delete(ctx, key)
	}
	if err != nil {
		s.logger.Error("failed to revoke token", "kind", kind, "error", err)
		return internal.NewInternalError("failed to revoke token", err)
	}

	tokensRevoked.WithLabelValues(string(kind)).Inc()
	return nil
}

// Renew returns the same token while it has more than the renew threshold
// left. Inside the threshold the token is revoked and a fresh one with the
// same identity is issued. Only valid tokens can be renewed.
func (s *Service) Renew(ctx context.Context, tokenString string, kind Kind) (string, error) {
	p, err := s.policy(kind)
	if err != nil {
		return "", err
	}
	if !p.cfg.AllowRenew {
		return "", internal.ErrRenewNotAllowed
	}

	claims, err := s.Validate(ctx, tokenString, kind)
	if err != nil {
		return "", err
	}
	if !claims.Expiring() || claims.Remaining(s.now()) > p.cfg.RenewThreshold {
		return tokenString, nil
	}

	if err := s.Revoke(ctx, tokenString, kind); err != nil {
		return "", err
	}
	return s.Issue(ctx, claims.Actor(), kind, false)
}
