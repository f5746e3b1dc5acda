package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/congo-pay/tontine/internal/config"
	"github.com/congo-pay/tontine/internal/identity"
)

// ErrTokenRevoked occurs when a token predates the user's current token version.
var ErrTokenRevoked = errors.New("token version invalidated")

// Service issues and revokes token pairs.
type Service struct {
	cfg    config.Config
	idRepo identity.Repository
	now    func() time.Time
}

// NewService builds the token service.
func NewService(cfg config.Config, idRepo identity.Repository) *Service {
	return &Service{cfg: cfg, idRepo: idRepo, now: time.Now}
}

// TokenPair is returned on login.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

func claimsFor(user identity.User) Claims {
	return Claims{
		CountryCode:      user.CountryCode,
		Phone:            user.Phone,
		Tier:             user.Tier,
		Version:          user.TokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{Subject: user.ID},
	}
}

// Login issues tokens for a user already authenticated by identity.Service.
func (s *Service) Login(user identity.User) (TokenPair, error) {
	now := s.now()
	access, _, err := SignHS256(claimsFor(user), []byte(s.cfg.JWTSecret), now, s.cfg.AccessTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, _, err := SignHS256(claimsFor(user), []byte(s.cfg.RefreshSecret), now, s.cfg.RefreshTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: int64(s.cfg.AccessTokenTTL.Seconds())}, nil
}

// Verify checks an access token and that its version is still current.
func (s *Service) Verify(ctx context.Context, token string) (identity.User, error) {
	return s.verify(ctx, token, s.cfg.JWTSecret)
}

func (s *Service) verify(ctx context.Context, token, secret string) (identity.User, error) {
	claims, err := ParseAndVerifyHS256(token, []byte(secret))
	if err != nil {
		return identity.User{}, err
	}
	user, err := s.idRepo.FindByID(ctx, claims.Subject)
	if err != nil {
		return identity.User{}, ErrInvalidToken
	}
	if user.TokenVersion != claims.Version {
		return identity.User{}, ErrTokenRevoked
	}
	return user, nil
}

// Refresh verifies the refresh token and returns a new access token if valid.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, int64, error) {
	user, err := s.verify(ctx, refreshToken, s.cfg.RefreshSecret)
	if err != nil {
		return "", 0, err
	}
	signed, _, err := SignHS256(claimsFor(user), []byte(s.cfg.JWTSecret), s.now(), s.cfg.AccessTokenTTL)
	if err != nil {
		return "", 0, err
	}
	return signed, int64(s.cfg.AccessTokenTTL.Seconds()), nil
}

// Logout increments the token version so older tokens become invalid, and
// returns the user so callers can drop in-memory state.
func (s *Service) Logout(ctx context.Context, userID string) (identity.User, error) {
	user, err := s.idRepo.FindByID(ctx, userID)
	if err != nil {
		return identity.User{}, err
	}
	if err := s.idRepo.UpdateTokenVersion(ctx, user.ID, user.TokenVersion+1); err != nil {
		return identity.User{}, err
	}
	user.TokenVersion++
	return user, nil
}
