package auth

import (
	"errors"
	"time"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotConfigured      = errors.New("admin login is not configured")
)

// Service exchanges the shared admin secret for a short-lived bearer token.
// When config.AdminSecretHash is set it is checked instead of adminSecret.
type Service struct {
	adminSecret string
	config      Config
}

func NewService(adminSecret string, config Config) *Service {
	if config.AdminSecretHash != "" {
		adminSecret = config.AdminSecretHash
	}
	return &Service{adminSecret: adminSecret, config: config}
}

func (s *Service) Enabled() bool {
	return s.adminSecret != "" && s.config.JWTSecret != ""
}

func (s *Service) Login(secret string) (string, time.Time, error) {
	if !s.Enabled() {
		return "", time.Time{}, ErrNotConfigured
	}
	if !CheckSecret(secret, s.adminSecret) {
		return "", time.Time{}, ErrInvalidCredentials
	}
	return GenerateToken(s.config.JWTSecret, s.config.TokenTTL, "admin", RoleAdmin)
}

// Verify accepts a bearer token issued by Login.
func (s *Service) Verify(token string) (*Claims, error) {
	if s.config.JWTSecret == "" {
		return nil, ErrNotConfigured
	}
	claims, err := ValidateToken(s.config.JWTSecret, token)
	if err != nil {
		return nil, err
	}
	if claims.Role != RoleAdmin {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
