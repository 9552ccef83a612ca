package service

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"blogdraft-server/internal/config"
	"blogdraft-server/internal/domain"
	"blogdraft-server/pkg/hash"
	"blogdraft-server/pkg/jwt"

	"github.com/go-playground/validator/v10"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// AuthService authenticates the single configured administrator.
type AuthService struct {
	cfg      config.AuthConfig
	validate *validator.Validate
}

func NewAuthService(cfg config.AuthConfig) (*AuthService, error) {
	if cfg.Enabled {
		if err := hash.Check(cfg.AdminPasswordHash); err != nil {
			return nil, fmt.Errorf("ADMIN_PASSWORD_HASH: %w", err)
		}
		if cfg.Secret == "" {
			return nil, errors.New("JWT_SECRET is required when auth is enabled")
		}
	}
	return &AuthService{cfg: cfg, validate: newValidator()}, nil
}

func (s *AuthService) Enabled() bool { return s.cfg.Enabled }

func (s *AuthService) Login(req *domain.LoginRequest) (*domain.LoginResponse, error) {
	if err := validateStruct(s.validate, req); err != nil {
		return nil, err
	}

	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(s.cfg.AdminUsername)) == 1
	// The hash is compared even for unknown users so timing does not leak
	// which part was wrong.
	passErr := hash.Compare(s.cfg.AdminPasswordHash, req.Password)
	if !userOK || passErr != nil {
		return nil, ErrInvalidCredentials
	}

	accessToken, err := jwt.GenerateToken(s.cfg.AdminUsername, s.cfg.Expiration, s.cfg.Secret)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := jwt.GenerateRefreshToken(s.cfg.AdminUsername, s.cfg.RefreshTokenExpiration, s.cfg.Secret)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	return &domain.LoginResponse{
		User:         &domain.Principal{Username: s.cfg.AdminUsername},
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.cfg.Expiration.Seconds()),
	}, nil
}

func (s *AuthService) RefreshToken(req *domain.RefreshTokenRequest) (*domain.TokenResponse, error) {
	if err := validateStruct(s.validate, req); err != nil {
		return nil, err
	}

	claims, err := jwt.ValidateRefreshToken(req.RefreshToken, s.cfg.Secret)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	accessToken, err := jwt.GenerateToken(claims.Username, s.cfg.Expiration, s.cfg.Secret)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	return &domain.TokenResponse{
		AccessToken: accessToken,
		ExpiresIn:   int64(s.cfg.Expiration.Seconds()),
	}, nil
}

func (s *AuthService) ValidateToken(token string) (*jwt.Claims, error) {
	claims, err := jwt.ValidateToken(token, s.cfg.Secret)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	return claims, nil
}
