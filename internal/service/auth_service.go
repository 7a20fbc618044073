package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"kasabot/internal/config"
	"kasabot/internal/dto"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var ErrBadLogin = errors.New("invalid credentials")

type AuthService interface {
	Login(ctx context.Context, req dto.LoginRequest) (*dto.LoginResponse, error)
}

// authService checks the single operator account configured through
// ADMIN_USERNAME / ADMIN_PASSWORD_HASH.
type authService struct {
	cfg *config.Config
	now func() time.Time
}

func NewAuthService(cfg *config.Config) AuthService {
	return &authService{cfg: cfg, now: time.Now}
}

func (s *authService) Login(_ context.Context, req dto.LoginRequest) (*dto.LoginResponse, error) {
	if subtle.ConstantTimeCompare([]byte(req.Username), []byte(s.cfg.AdminUsername)) != 1 {
		return nil, ErrBadLogin
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.cfg.AdminPasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrBadLogin
	}

	duration := time.Duration(s.cfg.JWTExpirationHours) * time.Hour
	token, err := s.generateToken(req.Username, duration)
	if err != nil {
		return nil, err
	}
	return &dto.LoginResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int(duration.Seconds()),
		Username:    req.Username,
	}, nil
}

func (s *authService) generateToken(username string, duration time.Duration) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"username": username,
		"rol":      "admin",
		"exp":      now.Add(duration).Unix(),
		"iat":      now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}
