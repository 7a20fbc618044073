package service

import (
	"context"
	"testing"

	"kasabot/internal/config"
	"kasabot/internal/dto"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func testAuthConfig(t *testing.T) *config.Config {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret-pass"), bcrypt.MinCost)
	require.NoError(t, err)
	return &config.Config{
		AdminUsername:      "operator",
		AdminPasswordHash:  string(hash),
		JWTSecret:          "jwt-secret",
		JWTExpirationHours: 2,
	}
}

func TestAuthService_Login(t *testing.T) {
	cfg := testAuthConfig(t)
	svc := NewAuthService(cfg)

	resp, err := svc.Login(context.Background(), dto.LoginRequest{Username: "operator", Password: "s3cret-pass"})
	require.NoError(t, err)
	assert.Equal(t, "bearer", resp.TokenType)
	assert.Equal(t, 7200, resp.ExpiresIn)

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(resp.AccessToken, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(cfg.JWTSecret), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "operator", claims["username"])
	assert.Equal(t, "admin", claims["rol"])
}

func TestAuthService_LoginRejected(t *testing.T) {
	svc := NewAuthService(testAuthConfig(t))

	_, err := svc.Login(context.Background(), dto.LoginRequest{Username: "operator", Password: "wrong-pass"})
	assert.ErrorIs(t, err, ErrBadLogin)

	_, err = svc.Login(context.Background(), dto.LoginRequest{Username: "someone", Password: "s3cret-pass"})
	assert.ErrorIs(t, err, ErrBadLogin)
}
