package jwtware

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

type noopValidator struct{}

func (noopValidator) Validate(string) (AuthClaims, error) { return nil, nil }

func TestKeyfuncOptionsRefreshErrorHandlerIsSafe(t *testing.T) {
	opts := keyfuncOptions(nil)
	require.NotNil(t, opts.RefreshErrorHandler)
	require.NotPanics(t, func() {
		opts.RefreshErrorHandler(errors.New("refresh failed"))
	})

	require.Equal(t, time.Hour, opts.RefreshInterval)
	require.Equal(t, 5*time.Minute, opts.RefreshRateLimit)
	require.Equal(t, 10*time.Second, opts.RefreshTimeout)
	require.True(t, opts.RefreshUnknownKID)
}

func TestSigningKeyFunc(t *testing.T) {
	secret := []byte("test-secret")

	t.Run("matching algorithm returns the key", func(t *testing.T) {
		fn := signingKeyFunc(SigningKey{JWTAlg: "HS256", Key: secret})

		token := &jwt.Token{Header: map[string]any{"alg": "HS256"}}
		key, err := fn(token)

		require.NoError(t, err)
		require.Equal(t, secret, key)
	})

	t.Run("algorithm mismatch is rejected", func(t *testing.T) {
		fn := signingKeyFunc(SigningKey{JWTAlg: "HS256", Key: secret})

		token := &jwt.Token{Header: map[string]any{"alg": "RS256"}}
		_, err := fn(token)

		require.Error(t, err)
		require.Contains(t, err.Error(), "unexpected jwt signing method")
	})

	t.Run("missing algorithm header is rejected", func(t *testing.T) {
		fn := signingKeyFunc(SigningKey{JWTAlg: "HS256", Key: secret})

		token := &jwt.Token{Header: map[string]any{}}
		_, err := fn(token)

		require.Error(t, err)
	})

	t.Run("no pinned algorithm accepts any", func(t *testing.T) {
		fn := signingKeyFunc(SigningKey{Key: secret})

		token := &jwt.Token{Header: map[string]any{"alg": "RS256"}}
		key, err := fn(token)

		require.NoError(t, err)
		require.Equal(t, secret, key)
	})
}

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig(Config{
		SigningKey:     SigningKey{Key: []byte("test-secret")},
		TokenValidator: noopValidator{},
	})

	require.Equal(t, "user", cfg.ContextKey)
	require.Equal(t, "Bearer", cfg.AuthScheme)
	require.Equal(t, defaultTokenLookup, cfg.TokenLookup)
	require.NotNil(t, cfg.SuccessHandler)
	require.NotNil(t, cfg.ErrorHandler)
	require.NotNil(t, cfg.KeyFunc)
}

func TestGetDefaultConfigKeyMaterialFallback(t *testing.T) {
	cfg := GetDefaultConfig(Config{
		SigningKey: SigningKey{JWTAlg: "HS256", Key: []byte("test-secret")},
	})

	require.NotNil(t, cfg.TokenValidator)

	_, ok := cfg.TokenValidator.(*keyfuncValidator)
	require.True(t, ok, "expected the key material fallback validator")
}

func TestGetDefaultConfigRequiresValidatorOrKeys(t *testing.T) {
	require.Panics(t, func() {
		GetDefaultConfig(Config{})
	})
}
