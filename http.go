package identity

import (
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/researchllm/identity/middleware/jwtware"
)

// RouteAuthenticator wires the JWT middleware in front of protected routes
type RouteAuthenticator struct {
	auth             Authenticator
	cfg              Config
	Logger           Logger
	AuthErrorHandler func(c router.Context, err error) error
}

// TokenServicer is implemented by authenticators that expose their token
// service, so the middleware validates with the exact same codec that issued
// the token.
type TokenServicer interface {
	TokenService() TokenService
}

func NewHTTPAuthenticator(auther Authenticator, cfg Config) (*RouteAuthenticator, error) {
	a := &RouteAuthenticator{
		cfg:    cfg,
		auth:   auther,
		Logger: defLogger{},
	}

	a.AuthErrorHandler = a.MakeAPIAuthErrorHandler()

	return a, nil
}

// ProtectedRoute returns the middleware that guards bearer-only endpoints
func (a *RouteAuthenticator) ProtectedRoute(cfg Config, errorHandler func(router.Context, error) error) router.MiddlewareFunc {
	return jwtware.New(jwtware.Config{
		ErrorHandler:   errorHandler,
		TokenValidator: a.tokenValidator(cfg),
		SigningKey: jwtware.SigningKey{
			Key:    []byte(cfg.GetSigningKey()),
			JWTAlg: cfg.GetSigningMethod(),
		},
		AuthScheme:  cfg.GetAuthScheme(),
		ContextKey:  cfg.GetContextKey(),
		TokenLookup: cfg.GetTokenLookup(),
	})
}

// MakeAPIAuthErrorHandler collapses every token failure into the same 401
// body. Expired, malformed, and absent tokens are indistinguishable from the
// outside.
func (a *RouteAuthenticator) MakeAPIAuthErrorHandler() func(router.Context, error) error {
	return func(ctx router.Context, err error) error {
		var richErr *errors.Error

		if IsTokenExpiredError(err) {
			richErr = ErrTokenExpired
		} else if IsMalformedError(err) {
			richErr = ErrTokenMalformed
		} else {
			richErr = errors.Wrap(err, errors.CategoryAuth, "invalid authentication token").
				WithCode(errors.CodeUnauthorized)
		}

		a.Logger.Info("rejected request token: %s (%s)", richErr.Message, richErr.TextCode)

		return ctx.JSON(router.StatusUnauthorized, map[string]any{
			"error": "Unauthorized",
		})
	}
}

func (a *RouteAuthenticator) tokenValidator(cfg Config) jwtware.TokenValidator {
	if ts, ok := a.auth.(TokenServicer); ok {
		return tokenValidatorAdapter{service: ts.TokenService()}
	}

	return tokenValidatorAdapter{
		service: NewTokenService(
			[]byte(cfg.GetSigningKey()),
			cfg.GetTokenExpiration(),
			cfg.GetIssuer(),
			cfg.GetAudience(),
			a.Logger,
		),
	}
}

type tokenValidatorAdapter struct {
	service TokenService
}

func (t tokenValidatorAdapter) Validate(raw string) (jwtware.AuthClaims, error) {
	claims, err := t.service.Validate(raw)
	if err != nil {
		return nil, err
	}

	jc, ok := claims.(jwtware.AuthClaims)
	if !ok {
		return nil, ErrUnableToDecodeSession
	}

	return jc, nil
}
