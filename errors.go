package identity

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes surfaced to API clients alongside normalized HTTP statuses.
// Clients key off these rather than message strings.
const (
	TextCodeAuthFailed       = "AUTH_FAILED"
	TextCodeEmailNotVerified = "EMAIL_NOT_VERIFIED"
	TextCodeTokenExpired     = "TOKEN_EXPIRED"
	TextCodeTokenMalformed   = "TOKEN_MALFORMED"
	TextCodeTokenRevoked     = "TOKEN_REVOKED"
	TextCodeRecoveryInvalid  = "RECOVERY_TOKEN_INVALID"
	TextCodeVerifyInvalid    = "VERIFICATION_INVALID"
	TextCodeCooldownActive   = "COOLDOWN_ACTIVE"
	TextCodeTooManyAttempts  = "TOO_MANY_LOGIN_ATTEMPTS"
)

// ErrIdentityNotFound is the error we return for non found identities.
// It carries the same text code as a password mismatch so the two are not
// distinguishable from the outside.
var ErrIdentityNotFound = goerrors.New("identity not found", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeAuthFailed)

// ErrMismatchedHashAndPassword is returned when credentials do not match
var ErrMismatchedHashAndPassword = goerrors.New("invalid credentials", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeAuthFailed)

// ErrEmailNotVerified is the structured AuthFailed sub-variant for accounts
// that authenticated correctly but have not confirmed their e-mail. Clients
// route to the verification flow on this text code.
var ErrEmailNotVerified = goerrors.New("email address has not been verified", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeEmailNotVerified)

// ErrTooManyLoginAttempts is returned once the lockout threshold is reached
var ErrTooManyLoginAttempts = goerrors.New("too many login attempts", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeTooManyAttempts)

// ErrTokenExpired is returned for session tokens past their expiry
var ErrTokenExpired = goerrors.New("session token has expired", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeTokenExpired)

// ErrTokenMalformed is returned for tokens that fail structural or
// signature checks
var ErrTokenMalformed = goerrors.New("session token is malformed", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeTokenMalformed)

// ErrTokenRevoked is returned for sessions issued before the subject's
// current token version (i.e. before the last password reset)
var ErrTokenRevoked = goerrors.New("session token has been revoked", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeTokenRevoked)

// ErrRecoveryInvalid collapses every recovery-token failure (absent,
// consumed, replaced, expired) into one undifferentiated response
var ErrRecoveryInvalid = goerrors.New("invalid or expired recovery token", goerrors.CategoryValidation).
	WithCode(goerrors.CodeBadRequest).
	WithTextCode(TextCodeRecoveryInvalid)

// ErrVerificationInvalid collapses every verification-code failure into one
// undifferentiated response
var ErrVerificationInvalid = goerrors.New("invalid or expired verification code", goerrors.CategoryValidation).
	WithCode(goerrors.CodeBadRequest).
	WithTextCode(TextCodeVerifyInvalid)

// ErrCooldownActive is returned when a resend is requested before the
// cooldown window since the last send has elapsed
var ErrCooldownActive = goerrors.New("a verification message was sent recently", goerrors.CategoryConflict).
	WithCode(goerrors.CodeConflict).
	WithTextCode(TextCodeCooldownActive)

// ErrUnableToDecodeSession is returned when a parsed token yields no claims
var ErrUnableToDecodeSession = goerrors.New("unable to decode session claims", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeTokenMalformed)

// ErrNoEmptyString rejects empty passwords before hashing
var ErrNoEmptyString = goerrors.New("value must not be empty", goerrors.CategoryBadInput).
	WithCode(goerrors.CodeBadRequest)

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.TextCode == TextCodeTokenExpired {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for structurally broken tokens
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.TextCode == TextCodeTokenMalformed {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}

// IsCooldownError reports whether err is the resend-throttle rejection
func IsCooldownError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	return goerrors.As(err, &richErr) && richErr.TextCode == TextCodeCooldownActive
}
