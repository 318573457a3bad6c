// Package client holds the session guard an API client keeps between calls:
// it stores the bearer token, refuses to attach anything that is not shaped
// like a signed token, and purges itself when the server rejects a request.
package client

import (
	"net/http"
	"strings"
	"sync"

	"github.com/goliatone/go-errors"
)

// TextCodeNoValidToken is surfaced when the guard holds nothing usable
const TextCodeNoValidToken = "NO_VALID_TOKEN"

// ErrNoValidToken is returned when no structurally valid token is stored
var ErrNoValidToken = errors.New("no valid session token", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized).
	WithTextCode(TextCodeNoValidToken)

// Guard holds the bearer token for an authenticated API client. The zero
// value is usable. Safe for concurrent use.
type Guard struct {
	mu    sync.RWMutex
	token string
}

// NewGuard returns an empty Guard
func NewGuard() *Guard {
	return &Guard{}
}

// SetToken stores the bearer token obtained from a login response
func (g *Guard) SetToken(token string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.token = token
}

// Token returns the stored token, which may be empty
func (g *Guard) Token() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.token
}

// HasSession reports whether a structurally valid token is stored. It is a
// local shape check only; the token may still be expired or revoked, which
// the server decides.
func (g *Guard) HasSession() bool {
	return WellFormed(g.Token())
}

// Attach adds the Authorization header to an outgoing request. It fails
// without a network round-trip when the stored token is absent or not shaped
// like a compact signed token.
func (g *Guard) Attach(req *http.Request) error {
	token := g.Token()
	if !WellFormed(token) {
		return ErrNoValidToken
	}

	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// OnRejected purges the stored token. Call it when the server answers 401;
// the next Attach fails fast instead of replaying a dead token.
func (g *Guard) OnRejected() {
	g.SetToken("")
}

// WellFormed reports whether raw has the three dot-separated segments of a
// compact signed token. It deliberately does not decode anything.
func WellFormed(raw string) bool {
	if raw == "" {
		return false
	}

	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return false
	}

	for _, p := range parts {
		if p == "" {
			return false
		}
	}

	return true
}
