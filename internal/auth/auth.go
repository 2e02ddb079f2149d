// Package auth defines the identity port for the checkout endpoint.
// Session management itself lives in the platform's auth service; the
// checkout core only needs to know who the caller is.
package auth

import (
	"net/http"

	"github.com/arinellipar/laossuicide-sub000/internal/apperr"
)

// Session identifies an authenticated caller.
type Session struct {
	UserID string
}

// Validator resolves the session for an incoming request.
type Validator interface {
	Validate(r *http.Request) (*Session, error)
}

// ProxyHeaderValidator trusts the user header stamped by the fronting auth
// proxy, which has already verified the session cookie. Requests reaching
// this service directly without the header are rejected.
type ProxyHeaderValidator struct {
	// Header is the name of the trusted header; defaults to
	// "X-Authenticated-User".
	Header string
}

func (v ProxyHeaderValidator) Validate(r *http.Request) (*Session, error) {
	header := v.Header
	if header == "" {
		header = "X-Authenticated-User"
	}
	userID := r.Header.Get(header)
	if userID == "" {
		return nil, apperr.Unauthorized()
	}
	return &Session{UserID: userID}, nil
}
