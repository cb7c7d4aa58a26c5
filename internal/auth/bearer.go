// Package auth extracts caller credentials from inbound requests. Tokens are
// checked for shape only; the Edison platform decides whether they are valid.
package auth

import (
	"errors"
	"net/http"
	"strings"
)

// HeaderName is the request header carrying the credential.
const HeaderName = "Authorization"

// Scheme is the only accepted authorization scheme. It doubles as the
// WWW-Authenticate challenge value.
const Scheme = "Bearer"

var (
	// ErrMissingHeader reports an absent or empty Authorization header.
	ErrMissingHeader = errors.New("Authorization header is required") //nolint:stylecheck // user-facing detail
	// ErrInvalidScheme reports a scheme other than Bearer.
	ErrInvalidScheme = errors.New("Invalid authentication scheme. Use 'Bearer <token>'") //nolint:stylecheck // user-facing detail
	// ErrEmptyToken reports a Bearer scheme with nothing after it.
	ErrEmptyToken = errors.New("Invalid authorization token") //nolint:stylecheck // user-facing detail
)

// IsAuthError reports whether err is one of the extraction failures.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrMissingHeader) ||
		errors.Is(err, ErrInvalidScheme) ||
		errors.Is(err, ErrEmptyToken)
}

// BearerToken parses an Authorization header value. The scheme is everything
// before the first space and is compared case-insensitively; the token is the
// remainder, returned unchanged.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingHeader
	}
	scheme, token, _ := strings.Cut(header, " ")
	if !strings.EqualFold(scheme, Scheme) {
		return "", ErrInvalidScheme
	}
	if token == "" {
		return "", ErrEmptyToken
	}
	return token, nil
}

// FromRequest extracts the bearer token from r.
func FromRequest(r *http.Request) (string, error) {
	return BearerToken(r.Header.Get(HeaderName))
}
