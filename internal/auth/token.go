package auth

import (
	"net/http"
	"strings"
)

const bearerPrefix = "Bearer "

// BearerHeader formats token for the Authorization header. An empty token
// yields an empty header value.
func BearerHeader(token string) string {
	if token == "" {
		return ""
	}
	return bearerPrefix + token
}

// SetBearer writes the Authorization header when a token is present.
func SetBearer(h http.Header, token string) {
	if v := BearerHeader(token); v != "" {
		h.Set("Authorization", v)
	}
}

// ExtractAccessToken returns the bearer token of r, or "" when absent.
func ExtractAccessToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, bearerPrefix) {
		return strings.TrimPrefix(authHeader, bearerPrefix)
	}

	return ""
}
