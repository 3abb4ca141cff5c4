// Package http provides HTTP middleware for the MCP Dremio server.
package http

import (
	"crypto/sha256"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// APIKey is a named client credential. Only the bcrypt hash of the key is
// configured; the plain key is never stored.
type APIKey struct {
	Name string `yaml:"name"`
	Hash string `yaml:"hash"`
}

// HashKey returns the bcrypt hash of a plain API key for use in configuration.
func HashKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// tokenFromHeader reads a Bearer token, falling back to the X-API-Key header.
func tokenFromHeader(h http.Header) string {
	authHeader := h.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		if token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer ")); token != "" {
			return token
		}
	}
	return strings.TrimSpace(h.Get("X-API-Key"))
}

// KeyVerifier matches presented tokens against bcrypt hashes. Successful
// matches are remembered by token digest so bcrypt runs once per key.
// It is safe for concurrent use.
type KeyVerifier struct {
	keys     []APIKey
	verified sync.Map // [32]byte -> key name
}

// NewKeyVerifier creates a verifier for keys. With no keys every request is
// admitted anonymously.
func NewKeyVerifier(keys []APIKey) *KeyVerifier {
	return &KeyVerifier{keys: keys}
}

// Enabled reports whether any key is configured.
func (v *KeyVerifier) Enabled() bool {
	return len(v.keys) > 0
}

// Identify returns the name of the key carried by h.
func (v *KeyVerifier) Identify(h http.Header) (string, bool) {
	token := tokenFromHeader(h)
	if token == "" {
		return "", false
	}
	return v.verify(token)
}

func (v *KeyVerifier) verify(token string) (string, bool) {
	digest := sha256.Sum256([]byte(token))
	if name, ok := v.verified.Load(digest); ok {
		return name.(string), true
	}
	for _, k := range v.keys {
		if bcrypt.CompareHashAndPassword([]byte(k.Hash), []byte(token)) == nil {
			v.verified.Store(digest, k.Name)
			return k.Name, true
		}
	}
	return "", false
}

// Middleware admits only requests carrying one of the configured keys as a
// Bearer token or X-API-Key header. With no keys configured every request is
// admitted.
func (v *KeyVerifier) Middleware() func(http.Handler) http.Handler {
	if !v.Enabled() {
		return func(next http.Handler) http.Handler { return next }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := tokenFromHeader(r.Header)
			if token == "" {
				w.Header().Set("WWW-Authenticate", "Bearer")
				http.Error(w, "Unauthorized: missing authentication token", http.StatusUnauthorized)
				return
			}

			if _, ok := v.verify(token); !ok {
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				http.Error(w, "Unauthorized: invalid API key", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
