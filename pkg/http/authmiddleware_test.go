package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

const (
	testKey      = "s3cret-key"
	testKeyName  = "ci"
	otherKey     = "other-key"
	otherKeyName = "analyst"
)

func hashed(t *testing.T, key string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hashing key: %v", err)
	}
	return string(h)
}

func testVerifier(t *testing.T) *KeyVerifier {
	t.Helper()
	return NewKeyVerifier([]APIKey{
		{Name: testKeyName, Hash: hashed(t, testKey)},
		{Name: otherKeyName, Hash: hashed(t, otherKey)},
	})
}

// gated wraps a handler that records the key name the verifier resolves for
// each admitted request.
func gated(t *testing.T) (http.Handler, *string) {
	t.Helper()
	var seen string
	v := testVerifier(t)
	h := v.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = v.Identify(r.Header)
		w.WriteHeader(http.StatusOK)
	}))
	return h, &seen
}

func TestKeyVerifier_Middleware(t *testing.T) {
	t.Run("accepts Bearer token", func(t *testing.T) {
		h, seen := gated(t)
		req := httptest.NewRequest(http.MethodPost, "/mcp", http.NoBody)
		req.Header.Set("Authorization", "Bearer "+testKey)
		rr := httptest.NewRecorder()

		h.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		if *seen != testKeyName {
			t.Errorf("expected key name %q, got %q", testKeyName, *seen)
		}
	})

	t.Run("accepts X-API-Key header", func(t *testing.T) {
		h, seen := gated(t)
		req := httptest.NewRequest(http.MethodPost, "/mcp", http.NoBody)
		req.Header.Set("X-API-Key", otherKey)
		rr := httptest.NewRecorder()

		h.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		if *seen != otherKeyName {
			t.Errorf("expected key name %q, got %q", otherKeyName, *seen)
		}
	})

	t.Run("prefers Bearer over X-API-Key", func(t *testing.T) {
		h, seen := gated(t)
		req := httptest.NewRequest(http.MethodPost, "/mcp", http.NoBody)
		req.Header.Set("Authorization", "Bearer "+otherKey)
		req.Header.Set("X-API-Key", testKey)
		rr := httptest.NewRecorder()

		h.ServeHTTP(rr, req)

		if *seen != otherKeyName {
			t.Errorf("expected Bearer token to take precedence, got %q", *seen)
		}
	})

	t.Run("rejects missing token", func(t *testing.T) {
		h, _ := gated(t)
		rr := httptest.NewRecorder()

		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/mcp", http.NoBody))

		if rr.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rr.Code)
		}
		if got := rr.Header().Get("WWW-Authenticate"); got != "Bearer" {
			t.Errorf("expected WWW-Authenticate Bearer, got %q", got)
		}
	})

	t.Run("rejects unknown key", func(t *testing.T) {
		h, _ := gated(t)
		req := httptest.NewRequest(http.MethodPost, "/mcp", http.NoBody)
		req.Header.Set("Authorization", "Bearer wrong")
		rr := httptest.NewRecorder()

		h.ServeHTTP(rr, req)

		if rr.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rr.Code)
		}
	})

	t.Run("repeated requests use remembered match", func(t *testing.T) {
		h, seen := gated(t)
		for range 3 {
			req := httptest.NewRequest(http.MethodPost, "/mcp", http.NoBody)
			req.Header.Set("X-API-Key", testKey)
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rr.Code)
			}
		}
		if *seen != testKeyName {
			t.Errorf("expected key name %q, got %q", testKeyName, *seen)
		}
	})
}

func TestKeyVerifier_NoKeysAdmitsAll(t *testing.T) {
	v := NewKeyVerifier(nil)
	if v.Enabled() {
		t.Error("Enabled() = true without keys")
	}
	called := false
	h := v.Middleware()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		called = true
		if name, ok := v.Identify(r.Header); ok || name != "" {
			t.Errorf("expected no key name, got %q", name)
		}
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/mcp", http.NoBody))

	if !called {
		t.Error("expected handler to be called")
	}
}

func TestHashKey(t *testing.T) {
	hash, err := HashKey(testKey)
	if err != nil {
		t.Fatalf("HashKey() error = %v", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(testKey)); err != nil {
		t.Errorf("hash does not verify: %v", err)
	}
}

func TestKeyVerifier_Identify(t *testing.T) {
	v := testVerifier(t)

	h := http.Header{}
	h.Set("X-API-Key", otherKey)
	if name, ok := v.Identify(h); !ok || name != otherKeyName {
		t.Errorf("Identify() = %q, %v, want %q", name, ok, otherKeyName)
	}

	h.Set("X-API-Key", "wrong")
	if name, ok := v.Identify(h); ok || name != "" {
		t.Errorf("Identify() = %q, %v for an unknown key", name, ok)
	}

	if _, ok := v.Identify(http.Header{}); ok {
		t.Error("Identify() matched without a token")
	}
}

func TestTokenFromHeader(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		want   string
	}{
		{name: "bearer", header: map[string]string{"Authorization": "Bearer abc"}, want: "abc"},
		{name: "basic is ignored", header: map[string]string{"Authorization": "Basic abc"}, want: ""},
		{name: "empty bearer falls back", header: map[string]string{"Authorization": "Bearer ", "X-API-Key": "k"}, want: "k"},
		{name: "none", header: nil, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			if got := tokenFromHeader(req.Header); got != tt.want {
				t.Errorf("tokenFromHeader() = %q, want %q", got, tt.want)
			}
		})
	}
}
