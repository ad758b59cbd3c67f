// Package auth verifies staff sessions against the hosted storefront auth
// backend. This service never issues sessions itself; it forwards the
// caller's bearer token and trusts the backend's verdict, with a small
// positive cache to keep per-request latency down.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/misor-digital/fitflow-campaigns/internal/pkg/httpretry"
	"github.com/misor-digital/fitflow-campaigns/internal/pkg/logger"
)

var (
	// ErrUnauthenticated is returned for missing or rejected tokens.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden is returned when the session lacks a required role.
	ErrForbidden = errors.New("forbidden")
)

// Session is a verified staff session.
type Session struct {
	UserID string   `json:"user_id"`
	Email  string   `json:"email"`
	Roles  []string `json:"roles"`
}

// HasRole reports whether the session carries any of the given roles.
func (s *Session) HasRole(roles ...string) bool {
	for _, want := range roles {
		for _, have := range s.Roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// Verifier checks a bearer token and returns the session behind it.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Session, error)
}

// HostedVerifier verifies tokens by calling the auth backend's user
// endpoint. Valid sessions are cached briefly keyed by token.
type HostedVerifier struct {
	baseURL string
	apiKey  string
	client  httpretry.HTTPDoer

	mu    sync.Mutex
	cache map[string]cachedSession
	ttl   time.Duration
}

type cachedSession struct {
	session *Session
	expires time.Time
}

// NewHostedVerifier creates a verifier for the given auth backend.
func NewHostedVerifier(baseURL, apiKey string) *HostedVerifier {
	return &HostedVerifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  httpretry.NewRetryClient(nil, 2),
		cache:   make(map[string]cachedSession),
		ttl:     time.Minute,
	}
}

// NewHostedVerifierWithClient wires a custom HTTP client. Used by tests.
func NewHostedVerifierWithClient(baseURL, apiKey string, client httpretry.HTTPDoer) *HostedVerifier {
	v := NewHostedVerifier(baseURL, apiKey)
	v.client = client
	return v
}

// Verify checks the token against the auth backend.
func (v *HostedVerifier) Verify(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}

	v.mu.Lock()
	if c, ok := v.cache[token]; ok && time.Now().Before(c.expires) {
		v.mu.Unlock()
		return c.session, nil
	}
	v.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, fmt.Errorf("build auth request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if v.apiKey != "" {
		req.Header.Set("X-API-Key", v.apiKey)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth backend unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, ErrUnauthenticated
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("auth backend returned %d: %s", resp.StatusCode, string(body))
	}

	var session Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("decode auth response: %w", err)
	}

	v.mu.Lock()
	v.cache[token] = cachedSession{session: &session, expires: time.Now().Add(v.ttl)}
	v.mu.Unlock()
	return &session, nil
}

// DevVerifier accepts every request as an admin. Only wired when dev mode
// is explicitly enabled.
type DevVerifier struct{}

func (DevVerifier) Verify(_ context.Context, _ string) (*Session, error) {
	return &Session{UserID: "dev", Email: "dev@localhost", Roles: []string{"admin"}}, nil
}

type contextKey struct{}

// FromContext returns the session stored by the middleware.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(contextKey{}).(*Session)
	return s
}

// Middleware returns a chi-compatible middleware that verifies the bearer
// token and requires one of the given roles.
func Middleware(verifier Verifier, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			session, err := verifier.Verify(r.Context(), token)
			if err != nil {
				if !errors.Is(err, ErrUnauthenticated) {
					logger.Error("session verification failed", "error", err.Error())
					writeAuthError(w, http.StatusBadGateway, "auth backend unavailable")
					return
				}
				writeAuthError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if len(roles) > 0 && !session.HasRole(roles...) {
				writeAuthError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, session)))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

func writeAuthError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
