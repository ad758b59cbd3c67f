package auth_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/misor-digital/fitflow-campaigns/internal/auth"
)

func authBackend(t *testing.T, validToken string, roles []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/user" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("Authorization") != "Bearer "+validToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(auth.Session{
			UserID: "u-1", Email: "staff@fitflow.example", Roles: roles,
		})
	}))
}

func TestVerifyValidToken(t *testing.T) {
	srv := authBackend(t, "tok-1", []string{"marketing"})
	defer srv.Close()

	v := auth.NewHostedVerifier(srv.URL, "key")
	session, err := v.Verify(t.Context(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "staff@fitflow.example", session.Email)
	assert.True(t, session.HasRole("marketing", "admin"))
	assert.False(t, session.HasRole("admin"))
}

func TestVerifyRejectsBadToken(t *testing.T) {
	srv := authBackend(t, "tok-1", nil)
	defer srv.Close()

	v := auth.NewHostedVerifier(srv.URL, "key")
	_, err := v.Verify(t.Context(), "wrong")
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)

	_, err = v.Verify(t.Context(), "")
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
}

func TestVerifyCachesSessions(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(auth.Session{UserID: "u-1", Roles: []string{"admin"}})
	}))
	defer srv.Close()

	v := auth.NewHostedVerifier(srv.URL, "")
	_, err := v.Verify(t.Context(), "tok-1")
	require.NoError(t, err)
	_, err = v.Verify(t.Context(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestMiddlewareRoleGate(t *testing.T) {
	srv := authBackend(t, "tok-1", []string{"support"})
	defer srv.Close()
	v := auth.NewHostedVerifier(srv.URL, "")

	handler := auth.Middleware(v, "admin", "marketing")(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	// Valid token but wrong role.
	req := httptest.NewRequest(http.MethodGet, "/api/campaigns", nil)
	req.Header.Set("Authorization", "Bearer tok-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// No token.
	req = httptest.NewRequest(http.MethodGet, "/api/campaigns", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewarePassesSession(t *testing.T) {
	srv := authBackend(t, "tok-1", []string{"admin"})
	defer srv.Close()
	v := auth.NewHostedVerifier(srv.URL, "")

	var got *auth.Session
	handler := auth.Middleware(v, "admin")(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = auth.FromContext(r.Context())
		}))

	req := httptest.NewRequest(http.MethodGet, "/api/campaigns", nil)
	req.Header.Set("Authorization", "Bearer tok-1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, got)
	assert.Equal(t, "u-1", got.UserID)
}

func TestDevVerifier(t *testing.T) {
	session, err := auth.DevVerifier{}.Verify(t.Context(), "")
	require.NoError(t, err)
	assert.True(t, session.HasRole("admin"))
}
