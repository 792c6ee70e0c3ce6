package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const secret = "test-secret"

func sign(t *testing.T, key string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return token
}

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := UserIDFromContext(r.Context())
		_, _ = w.Write([]byte(id))
	})
}

func TestAuthMiddleware(t *testing.T) {
	handler := AuthMiddleware(secret)(echoUser())

	cases := []struct {
		name   string
		req    func() *http.Request
		status int
		user   string
	}{
		{
			name: "bearer header",
			req: func() *http.Request {
				r := httptest.NewRequest(http.MethodGet, "/api/quotes", nil)
				r.Header.Set("Authorization", "Bearer "+sign(t, secret, jwt.MapClaims{"user_id": "inst-1"}))
				return r
			},
			status: http.StatusOK,
			user:   "inst-1",
		},
		{
			name: "query token with numeric sub",
			req: func() *http.Request {
				return httptest.NewRequest(http.MethodGet, "/api/alerts/ws?token="+sign(t, secret, jwt.MapClaims{"sub": float64(42)}), nil)
			},
			status: http.StatusOK,
			user:   "42",
		},
		{
			name: "missing token",
			req: func() *http.Request {
				return httptest.NewRequest(http.MethodGet, "/api/quotes", nil)
			},
			status: http.StatusUnauthorized,
		},
		{
			name: "wrong scheme",
			req: func() *http.Request {
				r := httptest.NewRequest(http.MethodGet, "/api/quotes", nil)
				r.Header.Set("Authorization", "Basic abc")
				return r
			},
			status: http.StatusUnauthorized,
		},
		{
			name: "wrong secret",
			req: func() *http.Request {
				r := httptest.NewRequest(http.MethodGet, "/api/quotes", nil)
				r.Header.Set("Authorization", "Bearer "+sign(t, "other", jwt.MapClaims{"user_id": "inst-1"}))
				return r
			},
			status: http.StatusUnauthorized,
		},
		{
			name: "no user claim",
			req: func() *http.Request {
				r := httptest.NewRequest(http.MethodGet, "/api/quotes", nil)
				r.Header.Set("Authorization", "Bearer "+sign(t, secret, jwt.MapClaims{"role": "student"}))
				return r
			},
			status: http.StatusUnauthorized,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, tc.req())
			assert.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, tc.user, rec.Body.String())
			}
		})
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	logger := zaptest.NewLogger(t)
	handler := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), RecoveryMiddleware(logger), LoggingMiddleware(logger))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestInternalAuthMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	cases := []struct {
		name       string
		configured string
		header     string
		status     int
	}{
		{"matching token", "internal", "internal", http.StatusNoContent},
		{"missing header", "internal", "", http.StatusUnauthorized},
		{"wrong token", "internal", "guess", http.StatusUnauthorized},
		{"routes disabled", "", "", http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/internal/notifications", nil)
			if tc.header != "" {
				r.Header.Set(InternalTokenHeader, tc.header)
			}
			rec := httptest.NewRecorder()
			InternalAuthMiddleware(tc.configured)(ok).ServeHTTP(rec, r)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}
