package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret-123"

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken("user-1", "pro", "", secret, time.Hour)
	require.NoError(t, err)

	claims, err := ValidateToken(token, secret)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "pro", claims.Plan)
	assert.False(t, claims.IsAdmin())
}

func TestValidateToken_Rejects(t *testing.T) {
	expired, err := GenerateToken("user-1", "free", "", secret, -time.Minute)
	require.NoError(t, err)

	otherSecret, err := GenerateToken("user-1", "free", "", "another-secret", time.Hour)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: "user-1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noUser, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{Plan: "free"}).SignedString([]byte(secret))
	require.NoError(t, err)

	tests := map[string]string{
		"expired":      expired,
		"wrong_secret": otherSecret,
		"alg_none":     none,
		"no_user":      noUser,
		"garbage":      "not-a-token",
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ValidateToken(token, secret)
			assert.Error(t, err)
		})
	}
}

func TestGenerateToken_RequiresUser(t *testing.T) {
	_, err := GenerateToken("", "free", "", secret, time.Hour)
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	m := NewMiddleware(secret)
	userToken, err := GenerateToken("user-1", "free", "", secret, time.Hour)
	require.NoError(t, err)
	adminToken, err := GenerateToken("ops", "pro", RoleAdmin, secret, time.Hour)
	require.NoError(t, err)

	var seen *Claims
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name   string
		header string
		admin  bool
		want   int
	}{
		{"missing_header", "", false, http.StatusUnauthorized},
		{"wrong_scheme", "Basic abc", false, http.StatusUnauthorized},
		{"bad_token", "Bearer nope", false, http.StatusUnauthorized},
		{"valid_user", "Bearer " + userToken, false, http.StatusNoContent},
		{"user_on_admin_route", "Bearer " + userToken, true, http.StatusForbidden},
		{"admin_on_admin_route", "Bearer " + adminToken, true, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			h := m.Authenticate(inner)
			if tt.admin {
				h = m.Authenticate(m.RequireAdmin(inner))
			}

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusNoContent {
				require.NotNil(t, seen)
				assert.NotEmpty(t, seen.UserID)
			}
		})
	}
}
