package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func protected(secret string) http.Handler {
	return RequireToken(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(Subject(r.Context())))
	}))
}

func callWith(h http.Handler, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRequireToken(t *testing.T) {
	valid, err := IssueToken("s3cret", "ops", time.Hour)
	require.NoError(t, err)
	expired, err := IssueToken("s3cret", "ops", -time.Minute)
	require.NoError(t, err)
	otherKey, err := IssueToken("other", "ops", time.Hour)
	require.NoError(t, err)
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "ops"}).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{
		Subject: "ops", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		secret string
		authz  string
		status int
	}{
		{"valid", "s3cret", "Bearer " + valid, http.StatusOK},
		{"missing", "s3cret", "", http.StatusUnauthorized},
		{"not bearer", "s3cret", "Basic abc", http.StatusUnauthorized},
		{"expired", "s3cret", "Bearer " + expired, http.StatusUnauthorized},
		{"wrong key", "s3cret", "Bearer " + otherKey, http.StatusUnauthorized},
		{"no expiry", "s3cret", "Bearer " + noExpiry, http.StatusUnauthorized},
		{"other algorithm", "s3cret", "Bearer " + hs512, http.StatusUnauthorized},
		{"auth not configured", "", "Bearer " + valid, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := callWith(protected(tt.secret), tt.authz)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, "ops", rec.Body.String())
			}
		})
	}
}

func TestIssueToken_NoSecret(t *testing.T) {
	_, err := IssueToken("", "ops", time.Hour)
	assert.ErrorIs(t, err, ErrAuthDisabled)
}
