package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	gerr "github.com/ketowell/waitlist-manager/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newAuth(t *testing.T, password string) *Auth {
	t.Helper()
	a, err := New(&Config{
		JWTSecret:      "jwt-secret",
		MasterPassword: password,
		JWTTTL:         "1h",
	})
	require.NoError(t, err)
	return a
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(&Config{MasterPassword: "pw", JWTTTL: "1h"})
	assert.Error(t, err)
	_, err = New(&Config{JWTSecret: "s", JWTTTL: "1h"})
	assert.Error(t, err)
	_, err = New(&Config{JWTSecret: "s", MasterPassword: "pw", JWTTTL: "soon"})
	assert.Error(t, err)
}

func TestLogin(t *testing.T) {
	a := newAuth(t, "correct horse")

	tok, err := a.Login("correct horse")
	require.NoError(t, err)
	assert.NotEmpty(t, tok)

	_, err = a.Login("battery staple")
	assert.ErrorIs(t, err, gerr.ErrNotAuthenticated)
}

func TestLogin_BcryptHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	a := newAuth(t, string(hash))

	_, err = a.Login("s3cret")
	assert.NoError(t, err)
	_, err = a.Login(string(hash))
	assert.ErrorIs(t, err, gerr.ErrNotAuthenticated)
}

func TestWithAuth(t *testing.T) {
	a := newAuth(t, "pw")
	tok, err := a.Login("pw")
	require.NoError(t, err)

	h := a.WithAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer " + tok, http.StatusNoContent},
		{"lowercase scheme", "bearer " + tok, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
