// Package auth guards the operator dashboard with a master password and JWTs.
package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/ketowell/waitlist-manager/internal/auth/jwt"
	gerr "github.com/ketowell/waitlist-manager/internal/errors"
	"golang.org/x/crypto/bcrypt"
)

// Config contains the configuration for admin authentication.
type Config struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	// MasterPassword is either the password itself or its bcrypt hash.
	MasterPassword string `mapstructure:"master_password"`
	JWTTTL         string `mapstructure:"jwt_ttl"`
}

type Auth struct {
	JwtAuth    *jwtauth.JWTAuth
	masterHash []byte
	ttl        time.Duration
}

func New(c *Config) (*Auth, error) {
	if c.JWTSecret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	if c.MasterPassword == "" {
		return nil, fmt.Errorf("master password is required")
	}

	hash := []byte(c.MasterPassword)
	if _, err := bcrypt.Cost(hash); err != nil {
		hash, err = bcrypt.GenerateFromPassword([]byte(c.MasterPassword), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("can't hash master password: %w", err)
		}
	}

	ttl, err := time.ParseDuration(c.JWTTTL)
	if err != nil {
		return nil, fmt.Errorf("invalid jwt ttl %q: %w", c.JWTTTL, err)
	}

	return &Auth{
		JwtAuth:    jwtauth.New("HS256", []byte(c.JWTSecret), nil),
		masterHash: hash,
		ttl:        ttl,
	}, nil
}

// Login exchanges the master password for an admin token.
func (a *Auth) Login(password string) (string, error) {
	if err := bcrypt.CompareHashAndPassword(a.masterHash, []byte(password)); err != nil {
		return "", gerr.ErrNotAuthenticated
	}
	return jwt.NewToken(a.JwtAuth, a.ttl)
}

// WithAuth rejects requests without a valid admin bearer token.
func (a *Auth) WithAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(r.Header.Get("Authorization"))
		if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
			token = token[7:]
		}
		sub, err := jwt.VerifyToken(a.JwtAuth, token)
		if err != nil || sub != jwt.AdminSubject {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
