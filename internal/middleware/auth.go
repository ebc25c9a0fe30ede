package middleware

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

type Claims struct {
	Subject string `json:"sub_name"`
	jwt.RegisteredClaims
}

func secret() []byte {
	s := os.Getenv("FORMTRACK_JWT_SECRET")
	if s == "" {
		s = "formtrack-dev-secret"
	}
	return []byte(s)
}

// SignToken issues an HS256 session token for the operator console.
func SignToken(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{Subject: subject, RegisteredClaims: jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret())
}

func parseToken(tok string) (*Claims, error) {
	t, err := jwt.ParseWithClaims(tok, &Claims{}, func(token *jwt.Token) (interface{}, error) { return secret(), nil })
	if err != nil {
		return nil, err
	}
	if c, ok := t.Claims.(*Claims); ok && t.Valid {
		return c, nil
	}
	return nil, errors.New("invalid token")
}

// RequireOperator gates privileged routes. A request passes with either the
// shared X-API-KEY header (how the scorer authenticates) or a valid Bearer
// token from the admin login.
func RequireOperator(apiKey string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if k := r.Header.Get("X-API-KEY"); apiKey != "" && subtle.ConstantTimeCompare([]byte(k), []byte(apiKey)) == 1 {
			next(w, r)
			return
		}
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			tok := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
			if _, err := parseToken(tok); err == nil {
				next(w, r)
				return
			}
		}
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
	}
}
