// Package auth verifies bearer tokens on analyzer requests.
package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mager/cochlea/apperr"
	"github.com/mager/cochlea/config"
)

// Verifier checks HS256 bearer tokens.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// ProvideVerifier provides the token verifier.
func ProvideVerifier(cfg config.Config) *Verifier {
	return NewVerifier(cfg.JWTSecret)
}

var Options = ProvideVerifier

// Identity returns the subject of the request's bearer token.
func (v *Verifier) Identity(r *http.Request) (string, error) {
	token, ok := bearer(r)
	if !ok {
		return "", apperr.New(apperr.Auth, "auth", "missing bearer token")
	}
	return v.Subject(token)
}

// Subject validates token and returns its sub claim.
func (v *Verifier) Subject(token string) (string, error) {
	if len(v.secret) == 0 {
		return "", apperr.New(apperr.Config, "auth", "jwt secret is not configured")
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", apperr.Wrap(apperr.Auth, "auth", err)
	}
	if claims.Subject == "" {
		return "", apperr.Wrap(apperr.Auth, "auth", errors.New("token has no subject"))
	}
	return claims.Subject, nil
}

// Sign issues an HS256 token for subject. Used by tests and the CLI.
func (v *Verifier) Sign(claims jwt.RegisteredClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

func bearer(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", false
	}
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
