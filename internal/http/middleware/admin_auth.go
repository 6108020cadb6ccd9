package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type adminCtxKey struct{}

var errNoBearer = errors.New("missing bearer token")

// AdminClaims identifies the clinic operator behind an admin request.
type AdminClaims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Actor is the operator name, else the token subject.
func (c AdminClaims) Actor() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Subject
}

// AdminJWT admits requests carrying an unexpired HS256 token with a subject.
// An empty secret rejects everything.
func AdminJWT(secret string) func(http.Handler) http.Handler {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30*time.Second),
	)
	key := func(*jwt.Token) (any, error) { return []byte(secret), nil }

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := adminClaims(parser, key, secret, r)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), adminCtxKey{}, claims)))
		})
	}
}

func adminClaims(parser *jwt.Parser, key jwt.Keyfunc, secret string, r *http.Request) (AdminClaims, error) {
	var claims AdminClaims
	if secret == "" {
		return claims, errors.New("admin auth disabled")
	}
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return claims, errNoBearer
	}
	if _, err := parser.ParseWithClaims(strings.TrimSpace(raw), &claims, key); err != nil {
		return claims, err
	}
	if claims.Subject == "" {
		return claims, jwt.ErrTokenInvalidSubject
	}
	return claims, nil
}

// AdminFromContext returns the claims AdminJWT stored on the request.
func AdminFromContext(ctx context.Context) (AdminClaims, bool) {
	claims, ok := ctx.Value(adminCtxKey{}).(AdminClaims)
	return claims, ok
}
