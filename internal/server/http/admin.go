package httpserver

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/riskguard/internal/errs"
)

// RoleAdmin is the role claim required on admin routes.
const RoleAdmin = "admin"

const jwtLeeway = 30 * time.Second

// AdminClaims is the token body accepted on admin routes.
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// verifyAdmin parses an HS256 token and requires the admin role.
// It returns errs.ErrUnauthorized or errs.ErrForbidden.
func verifyAdmin(token string, key []byte) (*AdminClaims, error) {
	var claims AdminClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(jwtLeeway),
	)
	if err != nil || !parsed.Valid {
		return nil, errs.ErrUnauthorized
	}
	if claims.Role != RoleAdmin {
		return nil, errs.ErrForbidden
	}
	return &claims, nil
}

func bearerToken(r *http.Request) (string, error) {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) >= 7 && strings.EqualFold(v[:7], "bearer ") {
		if t := strings.TrimSpace(v[7:]); t != "" {
			return t, nil
		}
	}
	return "", errors.New("no bearer token")
}

// adminOnly guards a route group. An empty key disables the group.
func adminOnly(key []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(key) == 0 {
				writeError(r.Context(), w, newError("admin_disabled", "admin routes are not configured", http.StatusServiceUnavailable))
				return
			}
			tok, err := bearerToken(r)
			if err != nil {
				writeDomainError(r.Context(), w, errs.ErrUnauthorized)
				return
			}
			if _, err := verifyAdmin(tok, key); err != nil {
				writeDomainError(r.Context(), w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
