package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Middleware verifies the bearer token on every request and injects its
// claims into the request context. It does not itself check appid scope or
// role — a handler-level concern, since only the handler knows which appid
// and which operation a request targets (grounded on the shape of the
// teacher's AuthInterceptor, adapted from a Connect-RPC interceptor to
// plain net/http since this corpus carries no protobuf codegen for a
// generated RPC service).
func Middleware(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeUnauthenticated(w, errors.New("missing authorization header"))
				return
			}
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				writeUnauthenticated(w, errors.New("authorization header must use Bearer scheme"))
				return
			}
			claims, err := tokens.Verify(token)
			if err != nil {
				writeUnauthenticated(w, fmt.Errorf("invalid token: %w", err))
				return
			}
			ctx := WithClaims(r.Context(), claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NoAuthMiddleware bypasses authentication entirely, injecting a synthetic
// admin principal scoped to every appid. Mirrors the teacher's
// NoAuthInterceptor, for local development and tests.
func NoAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := &Claims{
			Role: RoleAdmin,
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   noAuthSubject,
				ExpiresAt: jwt.NewNumericDate(time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)),
			},
		}
		ctx := WithClaims(r.Context(), claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// noAuthSubject is a wildcard appid: Authorize treats it as matching any
// appid a request targets, same as the teacher's NoAuthInterceptor treating
// every procedure as admin-accessible.
const noAuthSubject = "*"

func writeUnauthenticated(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), http.StatusUnauthorized)
}

// Authorize checks that ctx carries claims scoped to appid with at least
// the required role, returning a descriptive error otherwise. Handlers call
// this once they know which appid and operation a request targets — the
// piece NoAuthInterceptor/AuthInterceptor folded into a fixed procedure
// table, which has no equivalent here since every sfp endpoint addresses a
// caller-supplied appid rather than a fixed RPC method name.
func Authorize(ctx context.Context, appid string, need Role) error {
	claims := ClaimsFromContext(ctx)
	if claims == nil {
		return errors.New("no principal in context")
	}
	if claims.AppID() != noAuthSubject && claims.AppID() != appid {
		return fmt.Errorf("token is not scoped to appid %q", appid)
	}
	switch need {
	case RoleWrite:
		if !claims.Role.CanWrite() {
			return fmt.Errorf("role %q may not write", claims.Role)
		}
	case RoleAdmin:
		if !claims.Role.CanAdmin() {
			return fmt.Errorf("role %q may not administer config", claims.Role)
		}
	}
	return nil
}
