// parley/middlewares/auth.go
package middlewares

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"parley/parley/utils/errs"
	httputils "parley/parley/utils/http"
	"parley/parley/utils/logging"
	"parley/parley/utils/tokens"
)

type contextKey string

const (
	UserIDKey contextKey = "user_id"
	ClaimsKey contextKey = "claims"
)

// RevocationChecker reports whether a token id was signed out.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// AuthMiddleware rejects requests without a valid, unrevoked session token.
func AuthMiddleware(issuer *tokens.Issuer, revoked RevocationChecker) func(http.Handler) http.Handler {
	return authenticate(issuer, revoked, true)
}

// OptionalAuthMiddleware lets anonymous requests through, but a token that
// is present must be valid.
func OptionalAuthMiddleware(issuer *tokens.Issuer, revoked RevocationChecker) func(http.Handler) http.Handler {
	return authenticate(issuer, revoked, false)
}

func authenticate(issuer *tokens.Issuer, revoked RevocationChecker, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, err := bearerToken(r)
			if err != nil {
				httputils.WriteError(w, errs.Auth("authorization header", err))
				return
			}
			if tokenStr == "" {
				if required {
					httputils.WriteError(w, errs.Auth("authorization header", errors.New("missing token")))
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			claims, err := issuer.Parse(tokenStr)
			if err != nil {
				httputils.WriteError(w, errs.Auth("parse token", err))
				return
			}
			isRevoked, err := revoked.IsRevoked(r.Context(), claims.ID)
			if err != nil {
				logging.ErrorLogger.Error("revocation lookup failed", zap.Error(err))
				httputils.WriteError(w, errs.Store("revocation lookup", err))
				return
			}
			if isRevoked {
				httputils.WriteError(w, errs.Auth("parse token", errors.New("token has been revoked")))
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, claims.Subject)
			ctx = context.WithValue(ctx, ClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken reads the Authorization header, falling back to the token
// query parameter for browser websocket clients that cannot set headers.
func bearerToken(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return r.URL.Query().Get("token"), nil
	}
	parts := strings.Split(auth, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", errors.New("malformed authorization header")
	}
	return parts[1], nil
}

// UserID is the authenticated user, or "" for anonymous requests.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(UserIDKey).(string)
	return id
}

func Claims(ctx context.Context) *tokens.Claims {
	c, _ := ctx.Value(ClaimsKey).(*tokens.Claims)
	return c
}
