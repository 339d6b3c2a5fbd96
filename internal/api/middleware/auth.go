package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/example/ticket-shotgun/internal/auth"
)

const (
	// CallbackSecretHeader carries the shared secret of payment callbacks.
	CallbackSecretHeader = "X-Callback-Secret"
	// AccessTokenCookie is set by the login front and preferred over the
	// Authorization header.
	AccessTokenCookie = "access_token"
)

type claimsKey struct{}

func deny(w http.ResponseWriter, status int, reason string) {
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="ticket-shotgun"`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": reason})
}

func accessToken(r *http.Request) (string, bool) {
	if c, err := r.Cookie(AccessTokenCookie); err == nil && c.Value != "" {
		return c.Value, true
	}
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}
	return token, true
}

// Authenticate rejects requests without a valid access token and stores the
// buyer's claims in the request context.
func Authenticate(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := accessToken(r)
			if !ok {
				deny(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			claims, err := jwtService.ValidateAccessToken(token)
			if err != nil {
				deny(w, http.StatusUnauthorized, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// RequireAdmin guards the admin routes. It must run after Authenticate.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFrom(r.Context())
		switch {
		case !ok:
			deny(w, http.StatusUnauthorized, "unauthorized")
		case !claims.IsAdmin():
			deny(w, http.StatusForbidden, "admin only")
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// CallbackSecret admits requests whose X-Callback-Secret matches the bcrypt
// hash. An empty hash disables the check.
func CallbackSecret(hash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if hash == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !auth.CheckCallbackSecret(r.Header.Get(CallbackSecretHeader), hash) {
				deny(w, http.StatusUnauthorized, "invalid callback secret")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFrom returns the claims Authenticate stored, if any.
func ClaimsFrom(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*auth.Claims)
	return claims, ok && claims != nil
}

// UserID is the authenticated buyer, or "" outside Authenticate.
func UserID(ctx context.Context) string {
	if claims, ok := ClaimsFrom(ctx); ok {
		return claims.UserID
	}
	return ""
}
