package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/ticket-shotgun/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "middleware-test-secret-0123456789"

var buyer = auth.Identity{UserID: "buyer-1", Email: "buyer@example.com", UserType: "student", Role: "buyer"}

func captureClaims(got **auth.Claims) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got, _ = ClaimsFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthenticate(t *testing.T) {
	jwtService := auth.NewJWTService(testSecret, 15*time.Minute)
	token, _, err := jwtService.GenerateAccessToken(buyer)
	require.NoError(t, err)

	forged, _, err := auth.NewJWTService("another-secret-0123456789abcdef!", 15*time.Minute).GenerateAccessToken(buyer)
	require.NoError(t, err)

	expired, _, err := auth.NewJWTService(testSecret, -time.Minute).GenerateAccessToken(buyer)
	require.NoError(t, err)

	tests := []struct {
		name     string
		prepare  func(r *http.Request)
		wantCode int
		wantBody string
	}{
		{
			name:     "bearer header",
			prepare:  func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) },
			wantCode: http.StatusOK,
		},
		{
			name:     "cookie",
			prepare:  func(r *http.Request) { r.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: token}) },
			wantCode: http.StatusOK,
		},
		{
			name: "cookie wins over header",
			prepare: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: token})
				r.Header.Set("Authorization", "Bearer "+forged)
			},
			wantCode: http.StatusOK,
		},
		{name: "no token", prepare: func(*http.Request) {}, wantCode: http.StatusUnauthorized, wantBody: "unauthorized"},
		{
			name:     "garbage",
			prepare:  func(r *http.Request) { r.Header.Set("Authorization", "Bearer not-a-jwt") },
			wantCode: http.StatusUnauthorized,
			wantBody: "invalid token",
		},
		{
			name:     "wrong signature",
			prepare:  func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+forged) },
			wantCode: http.StatusUnauthorized,
			wantBody: "invalid token",
		},
		{
			name:     "expired",
			prepare:  func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+expired) },
			wantCode: http.StatusUnauthorized,
			wantBody: "invalid token",
		},
		{
			name:     "scheme is case-insensitive",
			prepare:  func(r *http.Request) { r.Header.Set("Authorization", "bearer "+token) },
			wantCode: http.StatusOK,
		},
		{
			name: "empty cookie falls back to header",
			prepare: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: ""})
				r.Header.Set("Authorization", "Bearer "+token)
			},
			wantCode: http.StatusOK,
		},
		{
			name:     "bearer without token",
			prepare:  func(r *http.Request) { r.Header.Set("Authorization", "Bearer ") },
			wantCode: http.StatusUnauthorized,
			wantBody: "unauthorized",
		},
		{
			name:     "basic auth is ignored",
			prepare:  func(r *http.Request) { r.Header.Set("Authorization", "Basic Zm9vOmJhcg==") },
			wantCode: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			var got *auth.Claims
			req := httptest.NewRequest(http.MethodGet, "/orders", nil)
			tt.prepare(req)
			rec := httptest.NewRecorder()

			Authenticate(jwtService)(captureClaims(&got)).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode == http.StatusUnauthorized {
				assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
			}
			if tt.wantBody != "" {
				assert.Contains(t, rec.Body.String(), tt.wantBody)
			}
			if tt.wantCode == http.StatusOK {
				require.NotNil(t, got)
				assert.Equal(t, buyer, got.Identity())
			} else {
				assert.Nil(t, got)
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	tests := []struct {
		name   string
		claims *auth.Claims
		want   int
	}{
		{"admin", &auth.Claims{UserID: "u", Role: auth.RoleAdmin}, http.StatusOK},
		{"buyer", &auth.Claims{UserID: "u", Role: "buyer"}, http.StatusForbidden},
		{"no role", &auth.Claims{UserID: "u"}, http.StatusForbidden},
		{"anonymous", nil, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/users/u/orders", nil)
			if tt.claims != nil {
				req = req.WithContext(WithClaims(req.Context(), tt.claims))
			}
			rec := httptest.NewRecorder()
			var got *auth.Claims
			RequireAdmin(captureClaims(&got)).ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestCallbackSecret(t *testing.T) {
	hash, err := auth.HashCallbackSecret("0123456789abcdef-callback")
	require.NoError(t, err)
	mw := CallbackSecret(hash)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name   string
		secret string
		want   int
	}{
		{"matching secret", "0123456789abcdef-callback", http.StatusNoContent},
		{"wrong secret", "0123456789abcdef-nope", http.StatusUnauthorized},
		{"missing secret", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/payments/tx/callback", nil)
			if tt.secret != "" {
				req.Header.Set(CallbackSecretHeader, tt.secret)
			}
			rec := httptest.NewRecorder()
			mw(handler).ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestCallbackSecret_EmptyHashDisablesCheck(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	req := httptest.NewRequest(http.MethodPost, "/payments/tx/callback", nil)
	rec := httptest.NewRecorder()

	CallbackSecret("")(handler).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	_, ok := ClaimsFrom(ctx)
	assert.False(t, ok)
	assert.Empty(t, UserID(ctx))

	_, ok = ClaimsFrom(WithClaims(ctx, nil))
	assert.False(t, ok)

	ctx = WithClaims(ctx, &auth.Claims{UserID: "buyer-1"})
	claims, ok := ClaimsFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, "buyer-1", claims.UserID)
	assert.Equal(t, "buyer-1", UserID(ctx))
}
