package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/example/ticket-shotgun/internal/api/middleware"
	"github.com/example/ticket-shotgun/internal/profile"
)

// ProfileHandlers serves the caller's own profile.
type ProfileHandlers struct {
	profiles *profile.Service
	logger   *zap.Logger
}

func NewProfileHandlers(profiles *profile.Service, logger *zap.Logger) *ProfileHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileHandlers{profiles: profiles, logger: logger.With(zap.String("component", "api"))}
}

// MeResponse represents user data in responses
type MeResponse struct {
	ID       string            `json:"id"`
	Email    string            `json:"email"`
	Name     string            `json:"name"`
	UserType string            `json:"user_type"`
	Role     string            `json:"role"`
	Extra    map[string]string `json:"extra,omitempty"`
}

// Me returns the merged profile. Users without a stored profile get the
// fields their token carries.
func (h *ProfileHandlers) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFrom(r.Context())
	if !ok {
		respondJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	rec, err := h.profiles.Get(r.Context(), claims.UserID)
	switch {
	case errors.Is(err, profile.ErrProfileNotFound):
		rec = profile.Record{Local: profile.Local{UserID: claims.UserID, Email: claims.Email, UserType: claims.UserType}}
	case err != nil:
		writeError(w, h.logger, err)
		return
	}

	userType := rec.UserType()
	if userType == "" {
		userType = claims.UserType
	}
	email := rec.Email()
	if email == "" {
		email = claims.Email
	}
	respondJSON(w, http.StatusOK, MeResponse{
		ID:       claims.UserID,
		Email:    email,
		Name:     rec.DisplayName(),
		UserType: userType,
		Role:     claims.Role,
		Extra:    rec.Enriched,
	})
}
