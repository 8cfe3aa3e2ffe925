package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/api/middleware"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/domain/entities"
)

// SessionService is the development sign-in flow.
type SessionService interface {
	SignIn(ctx context.Context, email, password string) (string, *entities.Principal, error)
	SignUp(ctx context.Context, email, password string) (string, *entities.Principal, error)
	SignOut(ctx context.Context, token string) error
}

// AuthHandler exposes sign-in, sign-up and sign-out in development mode
type AuthHandler struct {
	sessions SessionService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(sessions SessionService) *AuthHandler {
	return &AuthHandler{sessions: sessions}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token string              `json:"token"`
	User  *entities.Principal `json:"user"`
}

// SignIn handles POST /api/auth/signin
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var payload credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	token, user, err := h.sessions.SignIn(r.Context(), payload.Email, payload.Password)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, sessionResponse{Token: token, User: user})
}

// SignUp handles POST /api/auth/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var payload credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	token, user, err := h.sessions.SignUp(r.Context(), payload.Email, payload.Password)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, sessionResponse{Token: token, User: user})
}

// SignOut handles POST /api/auth/signout
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if token := middleware.BearerToken(r); token != "" {
		if err := h.sessions.SignOut(r.Context(), token); err != nil {
			respondWithAppError(w, r, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// Session handles GET /api/auth/session for an authenticated caller
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"user": middleware.PrincipalFromContext(r.Context()),
	})
}
