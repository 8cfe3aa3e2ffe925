package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/domain/entities"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/domain/providers"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/Readmissionriskdashboard/backend/pkg/errors"
)

type principalKey struct{}

// WithPrincipal stores the authenticated user in ctx.
func WithPrincipal(ctx context.Context, p *entities.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the authenticated user, or nil.
func PrincipalFromContext(ctx context.Context) *entities.Principal {
	p, _ := ctx.Value(principalKey{}).(*entities.Principal)
	return p
}

// BearerToken extracts the token from the Authorization header. EventSource
// clients cannot set headers, so the access_token query parameter is
// accepted as well.
func BearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}

// RequireAuth resolves the bearer token to a Principal or answers 401.
func RequireAuth(authenticator providers.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				unauthorized(w, "missing bearer token")
				return
			}

			principal, err := authenticator.Resolve(r.Context(), token)
			if err != nil {
				observability.LoggerFromContext(r.Context()).Debug().Err(err).Msg("Rejected bearer token")
				unauthorized(w, apperrors.MessageOf(err))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
