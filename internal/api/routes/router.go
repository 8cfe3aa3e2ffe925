package routes

import (
	"net/http"

	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/api/handlers"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/api/middleware"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/domain/providers"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/infrastructure/observability"
)

// Router holds all route handlers
type Router struct {
	mux *http.ServeMux

	dashboardHandler *handlers.DashboardHandler
	statusHandler    *handlers.StatusHandler
	sseHandler       *handlers.SSEHandler
	authHandler      *handlers.AuthHandler

	authenticator  providers.Authenticator
	allowedOrigins []string
	metrics        *observability.Metrics
}

// NewRouter creates a new router. authHandler is nil unless the
// development session shim is active.
func NewRouter(
	dashboardHandler *handlers.DashboardHandler,
	statusHandler *handlers.StatusHandler,
	sseHandler *handlers.SSEHandler,
	authHandler *handlers.AuthHandler,
	authenticator providers.Authenticator,
	allowedOrigins []string,
	metrics *observability.Metrics,
) *Router {
	return &Router{
		mux:              http.NewServeMux(),
		dashboardHandler: dashboardHandler,
		statusHandler:    statusHandler,
		sseHandler:       sseHandler,
		authHandler:      authHandler,
		authenticator:    authenticator,
		allowedOrigins:   allowedOrigins,
		metrics:          metrics,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes() http.Handler {
	authed := middleware.RequireAuth(r.authenticator)
	protect := func(h http.HandlerFunc) http.Handler { return authed(h) }

	r.mux.HandleFunc("GET /health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Prediction service status
	r.mux.Handle("GET /api/status", protect(r.statusHandler.GetStatus))

	// Batches
	r.mux.Handle("POST /api/batches", protect(r.dashboardHandler.StartBatch))
	r.mux.Handle("GET /api/batches/current", protect(r.dashboardHandler.CurrentBatch))
	r.mux.Handle("DELETE /api/batches/current", protect(r.dashboardHandler.CancelBatch))
	r.mux.Handle("GET /api/batches/history", protect(r.dashboardHandler.BatchHistory))

	if r.sseHandler != nil {
		r.mux.Handle("GET /api/stream/batches", protect(r.sseHandler.StreamBatchUpdates))
	}

	// Single predictions
	r.mux.Handle("POST /api/predictions", protect(r.dashboardHandler.SubmitPrediction))
	r.mux.Handle("POST /api/predictions/sample", protect(r.dashboardHandler.SubmitSample))

	// Results
	r.mux.Handle("GET /api/results", protect(r.dashboardHandler.ListResults))
	r.mux.Handle("GET /api/results/export", protect(r.dashboardHandler.ExportResults))
	r.mux.Handle("GET /api/results/{index}/chart", protect(r.dashboardHandler.GetChart))

	// Development sign-in
	if r.authHandler != nil {
		r.mux.HandleFunc("POST /api/auth/signin", r.authHandler.SignIn)
		r.mux.HandleFunc("POST /api/auth/signup", r.authHandler.SignUp)
		r.mux.HandleFunc("POST /api/auth/signout", r.authHandler.SignOut)
		r.mux.Handle("GET /api/auth/session", protect(r.authHandler.Session))
	}

	// Apply middleware in reverse order (last middleware wraps first)
	var handler http.Handler = r.mux
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.ObservabilityMiddleware(r.metrics)(handler)
	handler = middleware.CORSMiddleware(r.allowedOrigins)(handler)

	return handler
}
