package routes_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/adapters/auth"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/adapters/events"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/adapters/spreadsheet"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/api/handlers"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/api/routes"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/application/services"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/domain/entities"
	"github.com/zatekoja/Readmissionriskdashboard/backend/pkg/config"
	"github.com/zatekoja/Readmissionriskdashboard/backend/pkg/utils"
)

type lowRiskExplainer struct{}

func (lowRiskExplainer) Explain(ctx context.Context, record entities.PatientRecord) (*entities.Explanation, error) {
	return &entities.Explanation{RiskLabel: entities.RiskLabelLow, ReadmissionProbability: 0.1}, nil
}

type staticStatus entities.EndpointStatus

func (s staticStatus) Status() entities.EndpointStatus { return entities.EndpointStatus(s) }

func newHandler(t *testing.T, authenticator interface{}, origins []string) http.Handler {
	t.Helper()
	bus := events.NewMemoryEventBus()
	t.Cleanup(func() { _ = bus.Close() })

	batches := services.NewBatchService(
		spreadsheet.NewReader(),
		utils.NewRecordNormalizer(),
		lowRiskExplainer{},
		services.NewSampleService("", time.Second),
		bus,
		nil,
		nil,
	)

	var authHandler *handlers.AuthHandler
	var router *routes.Router
	switch a := authenticator.(type) {
	case *auth.DevSessionProvider:
		authHandler = handlers.NewAuthHandler(a)
		router = routes.NewRouter(
			handlers.NewDashboardHandler(batches, spreadsheet.NewExporter()),
			handlers.NewStatusHandler(staticStatus{Connected: true, Endpoint: "http://127.0.0.1:8000"}),
			handlers.NewSSEHandler(bus),
			authHandler,
			a,
			origins,
			nil,
		)
	case *auth.JWTAuthenticator:
		router = routes.NewRouter(
			handlers.NewDashboardHandler(batches, spreadsheet.NewExporter()),
			handlers.NewStatusHandler(staticStatus{}),
			handlers.NewSSEHandler(bus),
			nil,
			a,
			origins,
			nil,
		)
	default:
		t.Fatalf("unsupported authenticator %T", authenticator)
	}
	return router.SetupRoutes()
}

func serve(handler http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestRouter_HealthIsPublic(t *testing.T) {
	handler := newHandler(t, auth.NewDevSessionProvider(), nil)

	w := serve(handler, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestRouter_RequiresAuth(t *testing.T) {
	handler := newHandler(t, auth.NewDevSessionProvider(), nil)

	for _, path := range []string{"/api/status", "/api/results", "/api/batches/current", "/api/auth/session"} {
		w := serve(handler, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}

	w := serve(handler, http.MethodGet, "/api/results", "bogus", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))
}

func TestRouter_DevelopmentSessionFlow(t *testing.T) {
	sessions := auth.NewDevSessionProvider()
	handler := newHandler(t, sessions, nil)

	w := serve(handler, http.MethodPost, "/api/auth/signin", "", `{"email":"demo@example.com","password":"demo123"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var session struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&session))

	w = serve(handler, http.MethodGet, "/api/status", session.Token, "")
	require.Equal(t, http.StatusOK, w.Code)
	var status entities.EndpointStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	assert.True(t, status.Connected)

	w = serve(handler, http.MethodPost, "/api/predictions/sample", session.Token, "")
	require.Equal(t, http.StatusCreated, w.Code)

	// The query parameter form used by EventSource is accepted too.
	w = serve(handler, http.MethodGet, "/api/results/1/chart?access_token="+session.Token, "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(handler, http.MethodPost, "/api/auth/signout", session.Token, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = serve(handler, http.MethodGet, "/api/results", session.Token, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_JWTMode(t *testing.T) {
	authenticator := auth.NewJWTAuthenticator(&config.AuthConfig{Mode: "jwt", SigningKey: "test-signing-key-test-signing-key"})
	handler := newHandler(t, authenticator, nil)

	token, err := authenticator.Issue("clinician-7", "c7@ward.org", time.Hour)
	require.NoError(t, err)

	w := serve(handler, http.MethodGet, "/api/results", token, "")
	assert.Equal(t, http.StatusOK, w.Code)

	// No development routes in jwt mode.
	w = serve(handler, http.MethodPost, "/api/auth/signin", "", `{}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_CORS(t *testing.T) {
	handler := newHandler(t, auth.NewDevSessionProvider(), []string{"https://dashboard.example.org"})

	req := httptest.NewRequest(http.MethodOptions, "/api/results", nil)
	req.Header.Set("Origin", "https://dashboard.example.org")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://dashboard.example.org", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
