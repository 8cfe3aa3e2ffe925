package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/application/services"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/domain/entities"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/infrastructure/clients/predictionapi"
	"github.com/zatekoja/Readmissionriskdashboard/backend/pkg/config"
	apperrors "github.com/zatekoja/Readmissionriskdashboard/backend/pkg/errors"
)

func predictionConfig(base string, fallbacks ...string) *config.PredictionConfig {
	return &config.PredictionConfig{
		BaseURL:        base,
		FallbackURLs:   fallbacks,
		RequestTimeout: time.Second,
		HealthTimeout:  time.Second,
	}
}

func TestExplanationService_FirstSuccessWins(t *testing.T) {
	client := newScriptedClient()
	client.explanations["http://c"] = &entities.Explanation{RiskLabel: entities.RiskLabelLow, ReadmissionProbability: 0.2}
	client.explanations["http://d"] = &entities.Explanation{RiskLabel: entities.RiskLabelHigh}

	svc := services.NewExplanationService(client, nil, predictionConfig("http://a", "http://b", "http://c", "http://d"), nil)

	got, err := svc.Explain(context.Background(), entities.PatientRecord{PatientID: str("P1"), TimeInHospital: 1})
	require.NoError(t, err)
	assert.Equal(t, entities.RiskLabelLow, got.RiskLabel)

	// Two failures then one success: exactly three calls, d is never touched.
	assert.Equal(t, []string{"http://a", "http://b", "http://c"}, client.calls())
}

func TestExplanationService_AllFail(t *testing.T) {
	client := newScriptedClient()
	cfg := predictionConfig("http://a/", "http://b", "http://a", "", "http://b/")

	svc := services.NewExplanationService(client, nil, cfg, nil)

	_, err := svc.Explain(context.Background(), entities.PatientRecord{TimeInHospital: 1})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeExternal))
	assert.Contains(t, err.Error(), "all 2 prediction endpoints failed for /explain")
	assert.Contains(t, apperrors.MessageOf(err), "HTTP 503: Service Unavailable")

	var epErr *predictionapi.EndpointError
	assert.True(t, errors.As(err, &epErr))

	// One attempt per de-duplicated candidate.
	assert.Equal(t, []string{"http://a", "http://b"}, client.calls())
}

func TestExplanationService_PreferredEndpointFirst(t *testing.T) {
	client := newScriptedClient()
	client.explanations["http://c"] = &entities.Explanation{RiskLabel: entities.RiskLabelHigh}

	status := fixedStatus{Connected: true, Endpoint: "http://c"}
	svc := services.NewExplanationService(client, status, predictionConfig("http://a", "http://b", "http://c"), nil)

	assert.Equal(t, []string{"http://c", "http://a", "http://b"}, svc.Endpoints())

	_, err := svc.Explain(context.Background(), entities.PatientRecord{TimeInHospital: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"http://c"}, client.calls())
}

func TestExplanationService_DisconnectedStatusIgnored(t *testing.T) {
	status := fixedStatus{Connected: false, Endpoint: "http://stale", Checking: true}
	svc := services.NewExplanationService(newScriptedClient(), status, predictionConfig("http://a", "http://b"), nil)

	assert.Equal(t, []string{"http://a", "http://b"}, svc.Endpoints())
}

func TestExplanationService_PreferredFailsThenFallsBack(t *testing.T) {
	client := newScriptedClient()
	client.explanations["http://b"] = &entities.Explanation{RiskLabel: entities.RiskLabelLow}

	status := fixedStatus{Connected: true, Endpoint: "http://z"}
	svc := services.NewExplanationService(client, status, predictionConfig("http://a", "http://b"), nil)

	_, err := svc.Explain(context.Background(), entities.PatientRecord{TimeInHospital: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"http://z", "http://a", "http://b"}, client.calls())
}
