package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/domain/entities"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/domain/providers"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/infrastructure/clients/predictionapi"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/infrastructure/observability"
	"github.com/zatekoja/Readmissionriskdashboard/backend/pkg/config"
	apperrors "github.com/zatekoja/Readmissionriskdashboard/backend/pkg/errors"
)

// ExplanationService calls the remote explain operation with ordered
// failover: the preferred endpoint first (when the prober found one), then
// every configured candidate. The first success wins.
type ExplanationService struct {
	client     predictionapi.Client
	status     providers.StatusSource
	candidates []string
	timeout    time.Duration
	metrics    *observability.Metrics
}

// NewExplanationService creates a new explanation service. status may be
// nil, in which case the candidates are used in configured order.
func NewExplanationService(
	client predictionapi.Client,
	status providers.StatusSource,
	cfg *config.PredictionConfig,
	metrics *observability.Metrics,
) *ExplanationService {
	return &ExplanationService{
		client:     client,
		status:     status,
		candidates: cfg.Candidates(),
		timeout:    cfg.RequestTimeout,
		metrics:    metrics,
	}
}

// Endpoints returns the ordered, de-duplicated list the next call will try.
func (s *ExplanationService) Endpoints() []string {
	preferred := ""
	if s.status != nil {
		preferred = s.status.Status().PreferredEndpoint()
	}
	return config.DedupeURLs(append([]string{preferred}, s.candidates...))
}

// Explain returns the first successful explanation. Each endpoint gets its
// own timeout; an endpoint failure of any kind moves on to the next one.
func (s *ExplanationService) Explain(ctx context.Context, record entities.PatientRecord) (*entities.Explanation, error) {
	ctx, span := observability.StartSpan(ctx, "ExplanationService.Explain")
	defer span.End()

	logger := observability.LoggerFromContext(ctx)
	endpoints := s.Endpoints()
	observability.SetSpanAttributes(span,
		attribute.String("patient.id", record.ID()),
		attribute.Int("endpoints.count", len(endpoints)),
	)

	if len(endpoints) == 0 {
		err := apperrors.NewExternalError("no prediction endpoints configured", nil)
		observability.RecordError(span, err)
		return nil, err
	}

	var lastErr error
	for attempt, endpoint := range endpoints {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.NewExternalError("explain aborted", err)
		}

		explanation, err := s.attempt(ctx, endpoint, record)
		if err == nil {
			observability.RecordExplainAttempt(ctx, s.metrics, endpoint, "success")
			observability.SetSpanAttributes(span, attribute.String("endpoint.used", endpoint))
			return explanation, nil
		}

		lastErr = err
		observability.RecordExplainAttempt(ctx, s.metrics, endpoint, "failure")
		if attempt < len(endpoints)-1 {
			observability.RecordFailover(ctx, s.metrics, endpoint)
		}
		logger.Warn().
			Err(err).
			Str("endpoint", endpoint).
			Int("attempt", attempt+1).
			Str("patient_id", record.ID()).
			Msg("Prediction endpoint failed")
	}

	err := apperrors.NewExternalError(
		fmt.Sprintf("all %d prediction endpoints failed for /explain; last error: %s", len(endpoints), endpointDetail(lastErr)),
		lastErr,
	)
	observability.RecordError(span, err)
	return nil, err
}

func (s *ExplanationService) attempt(ctx context.Context, endpoint string, record entities.PatientRecord) (*entities.Explanation, error) {
	ctx, span := observability.StartSpan(ctx, "ExplanationService.attempt")
	defer span.End()
	observability.SetSpanAttributes(span, attribute.String("endpoint", endpoint))

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	explanation, err := s.client.Explain(callCtx, endpoint, record)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	return explanation, nil
}

func endpointDetail(err error) string {
	if err == nil {
		return "unknown error"
	}
	var epErr *predictionapi.EndpointError
	if errors.As(err, &epErr) && epErr.Detail != "" {
		return epErr.Detail
	}
	return err.Error()
}
