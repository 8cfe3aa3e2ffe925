package services_test

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/domain/entities"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/infrastructure/clients/predictionapi"
)

// scriptedClient answers per base URL: a URL listed in healthy/explain
// succeeds, anything else fails like an unreachable endpoint.
type scriptedClient struct {
	mu           sync.Mutex
	healthy      map[string]bool
	explanations map[string]*entities.Explanation
	healthCalls  []string
	explainCalls []string
	records      []entities.PatientRecord
}

func newScriptedClient() *scriptedClient {
	return &scriptedClient{
		healthy:      map[string]bool{},
		explanations: map[string]*entities.Explanation{},
	}
}

func (c *scriptedClient) CheckHealth(ctx context.Context, baseURL string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.healthCalls = append(c.healthCalls, baseURL)
	if c.healthy[baseURL] {
		return nil
	}
	return &predictionapi.EndpointError{BaseURL: baseURL, Path: "/health", Err: fmt.Errorf("connection refused")}
}

func (c *scriptedClient) Explain(ctx context.Context, baseURL string, record entities.PatientRecord) (*entities.Explanation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.explainCalls = append(c.explainCalls, baseURL)
	c.records = append(c.records, record)
	if e, ok := c.explanations[baseURL]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, &predictionapi.EndpointError{
		BaseURL:    baseURL,
		Path:       "/explain",
		StatusCode: http.StatusServiceUnavailable,
		Detail:     "HTTP 503: Service Unavailable",
	}
}

func (c *scriptedClient) calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.explainCalls...)
}

// MockExplainer is a testify mock of providers.Explainer
type MockExplainer struct {
	mock.Mock
}

func (m *MockExplainer) Explain(ctx context.Context, record entities.PatientRecord) (*entities.Explanation, error) {
	args := m.Called(ctx, record)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Explanation), args.Error(1)
}

// MockBatchRunRepository is a testify mock of repositories.BatchRunRepository
type MockBatchRunRepository struct {
	mock.Mock
}

func (m *MockBatchRunRepository) Save(ctx context.Context, run *entities.BatchRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockBatchRunRepository) GetByID(ctx context.Context, id string) (*entities.BatchRun, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.BatchRun), args.Error(1)
}

func (m *MockBatchRunRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*entities.BatchRun, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.BatchRun), args.Error(1)
}

type fixedStatus entities.EndpointStatus

func (s fixedStatus) Status() entities.EndpointStatus { return entities.EndpointStatus(s) }

func f64(v float64) *float64 { return &v }

func str(s string) *string { return &s }
