package predictionapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/domain/entities"
)

const maxErrorBody = 64 << 10

// Client talks to a single prediction service base URL per call. Failover
// across base URLs is the caller's job.
type Client interface {
	CheckHealth(ctx context.Context, baseURL string) error
	Explain(ctx context.Context, baseURL string, record entities.PatientRecord) (*entities.Explanation, error)
}

// HTTPClient implements Client over plain HTTP/JSON.
type HTTPClient struct {
	httpClient *http.Client
}

// EndpointError is a failure of one endpoint: a transport error or a
// non-2xx response. It is recovered by moving to the next endpoint.
type EndpointError struct {
	BaseURL    string
	Path       string
	StatusCode int
	Detail     string
	Err        error
}

func (e *EndpointError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s%s: %v", e.BaseURL, e.Path, e.Err)
	}
	return fmt.Sprintf("%s%s: %s", e.BaseURL, e.Path, e.Detail)
}

func (e *EndpointError) Unwrap() error {
	return e.Err
}

// explainRequest is the wire form of a record. The outer PatientID shadows
// the embedded one and is never set, so patient_id is not sent.
type explainRequest struct {
	entities.PatientRecord
	PatientID *string `json:"patient_id,omitempty"`
}

type errorBody struct {
	Detail json.RawMessage `json:"detail"`
}

// NewClient creates a client whose requests are bounded by timeout.
func NewClient(timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// NewClientWithHTTP wraps a preconfigured http.Client.
func NewClientWithHTTP(httpClient *http.Client) *HTTPClient {
	return &HTTPClient{httpClient: httpClient}
}

// CheckHealth issues GET {base}/health. Any 2xx means healthy; the body is
// ignored.
func (c *HTTPClient) CheckHealth(ctx context.Context, baseURL string) error {
	base := strings.TrimRight(baseURL, "/")
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/health", nil)
	if err != nil {
		return &EndpointError{BaseURL: base, Path: "/health", Err: err}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &EndpointError{BaseURL: base, Path: "/health", Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &EndpointError{
			BaseURL:    base,
			Path:       "/health",
			StatusCode: resp.StatusCode,
			Detail:     statusDetail(resp),
		}
	}
	return nil
}

// Explain issues POST {base}/explain with the record as JSON.
func (c *HTTPClient) Explain(ctx context.Context, baseURL string, record entities.PatientRecord) (*entities.Explanation, error) {
	base := strings.TrimRight(baseURL, "/")

	payload, err := json.Marshal(explainRequest{PatientRecord: record})
	if err != nil {
		return nil, fmt.Errorf("failed to encode patient record: %w", err)
	}

	out := &entities.Explanation{}
	if err := c.doJSON(ctx, http.MethodPost, base, "/explain", bytes.NewReader(payload), out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) doJSON(ctx context.Context, method, base, path string, body io.Reader, out interface{}) error {
	httpReq, err := http.NewRequestWithContext(ctx, method, base+path, body)
	if err != nil {
		return &EndpointError{BaseURL: base, Path: path, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &EndpointError{BaseURL: base, Path: path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &EndpointError{
			BaseURL:    base,
			Path:       path,
			StatusCode: resp.StatusCode,
			Detail:     errorDetail(resp),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &EndpointError{BaseURL: base, Path: path, StatusCode: resp.StatusCode, Err: fmt.Errorf("invalid response body: %w", err)}
	}
	return nil
}

// errorDetail prefers a string "detail" field from the body and falls back
// to "HTTP <status>: <text>".
func errorDetail(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err == nil && len(data) > 0 {
		var body errorBody
		if json.Unmarshal(data, &body) == nil && len(body.Detail) > 0 {
			var detail string
			if json.Unmarshal(body.Detail, &detail) == nil && detail != "" {
				return detail
			}
		}
	}
	return statusDetail(resp)
}

func statusDetail(resp *http.Response) string {
	return fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
}
