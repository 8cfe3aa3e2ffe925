package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/infrastructure/observability"
)

// fallbackSample is used whenever the sample resource cannot be loaded.
const fallbackSample = `{
	"patient_id": "P1226",
	"age": "[50-60)",
	"time_in_hospital": 3,
	"n_lab_procedures": 39,
	"n_procedures": 10,
	"n_medications": 79,
	"n_outpatient": 0,
	"n_inpatient": 10,
	"n_emergency": 9,
	"medical_specialty": "Other",
	"diag_1": "Respiratory",
	"diag_2": "Other",
	"diag_3": "Circulatory"
}`

const (
	maxSampleBytes       = 32 << 20
	defaultSampleTimeout = 10 * time.Second
)

// SampleService serves random patient-like rows from a bundled sample set.
// The set is loaded at most once; any load failure falls back to a single
// embedded record, so Pick never fails.
type SampleService struct {
	source      string
	httpClient  *http.Client
	loadTimeout time.Duration
	intN        func(n int) int

	once sync.Once
	rows []map[string]any
}

// NewSampleService creates a sample service. source is an http(s) URL, a
// file path, or empty for the embedded record only.
func NewSampleService(source string, timeout time.Duration) *SampleService {
	if timeout <= 0 {
		timeout = defaultSampleTimeout
	}
	return &SampleService{
		source:      strings.TrimSpace(source),
		httpClient:  &http.Client{Timeout: timeout},
		loadTimeout: timeout,
		intN:        rand.IntN,
	}
}

// WithRandom replaces the random index source; intN must return a value in
// [0, n).
func (s *SampleService) WithRandom(intN func(n int) int) *SampleService {
	s.intN = intN
	return s
}

// Rows returns the loaded sample set. The load is shared by every caller,
// so it does not end when the first caller's request does.
func (s *SampleService) Rows(ctx context.Context) []map[string]any {
	s.once.Do(func() {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.loadTimeout)
		defer cancel()
		s.rows = s.load(loadCtx)
	})
	return s.rows
}

// Pick returns a copy of one row drawn uniformly at random.
func (s *SampleService) Pick(ctx context.Context) map[string]any {
	rows := s.Rows(ctx)
	row := rows[s.intN(len(rows))]

	cp := make(map[string]any, len(row))
	for k, v := range row {
		cp[k] = v
	}
	return cp
}

func (s *SampleService) load(ctx context.Context) []map[string]any {
	logger := observability.LoggerFromContext(ctx)

	if s.source == "" {
		return fallbackRows()
	}

	rows, err := s.fetch(ctx)
	if err != nil {
		logger.Warn().Err(err).Str("source", s.source).Msg("Sample data unavailable, using embedded record")
		return fallbackRows()
	}
	if len(rows) == 0 {
		logger.Warn().Str("source", s.source).Msg("Sample data is empty, using embedded record")
		return fallbackRows()
	}

	logger.Info().Int("rows", len(rows)).Str("source", s.source).Msg("Sample data loaded")
	return rows
}

func (s *SampleService) fetch(ctx context.Context) ([]map[string]any, error) {
	var data []byte

	if strings.HasPrefix(s.source, "http://") || strings.HasPrefix(s.source, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.source, nil)
		if err != nil {
			return nil, err
		}
		resp, err := s.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("sample data returned HTTP %d", resp.StatusCode)
		}
		if data, err = io.ReadAll(io.LimitReader(resp.Body, maxSampleBytes)); err != nil {
			return nil, err
		}
	} else {
		var err error
		if data, err = os.ReadFile(s.source); err != nil {
			return nil, err
		}
	}

	var rows []map[string]any
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode sample data: %w", err)
	}

	out := rows[:0]
	for _, row := range rows {
		if row != nil {
			out = append(out, row)
		}
	}
	return out, nil
}

func fallbackRows() []map[string]any {
	var row map[string]any
	if err := json.Unmarshal([]byte(fallbackSample), &row); err != nil {
		panic(fmt.Sprintf("embedded sample record is invalid: %v", err))
	}
	return []map[string]any{row}
}
