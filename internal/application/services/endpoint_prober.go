package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/domain/entities"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/infrastructure/clients/predictionapi"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/infrastructure/observability"
	"github.com/zatekoja/Readmissionriskdashboard/backend/pkg/config"
)

// EndpointProber finds the first reachable prediction endpoint and holds
// the resulting status for readers. The probe goroutine is the only writer.
type EndpointProber struct {
	client     predictionapi.Client
	candidates []string
	timeout    time.Duration
	metrics    *observability.Metrics

	mu     sync.RWMutex
	status entities.EndpointStatus

	startOnce sync.Once
	ready     chan struct{}
}

// NewEndpointProber creates a prober whose status reads checking=true until
// the first probe resolves.
func NewEndpointProber(client predictionapi.Client, cfg *config.PredictionConfig, metrics *observability.Metrics) *EndpointProber {
	return &EndpointProber{
		client:     client,
		candidates: cfg.Candidates(),
		timeout:    cfg.HealthTimeout,
		metrics:    metrics,
		status:     entities.EndpointStatus{Checking: true},
		ready:      make(chan struct{}),
	}
}

// Status returns the latest endpoint status.
func (p *EndpointProber) Status() entities.EndpointStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// Ready is closed once the initial probe has resolved.
func (p *EndpointProber) Ready() <-chan struct{} {
	return p.ready
}

// Start runs the initial probe in the background. Calls after the first are
// no-ops.
func (p *EndpointProber) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		go func() {
			defer close(p.ready)
			p.Probe(ctx)
		}()
	})
}

// Probe checks each candidate once, in order, and stops at the first
// healthy one. Failures are swallowed; with no healthy candidate the status
// is disconnected with an empty endpoint.
func (p *EndpointProber) Probe(ctx context.Context) entities.EndpointStatus {
	logger := observability.LoggerFromContext(ctx)

	status := entities.EndpointStatus{}
	for _, candidate := range p.candidates {
		if ctx.Err() != nil {
			break
		}

		checkCtx, cancel := context.WithTimeout(ctx, p.timeout)
		err := p.client.CheckHealth(checkCtx, candidate)
		cancel()

		observability.RecordProbeResult(ctx, p.metrics, candidate, err == nil)
		if err != nil {
			logger.Debug().Err(err).Str("endpoint", candidate).Msg("Prediction endpoint unhealthy")
			continue
		}

		status.Connected = true
		status.Endpoint = candidate
		break
	}
	status.CheckedAt = time.Now()

	p.mu.Lock()
	p.status = status
	p.mu.Unlock()

	if status.Connected {
		logger.Info().Str("endpoint", status.Endpoint).Msg("Prediction service reachable")
	} else {
		logger.Warn().Int("candidates", len(p.candidates)).Msg("No prediction endpoint reachable")
	}
	return status
}

// StartSchedule re-probes on a 5-field cron schedule until ctx is done.
// Re-probes replace the status without passing through checking=true.
func (p *EndpointProber) StartSchedule(ctx context.Context, schedule string) error {
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		return nil
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(schedule)
	if err != nil {
		return fmt.Errorf("invalid probe schedule %q: %w", schedule, err)
	}

	logger := observability.LoggerFromContext(ctx)
	logger.Info().Str("schedule", schedule).Msg("Periodic endpoint probing enabled")

	go func() {
		for {
			now := time.Now()
			timer := time.NewTimer(sched.Next(now).Sub(now))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}

			// The initial probe owns the checking flag.
			select {
			case <-p.ready:
			default:
				continue
			}
			p.Probe(ctx)
		}
	}()
	return nil
}
