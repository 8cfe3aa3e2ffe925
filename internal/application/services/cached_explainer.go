package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"

	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/domain/entities"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/domain/providers"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/infrastructure/observability"
)

const explanationKeyPrefix = "explain:"

// CachedExplainer memoises explanations keyed by the record as sent to the
// service, so the patient identifier does not affect the key. Cache errors
// never fail a call.
type CachedExplainer struct {
	next       providers.Explainer
	cache      providers.CacheProvider
	ttlSeconds int
	metrics    *observability.Metrics
}

// NewCachedExplainer wraps next with a cache.
func NewCachedExplainer(next providers.Explainer, cache providers.CacheProvider, ttlSeconds int, metrics *observability.Metrics) *CachedExplainer {
	return &CachedExplainer{
		next:       next,
		cache:      cache,
		ttlSeconds: ttlSeconds,
		metrics:    metrics,
	}
}

// Explain returns a cached explanation or delegates and stores the result.
func (c *CachedExplainer) Explain(ctx context.Context, record entities.PatientRecord) (*entities.Explanation, error) {
	logger := observability.LoggerFromContext(ctx)

	key, err := explanationKey(record)
	if err != nil {
		return c.next.Explain(ctx, record)
	}

	if data, err := c.cache.Get(ctx, key); err == nil {
		var cached entities.Explanation
		if err := json.Unmarshal(data, &cached); err == nil {
			observability.RecordCacheHit(ctx, c.metrics, explanationKeyPrefix)
			return &cached, nil
		}
		logger.Warn().Str("key", key).Msg("Discarding undecodable cached explanation")
	} else if !errors.Is(err, providers.ErrCacheMiss) {
		logger.Warn().Err(err).Msg("Explanation cache read failed")
	}
	observability.RecordCacheMiss(ctx, c.metrics, explanationKeyPrefix)

	explanation, err := c.next.Explain(ctx, record)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(explanation); err == nil {
		if err := c.cache.Set(ctx, key, data, c.ttlSeconds); err != nil {
			logger.Warn().Err(err).Msg("Explanation cache write failed")
		}
	}
	return explanation, nil
}

func explanationKey(record entities.PatientRecord) (string, error) {
	record.PatientID = nil
	data, err := json.Marshal(record)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return explanationKeyPrefix + hex.EncodeToString(sum[:]), nil
}
