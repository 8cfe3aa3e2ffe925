package services

import (
	"math"
	"sort"
	"strings"

	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/domain/entities"
)

const (
	featureSeparator = "__"
	unknownFeature   = "Unknown"

	// Chart axes never collapse to zero width.
	emptyDomainHalfWidth = 0.01
	flatDomainHalfWidth  = 0.005
	minDomainRange       = 0.001
	domainPaddingRatio   = 0.1
	minDomainPadding     = 0.001
)

// DeriveChart turns a result's contributions into chart points sorted by
// absolute value, largest first. Error results and non-finite values yield
// nothing.
func DeriveChart(result entities.ExplanationResult) []entities.ContributionChartPoint {
	if result.Failed() || len(result.TopContributions) == 0 {
		return []entities.ContributionChartPoint{}
	}

	points := make([]entities.ContributionChartPoint, 0, len(result.TopContributions))
	for _, c := range result.TopContributions {
		if c.ShapValue == nil || !isFinite(*c.ShapValue) {
			continue
		}
		value := *c.ShapValue
		direction := entities.DirectionPositive
		if value < 0 {
			direction = entities.DirectionNegative
		}
		points = append(points, entities.ContributionChartPoint{
			Feature:   shortFeatureName(c.Feature),
			Value:     value,
			Direction: direction,
		})
	}

	sort.SliceStable(points, func(i, j int) bool {
		return math.Abs(points[i].Value) > math.Abs(points[j].Value)
	})
	return points
}

// ChartDomain returns padded [min, max] axis bounds for the points.
func ChartDomain(points []entities.ContributionChartPoint) [2]float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	found := false
	for _, p := range points {
		if !isFinite(p.Value) {
			continue
		}
		found = true
		lo = math.Min(lo, p.Value)
		hi = math.Max(hi, p.Value)
	}

	if !found {
		return [2]float64{-emptyDomainHalfWidth, emptyDomainHalfWidth}
	}

	span := hi - lo
	if span < minDomainRange {
		return [2]float64{-flatDomainHalfWidth, flatDomainHalfWidth}
	}

	pad := math.Max(span*domainPaddingRatio, minDomainPadding)
	return [2]float64{lo - pad, hi + pad}
}

// BuildChart bundles the points and domain for one result.
func BuildChart(result entities.ExplanationResult) entities.ContributionChart {
	points := DeriveChart(result)
	return entities.ContributionChart{
		Index:  result.Index,
		Points: points,
		Domain: ChartDomain(points),
	}
}

func shortFeatureName(feature string) string {
	parts := strings.Split(feature, featureSeparator)
	if last := parts[len(parts)-1]; last != "" {
		return last
	}
	return unknownFeature
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
