package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"crash-analytics/internal/models"
	"crash-analytics/internal/repository"
	"crash-analytics/pkg/logging"
	"crash-analytics/pkg/metrics"
)

// FactorService computes category×severity breakdowns for crash factors.
type FactorService struct {
	repo    repository.CrashRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewFactorService creates a new factor service
func NewFactorService(repo repository.CrashRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *FactorService {
	return &FactorService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// ComputeFactorCounts aggregates crash counts by (category, severity) for
// one factor, optionally scoped to a statistical area. The repository
// returns counts grouped by raw attribute value; this routine classifies
// raw values, drops null categories and non-countable severities, merges
// counts per category and orders the result by the factor's rank table with
// severity as the secondary key. Categories absent from the data produce no
// row.
func (s *FactorService) ComputeFactorCounts(ctx context.Context, factor string, scope *repository.AreaScope) ([]models.FactorCountRow, error) {
	spec, err := models.FactorSpecFor(factor)
	if err != nil {
		return nil, err
	}

	timer := time.Now()
	defer func() {
		s.metrics.FactorComputationDuration.Observe(time.Since(timer).Seconds())
	}()

	raw, err := s.repo.FactorCounts(ctx, spec, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate factor %s: %w", factor, err)
	}

	type cell struct {
		category string
		severity string
	}
	merged := make(map[cell]int64)

	for _, rc := range raw {
		severity, ok := models.NormalizeSeverity(rc.Severity)
		if !ok {
			continue
		}
		category := spec.Classify(rc.RawValue)
		if category == nil {
			continue
		}
		merged[cell{category: *category, severity: severity}] += rc.Count
	}

	rows := make([]models.FactorCountRow, 0, len(merged))
	for c, count := range merged {
		rows = append(rows, models.FactorCountRow{
			Category: c.category,
			Severity: c.severity,
			Count:    count,
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		ri, rj := spec.CategoryRank(rows[i].Category), spec.CategoryRank(rows[j].Category)
		if ri != rj {
			return ri < rj
		}
		if rows[i].Category != rows[j].Category {
			return rows[i].Category < rows[j].Category
		}
		return rows[i].Severity < rows[j].Severity
	})

	s.logger.Debug(ctx, "[FACTOR_COUNTS] Factor breakdown computed", logging.Fields{
		"factor":     factor,
		"scoped":     scope != nil,
		"categories": len(rows),
	})

	return rows, nil
}

// DistinctAreaNames lists the distinct area names at one SA level.
func (s *FactorService) DistinctAreaNames(ctx context.Context, level string) ([]string, error) {
	return s.repo.DistinctAreaNames(ctx, level)
}
