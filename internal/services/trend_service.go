package services

import (
	"context"
	"fmt"
	"time"

	"crash-analytics/internal/models"
	"crash-analytics/internal/repository"
	"crash-analytics/pkg/logging"
	"crash-analytics/pkg/metrics"
)

// TrendService aggregates crash and injury counts over calendar periods.
type TrendService struct {
	repo    repository.CrashRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewTrendService creates a new trend service
func NewTrendService(repo repository.CrashRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *TrendService {
	return &TrendService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// YearlyTrend returns crash totals per observed year in the inclusive
// range, ascending. Years with no recorded accidents are omitted; callers
// that need a gap-free series (forecasting) zero-fill explicitly.
func (s *TrendService) YearlyTrend(ctx context.Context, yearFrom, yearTo int) ([]models.YearlyTrendItem, error) {
	rows, err := s.repo.YearlyTrend(ctx, yearFrom, yearTo)
	if err != nil {
		return nil, fmt.Errorf("failed to compute yearly trend: %w", err)
	}

	s.logger.Debug(ctx, "[TREND_YEARLY] Yearly trend computed", logging.Fields{
		"year_from": yearFrom,
		"year_to":   yearTo,
		"years":     len(rows),
	})

	return rows, nil
}

// MonthlyTrend returns exactly 12 rows for the given year, periods
// "YYYY-01" through "YYYY-12" in order, zero-filling months with no data.
func (s *TrendService) MonthlyTrend(ctx context.Context, year int) (*models.MonthlyTrendResponse, error) {
	counts, err := s.repo.MonthlyCounts(ctx, year)
	if err != nil {
		return nil, fmt.Errorf("failed to compute monthly trend: %w", err)
	}

	byMonth := make(map[int]repository.MonthlyCount, len(counts))
	for _, c := range counts {
		byMonth[c.Month] = c
	}

	data := make([]models.MonthlyTrendItem, 0, 12)
	for month := 1; month <= 12; month++ {
		item := models.MonthlyTrendItem{
			Period: fmt.Sprintf("%04d-%02d", year, month),
		}
		if c, ok := byMonth[month]; ok {
			item.Crashes = c.Crashes
			item.TotalInjuries = c.TotalInjuries
			item.SeriousInjuries = c.SeriousInjuries
		}
		data = append(data, item)
	}

	return &models.MonthlyTrendResponse{Year: year, Data: data}, nil
}

// MaxAccidentDate returns the latest accident date in the store.
func (s *TrendService) MaxAccidentDate(ctx context.Context) (*time.Time, error) {
	return s.repo.MaxAccidentDate(ctx)
}
