package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"crash-analytics/internal/models"
	"crash-analytics/internal/repository"
	"crash-analytics/pkg/logging"
	"crash-analytics/pkg/metrics"
)

// ErrNoForecastData is returned when the requested history range contains
// no recorded accidents at all.
var ErrNoForecastData = errors.New("no data in the specified range")

// olsEpsilon floors the variance term of the OLS fit so a single-point or
// zero-variance history never divides by zero.
const olsEpsilon = 1e-9

// ForecastService produces yearly point forecasts from historical crash
// totals.
type ForecastService struct {
	repo    repository.CrashRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewForecastService creates a new forecast service
func NewForecastService(repo repository.CrashRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *ForecastService {
	return &ForecastService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// forecastMetric addresses one of the three forecastable series on a
// YearlyTrendItem.
type forecastMetric struct {
	name string
	get  func(models.YearlyTrendItem) int64
	set  func(*models.YearlyTrendItem, int64)
}

var forecastMetrics = []forecastMetric{
	{
		name: "crashes",
		get:  func(it models.YearlyTrendItem) int64 { return it.Crashes },
		set:  func(it *models.YearlyTrendItem, v int64) { it.Crashes = v },
	},
	{
		name: "total_injuries",
		get:  func(it models.YearlyTrendItem) int64 { return it.TotalInjuries },
		set:  func(it *models.YearlyTrendItem, v int64) { it.TotalInjuries = v },
	},
	{
		name: "serious_injuries",
		get:  func(it models.YearlyTrendItem) int64 { return it.SeriousInjuries },
		set:  func(it *models.YearlyTrendItem, v int64) { it.SeriousInjuries = v },
	},
}

// ForecastYearly fits each metric independently over the zero-filled yearly
// history and predicts its value for the target year. Unlike the plain
// trend endpoint, the history here covers every year in the range so the
// regression sees a gap-free series. Forecast values are rounded and
// clamped at zero. ModelInfo is populated for the ols method only.
func (s *ForecastService) ForecastYearly(ctx context.Context, yearFrom, yearTo, targetYear int, method string) (*models.ForecastResult, error) {
	timer := time.Now()
	defer func() {
		s.metrics.ForecastComputationDuration.Observe(time.Since(timer).Seconds())
	}()

	observed, err := s.repo.YearlyTrend(ctx, yearFrom, yearTo)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch forecast history: %w", err)
	}

	if len(observed) == 0 {
		return nil, ErrNoForecastData
	}

	byYear := make(map[int]models.YearlyTrendItem, len(observed))
	for _, row := range observed {
		byYear[row.Year] = row
	}

	history := make([]models.YearlyTrendItem, 0, yearTo-yearFrom+1)
	xs := make([]float64, 0, yearTo-yearFrom+1)
	for year := yearFrom; year <= yearTo; year++ {
		item := models.YearlyTrendItem{Year: year}
		if row, ok := byYear[year]; ok {
			item = row
		}
		history = append(history, item)
		xs = append(xs, float64(year))
	}

	forecast := models.YearlyTrendItem{Year: targetYear}
	modelInfo := make(map[string]map[string]float64, len(forecastMetrics))

	for _, metric := range forecastMetrics {
		ys := make([]float64, len(history))
		for i, item := range history {
			ys[i] = float64(metric.get(item))
		}

		var yhat float64
		switch method {
		case models.ForecastMethodMean:
			yhat = stat.Mean(ys, nil)
			modelInfo[metric.name] = map[string]float64{"mean": yhat}
		default:
			intercept, slope := olsFit(xs, ys)
			yhat = intercept + slope*float64(targetYear)
			modelInfo[metric.name] = map[string]float64{
				"intercept":         intercept,
				"slope":             slope,
				"fitted_for_target": yhat,
			}
		}

		// Crash and injury counts cannot be negative.
		value := int64(math.Round(yhat))
		if value < 0 {
			value = 0
		}
		metric.set(&forecast, value)
	}

	result := &models.ForecastResult{
		Method:       method,
		History:      history,
		ForecastYear: targetYear,
		Forecast:     forecast,
	}
	if method == models.ForecastMethodOLS {
		result.ModelInfo = modelInfo
	}

	s.logger.Debug(ctx, "[FORECAST_YEARLY] Forecast computed", logging.Fields{
		"method":      method,
		"year_from":   yearFrom,
		"year_to":     yearTo,
		"target_year": targetYear,
	})

	return result, nil
}

// olsFit fits y = a + b·x by ordinary least squares and returns (a, b). The
// variance term is floored at olsEpsilon.
func olsFit(xs, ys []float64) (intercept, slope float64) {
	meanX := stat.Mean(xs, nil)
	meanY := stat.Mean(ys, nil)

	var sxx, sxy float64
	for i := range xs {
		dx := xs[i] - meanX
		sxx += dx * dx
		sxy += dx * (ys[i] - meanY)
	}
	if sxx < olsEpsilon {
		sxx = olsEpsilon
	}

	slope = sxy / sxx
	intercept = meanY - slope*meanX
	return intercept, slope
}
