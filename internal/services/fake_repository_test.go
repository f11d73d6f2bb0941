package services

import (
	"context"
	"time"

	"crash-analytics/internal/models"
	"crash-analytics/internal/repository"
	"crash-analytics/pkg/logging"
	"crash-analytics/pkg/metrics"
)

// testMetrics is shared across the package because prometheus collectors
// register globally once per process.
var testMetrics = metrics.NewCollector("crash_services_test")

var testLogger = logging.NewStructuredLogger("services-test", "test", logging.ErrorLevel)

// fakeCrashRepository is an in-memory CrashRepository backed by canned
// responses per method.
type fakeCrashRepository struct {
	factorCounts []repository.RawFactorCount
	factorErr    error
	lastSpec     *models.FactorSpec
	lastScope    *repository.AreaScope

	yearlyTrend []models.YearlyTrendItem
	yearlyErr   error

	monthlyCounts []repository.MonthlyCount
	monthlyErr    error

	areaNames []string

	maxDate *time.Time

	areaStats    []repository.AreaStatsRow
	roadDensity  []repository.RoadDensityRow
	lastRoadQ    *repository.RoadDensityQuery
	corridorRows []repository.CorridorRow
	blackspots   []repository.BlackspotRow

	accidents []*models.Accident
	persons   []*models.Person
}

func (f *fakeCrashRepository) FactorCounts(ctx context.Context, spec *models.FactorSpec, scope *repository.AreaScope) ([]repository.RawFactorCount, error) {
	f.lastSpec = spec
	f.lastScope = scope
	return f.factorCounts, f.factorErr
}

func (f *fakeCrashRepository) YearlyTrend(ctx context.Context, yearFrom, yearTo int) ([]models.YearlyTrendItem, error) {
	return f.yearlyTrend, f.yearlyErr
}

func (f *fakeCrashRepository) MonthlyCounts(ctx context.Context, year int) ([]repository.MonthlyCount, error) {
	return f.monthlyCounts, f.monthlyErr
}

func (f *fakeCrashRepository) DistinctAreaNames(ctx context.Context, level string) ([]string, error) {
	return f.areaNames, nil
}

func (f *fakeCrashRepository) MaxAccidentDate(ctx context.Context) (*time.Time, error) {
	return f.maxDate, nil
}

func (f *fakeCrashRepository) AccidentStats(ctx context.Context, q repository.AccidentStatsQuery) ([]repository.AreaStatsRow, error) {
	return f.areaStats, nil
}

func (f *fakeCrashRepository) RoadAccidentDensity(ctx context.Context, q repository.RoadDensityQuery) ([]repository.RoadDensityRow, error) {
	f.lastRoadQ = &q
	return f.roadDensity, nil
}

func (f *fakeCrashRepository) CorridorCrashDensity(ctx context.Context, q repository.CorridorQuery) ([]repository.CorridorRow, error) {
	return f.corridorRows, nil
}

func (f *fakeCrashRepository) BlackspotCrashDensity(ctx context.Context, q repository.BlackspotQuery) ([]repository.BlackspotRow, error) {
	return f.blackspots, nil
}

func (f *fakeCrashRepository) CreateAccidentsBatch(ctx context.Context, accidents []*models.Accident) error {
	f.accidents = append(f.accidents, accidents...)
	return nil
}

func (f *fakeCrashRepository) CreatePersonsBatch(ctx context.Context, persons []*models.Person) error {
	f.persons = append(f.persons, persons...)
	return nil
}

func (f *fakeCrashRepository) HealthCheck(ctx context.Context) error {
	return nil
}

func strPtr(s string) *string {
	return &s
}
