package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crash-analytics/internal/models"
	"crash-analytics/internal/repository"
	"crash-analytics/internal/services"
	"crash-analytics/pkg/logging"
	"crash-analytics/pkg/metrics"
)

// prometheus collectors register globally, so the package shares one.
var testMetrics = metrics.NewCollector("crash_handlers_test")

var testLogger = logging.NewStructuredLogger("handlers-test", "test", logging.ErrorLevel)

// stubRepository serves canned rows through the full repository interface.
type stubRepository struct {
	factorCounts  []repository.RawFactorCount
	yearlyTrend   []models.YearlyTrendItem
	monthlyCounts []repository.MonthlyCount
	areaNames     []string
	maxDate       *time.Time
}

func (s *stubRepository) FactorCounts(ctx context.Context, spec *models.FactorSpec, scope *repository.AreaScope) ([]repository.RawFactorCount, error) {
	return s.factorCounts, nil
}

func (s *stubRepository) YearlyTrend(ctx context.Context, yearFrom, yearTo int) ([]models.YearlyTrendItem, error) {
	return s.yearlyTrend, nil
}

func (s *stubRepository) MonthlyCounts(ctx context.Context, year int) ([]repository.MonthlyCount, error) {
	return s.monthlyCounts, nil
}

func (s *stubRepository) DistinctAreaNames(ctx context.Context, level string) ([]string, error) {
	return s.areaNames, nil
}

func (s *stubRepository) MaxAccidentDate(ctx context.Context) (*time.Time, error) {
	return s.maxDate, nil
}

func (s *stubRepository) AccidentStats(ctx context.Context, q repository.AccidentStatsQuery) ([]repository.AreaStatsRow, error) {
	return nil, nil
}

func (s *stubRepository) RoadAccidentDensity(ctx context.Context, q repository.RoadDensityQuery) ([]repository.RoadDensityRow, error) {
	return nil, nil
}

func (s *stubRepository) CorridorCrashDensity(ctx context.Context, q repository.CorridorQuery) ([]repository.CorridorRow, error) {
	return nil, nil
}

func (s *stubRepository) BlackspotCrashDensity(ctx context.Context, q repository.BlackspotQuery) ([]repository.BlackspotRow, error) {
	return nil, nil
}

func (s *stubRepository) CreateAccidentsBatch(ctx context.Context, accidents []*models.Accident) error {
	return nil
}

func (s *stubRepository) CreatePersonsBatch(ctx context.Context, persons []*models.Person) error {
	return nil
}

func (s *stubRepository) HealthCheck(ctx context.Context) error {
	return nil
}

func newTestRouter(repo repository.CrashRepository) *mux.Router {
	handler := NewCrashHandler(
		services.NewFactorService(repo, testLogger, testMetrics),
		services.NewTrendService(repo, testLogger, testMetrics),
		services.NewForecastService(repo, testLogger, testMetrics),
		services.NewSpatialService(repo, testLogger, testMetrics),
		testLogger,
		testMetrics,
	)

	router := mux.NewRouter()
	handler.RegisterRoutes(router)
	return router
}

func doRequest(t *testing.T, router *mux.Router, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestGetFactorCounts_InvalidFactor(t *testing.T) {
	router := newTestRouter(&stubRepository{})

	rec := doRequest(t, router, http.MethodGet, "/factor_counts?factor=vehicle_colour", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Invalid factor: vehicle_colour", resp.Error)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestGetFactorCounts_ScopeValidation(t *testing.T) {
	router := newTestRouter(&stubRepository{})

	rec := doRequest(t, router, http.MethodGet, "/factor_counts?factor=sex&sa_level=sa2", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/factor_counts?factor=sex&sa_level=postcode&sa_name=Carlton", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/factor_counts?factor=sex&sa_level=sa2&sa_name=Carlton", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetFactorCounts_ReturnsBreakdown(t *testing.T) {
	repo := &stubRepository{
		factorCounts: []repository.RawFactorCount{
			{RawValue: strPtr("M"), Severity: "Other injury accident", Count: 3},
			{RawValue: strPtr("F"), Severity: "Serious injury accident", Count: 2},
		},
	}
	router := newTestRouter(repo)

	rec := doRequest(t, router, http.MethodGet, "/factor_counts?factor=sex", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var rows []models.FactorCountRow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Equal(t, []models.FactorCountRow{
		{Category: "M", Severity: models.SeverityInjury, Count: 3},
		{Category: "F", Severity: models.SeveritySeriousInjury, Count: 2},
	}, rows)
}

func TestGetYearlyTrend_EmptyRangeIsEmptyArray(t *testing.T) {
	router := newTestRouter(&stubRepository{})

	rec := doRequest(t, router, http.MethodGet, "/trends/yearly?year_from=1990&year_to=1991", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestGetYearlyTrend_YearBounds(t *testing.T) {
	router := newTestRouter(&stubRepository{})

	rec := doRequest(t, router, http.MethodGet, "/trends/yearly?year_from=1776", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/trends/yearly?year_to=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetMonthlyTrend_RequiresYear(t *testing.T) {
	router := newTestRouter(&stubRepository{})

	rec := doRequest(t, router, http.MethodGet, "/trends/monthly", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetMonthlyTrend_TwelveRows(t *testing.T) {
	repo := &stubRepository{
		monthlyCounts: []repository.MonthlyCount{
			{Month: 6, Crashes: 11, TotalInjuries: 14, SeriousInjuries: 3},
		},
	}
	router := newTestRouter(repo)

	rec := doRequest(t, router, http.MethodGet, "/trends/monthly?year=2023", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.MonthlyTrendResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2023, resp.Year)
	require.Len(t, resp.Data, 12)
	assert.Equal(t, "2023-06", resp.Data[5].Period)
	assert.Equal(t, int64(11), resp.Data[5].Crashes)
	assert.Zero(t, resp.Data[0].Crashes)
}

func TestGetYearlyForecast_NoData(t *testing.T) {
	router := newTestRouter(&stubRepository{})

	rec := doRequest(t, router, http.MethodGet, "/forecast/yearly?year_from=1990&year_to=1995", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "No data in the specified range.", resp.Error)
}

func TestGetYearlyForecast_InvalidMethod(t *testing.T) {
	router := newTestRouter(&stubRepository{})

	rec := doRequest(t, router, http.MethodGet, "/forecast/yearly?method=arima", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetYearlyForecast_MeanOmitsModelInfo(t *testing.T) {
	repo := &stubRepository{
		yearlyTrend: []models.YearlyTrendItem{
			{Year: 2020, Crashes: 10},
			{Year: 2021, Crashes: 20},
		},
	}
	router := newTestRouter(repo)

	rec := doRequest(t, router, http.MethodGet, "/forecast/yearly?year_from=2020&year_to=2021&target_year=2022&method=mean", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var payload map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "null", string(payload["model_info"]))

	var result models.ForecastResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "mean", result.Method)
	assert.Equal(t, 2022, result.ForecastYear)
	assert.Equal(t, int64(15), result.Forecast.Crashes)
}

func TestGetDistinctAreaNames(t *testing.T) {
	repo := &stubRepository{areaNames: []string{"Brunswick", "Carlton"}}
	router := newTestRouter(repo)

	for _, path := range []string{"/distinct_sa2", "/distinct_sa3", "/distinct_sa4"} {
		rec := doRequest(t, router, http.MethodGet, path, nil)
		require.Equalf(t, http.StatusOK, rec.Code, "%s status", path)

		var names []string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &names))
		assert.Equal(t, []string{"Brunswick", "Carlton"}, names)
	}
}

func TestGetMaxAccidentDate(t *testing.T) {
	latest := time.Date(2024, 12, 14, 0, 0, 0, 0, time.UTC)
	router := newTestRouter(&stubRepository{maxDate: &latest})

	rec := doRequest(t, router, http.MethodGet, "/max_accident_date", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `"2024-12-14"`, rec.Body.String())
}

func TestGetMaxAccidentDate_EmptyStore(t *testing.T) {
	router := newTestRouter(&stubRepository{})

	rec := doRequest(t, router, http.MethodGet, "/max_accident_date", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "null", rec.Body.String())
}

func TestPostAccidentStats_HierarchyRejected(t *testing.T) {
	router := newTestRouter(&stubRepository{})

	rec := doRequest(t, router, http.MethodPost, "/accident_stats", map[string]interface{}{
		"filter_area_level":   "sa2",
		"filter_area_name":    "Carlton",
		"group_by_area_level": "sa3",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostAccidentStats_ValidRequest(t *testing.T) {
	router := newTestRouter(&stubRepository{})

	rec := doRequest(t, router, http.MethodPost, "/accident_stats", map[string]interface{}{
		"filter_area_level":   "sa4",
		"filter_area_name":    "Melbourne - Inner",
		"group_by_area_level": "sa3",
		"date_from":           "2020-01-01",
		"date_to":             "2024-12-31",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestPostRoadAccidentDensity_Validation(t *testing.T) {
	router := newTestRouter(&stubRepository{})

	rec := doRequest(t, router, http.MethodPost, "/road_accident_density", map[string]interface{}{
		"sa_level": "sa2",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/road_accident_density", map[string]interface{}{
		"sa_level":  "sa2",
		"sa_name":   "Carlton",
		"road_type": "autobahn",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/road_accident_density", map[string]interface{}{
		"sa_level": "sa9",
		"sa_name":  "Carlton",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/road_accident_density", map[string]interface{}{
		"sa_level": "sa2",
		"sa_name":  "Carlton",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetCorridorCrashDensity_RequiredParams(t *testing.T) {
	router := newTestRouter(&stubRepository{})

	rec := doRequest(t, router, http.MethodGet, "/corridor_crash_density?road_name=High+Street", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodGet,
		"/corridor_crash_density?region_level=galaxy&region_name=Darebin&road_name=High+Street&start_date=2020-01-01&end_date=2024-12-31", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodGet,
		"/corridor_crash_density?region_level=sa3&region_name=Darebin&road_name=High+Street&start_date=2020-01-01&end_date=2024-12-31", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetBlackspotCrashDensity_UnknownStructureType(t *testing.T) {
	router := newTestRouter(&stubRepository{})

	rec := doRequest(t, router, http.MethodGet,
		"/blackspot_crash_density?region_level=sa3&region_name=Darebin&road_name=High+Street&start_date=2020-01-01&end_date=2024-12-31&structure_types=trebuchet", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodGet,
		"/blackspot_crash_density?region_level=lga&region_name=Darebin&road_name=High+Street&start_date=2020-01-01&end_date=2024-12-31", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthCheck(t *testing.T) {
	router := newTestRouter(&stubRepository{})

	rec := doRequest(t, router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func strPtr(s string) *string {
	return &s
}
