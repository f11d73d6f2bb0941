package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"crash-analytics/internal/models"
	"crash-analytics/internal/repository"
	"crash-analytics/internal/services"
	"crash-analytics/pkg/logging"
	"crash-analytics/pkg/metrics"
)

// CrashHandler handles the crash analytics API endpoints
type CrashHandler struct {
	factorService   *services.FactorService
	trendService    *services.TrendService
	forecastService *services.ForecastService
	spatialService  *services.SpatialService
	logger          *logging.StructuredLogger
	metrics         *metrics.Collector
}

// NewCrashHandler creates a new crash handler
func NewCrashHandler(
	factorService *services.FactorService,
	trendService *services.TrendService,
	forecastService *services.ForecastService,
	spatialService *services.SpatialService,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *CrashHandler {
	return &CrashHandler{
		factorService:   factorService,
		trendService:    trendService,
		forecastService: forecastService,
		spatialService:  spatialService,
		logger:          logger,
		metrics:         metricsCollector,
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// GetFactorCounts handles GET /factor_counts
func (h *CrashHandler) GetFactorCounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	defer func() {
		duration := time.Since(startTime)
		h.metrics.APIRequestDuration.WithLabelValues("/factor_counts").Observe(duration.Seconds())
	}()

	factor := r.URL.Query().Get("factor")
	saLevel := r.URL.Query().Get("sa_level")
	saName := r.URL.Query().Get("sa_name")

	var scope *repository.AreaScope
	if saLevel != "" || saName != "" {
		if saLevel == "" || saName == "" {
			h.sendError(w, r, "sa_level and sa_name must be supplied together", http.StatusBadRequest)
			return
		}
		if _, err := repository.AreaLevelColumn(saLevel); err != nil {
			h.sendError(w, r, fmt.Sprintf("invalid sa_level: %s, expected sa2|sa3|sa4", saLevel), http.StatusBadRequest)
			return
		}
		scope = &repository.AreaScope{Level: strings.ToLower(saLevel), Name: saName}
	}

	rows, err := h.factorService.ComputeFactorCounts(ctx, factor, scope)
	if err != nil {
		h.handleServiceError(ctx, w, r, "/factor_counts", err)
		return
	}

	h.metrics.RecordAPIRequest("/factor_counts", "GET", "200")
	h.sendJSON(w, rows, http.StatusOK)
}

// GetYearlyTrend handles GET /trends/yearly
func (h *CrashHandler) GetYearlyTrend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	defer func() {
		duration := time.Since(startTime)
		h.metrics.APIRequestDuration.WithLabelValues("/trends/yearly").Observe(duration.Seconds())
	}()

	yearFrom, err := h.yearParam(r, "year_from", 2020)
	if err != nil {
		h.sendError(w, r, err.Error(), http.StatusBadRequest)
		return
	}
	yearTo, err := h.yearParam(r, "year_to", 2024)
	if err != nil {
		h.sendError(w, r, err.Error(), http.StatusBadRequest)
		return
	}

	rows, err := h.trendService.YearlyTrend(ctx, yearFrom, yearTo)
	if err != nil {
		h.handleServiceError(ctx, w, r, "/trends/yearly", err)
		return
	}

	if rows == nil {
		rows = []models.YearlyTrendItem{}
	}

	h.metrics.RecordAPIRequest("/trends/yearly", "GET", "200")
	h.sendJSON(w, rows, http.StatusOK)
}

// GetMonthlyTrend handles GET /trends/monthly
func (h *CrashHandler) GetMonthlyTrend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	defer func() {
		duration := time.Since(startTime)
		h.metrics.APIRequestDuration.WithLabelValues("/trends/monthly").Observe(duration.Seconds())
	}()

	year, err := h.yearParam(r, "year", 0)
	if err != nil {
		h.sendError(w, r, err.Error(), http.StatusBadRequest)
		return
	}
	if year == 0 {
		h.sendError(w, r, "year is required", http.StatusBadRequest)
		return
	}

	response, err := h.trendService.MonthlyTrend(ctx, year)
	if err != nil {
		h.handleServiceError(ctx, w, r, "/trends/monthly", err)
		return
	}

	h.metrics.RecordAPIRequest("/trends/monthly", "GET", "200")
	h.sendJSON(w, response, http.StatusOK)
}

// GetYearlyForecast handles GET /forecast/yearly
func (h *CrashHandler) GetYearlyForecast(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	defer func() {
		duration := time.Since(startTime)
		h.metrics.APIRequestDuration.WithLabelValues("/forecast/yearly").Observe(duration.Seconds())
	}()

	yearFrom, err := h.yearParam(r, "year_from", 2012)
	if err != nil {
		h.sendError(w, r, err.Error(), http.StatusBadRequest)
		return
	}
	yearTo, err := h.yearParam(r, "year_to", 2024)
	if err != nil {
		h.sendError(w, r, err.Error(), http.StatusBadRequest)
		return
	}
	targetYear, err := h.yearParam(r, "target_year", 2025)
	if err != nil {
		h.sendError(w, r, err.Error(), http.StatusBadRequest)
		return
	}

	method := r.URL.Query().Get("method")
	if method == "" {
		method = models.ForecastMethodOLS
	}
	if method != models.ForecastMethodOLS && method != models.ForecastMethodMean {
		h.sendError(w, r, fmt.Sprintf("invalid method: %s, expected ols|mean", method), http.StatusBadRequest)
		return
	}

	result, err := h.forecastService.ForecastYearly(ctx, yearFrom, yearTo, targetYear, method)
	if err != nil {
		h.handleServiceError(ctx, w, r, "/forecast/yearly", err)
		return
	}

	h.metrics.RecordAPIRequest("/forecast/yearly", "GET", "200")
	h.sendJSON(w, result, http.StatusOK)
}

// GetDistinctAreaNames handles GET /distinct_sa2, /distinct_sa3 and
// /distinct_sa4; the level is baked into the route.
func (h *CrashHandler) GetDistinctAreaNames(level string) http.HandlerFunc {
	endpoint := "/distinct_" + level
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		names, err := h.factorService.DistinctAreaNames(ctx, level)
		if err != nil {
			h.handleServiceError(ctx, w, r, endpoint, err)
			return
		}

		if names == nil {
			names = []string{}
		}

		h.metrics.RecordAPIRequest(endpoint, "GET", "200")
		h.sendJSON(w, names, http.StatusOK)
	}
}

// GetMaxAccidentDate handles GET /max_accident_date
func (h *CrashHandler) GetMaxAccidentDate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	max, err := h.trendService.MaxAccidentDate(ctx)
	if err != nil {
		h.handleServiceError(ctx, w, r, "/max_accident_date", err)
		return
	}

	var payload *string
	if max != nil {
		formatted := max.Format("2006-01-02")
		payload = &formatted
	}

	h.metrics.RecordAPIRequest("/max_accident_date", "GET", "200")
	h.sendJSON(w, payload, http.StatusOK)
}

// AccidentStatsRequest is the POST /accident_stats request body.
type AccidentStatsRequest struct {
	FilterAreaLevel  string  `json:"filter_area_level"`
	FilterAreaName   string  `json:"filter_area_name"`
	GroupByAreaLevel string  `json:"group_by_area_level"`
	DateFrom         *string `json:"date_from"`
	DateTo           *string `json:"date_to"`
	OrderBy          string  `json:"order_by"`
	OrderDir         string  `json:"order_dir"`
	Limit            int     `json:"limit"`
}

// PostAccidentStats handles POST /accident_stats
func (h *CrashHandler) PostAccidentStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	defer func() {
		duration := time.Since(startTime)
		h.metrics.APIRequestDuration.WithLabelValues("/accident_stats").Observe(duration.Seconds())
	}()

	var req AccidentStatsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, r, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.FilterAreaName == "" {
		h.sendError(w, r, "filter_area_name is required", http.StatusBadRequest)
		return
	}
	if req.OrderBy == "" {
		req.OrderBy = "count"
	}
	if req.OrderBy != "count" && req.OrderBy != "density" {
		h.sendError(w, r, "invalid order_by, expected count|density", http.StatusBadRequest)
		return
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}
	if req.Limit > 100 {
		h.sendError(w, r, "limit must be between 1 and 100", http.StatusBadRequest)
		return
	}

	q := repository.AccidentStatsQuery{
		FilterLevel: req.FilterAreaLevel,
		FilterName:  req.FilterAreaName,
		GroupLevel:  req.GroupByAreaLevel,
		OrderBy:     req.OrderBy,
		OrderDesc:   req.OrderDir != "asc",
		Limit:       req.Limit,
	}

	var err error
	if q.DateFrom, err = h.dateParam(req.DateFrom, "date_from"); err != nil {
		h.sendError(w, r, err.Error(), http.StatusBadRequest)
		return
	}
	if q.DateTo, err = h.dateParam(req.DateTo, "date_to"); err != nil {
		h.sendError(w, r, err.Error(), http.StatusBadRequest)
		return
	}

	rows, err := h.spatialService.AccidentStats(ctx, q)
	if err != nil {
		h.handleServiceError(ctx, w, r, "/accident_stats", err)
		return
	}

	if rows == nil {
		rows = []repository.AreaStatsRow{}
	}

	h.metrics.RecordAPIRequest("/accident_stats", "POST", "200")
	h.sendJSON(w, rows, http.StatusOK)
}

// RoadAccidentDensityRequest is the POST /road_accident_density request body.
type RoadAccidentDensityRequest struct {
	SALevel  string `json:"sa_level"`
	SAName   string `json:"sa_name"`
	RoadType string `json:"road_type"`

	DateFrom *string `json:"date_from"`
	DateTo   *string `json:"date_to"`
	TimeFrom *string `json:"time_from"`
	TimeTo   *string `json:"time_to"`

	Severity            *string `json:"severity"`
	SpeedZone           *string `json:"speed_zone"`
	AgeGroup            *string `json:"age_group"`
	Sex                 *string `json:"sex"`
	RoadUserTypeDesc    *string `json:"road_user_type_desc"`
	VictimsHospitalised *string `json:"victims_hospitalised"`
	AtmosphCondDesc     *string `json:"atmosph_cond_desc"`

	MinAccidentsPerRoad *int     `json:"min_accidents_per_road"`
	MinRoadLengthKm     *float64 `json:"min_road_length_km"`

	OrderBy   string `json:"order_by"`
	OrderDesc *bool  `json:"order_desc"`
	Limit     int    `json:"limit"`
}

// PostRoadAccidentDensity handles POST /road_accident_density
func (h *CrashHandler) PostRoadAccidentDensity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	defer func() {
		duration := time.Since(startTime)
		h.metrics.APIRequestDuration.WithLabelValues("/road_accident_density").Observe(duration.Seconds())
	}()

	var req RoadAccidentDensityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, r, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.SAName == "" {
		h.sendError(w, r, "sa_name is required", http.StatusBadRequest)
		return
	}
	if req.Limit <= 0 {
		req.Limit = 5
	}
	if req.Limit > 100 {
		h.sendError(w, r, "limit must be between 1 and 100", http.StatusBadRequest)
		return
	}

	minRoadLength := req.MinRoadLengthKm
	if minRoadLength == nil {
		defaultLength := 0.2
		minRoadLength = &defaultLength
	}

	orderDesc := true
	if req.OrderDesc != nil {
		orderDesc = *req.OrderDesc
	}

	q := repository.RoadDensityQuery{
		SALevel:             req.SALevel,
		SAName:              req.SAName,
		RoadType:            req.RoadType,
		TimeFrom:            req.TimeFrom,
		TimeTo:              req.TimeTo,
		Severity:            req.Severity,
		SpeedZone:           req.SpeedZone,
		AgeGroup:            req.AgeGroup,
		Sex:                 req.Sex,
		RoadUserTypeDesc:    req.RoadUserTypeDesc,
		VictimsHospitalised: req.VictimsHospitalised,
		AtmosphCondDesc:     req.AtmosphCondDesc,
		MinAccidentsPerRoad: req.MinAccidentsPerRoad,
		MinRoadLengthKm:     minRoadLength,
		OrderBy:             req.OrderBy,
		OrderDesc:           orderDesc,
		Limit:               req.Limit,
	}

	if from, err := h.dateParam(req.DateFrom, "date_from"); err != nil {
		h.sendError(w, r, err.Error(), http.StatusBadRequest)
		return
	} else if from != nil {
		q.DateFrom = *from
	}
	if to, err := h.dateParam(req.DateTo, "date_to"); err != nil {
		h.sendError(w, r, err.Error(), http.StatusBadRequest)
		return
	} else if to != nil {
		q.DateTo = *to
	}

	rows, err := h.spatialService.RoadAccidentDensity(ctx, q)
	if err != nil {
		h.handleServiceError(ctx, w, r, "/road_accident_density", err)
		return
	}

	if rows == nil {
		rows = []repository.RoadDensityRow{}
	}

	h.metrics.RecordAPIRequest("/road_accident_density", "POST", "200")
	h.sendJSON(w, rows, http.StatusOK)
}

// GetCorridorCrashDensity handles GET /corridor_crash_density
func (h *CrashHandler) GetCorridorCrashDensity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	defer func() {
		duration := time.Since(startTime)
		h.metrics.APIRequestDuration.WithLabelValues("/corridor_crash_density").Observe(duration.Seconds())
	}()

	query := r.URL.Query()

	q := repository.CorridorQuery{
		RegionLevel: query.Get("region_level"),
		RegionName:  query.Get("region_name"),
		RoadName:    query.Get("road_name"),
		OrderBy:     query.Get("order_by"),
		OrderAsc:    query.Get("order_dir_asc") == "true",
		Limit:       10,
	}

	if q.RegionName == "" || q.RoadName == "" {
		h.sendError(w, r, "region_name and road_name are required", http.StatusBadRequest)
		return
	}

	var err error
	if q.StartDate, err = h.requiredDate(query.Get("start_date"), "start_date"); err != nil {
		h.sendError(w, r, err.Error(), http.StatusBadRequest)
		return
	}
	if q.EndDate, err = h.requiredDate(query.Get("end_date"), "end_date"); err != nil {
		h.sendError(w, r, err.Error(), http.StatusBadRequest)
		return
	}

	if v := query.Get("start_time"); v != "" {
		q.StartTime = &v
	}
	if v := query.Get("end_time"); v != "" {
		q.EndTime = &v
	}
	if v := query.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			q.Limit = n
		}
	}

	rows, err := h.spatialService.CorridorCrashDensity(ctx, q)
	if err != nil {
		h.handleServiceError(ctx, w, r, "/corridor_crash_density", err)
		return
	}

	if rows == nil {
		rows = []services.CorridorSegment{}
	}

	h.metrics.RecordAPIRequest("/corridor_crash_density", "GET", "200")
	h.sendJSON(w, rows, http.StatusOK)
}

// GetBlackspotCrashDensity handles GET /blackspot_crash_density
func (h *CrashHandler) GetBlackspotCrashDensity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	defer func() {
		duration := time.Since(startTime)
		h.metrics.APIRequestDuration.WithLabelValues("/blackspot_crash_density").Observe(duration.Seconds())
	}()

	query := r.URL.Query()

	q := repository.BlackspotQuery{
		RegionLevel:    query.Get("region_level"),
		RegionName:     query.Get("region_name"),
		RoadName:       query.Get("road_name"),
		StructureTypes: query["structure_types"],
		OrderAsc:       query.Get("order_dir_asc") == "true",
		Limit:          10,
	}

	if q.RegionName == "" || q.RoadName == "" {
		h.sendError(w, r, "region_name and road_name are required", http.StatusBadRequest)
		return
	}

	var err error
	if q.StartDate, err = h.requiredDate(query.Get("start_date"), "start_date"); err != nil {
		h.sendError(w, r, err.Error(), http.StatusBadRequest)
		return
	}
	if q.EndDate, err = h.requiredDate(query.Get("end_date"), "end_date"); err != nil {
		h.sendError(w, r, err.Error(), http.StatusBadRequest)
		return
	}

	if v := query.Get("start_time"); v != "" {
		q.StartTime = &v
	}
	if v := query.Get("end_time"); v != "" {
		q.EndTime = &v
	}
	if v := query.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			q.Limit = n
		}
	}

	rows, err := h.spatialService.BlackspotCrashDensity(ctx, q)
	if err != nil {
		h.handleServiceError(ctx, w, r, "/blackspot_crash_density", err)
		return
	}

	if rows == nil {
		rows = []services.BlackspotStructure{}
	}

	h.metrics.RecordAPIRequest("/blackspot_crash_density", "GET", "200")
	h.sendJSON(w, rows, http.StatusOK)
}

// HealthCheck handles GET /health
func (h *CrashHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	h.logger.Debug(ctx, "[HEALTH_CHECK] Health check requested", logging.Fields{})
	h.sendJSON(w, status, http.StatusOK)
}

// yearParam parses a year query parameter, applying the default when the
// parameter is absent and enforcing the accepted year bounds.
func (h *CrashHandler) yearParam(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	year, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: expected an integer", name)
	}
	if year < models.MinYear || year > models.MaxYear {
		return 0, fmt.Errorf("invalid %s: expected a year between %d and %d", name, models.MinYear, models.MaxYear)
	}
	return year, nil
}

// dateParam parses an optional YYYY-MM-DD field.
func (h *CrashHandler) dateParam(raw *string, name string) (*time.Time, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	date, err := time.Parse("2006-01-02", *raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s format, expected YYYY-MM-DD", name)
	}
	return &date, nil
}

// requiredDate parses a mandatory YYYY-MM-DD field.
func (h *CrashHandler) requiredDate(raw, name string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("%s is required", name)
	}
	date, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s format, expected YYYY-MM-DD", name)
	}
	return date, nil
}

// handleServiceError maps domain errors onto HTTP statuses: validation
// failures to 400, missing forecast history to 404, everything else to 500.
func (h *CrashHandler) handleServiceError(ctx context.Context, w http.ResponseWriter, r *http.Request, endpoint string, err error) {
	var invalidFactor *models.InvalidFactorError
	var invalidHierarchy *models.InvalidAreaHierarchyError
	var validation *models.ValidationError

	switch {
	case errors.As(err, &invalidFactor),
		errors.As(err, &invalidHierarchy),
		errors.As(err, &validation):
		h.metrics.RecordAPIError("validation_error", endpoint)
		h.sendError(w, r, err.Error(), http.StatusBadRequest)
	case errors.Is(err, services.ErrNoForecastData):
		h.metrics.RecordAPIError("no_data", endpoint)
		h.sendError(w, r, "No data in the specified range.", http.StatusNotFound)
	default:
		h.logger.Error(ctx, "[API_ERROR] Request failed", logging.Fields{
			"endpoint": endpoint,
		}, err)
		h.metrics.RecordAPIError("internal_error", endpoint)
		h.sendError(w, r, "internal server error", http.StatusInternalServerError)
	}
}

// sendJSON sends a JSON response
func (h *CrashHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// sendError sends an error response
func (h *CrashHandler) sendError(w http.ResponseWriter, r *http.Request, message string, statusCode int) {
	h.metrics.RecordAPIRequest(r.URL.Path, r.Method, strconv.Itoa(statusCode))

	response := ErrorResponse{
		Error: message,
		Code:  statusCode,
	}

	h.sendJSON(w, response, statusCode)
}

// RegisterRoutes registers all crash analytics API routes
func (h *CrashHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/factor_counts", h.GetFactorCounts).Methods("GET")
	router.HandleFunc("/trends/yearly", h.GetYearlyTrend).Methods("GET")
	router.HandleFunc("/trends/monthly", h.GetMonthlyTrend).Methods("GET")
	router.HandleFunc("/forecast/yearly", h.GetYearlyForecast).Methods("GET")
	router.HandleFunc("/distinct_sa2", h.GetDistinctAreaNames("sa2")).Methods("GET")
	router.HandleFunc("/distinct_sa3", h.GetDistinctAreaNames("sa3")).Methods("GET")
	router.HandleFunc("/distinct_sa4", h.GetDistinctAreaNames("sa4")).Methods("GET")
	router.HandleFunc("/max_accident_date", h.GetMaxAccidentDate).Methods("GET")
	router.HandleFunc("/accident_stats", h.PostAccidentStats).Methods("POST")
	router.HandleFunc("/road_accident_density", h.PostRoadAccidentDensity).Methods("POST")
	router.HandleFunc("/corridor_crash_density", h.GetCorridorCrashDensity).Methods("GET")
	router.HandleFunc("/blackspot_crash_density", h.GetBlackspotCrashDensity).Methods("GET")
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
}
