package models

// Forecast methods accepted by the yearly forecast endpoint.
const (
	ForecastMethodOLS  = "ols"
	ForecastMethodMean = "mean"
)

// Year bounds accepted on every year-valued query parameter.
const (
	MinYear = 1900
	MaxYear = 2100
)

// YearlyTrendItem is one calendar year of crash totals.
type YearlyTrendItem struct {
	Year            int   `json:"year" db:"year"`
	Crashes         int64 `json:"crashes" db:"crashes"`
	TotalInjuries   int64 `json:"total_injuries" db:"total_injuries"`
	SeriousInjuries int64 `json:"serious_injuries" db:"serious_injuries"`
}

// MonthlyTrendItem is one calendar month of crash totals, period formatted
// "YYYY-MM".
type MonthlyTrendItem struct {
	Period          string `json:"period"`
	Crashes         int64  `json:"crashes"`
	TotalInjuries   int64  `json:"total_injuries"`
	SeriousInjuries int64  `json:"serious_injuries"`
}

// MonthlyTrendResponse bundles the requested year with its 12 monthly rows.
type MonthlyTrendResponse struct {
	Year int                `json:"year"`
	Data []MonthlyTrendItem `json:"data"`
}

// ForecastResult bundles a yearly forecast with the history it was fitted
// on. ModelInfo carries per-metric fit parameters for the ols method and is
// null for mean.
type ForecastResult struct {
	Method       string                        `json:"method"`
	History      []YearlyTrendItem             `json:"history"`
	ForecastYear int                           `json:"forecast_year"`
	Forecast     YearlyTrendItem               `json:"forecast"`
	ModelInfo    map[string]map[string]float64 `json:"model_info"`
}
