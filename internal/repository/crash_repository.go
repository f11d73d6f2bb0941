package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"crash-analytics/internal/models"
	"crash-analytics/pkg/database"
	"crash-analytics/pkg/logging"
	"crash-analytics/pkg/metrics"
)

// CrashRepository provides data access for crash analytics
type CrashRepository interface {
	// Factor aggregation
	FactorCounts(ctx context.Context, spec *models.FactorSpec, scope *AreaScope) ([]RawFactorCount, error)

	// Trend aggregation
	YearlyTrend(ctx context.Context, yearFrom, yearTo int) ([]models.YearlyTrendItem, error)
	MonthlyCounts(ctx context.Context, year int) ([]MonthlyCount, error)

	// Area lookups
	DistinctAreaNames(ctx context.Context, level string) ([]string, error)
	MaxAccidentDate(ctx context.Context) (*time.Time, error)

	// Spatial aggregation
	AccidentStats(ctx context.Context, q AccidentStatsQuery) ([]AreaStatsRow, error)
	RoadAccidentDensity(ctx context.Context, q RoadDensityQuery) ([]RoadDensityRow, error)
	CorridorCrashDensity(ctx context.Context, q CorridorQuery) ([]CorridorRow, error)
	BlackspotCrashDensity(ctx context.Context, q BlackspotQuery) ([]BlackspotRow, error)

	// Ingestion operations
	CreateAccidentsBatch(ctx context.Context, accidents []*models.Accident) error
	CreatePersonsBatch(ctx context.Context, persons []*models.Person) error

	// Utility operations
	HealthCheck(ctx context.Context) error
}

// AreaScope restricts an aggregation to one SA2/SA3/SA4 area boundary,
// formed as the union of its mesh blocks.
type AreaScope struct {
	Level string
	Name  string
}

// areaLevelColumns is the closed mapping from statistical area level to the
// mesh block column holding its name. Levels never reach generated SQL any
// other way.
var areaLevelColumns = map[string]string{
	"sa2": "sa2_name21",
	"sa3": "sa3_name21",
	"sa4": "sa4_name21",
}

// AreaLevelColumn resolves an area level to its mesh block column.
func AreaLevelColumn(level string) (string, error) {
	col, ok := areaLevelColumns[strings.ToLower(level)]
	if !ok {
		return "", fmt.Errorf("unknown area level: %s", level)
	}
	return col, nil
}

// RawFactorCount is one pre-classification aggregation cell: the raw
// attribute value, the raw severity label and the number of matching rows.
type RawFactorCount struct {
	RawValue *string `db:"raw_value"`
	Severity string  `db:"severity"`
	Count    int64   `db:"count"`
}

// MonthlyCount is the aggregated totals for one calendar month that has at
// least one recorded accident.
type MonthlyCount struct {
	Month           int   `db:"month"`
	Crashes         int64 `db:"crashes"`
	TotalInjuries   int64 `db:"total_injuries"`
	SeriousInjuries int64 `db:"serious_injuries"`
}

// crashRepository implements CrashRepository
type crashRepository struct {
	db      *database.PostgresDB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewCrashRepository creates a new crash repository
func NewCrashRepository(db *database.PostgresDB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) CrashRepository {
	return &crashRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// FactorCounts runs the single grouped count query for a factor: rows
// restricted to the countable severities, optionally scoped to an area
// boundary, grouped by (raw value, severity). Classification of raw values
// into categories happens in the service layer.
func (r *crashRepository) FactorCounts(ctx context.Context, spec *models.FactorSpec, scope *AreaScope) ([]RawFactorCount, error) {
	severities := models.CountableSeverities()
	args := []interface{}{severities[0], severities[1]}

	var from string
	switch spec.Source {
	case models.SourcePerson:
		from = "FROM person p"
	default:
		from = "FROM accident a"
	}

	var b strings.Builder

	if scope != nil {
		col, err := AreaLevelColumn(scope.Level)
		if err != nil {
			return nil, err
		}
		args = append(args, scope.Name)
		fmt.Fprintf(&b, `
			WITH sax AS (
				SELECT ST_Union(mbv.geom) AS geom
				FROM mesh_block_vic_21 mbv
				WHERE lower(mbv.%s) = lower($3)
			)
		`, col)
	}

	fmt.Fprintf(&b, `
		SELECT %s AS raw_value, a.severity AS severity, COUNT(*) AS count
		%s
		%s
	`, spec.ValueExpr, from, spec.Join)

	if scope != nil {
		b.WriteString(" JOIN sax ON ST_Contains(sax.geom, a.geom)\n")
	}

	b.WriteString(" WHERE a.severity IN ($1, $2)\n")
	if spec.PreFilter != "" {
		b.WriteString(" " + spec.PreFilter + "\n")
	}
	b.WriteString(" GROUP BY raw_value, severity")

	var rows []RawFactorCount
	err := r.db.SelectContext(ctx, "factor_counts", &rows, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query factor counts: %w", err)
	}

	r.logger.Debug(ctx, "[REPO_FACTOR_COUNTS] Factor counts fetched", logging.Fields{
		"factor": spec.ID,
		"scoped": scope != nil,
		"rows":   len(rows),
	})

	return rows, nil
}

// YearlyTrend returns crash and injury totals per calendar year within the
// inclusive range. Years with no recorded accidents produce no row.
func (r *crashRepository) YearlyTrend(ctx context.Context, yearFrom, yearTo int) ([]models.YearlyTrendItem, error) {
	query := `
		SELECT
			EXTRACT(YEAR FROM accident_date)::int AS year,
			COUNT(*)                              AS crashes,
			COALESCE(SUM(inj_or_fatal), 0)        AS total_injuries,
			COALESCE(SUM(seriousinjury), 0)       AS serious_injuries
		FROM accident
		WHERE accident_date BETWEEN $1 AND $2
		GROUP BY year
		ORDER BY year
	`

	startDate := fmt.Sprintf("%04d-01-01", yearFrom)
	endDate := fmt.Sprintf("%04d-12-31", yearTo)

	var rows []models.YearlyTrendItem
	err := r.db.SelectContext(ctx, "yearly_trend", &rows, query, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query yearly trend: %w", err)
	}

	return rows, nil
}

// MonthlyCounts returns per-month totals for one calendar year, months with
// no data omitted. The service layer zero-fills the 12-slot series.
func (r *crashRepository) MonthlyCounts(ctx context.Context, year int) ([]MonthlyCount, error) {
	query := `
		SELECT
			EXTRACT(MONTH FROM accident_date)::int AS month,
			COUNT(*)                               AS crashes,
			COALESCE(SUM(inj_or_fatal), 0)         AS total_injuries,
			COALESCE(SUM(seriousinjury), 0)        AS serious_injuries
		FROM accident
		WHERE EXTRACT(YEAR FROM accident_date) = $1
		GROUP BY month
		ORDER BY month
	`

	var rows []MonthlyCount
	err := r.db.SelectContext(ctx, "monthly_counts", &rows, query, year)
	if err != nil {
		return nil, fmt.Errorf("failed to query monthly counts: %w", err)
	}

	return rows, nil
}

// DistinctAreaNames returns the sorted distinct area names at one SA level.
func (r *crashRepository) DistinctAreaNames(ctx context.Context, level string) ([]string, error) {
	col, err := AreaLevelColumn(level)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT DISTINCT %s
		FROM mesh_block_vic_21
		WHERE %s IS NOT NULL
		ORDER BY %s
	`, col, col, col)

	var names []string
	if err := r.db.SelectContext(ctx, "distinct_area_names", &names, query); err != nil {
		return nil, fmt.Errorf("failed to query distinct %s names: %w", level, err)
	}

	return names, nil
}

// MaxAccidentDate returns the most recent accident date, or nil when the
// accident table is empty.
func (r *crashRepository) MaxAccidentDate(ctx context.Context) (*time.Time, error) {
	query := `SELECT MAX(accident_date) FROM accident`

	var max *time.Time
	if err := r.db.GetContext(ctx, "max_accident_date", &max, query); err != nil {
		return nil, fmt.Errorf("failed to query max accident date: %w", err)
	}

	return max, nil
}

// CreateAccidentsBatch inserts accidents in a single transaction. Geometry
// is derived from the record coordinates in GDA2020 (EPSG:7844).
func (r *crashRepository) CreateAccidentsBatch(ctx context.Context, accidents []*models.Accident) error {
	if len(accidents) == 0 {
		return nil
	}

	timer := time.Now()
	defer func() {
		duration := time.Since(timer)
		r.metrics.IngestionBatchSize.Observe(float64(len(accidents)))
		r.logger.Debug(ctx, "[REPO_BATCH_INSERT] Accident batch insert completed", logging.Fields{
			"count":       len(accidents),
			"duration_ms": duration.Milliseconds(),
		})
	}()

	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO accident (
			accident_no, accident_date, accident_time, severity,
			speed_zone, light_condition, road_geometry,
			inj_or_fatal, seriousinjury, geom
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, ST_SetSRID(ST_MakePoint($10, $11), 7844))
		ON CONFLICT (accident_no) DO UPDATE SET
			accident_date   = EXCLUDED.accident_date,
			accident_time   = EXCLUDED.accident_time,
			severity        = EXCLUDED.severity,
			speed_zone      = EXCLUDED.speed_zone,
			light_condition = EXCLUDED.light_condition,
			road_geometry   = EXCLUDED.road_geometry,
			inj_or_fatal    = EXCLUDED.inj_or_fatal,
			seriousinjury   = EXCLUDED.seriousinjury,
			geom            = EXCLUDED.geom
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, acc := range accidents {
		_, err := stmt.ExecContext(ctx,
			acc.AccidentNo,
			acc.AccidentDate,
			acc.AccidentTime,
			acc.Severity,
			acc.SpeedZone,
			acc.LightCondition,
			acc.RoadGeometry,
			acc.InjOrFatal,
			acc.SeriousInjury,
			acc.Longitude,
			acc.Latitude,
		)
		if err != nil {
			return fmt.Errorf("failed to insert accident %s: %w", acc.AccidentNo, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.metrics.IngestionRecordsTotal.Add(float64(len(accidents)))

	return nil
}

// CreatePersonsBatch inserts person records in a single transaction.
func (r *crashRepository) CreatePersonsBatch(ctx context.Context, persons []*models.Person) error {
	if len(persons) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO person (
			accident_no, sex, age_group, helmet_belt_worn,
			road_user_type_desc, taken_hospital
		)
		VALUES ($1, $2, $3, $4, $5, $6)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, p := range persons {
		_, err := stmt.ExecContext(ctx,
			p.AccidentNo,
			p.Sex,
			p.AgeGroup,
			p.HelmetBeltWorn,
			p.RoadUserTypeDesc,
			p.TakenHospital,
		)
		if err != nil {
			return fmt.Errorf("failed to insert person for accident %s: %w", p.AccidentNo, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.metrics.IngestionRecordsTotal.Add(float64(len(persons)))

	return nil
}

// HealthCheck performs a repository health check
func (r *crashRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}
