package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// AccidentStatsQuery filters and groups accident counts by statistical area.
type AccidentStatsQuery struct {
	FilterLevel string // sa2 | sa3 | sa4
	FilterName  string
	GroupLevel  string // sa2 | sa3
	DateFrom    *time.Time
	DateTo      *time.Time
	OrderBy     string // count | density
	OrderDesc   bool
	Limit       int
}

// AreaStatsRow is one grouped area with its accident count and density.
type AreaStatsRow struct {
	NumAccidents float64 `json:"num_accs" db:"num_accs"`
	AreaSqKm     float64 `json:"geom_area_sq_km" db:"geom_area_sq_km"`
	AccPerSqKm   float64 `json:"acc_per_sq_km" db:"acc_per_sq_km"`
	CentroidLat  float64 `json:"centroid_lat" db:"centroid_lat"`
	CentroidLon  float64 `json:"centroid_lon" db:"centroid_lon"`
	AreaName     string  `json:"sa_name" db:"sa_name"`
	GeomWKT      string  `json:"geom" db:"geom"`
}

// groupLevelColumns restricts grouping to the two finer statistical levels.
var groupLevelColumns = map[string]string{
	"sa2": "sa2_name21",
	"sa3": "sa3_name21",
}

// roadRegionColumns maps region levels onto vicmap_road columns.
var roadRegionColumns = map[string]string{
	"sa2": "sa2_name21",
	"sa3": "sa3_name21",
}

// AccidentStats counts accidents per grouped statistical area inside a
// filter area, with optional date bounds, ordered by count or density.
func (r *crashRepository) AccidentStats(ctx context.Context, q AccidentStatsQuery) ([]AreaStatsRow, error) {
	filterCol, err := AreaLevelColumn(q.FilterLevel)
	if err != nil {
		return nil, err
	}
	groupCol, ok := groupLevelColumns[strings.ToLower(q.GroupLevel)]
	if !ok {
		return nil, fmt.Errorf("unknown group level: %s", q.GroupLevel)
	}

	args := []interface{}{q.FilterName}
	argNum := 2

	accWhere := ""
	if q.DateFrom != nil {
		accWhere += fmt.Sprintf(" AND a.accident_date >= $%d", argNum)
		args = append(args, *q.DateFrom)
		argNum++
	}
	if q.DateTo != nil {
		accWhere += fmt.Sprintf(" AND a.accident_date <= $%d", argNum)
		args = append(args, *q.DateTo)
		argNum++
	}

	direction := "ASC"
	if q.OrderDesc {
		direction = "DESC"
	}

	var orderClause string
	switch q.OrderBy {
	case "density":
		orderClause = fmt.Sprintf("ORDER BY COUNT(a.accident_no)/(ST_Area(s.geom::geography)/1000000) %s", direction)
	default:
		orderClause = fmt.Sprintf("ORDER BY COUNT(a.accident_no) %s", direction)
	}

	query := fmt.Sprintf(`
		WITH sas AS (
			SELECT
				ST_Union(mbv.geom) AS geom,
				mbv.%s AS sa_name
			FROM mesh_block_vic_21 mbv
			WHERE lower(mbv.%s) = lower($1)
			  AND mbv.%s IS NOT NULL
			GROUP BY sa_name
		)
		SELECT
			COUNT(a.accident_no) AS num_accs,
			ST_Area(s.geom::geography)/1000000 AS geom_area_sq_km,
			COUNT(a.accident_no)/(ST_Area(s.geom::geography)/1000000) AS acc_per_sq_km,
			ST_Y(ST_Centroid(ST_Transform(s.geom, 4326))) AS centroid_lat,
			ST_X(ST_Centroid(ST_Transform(s.geom, 4326))) AS centroid_lon,
			s.sa_name,
			ST_AsText(s.geom) AS geom
		FROM accident a
		JOIN sas s ON ST_Contains(s.geom, a.geom)
		WHERE 1=1 %s
		GROUP BY s.sa_name, s.geom
		%s
		LIMIT $%d
	`, groupCol, filterCol, groupCol, accWhere, orderClause, argNum)

	args = append(args, q.Limit)

	var rows []AreaStatsRow
	if err := r.db.SelectContext(ctx, "accident_stats", &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query accident stats: %w", err)
	}

	return rows, nil
}

// RoadDensityQuery filters the nearest-road accident density aggregation.
type RoadDensityQuery struct {
	SALevel  string // sa2 | sa3
	SAName   string
	RoadType string

	DateFrom time.Time
	DateTo   time.Time
	TimeFrom *string
	TimeTo   *string

	Severity            *string
	SpeedZone           *string
	AgeGroup            *string
	Sex                 *string
	RoadUserTypeDesc    *string
	VictimsHospitalised *string
	AtmosphCondDesc     *string

	MinAccidentsPerRoad *int
	MinRoadLengthKm     *float64

	OrderBy   string // accident_count | accident_density_per_km
	OrderDesc bool
	Limit     int
}

// RoadDensityRow is one road with its accident count and per-km density.
type RoadDensityRow struct {
	RoadName             string  `json:"road_name" db:"road_name"`
	AccGeomUnion         string  `json:"acc_geom_union" db:"acc_geom_union"`
	RoadGeom             string  `json:"road_geom" db:"road_geom"`
	AccidentCount        int64   `json:"accident_count" db:"accident_count"`
	RoadLengthKm         float64 `json:"road_length_km" db:"road_length_km"`
	AccidentDensityPerKm float64 `json:"accident_density_per_km" db:"accident_density_per_km"`
}

// RoadAccidentDensity matches accidents in an area to their nearest road of
// the requested type (within 5 m) and reports per-road densities.
func (r *crashRepository) RoadAccidentDensity(ctx context.Context, q RoadDensityQuery) ([]RoadDensityRow, error) {
	saCol, ok := roadRegionColumns[strings.ToLower(q.SALevel)]
	if !ok {
		return nil, fmt.Errorf("unknown area level: %s", q.SALevel)
	}

	args := []interface{}{q.SAName, q.RoadType, q.DateFrom, q.DateTo}
	argNum := 5

	var accFilters strings.Builder
	addFilter := func(clause string, value interface{}) {
		fmt.Fprintf(&accFilters, " AND "+clause, argNum)
		args = append(args, value)
		argNum++
	}

	if q.TimeFrom != nil && q.TimeTo != nil {
		fmt.Fprintf(&accFilters, " AND a.accident_time BETWEEN $%d AND $%d", argNum, argNum+1)
		args = append(args, *q.TimeFrom, *q.TimeTo)
		argNum += 2
	}
	if q.Severity != nil {
		addFilter("lower(a.severity) = lower($%d)", *q.Severity)
	}
	if q.SpeedZone != nil {
		addFilter("lower(a.speed_zone) = lower($%d)", *q.SpeedZone)
	}
	if q.AgeGroup != nil {
		addFilter("p.age_group = $%d", *q.AgeGroup)
	}
	if q.Sex != nil {
		addFilter("p.sex = $%d", *q.Sex)
	}
	if q.RoadUserTypeDesc != nil {
		addFilter("lower(p.road_user_type_desc) = lower($%d)", *q.RoadUserTypeDesc)
	}
	if q.VictimsHospitalised != nil {
		addFilter("lower(p.taken_hospital) = $%d", *q.VictimsHospitalised)
	}
	if q.AtmosphCondDesc != nil {
		addFilter("lower(ac.atmosph_cond_desc) = lower($%d)", *q.AtmosphCondDesc)
	}

	var having []string
	if q.MinAccidentsPerRoad != nil {
		having = append(having, fmt.Sprintf("COUNT(*) > $%d", argNum))
		args = append(args, *q.MinAccidentsPerRoad)
		argNum++
	}
	if q.MinRoadLengthKm != nil {
		having = append(having, fmt.Sprintf("ST_Length(r.geom::geography)/1000 > $%d", argNum))
		args = append(args, *q.MinRoadLengthKm)
		argNum++
	}
	havingClause := ""
	if len(having) > 0 {
		havingClause = "HAVING " + strings.Join(having, " AND ")
	}

	var orderColumn string
	switch q.OrderBy {
	case "accident_count":
		orderColumn = "accident_count"
	default:
		orderColumn = "accident_density_per_km"
	}
	direction := "ASC"
	if q.OrderDesc {
		direction = "DESC"
	}

	query := fmt.Sprintf(`
		WITH sax AS (
			SELECT ST_Union(mbv.geom) AS geom
			FROM mesh_block_vic_21 mbv
			WHERE lower(mbv.%s) = lower($1)
		),
		roads_in_sax AS (
			SELECT ST_Union(vr.geom) AS geom, vr.ezirdnmlbl AS road_name
			FROM vicmap_road vr, sax
			WHERE ST_Intersects(vr.geom, sax.geom)
			  AND vr.h_road_type = $2
			GROUP BY road_name
		),
		accidents_in_sax AS (
			SELECT a.geom
			FROM accident a
			JOIN person p ON a.accident_no = p.accident_no
			JOIN accident_conditions ac ON a.accident_no = ac.accident_no,
			sax
			WHERE ST_Intersects(a.geom, sax.geom)
			  AND a.accident_date BETWEEN $3 AND $4
			  %s
		)
		SELECT
			r.road_name,
			ST_AsText(ST_Union(a.geom)::geography) AS acc_geom_union,
			ST_AsText(r.geom::geography) AS road_geom,
			COUNT(*) AS accident_count,
			ST_Length(r.geom::geography)/1000 AS road_length_km,
			COUNT(*)/(ST_Length(r.geom::geography)/1000) AS accident_density_per_km
		FROM accidents_in_sax a
		JOIN LATERAL (
			SELECT road_name, rm.geom
			FROM roads_in_sax rm
			ORDER BY rm.geom <-> a.geom
			LIMIT 1
		) r ON true
		WHERE ST_DWithin(a.geom::geography, r.geom::geography, 5)
		GROUP BY r.road_name, r.geom
		%s
		ORDER BY %s %s
		LIMIT $%d
	`, saCol, accFilters.String(), havingClause, orderColumn, direction, argNum)

	args = append(args, q.Limit)

	var rows []RoadDensityRow
	if err := r.db.SelectContext(ctx, "road_accident_density", &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query road accident density: %w", err)
	}

	return rows, nil
}

// CorridorQuery filters crash density along the segments of one named road.
type CorridorQuery struct {
	RegionLevel string // sa2 | sa3
	RegionName  string
	RoadName    string
	StartDate   time.Time
	EndDate     time.Time
	StartTime   *string
	EndTime     *string
	OrderBy     string // density | count
	OrderAsc    bool
	Limit       int
}

// CorridorRow is one road segment with its crash count and per-km density.
type CorridorRow struct {
	SegmentGeom string  `db:"rs_geom"`
	RoadName    string  `db:"road_name"`
	SegType     string  `db:"seg_type"`
	NumAccs     int64   `db:"num_accs"`
	AccsPerKm   float64 `db:"accs_per_km"`
}

// CorridorCrashDensity reports crash counts within 10 m of each segment of
// a named road inside a region.
func (r *crashRepository) CorridorCrashDensity(ctx context.Context, q CorridorQuery) ([]CorridorRow, error) {
	regionCol, ok := roadRegionColumns[strings.ToLower(q.RegionLevel)]
	if !ok {
		return nil, fmt.Errorf("unknown region level: %s", q.RegionLevel)
	}

	args := []interface{}{q.RegionName, q.RoadName, q.StartDate, q.EndDate}
	argNum := 5

	timeFilter := ""
	if q.StartTime != nil && q.EndTime != nil {
		timeFilter = fmt.Sprintf("AND a.accident_time BETWEEN $%d AND $%d", argNum, argNum+1)
		args = append(args, *q.StartTime, *q.EndTime)
		argNum += 2
	}

	orderColumn := "accs_per_km"
	if q.OrderBy == "count" {
		orderColumn = "num_accs"
	}
	direction := "DESC"
	if q.OrderAsc {
		direction = "ASC"
	}

	query := fmt.Sprintf(`
		WITH road_segments_in_sax AS (
			SELECT vr.geom,
			       ST_Length(vr.geom::geography)/1000 AS seg_length_km,
			       vr.ezirdnmlbl AS road_name,
			       vr.ftype_code AS seg_type
			FROM vicmap_road vr
			WHERE lower(vr.%s) = lower($1)
			  AND lower(vr.ezirdnmlbl) = lower($2)
		),
		acc_in_rs AS (
			SELECT a.accident_no,
			       rs.geom AS rs_geom,
			       rs.road_name,
			       rs.seg_length_km,
			       rs.seg_type
			FROM accident a
			JOIN road_segments_in_sax rs
			  ON ST_DWithin(a.geom::geography, rs.geom::geography, 10)
			WHERE a.accident_date BETWEEN $3 AND $4
			  %s
		)
		SELECT ST_AsText(a.rs_geom) AS rs_geom,
		       a.road_name,
		       a.seg_type,
		       COUNT(a.accident_no) AS num_accs,
		       COUNT(a.accident_no)/a.seg_length_km AS accs_per_km
		FROM acc_in_rs a
		GROUP BY a.rs_geom, a.road_name, a.seg_type, a.seg_length_km
		ORDER BY %s %s
		LIMIT $%d
	`, regionCol, timeFilter, orderColumn, direction, argNum)

	args = append(args, q.Limit)

	var rows []CorridorRow
	if err := r.db.SelectContext(ctx, "corridor_crash_density", &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query corridor crash density: %w", err)
	}

	return rows, nil
}

// BlackspotQuery filters crash counts near structures on one named road.
type BlackspotQuery struct {
	RegionLevel    string // sa2 | sa3
	RegionName     string
	RoadName       string
	StartDate      time.Time
	EndDate        time.Time
	StartTime      *string
	EndTime        *string
	StructureTypes []string
	OrderAsc       bool
	Limit          int
}

// BlackspotRow is one road structure with its nearby crash count.
type BlackspotRow struct {
	NumAccidents  int64  `db:"num_accidents"`
	StructureGeom string `db:"rs_geom"`
	RoadName      string `db:"road_name"`
	StructType    string `db:"struct_type"`
}

// BlackspotCrashDensity counts crashes within 10 m of road structures that
// sit within 5 m of a named road. Structure types arrive pre-validated
// against a closed allow-list and are bound as an array parameter.
func (r *crashRepository) BlackspotCrashDensity(ctx context.Context, q BlackspotQuery) ([]BlackspotRow, error) {
	regionCol, ok := roadRegionColumns[strings.ToLower(q.RegionLevel)]
	if !ok {
		return nil, fmt.Errorf("unknown region level: %s", q.RegionLevel)
	}

	args := []interface{}{q.RegionName, q.RoadName, q.StartDate, q.EndDate}
	argNum := 5

	structFilter := ""
	if len(q.StructureTypes) > 0 {
		structFilter = fmt.Sprintf("WHERE vrs.ftype_code = ANY($%d)", argNum)
		args = append(args, pq.Array(q.StructureTypes))
		argNum++
	}

	timeFilter := ""
	if q.StartTime != nil && q.EndTime != nil {
		timeFilter = fmt.Sprintf("AND a.accident_time BETWEEN $%d AND $%d", argNum, argNum+1)
		args = append(args, *q.StartTime, *q.EndTime)
		argNum += 2
	}

	direction := "DESC"
	if q.OrderAsc {
		direction = "ASC"
	}

	query := fmt.Sprintf(`
		WITH road AS (
			SELECT ST_Union(vr.geom) AS geom,
			       vr.ezirdnmlbl AS road_name
			FROM vicmap_road vr
			WHERE lower(vr.ezirdnmlbl) = lower($2)
			  AND lower(vr.%s) = lower($1)
			GROUP BY vr.ezirdnmlbl
		),
		rs_in_road AS (
			SELECT vrs.geom,
			       vrs.ftype_code AS struct_type,
			       road.road_name
			FROM vicmap_road_structures vrs
			JOIN road ON ST_DWithin(vrs.geom::geography, road.geom::geography, 5)
			%s
		)
		SELECT COUNT(a.accident_no) AS num_accidents,
		       ST_AsText(rs.geom) AS rs_geom,
		       rs.road_name,
		       rs.struct_type
		FROM accident a
		JOIN rs_in_road rs ON ST_DWithin(a.geom::geography, rs.geom::geography, 10)
		WHERE a.accident_date BETWEEN $3 AND $4
		%s
		GROUP BY rs.geom, rs.road_name, rs.struct_type
		ORDER BY COUNT(a.accident_no) %s
		LIMIT $%d
	`, regionCol, structFilter, timeFilter, direction, argNum)

	args = append(args, q.Limit)

	var rows []BlackspotRow
	if err := r.db.SelectContext(ctx, "blackspot_crash_density", &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query blackspot crash density: %w", err)
	}

	return rows, nil
}
