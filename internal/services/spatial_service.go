package services

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"crash-analytics/internal/models"
	"crash-analytics/internal/repository"
	"crash-analytics/pkg/logging"
	"crash-analytics/pkg/metrics"
)

// SpatialService wraps the density and area aggregation queries with
// request validation, default handling and display-label mapping.
type SpatialService struct {
	repo    repository.CrashRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewSpatialService creates a new spatial service
func NewSpatialService(repo repository.CrashRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *SpatialService {
	return &SpatialService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// areaHierarchy orders the statistical levels finest to coarsest.
var areaHierarchy = []string{"sa2", "sa3", "sa4"}

func hierarchyIndex(level string) int {
	for i, l := range areaHierarchy {
		if l == strings.ToLower(level) {
			return i
		}
	}
	return -1
}

// AccidentStats validates the area hierarchy (grouping must not be coarser
// than the filter) and runs the grouped area aggregation.
func (s *SpatialService) AccidentStats(ctx context.Context, q repository.AccidentStatsQuery) ([]repository.AreaStatsRow, error) {
	filterIdx := hierarchyIndex(q.FilterLevel)
	groupIdx := hierarchyIndex(q.GroupLevel)
	if filterIdx < 0 {
		return nil, &models.ValidationError{
			Field:   "filter_area_level",
			Value:   q.FilterLevel,
			Message: fmt.Sprintf("unknown area level: %s", q.FilterLevel),
		}
	}
	if groupIdx < 0 || groupIdx > 1 {
		return nil, &models.ValidationError{
			Field:   "group_by_area_level",
			Value:   q.GroupLevel,
			Message: fmt.Sprintf("unknown group level: %s", q.GroupLevel),
		}
	}
	if groupIdx > filterIdx {
		return nil, &models.InvalidAreaHierarchyError{
			FilterLevel: q.FilterLevel,
			GroupLevel:  q.GroupLevel,
		}
	}

	return s.repo.AccidentStats(ctx, q)
}

// roadRegionLevels is the closed set of statistical area levels the road
// density endpoints accept. Vicmap roads carry sa2/sa3 names only.
var roadRegionLevels = map[string]struct{}{
	"sa2": {},
	"sa3": {},
}

func validateRoadRegionLevel(field, level string) error {
	if _, ok := roadRegionLevels[strings.ToLower(level)]; !ok {
		return &models.ValidationError{
			Field:   field,
			Value:   level,
			Message: fmt.Sprintf("unknown area level: %s", level),
		}
	}
	return nil
}

// roadTypes is the closed set of hierarchical road classifications.
var roadTypes = map[string]struct{}{
	"commerical_and_civic":              {},
	"infrastructure":                    {},
	"major":                             {},
	"pedestrian_and_recreational_paths": {},
	"rural_and_low_traffic":             {},
	"suburban":                          {},
}

// RoadAccidentDensity validates the area level and road type and fills date-range
// defaults, then runs the nearest-road density aggregation. Major roads
// default to a shorter window because their accident volume dwarfs the
// other classes.
func (s *SpatialService) RoadAccidentDensity(ctx context.Context, q repository.RoadDensityQuery) ([]repository.RoadDensityRow, error) {
	if err := validateRoadRegionLevel("sa_level", q.SALevel); err != nil {
		return nil, err
	}
	if q.RoadType == "" {
		q.RoadType = "major"
	}
	if _, ok := roadTypes[q.RoadType]; !ok {
		return nil, &models.ValidationError{
			Field:   "road_type",
			Value:   q.RoadType,
			Message: fmt.Sprintf("unknown road type: %s", q.RoadType),
		}
	}

	if q.DateFrom.IsZero() {
		if q.RoadType == "major" {
			q.DateFrom = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
		} else {
			q.DateFrom = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
		}
	}
	if q.DateTo.IsZero() {
		q.DateTo = time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	}

	return s.repo.RoadAccidentDensity(ctx, q)
}

// segmentTypeLabels maps vicmap segment type codes to display labels.
var segmentTypeLabels = map[string]string{
	"bridge":      "Bridge",
	"connector":   "Connector Road",
	"ferry_route": "Ferry Route",
	"foot_bridge": "Footbridge",
	"ford":        "Low-Water Crossing (Ford)",
	"road":        "Road Segment",
	"roundabout":  "Roundabout",
	"trail":       "Trail or Pathway",
	"tunnel":      "Tunnel",
}

// CorridorSegment is one road segment density row with its display label.
type CorridorSegment struct {
	RoadName       string  `json:"road_name"`
	SegmentGeomWKT string  `json:"segment_geom_wkt"`
	SegmentType    string  `json:"segment_type"`
	NumAccidents   int64   `json:"num_accidents"`
	AccidentsPerKm float64 `json:"accidents_per_km"`
}

// CorridorCrashDensity runs the corridor aggregation and attaches segment
// type display labels.
func (s *SpatialService) CorridorCrashDensity(ctx context.Context, q repository.CorridorQuery) ([]CorridorSegment, error) {
	if err := validateRoadRegionLevel("region_level", q.RegionLevel); err != nil {
		return nil, err
	}

	rows, err := s.repo.CorridorCrashDensity(ctx, q)
	if err != nil {
		return nil, err
	}

	out := make([]CorridorSegment, 0, len(rows))
	for _, row := range rows {
		label := row.SegType
		if l, ok := segmentTypeLabels[row.SegType]; ok {
			label = l
		}
		out = append(out, CorridorSegment{
			RoadName:       row.RoadName,
			SegmentGeomWKT: row.SegmentGeom,
			SegmentType:    label,
			NumAccidents:   row.NumAccs,
			AccidentsPerKm: roundTo(row.AccsPerKm, 2),
		})
	}

	return out, nil
}

// structureTypeLabels is the closed allow-list of road structure types with
// their display labels. Requested types outside the list are rejected, so
// structure type identifiers never reach the query as free text.
var structureTypeLabels = map[string]string{
	"barrier":        "Road Barrier",
	"bridge":         "Bridge",
	"ford":           "Low-Water Crossing (Ford)",
	"gate":           "Road Gate",
	"int_attribute":  "Intersection (Attribute Only)",
	"int_coast":      "Coastal Intersection",
	"int_locality":   "Locality Intersection",
	"int_nosignal":   "Unsignalized Intersection",
	"int_paper":      "Paper Road Intersection",
	"int_signal":     "Signalized Intersection",
	"level_crossing": "Railway Level Crossing",
	"road_end":       "Road End",
	"roundabout":     "Roundabout",
	"tunnel":         "Tunnel",
}

// BlackspotStructure is one road structure with its nearby crash count.
type BlackspotStructure struct {
	RoadName         string `json:"road_name"`
	StructureGeomWKT string `json:"structure_geom_wkt"`
	StructureType    string `json:"structure_type"`
	NumAccidents     int64  `json:"num_accidents"`
}

// BlackspotCrashDensity validates requested structure types against the
// allow-list, runs the structure aggregation and attaches display labels.
func (s *SpatialService) BlackspotCrashDensity(ctx context.Context, q repository.BlackspotQuery) ([]BlackspotStructure, error) {
	if err := validateRoadRegionLevel("region_level", q.RegionLevel); err != nil {
		return nil, err
	}
	for _, st := range q.StructureTypes {
		if _, ok := structureTypeLabels[st]; !ok {
			return nil, &models.ValidationError{
				Field:   "structure_types",
				Value:   st,
				Message: fmt.Sprintf("unknown structure type: %s", st),
			}
		}
	}

	rows, err := s.repo.BlackspotCrashDensity(ctx, q)
	if err != nil {
		return nil, err
	}

	out := make([]BlackspotStructure, 0, len(rows))
	for _, row := range rows {
		label := row.StructType
		if l, ok := structureTypeLabels[row.StructType]; ok {
			label = l
		}
		out = append(out, BlackspotStructure{
			RoadName:         row.RoadName,
			StructureGeomWKT: row.StructureGeom,
			StructureType:    label,
			NumAccidents:     row.NumAccidents,
		})
	}

	return out, nil
}

func roundTo(v float64, places int) float64 {
	factor := 1.0
	for i := 0; i < places; i++ {
		factor *= 10
	}
	return math.Round(v*factor) / factor
}
