package models

import (
	"strconv"
	"strings"
)

// Known factor identifiers. Each one selects a categorical dimension that
// crash severity is cross-tabulated against.
const (
	FactorTimeBucket           = "time_bucket"
	FactorLightCondition       = "light_condition"
	FactorRoadGeometry         = "road_geometry"
	FactorSpeedZone            = "speed_zone"
	FactorAtmosphericCondition = "atmospheric_condition"
	FactorSex                  = "sex"
	FactorAgeGroup             = "age_group"
	FactorHelmetBeltWorn       = "helmet_belt_worn"
)

// Source entities a factor can aggregate over.
const (
	SourceAccident = "accident"
	SourcePerson   = "person"
)

// ClassifyFunc maps a raw attribute value to a normalized category label.
// A nil input represents a NULL attribute. A nil result excludes the row
// from the breakdown.
type ClassifyFunc func(raw *string) *string

// FactorSpec is the rule descriptor for one factor: where its raw values
// come from, how they are classified, and how the resulting categories are
// ordered. A single generic aggregation routine consumes these instead of
// per-factor query code.
type FactorSpec struct {
	ID        string
	Source    string
	ValueExpr string // SQL expression yielding the raw attribute, fixed per factor
	Join      string
	PreFilter string
	Classify  ClassifyFunc
	Rank      map[string]int
}

// rankUnlisted sorts categories without an explicit rank after all listed ones.
const rankUnlisted = 99

// CategoryRank returns the sort rank for a category under this spec.
func (s *FactorSpec) CategoryRank(category string) int {
	if r, ok := s.Rank[category]; ok {
		return r
	}
	return rankUnlisted
}

// factorSpecs holds the rule descriptor for every known factor. The SQL
// fragments here are fixed strings selected by factor id; request values
// never reach them.
var factorSpecs = map[string]*FactorSpec{
	FactorTimeBucket: {
		ID:        FactorTimeBucket,
		Source:    SourceAccident,
		ValueExpr: "EXTRACT(HOUR FROM a.accident_time)::text",
		Classify:  ClassifyTimeBucket,
		Rank: map[string]int{
			"Late Night": 1,
			"Morning":    2,
			"Afternoon":  3,
			"Evening":    4,
		},
	},
	FactorLightCondition: {
		ID:        FactorLightCondition,
		Source:    SourceAccident,
		ValueExpr: "a.light_condition",
		PreFilter: "AND a.light_condition IS NOT NULL AND a.light_condition <> 'Unk.'",
		Classify:  ClassifyLightCondition,
		Rank: map[string]int{
			"Day":                      1,
			"Dusk/Dawn":                2,
			"Dark Street light on":     3,
			"Dark Street light off":    4,
			"Dark Street light unknown": 5,
			"Dark No street lights":    6,
		},
	},
	FactorRoadGeometry: {
		ID:        FactorRoadGeometry,
		Source:    SourceAccident,
		ValueExpr: "a.road_geometry",
		PreFilter: "AND a.road_geometry IS NOT NULL AND a.road_geometry <> 'Unknown'",
		Classify:  ClassifyRoadGeometry,
		Rank: map[string]int{
			"Cross intersection":    1,
			"Not at intersection":   2,
			"Y intersection":        3,
			"T intersection":        4,
			"Multiple intersection": 5,
			"Private property":      6,
			"Dead end":              7,
			"Road closure":          8,
		},
	},
	FactorSpeedZone: {
		ID:        FactorSpeedZone,
		Source:    SourceAccident,
		ValueExpr: "a.speed_zone",
		PreFilter: `AND REPLACE(TRIM(a.speed_zone), ' ', '') IN (
			'30km/hr','40km/hr','50km/hr','60km/hr','70km/hr','75km/hr','80km/hr','90km/hr','100km/hr','110km/hr'
		)`,
		Classify: ClassifySpeedZone,
		Rank: map[string]int{
			"below 40":  1,
			"50 to 60":  2,
			"70 to 80":  3,
			"80 to 90":  4,
			"above 100": 5,
		},
	},
	FactorAtmosphericCondition: {
		ID:        FactorAtmosphericCondition,
		Source:    SourceAccident,
		ValueExpr: "ac.atmosph_cond_desc",
		Join:      "JOIN accident_conditions ac ON ac.accident_no = a.accident_no",
		PreFilter: `AND ac.atmosph_cond_desc IN (
			'Clear', 'Fog', 'Snowing', 'Smoke', 'Raining', 'Strong winds', 'Dust'
		)`,
		Classify: ClassifyAtmosphericCondition,
		Rank: map[string]int{
			"Clear":        1,
			"Fog":          2,
			"Snowing":      3,
			"Smoke":        4,
			"Raining":      5,
			"Strong winds": 6,
			"Dust":         7,
		},
	},
	FactorSex: {
		ID:        FactorSex,
		Source:    SourcePerson,
		ValueExpr: "p.sex",
		Join:      "JOIN accident a ON a.accident_no = p.accident_no",
		Classify:  ClassifySex,
		Rank: map[string]int{
			"M": 1,
			"F": 2,
		},
	},
	FactorAgeGroup: {
		ID:        FactorAgeGroup,
		Source:    SourcePerson,
		ValueExpr: "p.age_group",
		Join:      "JOIN accident a ON a.accident_no = p.accident_no",
		Classify:  ClassifyAgeGroup,
		Rank: map[string]int{
			"0-17":  1,
			"18-25": 2,
			"26-39": 3,
			"40-59": 4,
			"60-69": 5,
			"70+":   6,
		},
	},
	FactorHelmetBeltWorn: {
		ID:        FactorHelmetBeltWorn,
		Source:    SourcePerson,
		ValueExpr: "p.helmet_belt_worn::text",
		Join:      "JOIN accident a ON a.accident_no = p.accident_no",
		Classify:  ClassifyHelmetBeltWorn,
		Rank: map[string]int{
			"worn":     1,
			"not worn": 2,
		},
	},
}

// FactorSpecFor returns the rule descriptor for a factor id, or an
// InvalidFactorError for an unknown id.
func FactorSpecFor(factor string) (*FactorSpec, error) {
	spec, ok := factorSpecs[factor]
	if !ok {
		return nil, &InvalidFactorError{Factor: factor}
	}
	return spec, nil
}

// ValidFactors lists the known factor identifiers.
func ValidFactors() []string {
	return []string{
		FactorTimeBucket,
		FactorLightCondition,
		FactorRoadGeometry,
		FactorSpeedZone,
		FactorAtmosphericCondition,
		FactorSex,
		FactorAgeGroup,
		FactorHelmetBeltWorn,
	}
}

func category(label string) *string {
	return &label
}

// ClassifyTimeBucket buckets the accident hour into a time-of-day label.
// A NULL accident time classifies as "Unknown".
func ClassifyTimeBucket(raw *string) *string {
	if raw == nil {
		return category("Unknown")
	}
	hour, err := strconv.Atoi(strings.TrimSpace(*raw))
	if err != nil {
		return category("Unknown")
	}
	switch {
	case hour >= 0 && hour <= 5:
		return category("Late Night")
	case hour >= 6 && hour <= 11:
		return category("Morning")
	case hour >= 12 && hour <= 17:
		return category("Afternoon")
	default:
		return category("Evening")
	}
}

// ClassifyLightCondition passes the raw label through, excluding NULL and
// the "Unk." placeholder.
func ClassifyLightCondition(raw *string) *string {
	if raw == nil || *raw == "Unk." {
		return nil
	}
	return category(*raw)
}

// ClassifyRoadGeometry passes the raw label through, excluding NULL and
// "Unknown".
func ClassifyRoadGeometry(raw *string) *string {
	if raw == nil || *raw == "Unknown" {
		return nil
	}
	return category(*raw)
}

// ClassifySpeedZone buckets a raw speed zone label into a speed band. The
// raw value is trimmed and internal spaces removed before matching, so
// " 90 km/hr " and "90km/hr" classify identically. Zones outside the ten
// posted limits (off-road, camping grounds, unknown codes) are excluded.
func ClassifySpeedZone(raw *string) *string {
	if raw == nil {
		return nil
	}
	zone := strings.ReplaceAll(strings.TrimSpace(*raw), " ", "")
	switch zone {
	case "30km/hr", "40km/hr":
		return category("below 40")
	case "50km/hr", "60km/hr":
		return category("50 to 60")
	case "70km/hr", "75km/hr", "80km/hr":
		return category("70 to 80")
	case "90km/hr":
		return category("80 to 90")
	case "100km/hr", "110km/hr":
		return category("above 100")
	default:
		return nil
	}
}

// atmosphericConditions is the closed set of reportable conditions.
var atmosphericConditions = map[string]struct{}{
	"Clear":        {},
	"Fog":          {},
	"Snowing":      {},
	"Smoke":        {},
	"Raining":      {},
	"Strong winds": {},
	"Dust":         {},
}

// ClassifyAtmosphericCondition passes the raw label through when it is one
// of the reportable conditions.
func ClassifyAtmosphericCondition(raw *string) *string {
	if raw == nil {
		return nil
	}
	if _, ok := atmosphericConditions[*raw]; !ok {
		return nil
	}
	return category(*raw)
}

// ClassifySex uppercases the raw value and restricts it to M/F.
func ClassifySex(raw *string) *string {
	if raw == nil {
		return nil
	}
	sex := strings.ToUpper(*raw)
	if sex != "M" && sex != "F" {
		return nil
	}
	return category(sex)
}

// ClassifyAgeGroup collapses the fine-grained source age bands into the
// reporting bands. Unrecognized bands are excluded.
func ClassifyAgeGroup(raw *string) *string {
	if raw == nil {
		return nil
	}
	switch *raw {
	case "0-4", "5-12", "13-15", "16-17":
		return category("0-17")
	case "18-21", "22-25":
		return category("18-25")
	case "26-29", "30-39":
		return category("26-39")
	case "40-49", "50-59":
		return category("40-59")
	case "60-64", "65-69":
		return category("60-69")
	case "70+":
		return category("70+")
	default:
		return nil
	}
}

// ClassifyHelmetBeltWorn maps the coded restraint value onto worn/not worn.
// Codes 1, 3 and 6 indicate a worn restraint; 2, 4, 5 and 7 an unworn one.
func ClassifyHelmetBeltWorn(raw *string) *string {
	if raw == nil {
		return nil
	}
	switch strings.TrimSpace(*raw) {
	case "1", "3", "6":
		return category("worn")
	case "2", "4", "5", "7":
		return category("not worn")
	default:
		return nil
	}
}
