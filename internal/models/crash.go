package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Severity labels exposed by the API. Fatal and non-injury accidents never
// feed factor breakdowns, so these two are the only countable classes.
const (
	SeverityInjury        = "Injury"
	SeveritySeriousInjury = "SeriousInjury"
)

// Raw severity labels as stored in the accident table.
const (
	rawSeverityOtherInjury   = "Other injury accident"
	rawSeveritySeriousInjury = "Serious injury accident"
)

// NormalizeSeverity maps a raw accident severity label to its countable
// class. The second return is false for fatal, non-injury and unknown
// severities, which are excluded from all factor results.
func NormalizeSeverity(raw string) (string, bool) {
	switch raw {
	case rawSeverityOtherInjury:
		return SeverityInjury, true
	case rawSeveritySeriousInjury:
		return SeveritySeriousInjury, true
	default:
		return "", false
	}
}

// CountableSeverities returns the raw severity labels that participate in
// factor aggregation, for use as bound query parameters.
func CountableSeverities() []string {
	return []string{rawSeverityOtherInjury, rawSeveritySeriousInjury}
}

// FactorCountRow is one (category, severity) cell of a factor breakdown.
type FactorCountRow struct {
	Category string `json:"category" db:"category"`
	Severity string `json:"severity" db:"severity"`
	Count    int64  `json:"count" db:"count"`
}

// Accident represents one crash record from the Victorian open-data extract.
// Nullable attributes are pointers so absent values survive the round trip
// to PostgreSQL as NULL.
type Accident struct {
	AccidentNo     string     `json:"accident_no" db:"accident_no"`
	AccidentDate   time.Time  `json:"accident_date" db:"accident_date"`
	AccidentTime   *string    `json:"accident_time,omitempty" db:"accident_time"`
	Severity       string     `json:"severity" db:"severity"`
	SpeedZone      *string    `json:"speed_zone,omitempty" db:"speed_zone"`
	LightCondition *string    `json:"light_condition,omitempty" db:"light_condition"`
	RoadGeometry   *string    `json:"road_geometry,omitempty" db:"road_geometry"`
	InjOrFatal     int        `json:"inj_or_fatal" db:"inj_or_fatal"`
	SeriousInjury  int        `json:"seriousinjury" db:"seriousinjury"`
	Longitude      float64    `json:"longitude" db:"longitude"`
	Latitude       float64    `json:"latitude" db:"latitude"`
}

// Person represents one person involved in a crash.
type Person struct {
	AccidentNo       string  `json:"accident_no" db:"accident_no"`
	Sex              *string `json:"sex,omitempty" db:"sex"`
	AgeGroup         *string `json:"age_group,omitempty" db:"age_group"`
	HelmetBeltWorn   *string `json:"helmet_belt_worn,omitempty" db:"helmet_belt_worn"`
	RoadUserTypeDesc *string `json:"road_user_type_desc,omitempty" db:"road_user_type_desc"`
	TakenHospital    *string `json:"taken_hospital,omitempty" db:"taken_hospital"`
}

// RawCrashRecord is a single line from a crash CSV extract, prior to
// validation. Used during ingestion.
type RawCrashRecord struct {
	AccidentNo    string
	Date          string
	Time          string
	Severity      string
	SpeedZone     string
	LightCond     string
	RoadGeometry  string
	InjOrFatal    string
	SeriousInjury string
	Longitude     string
	Latitude      string
}

// ToAccident converts a RawCrashRecord into an Accident, validating the
// date and coordinate fields. Empty optional attributes become NULL.
func (r *RawCrashRecord) ToAccident() (*Accident, error) {
	date, err := time.Parse("2006-01-02", strings.TrimSpace(r.Date))
	if err != nil {
		return nil, &ValidationError{
			Field:   "accident_date",
			Value:   r.Date,
			Message: "invalid date format, expected YYYY-MM-DD",
		}
	}

	lon, err := strconv.ParseFloat(strings.TrimSpace(r.Longitude), 64)
	if err != nil {
		return nil, &ValidationError{
			Field:   "longitude",
			Value:   r.Longitude,
			Message: "invalid longitude",
		}
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(r.Latitude), 64)
	if err != nil {
		return nil, &ValidationError{
			Field:   "latitude",
			Value:   r.Latitude,
			Message: "invalid latitude",
		}
	}

	acc := &Accident{
		AccidentNo:   strings.TrimSpace(r.AccidentNo),
		AccidentDate: date,
		Severity:     strings.TrimSpace(r.Severity),
		Longitude:    lon,
		Latitude:     lat,
	}

	if acc.AccidentNo == "" {
		return nil, &ValidationError{
			Field:   "accident_no",
			Value:   r.AccidentNo,
			Message: "accident_no is required",
		}
	}

	if v := strings.TrimSpace(r.Time); v != "" {
		acc.AccidentTime = &v
	}
	if v := strings.TrimSpace(r.SpeedZone); v != "" {
		acc.SpeedZone = &v
	}
	if v := strings.TrimSpace(r.LightCond); v != "" {
		acc.LightCondition = &v
	}
	if v := strings.TrimSpace(r.RoadGeometry); v != "" {
		acc.RoadGeometry = &v
	}

	if n, err := strconv.Atoi(strings.TrimSpace(r.InjOrFatal)); err == nil {
		acc.InjOrFatal = n
	}
	if n, err := strconv.Atoi(strings.TrimSpace(r.SeriousInjury)); err == nil {
		acc.SeriousInjury = n
	}

	return acc, nil
}

// ValidationError represents a data validation error.
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsTransient returns false as validation errors are permanent
func (e *ValidationError) IsTransient() bool {
	return false
}

// InvalidFactorError is returned when a factor identifier is not one of the
// known factor ids.
type InvalidFactorError struct {
	Factor string
}

func (e *InvalidFactorError) Error() string {
	return fmt.Sprintf("Invalid factor: %s", e.Factor)
}

func (e *InvalidFactorError) IsTransient() bool {
	return false
}

// InvalidAreaHierarchyError is returned when a requested grouping level is
// coarser than the filter level in an area-grouped aggregation.
type InvalidAreaHierarchyError struct {
	FilterLevel string
	GroupLevel  string
}

func (e *InvalidAreaHierarchyError) Error() string {
	return fmt.Sprintf("group_by level %q must not be coarser than filter level %q", e.GroupLevel, e.FilterLevel)
}

func (e *InvalidAreaHierarchyError) IsTransient() bool {
	return false
}
