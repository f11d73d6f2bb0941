package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"crash-analytics/internal/models"
	"crash-analytics/internal/repository"
	"crash-analytics/pkg/logging"
	"crash-analytics/pkg/metrics"
)

// IngestionService loads Victorian crash open-data CSV extracts into the
// store. Not part of the read path.
type IngestionService struct {
	repo    repository.CrashRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// IngestionResult contains ingestion statistics
type IngestionResult struct {
	TotalRecords      int
	SuccessfulRecords int
	FailedRecords     int
	Duration          time.Duration
	Errors            []string
}

// NewIngestionService creates a new ingestion service
func NewIngestionService(repo repository.CrashRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *IngestionService {
	return &IngestionService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// IngestAccidents loads an accident CSV extract in batches. Rows that fail
// validation are skipped and counted, never aborting the load.
func (s *IngestionService) IngestAccidents(ctx context.Context, filePath string, batchSize int) (*IngestionResult, error) {
	startTime := time.Now()

	s.logger.Info(ctx, "[INGEST_START] Starting accident ingestion", logging.Fields{
		"file_path":  filePath,
		"batch_size": batchSize,
	})

	result := &IngestionResult{Errors: make([]string, 0)}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	cols := columnIndex(header)

	required := []string{"accident_no", "accident_date", "severity", "longitude", "latitude"}
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("missing required column: %s", name)
		}
	}

	batch := make([]*models.Accident, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.repo.CreateAccidentsBatch(ctx, batch); err != nil {
			return fmt.Errorf("failed to insert accident batch: %w", err)
		}
		result.SuccessfulRecords += len(batch)
		batch = batch[:0]
		return nil
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			result.FailedRecords++
			s.metrics.RecordIngestionError("parse_error")
			continue
		}

		result.TotalRecords++

		raw := &models.RawCrashRecord{
			AccidentNo:    field(record, cols, "accident_no"),
			Date:          field(record, cols, "accident_date"),
			Time:          field(record, cols, "accident_time"),
			Severity:      field(record, cols, "severity"),
			SpeedZone:     field(record, cols, "speed_zone"),
			LightCond:     field(record, cols, "light_condition"),
			RoadGeometry:  field(record, cols, "road_geometry"),
			InjOrFatal:    field(record, cols, "inj_or_fatal"),
			SeriousInjury: field(record, cols, "seriousinjury"),
			Longitude:     field(record, cols, "longitude"),
			Latitude:      field(record, cols, "latitude"),
		}

		accident, err := raw.ToAccident()
		if err != nil {
			result.FailedRecords++
			s.metrics.RecordIngestionError("conversion_error")
			continue
		}

		batch = append(batch, accident)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}

	if err := flush(); err != nil {
		return nil, err
	}

	result.Duration = time.Since(startTime)
	s.metrics.IngestionDuration.Observe(result.Duration.Seconds())

	s.logger.Info(ctx, "[INGEST_COMPLETE] Accident ingestion completed", logging.Fields{
		"total_records":      result.TotalRecords,
		"successful_records": result.SuccessfulRecords,
		"failed_records":     result.FailedRecords,
		"duration_seconds":   result.Duration.Seconds(),
	})

	return result, nil
}

// IngestPersons loads a person CSV extract in batches.
func (s *IngestionService) IngestPersons(ctx context.Context, filePath string, batchSize int) (*IngestionResult, error) {
	startTime := time.Now()

	s.logger.Info(ctx, "[INGEST_START] Starting person ingestion", logging.Fields{
		"file_path":  filePath,
		"batch_size": batchSize,
	})

	result := &IngestionResult{Errors: make([]string, 0)}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	cols := columnIndex(header)

	if _, ok := cols["accident_no"]; !ok {
		return nil, fmt.Errorf("missing required column: accident_no")
	}

	batch := make([]*models.Person, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.repo.CreatePersonsBatch(ctx, batch); err != nil {
			return fmt.Errorf("failed to insert person batch: %w", err)
		}
		result.SuccessfulRecords += len(batch)
		batch = batch[:0]
		return nil
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			result.FailedRecords++
			s.metrics.RecordIngestionError("parse_error")
			continue
		}

		result.TotalRecords++

		accidentNo := strings.TrimSpace(field(record, cols, "accident_no"))
		if accidentNo == "" {
			result.FailedRecords++
			s.metrics.RecordIngestionError("conversion_error")
			continue
		}

		person := &models.Person{
			AccidentNo:       accidentNo,
			Sex:              optionalField(record, cols, "sex"),
			AgeGroup:         optionalField(record, cols, "age_group"),
			HelmetBeltWorn:   optionalField(record, cols, "helmet_belt_worn"),
			RoadUserTypeDesc: optionalField(record, cols, "road_user_type_desc"),
			TakenHospital:    optionalField(record, cols, "taken_hospital"),
		}

		batch = append(batch, person)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}

	if err := flush(); err != nil {
		return nil, err
	}

	result.Duration = time.Since(startTime)
	s.metrics.IngestionDuration.Observe(result.Duration.Seconds())

	s.logger.Info(ctx, "[INGEST_COMPLETE] Person ingestion completed", logging.Fields{
		"total_records":      result.TotalRecords,
		"successful_records": result.SuccessfulRecords,
		"failed_records":     result.FailedRecords,
		"duration_seconds":   result.Duration.Seconds(),
	})

	return result, nil
}

// columnIndex maps lowercased header names to their positions.
func columnIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return cols
}

func field(record []string, cols map[string]int, name string) string {
	idx, ok := cols[name]
	if !ok || idx >= len(record) {
		return ""
	}
	return record[idx]
}

func optionalField(record []string, cols map[string]int, name string) *string {
	v := strings.TrimSpace(field(record, cols, name))
	if v == "" {
		return nil
	}
	return &v
}
