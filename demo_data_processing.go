package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"crash-analytics/internal/models"
	"crash-analytics/pkg/logging"
)

// DemoDataProcessing demonstrates the crash classification pipeline without a database
func main() {
	fmt.Println("════════════════════════════════════════════════════════════════")
	fmt.Println("CRASH ANALYTICS - DATA PROCESSING DEMONSTRATION")
	fmt.Println("════════════════════════════════════════════════════════════════")
	fmt.Println()

	// Initialize logger
	logger := logging.NewStructuredLogger("demo", "1.0.0", logging.InfoLevel)
	ctx := context.Background()

	filePath := "./data/accident.csv"
	if len(os.Args) > 1 {
		filePath = os.Args[1]
	}

	file, err := os.Open(filePath)
	if err != nil {
		logger.Error(ctx, "Failed to open file", logging.Fields{
			"file": filePath,
		}, err)
		os.Exit(1)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		fmt.Printf("Error reading header: %v\n", err)
		os.Exit(1)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}

	field := func(record []string, name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return record[idx]
	}

	totalRecords := 0
	validRecords := 0
	severityCounts := map[string]int{}
	timeBucketCounts := map[string]int{}
	speedZoneCounts := map[string]int{}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}

		totalRecords++

		raw := &models.RawCrashRecord{
			AccidentNo:    field(record, "accident_no"),
			Date:          field(record, "accident_date"),
			Time:          field(record, "accident_time"),
			Severity:      field(record, "severity"),
			SpeedZone:     field(record, "speed_zone"),
			LightCond:     field(record, "light_condition"),
			RoadGeometry:  field(record, "road_geometry"),
			InjOrFatal:    field(record, "inj_or_fatal"),
			SeriousInjury: field(record, "seriousinjury"),
			Longitude:     field(record, "longitude"),
			Latitude:      field(record, "latitude"),
		}

		accident, err := raw.ToAccident()
		if err != nil {
			if totalRecords <= 5 {
				fmt.Printf("  [%d] Conversion error: %v\n", totalRecords, err)
			}
			continue
		}

		validRecords++

		// Normalize raw severity into the analytic categories
		severity, ok := models.NormalizeSeverity(raw.Severity)
		if ok {
			severityCounts[severity]++
		}

		// Classify the hour of day into time buckets
		var hour *string
		if accident.AccidentTime != nil {
			h := strings.SplitN(*accident.AccidentTime, ":", 2)[0]
			hour = &h
		}
		if category := models.ClassifyTimeBucket(hour); category != nil {
			timeBucketCounts[*category]++
		}

		// Classify the posted speed zone into bands
		if category := models.ClassifySpeedZone(accident.SpeedZone); category != nil {
			speedZoneCounts[*category]++
		}

		// Print the first few records
		if validRecords <= 3 {
			fmt.Printf("  [%d] Accident: %s | Date: %s | Severity: %s\n",
				totalRecords, accident.AccidentNo,
				accident.AccidentDate.Format("2006-01-02"), accident.Severity)
		}
	}

	fmt.Println()
	fmt.Println("════════════════════════════════════════════════════════════════")
	fmt.Println("PROCESSING SUMMARY")
	fmt.Println("════════════════════════════════════════════════════════════════")
	fmt.Printf("Total records:          %d\n", totalRecords)
	fmt.Printf("Valid conversions:      %d\n", validRecords)
	if totalRecords > 0 {
		fmt.Printf("Success rate:           %.2f%%\n", float64(validRecords)/float64(totalRecords)*100)
	}
	fmt.Println()

	fmt.Println("════════════════════════════════════════════════════════════════")
	fmt.Println("FACTOR CLASSIFICATION DEMONSTRATION")
	fmt.Println("════════════════════════════════════════════════════════════════")

	printCounts := func(title string, counts map[string]int) {
		fmt.Printf("%s\n", title)
		fmt.Printf("─────────────────────────────────────────────────────────────\n")
		for category, count := range counts {
			fmt.Printf("  %-28s %d\n", category, count)
		}
		fmt.Println()
	}

	printCounts("Severity", severityCounts)
	printCounts("Time of day", timeBucketCounts)
	printCounts("Speed zone", speedZoneCounts)

	fmt.Println("════════════════════════════════════════════════════════════════")
	fmt.Println("✅ DATA PROCESSING DEMONSTRATION COMPLETE")
	fmt.Println("════════════════════════════════════════════════════════════════")
	fmt.Println()
	fmt.Println("The system successfully:")
	fmt.Println("  ✓ Parsed the accident CSV extract")
	fmt.Println("  ✓ Validated dates, coordinates, and injury counts")
	fmt.Println("  ✓ Normalized severity labels into analytic categories")
	fmt.Println("  ✓ Classified hours and speed zones into factor categories")
	fmt.Println()
	fmt.Println("With a database, this would:")
	fmt.Println("  • Store accidents and persons in PostGIS-backed tables")
	fmt.Println("  • Aggregate factor counts per statistical area")
	fmt.Println("  • Serve trends and forecasts via REST API endpoints")
	fmt.Println("  • Provide real-time metrics and monitoring")
	fmt.Println()
}
