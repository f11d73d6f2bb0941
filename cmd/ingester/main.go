package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"crash-analytics/internal/config"
	"crash-analytics/internal/repository"
	"crash-analytics/internal/services"
	"crash-analytics/pkg/database"
	"crash-analytics/pkg/logging"
	"crash-analytics/pkg/metrics"
)

func main() {
	// Parse command-line flags
	accidentsFile := flag.String("accidents", "", "Path to the accident CSV extract")
	personsFile := flag.String("persons", "", "Path to the person CSV extract")
	batchSize := flag.Int("batch-size", 1000, "Number of records to insert in each batch")
	flag.Parse()

	if *accidentsFile == "" && *personsFile == "" {
		fmt.Fprintln(os.Stderr, "at least one of -accidents or -persons is required")
		flag.Usage()
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logLevel := logging.InfoLevel
	if cfg.Logging.Level == "debug" {
		logLevel = logging.DebugLevel
	}

	logger := logging.NewStructuredLogger("crash-ingester", "1.0.0", logLevel)

	ctx := context.Background()
	logger.Info(ctx, "[INGESTER_START] Starting crash data ingestion", logging.Fields{
		"version":        "1.0.0",
		"accidents_file": *accidentsFile,
		"persons_file":   *personsFile,
		"batch_size":     *batchSize,
	})

	// Initialize metrics collector
	metricsCollector := metrics.NewCollector("crash_ingester")

	// Initialize database
	dbConfig := &database.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	}

	db, err := database.NewPostgresDB(dbConfig, logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[INGESTER_ERROR] Failed to connect to database", logging.Fields{}, err)
	}
	defer db.Close()

	// Initialize repository and service
	crashRepo := repository.NewCrashRepository(db, logger, metricsCollector)
	ingestionService := services.NewIngestionService(crashRepo, logger, metricsCollector)

	// Accidents must load before persons so the person foreign keys resolve
	if *accidentsFile != "" {
		result, err := ingestionService.IngestAccidents(ctx, *accidentsFile, *batchSize)
		if err != nil {
			logger.Fatal(ctx, "[INGESTION_ERROR] Accident ingestion failed", logging.Fields{
				"file_path": *accidentsFile,
			}, err)
		}
		printResult("ACCIDENTS", result)
	}

	if *personsFile != "" {
		result, err := ingestionService.IngestPersons(ctx, *personsFile, *batchSize)
		if err != nil {
			logger.Fatal(ctx, "[INGESTION_ERROR] Person ingestion failed", logging.Fields{
				"file_path": *personsFile,
			}, err)
		}
		printResult("PERSONS", result)
	}

	logger.Info(ctx, "[INGESTER_COMPLETE] Ingestion completed successfully", logging.Fields{})
}

func printResult(label string, result *services.IngestionResult) {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("INGESTION COMPLETE: %s\n", label)
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Total Records:      %d\n", result.TotalRecords)
	fmt.Printf("Successful Records: %d\n", result.SuccessfulRecords)
	fmt.Printf("Failed Records:     %d\n", result.FailedRecords)
	fmt.Printf("Duration:           %v\n", result.Duration)
	if result.Duration.Seconds() > 0 {
		fmt.Printf("Records/Second:     %.2f\n", float64(result.SuccessfulRecords)/result.Duration.Seconds())
	}

	if len(result.Errors) > 0 {
		fmt.Printf("\nErrors (%d):\n", len(result.Errors))
		for i, errMsg := range result.Errors {
			if i < 10 {
				fmt.Printf("  - %s\n", errMsg)
			}
		}
		if len(result.Errors) > 10 {
			fmt.Printf("  ... and %d more errors\n", len(result.Errors)-10)
		}
	}
}
