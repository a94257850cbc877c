package seedcorpus

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/okian/gambit/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging configures logging to both console and file.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string) error {
	// Initialize the logger first
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if logFile == "" {
		timestamp := time.Now().Format("20060102_150405")
		logFile = "seed_log_" + timestamp + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	multiWriter := io.MultiWriter(os.Stdout, file)
	log.SetOutput(multiWriter)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return nil
}

// ShowHelp prints usage information for the corpus seeding tool.
func ShowHelp() {
	os.Stdout.WriteString(`Gambit Corpus Seeding Tool
==========================

A concurrent tool for seeding the game corpus with synthetic records and
verifying ingestion, stats, and search behavior end to end.

Usage:
  go run cmd/seed-corpus/main.go [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -records int
        Number of game records to generate and submit (default 10000)
  -players int
        Size of the synthetic player pool (default 200)
  -batch int
        Records per /batches call; 1 submits one at a time via /records (default 1)
  -workers int
        Number of concurrent workers (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 30s)
  -output string
        Output file for generated records (default: generated_records_TIMESTAMP.json)
  -log string
        Log file for run output (default: seed_log_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Seed with default settings
  go run cmd/seed-corpus/main.go

  # Seed 50k games in batches of 500
  go run cmd/seed-corpus/main.go -records 50000 -batch 500 -url http://localhost:8080

  # Seed with verbose output
  go run cmd/seed-corpus/main.go -verbose -records 10000
`)
}
