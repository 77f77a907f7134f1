package mockevents

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/lumora/collector/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging configures logging to both console and file.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string) error {
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if logFile == "" {
		timestamp := time.Now().Format("20060102_150405")
		logFile = "mock_events_" + timestamp + ".log"
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

// ShowHelp prints usage information for the mock events tool.
func ShowHelp() {
	os.Stdout.WriteString(`Collector Mock Events Tool
==========================

Generates a synthetic stretch of desktop activity (focus switches,
Excel/Outlook events, idle gaps) and submits it to a running collector.

Usage:
  go run cmd/mock-events/main.go [options]

Options:
  -url string
        Base URL of the collector (default "http://localhost:8745")
  -events int
        Number of events to generate and submit (default 2000)
  -batch int
        Events per POST request (default 50)
  -workers int
        Number of concurrent submit workers (default 4)
  -span int
        Minutes of simulated activity ending now (default 480)
  -timeout duration
        HTTP request timeout (default 30s)
  -token string
        Value for the X-Collector-Token header (default none)
  -output string
        Optional file to dump the generated events as JSON
  -log string
        Log file for run output (default: mock_events_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Simulate a full workday against a local collector
  go run cmd/mock-events/main.go

  # A short, dense burst to exercise backpressure
  go run cmd/mock-events/main.go -events 20000 -span 10 -workers 16
`)
}
