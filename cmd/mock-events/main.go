package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/lumora/collector/internal/mockevents"
)

// Default configuration constants.
const (
	defaultNumEvents   = 2000
	defaultBatchSize   = 50
	defaultWorkers     = 4
	defaultSpanMinutes = 480
	defaultTimeout     = 30 * time.Second
	defaultRunTimeout  = 10 * time.Minute
)

func main() {
	var (
		baseURL   = flag.String("url", "http://localhost:8745", "Base URL of the collector")
		numEvents = flag.Int("events", defaultNumEvents, "Number of events to generate and submit")
		batchSize = flag.Int("batch", defaultBatchSize, "Events per POST request")
		workers   = flag.Int("workers", defaultWorkers, "Number of concurrent submit workers")
		span      = flag.Int("span", defaultSpanMinutes, "Minutes of simulated activity ending now")
		timeout   = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		token     = flag.String("token", "", "Value for the X-Collector-Token header")
		output    = flag.String("output", "", "Optional file to dump the generated events as JSON")
		logFile   = flag.String("log", "", "Log file for run output (default: mock_events_TIMESTAMP.log)")
		verbose   = flag.Bool("verbose", false, "Enable verbose logging")
		help      = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		mockevents.ShowHelp()
		return
	}

	if err := mockevents.SetupLogging(*logFile); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	config := &mockevents.Config{
		BaseURL:     *baseURL,
		NumEvents:   *numEvents,
		BatchSize:   *batchSize,
		Workers:     *workers,
		Timeout:     *timeout,
		Token:       *token,
		SpanMinutes: *span,
		OutputFile:  *output,
		LogFile:     *logFile,
		Verbose:     *verbose,
	}

	if err := mockevents.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Run failed: " + err.Error() + "\n")
		return
	}
}
