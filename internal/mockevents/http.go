package mockevents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lumora/collector/pkg/logger"
)

// HTTPClient wraps http.Client with a per-request timeout and the
// optional ingest token.
type HTTPClient struct {
	client *http.Client
	token  string
}

// newHTTPClient creates a new HTTP client.
func newHTTPClient(timeout time.Duration, token string) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{Timeout: timeout},
		token:  token,
	}
}

// Get performs a GET request.
func (c *HTTPClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.client.Do(req)
}

// Post performs a POST request with a JSON body.
func (c *HTTPClient) Post(ctx context.Context, url string, body any) (*http.Response, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("X-Collector-Token", c.token)
	}
	return c.client.Do(req)
}

// readResponseBody reads and closes the response body.
func readResponseBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// submitEvents posts the events in batches using a worker pool.
func submitEvents(ctx context.Context, config *Config, events []Event, stats *Stats) error {
	log := logger.Get()
	log.Info(ctx, "submitting events",
		logger.Int("events", len(events)),
		logger.Int("batchSize", config.BatchSize),
		logger.Int("workers", config.Workers))

	client := newHTTPClient(config.Timeout, config.Token)
	url := config.BaseURL + "/events"

	var (
		submitted int64
		accepted  int64
		shed      int64
		failed    int64
	)

	batchChan := make(chan []Event, config.Workers*2)
	var wg sync.WaitGroup

	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range batchChan {
				select {
				case <-ctx.Done():
					return
				default:
				}

				ack, shedBatch := submitBatch(ctx, client, url, batch)
				atomic.AddInt64(&submitted, int64(len(batch)))
				switch {
				case shedBatch:
					atomic.AddInt64(&shed, int64(len(batch)))
				case ack == nil:
					atomic.AddInt64(&failed, int64(len(batch)))
				default:
					atomic.AddInt64(&accepted, int64(ack.Accepted))
					atomic.AddInt64(&failed, int64(ack.Rejected))
				}

				if config.Verbose {
					log.Debug(ctx, "batch submitted",
						logger.Int("size", len(batch)),
						logger.Int64("total", atomic.LoadInt64(&submitted)))
				}
			}
		}()
	}

	go func() {
		defer close(batchChan)
		for start := 0; start < len(events); start += config.BatchSize {
			stop := start + config.BatchSize
			if stop > len(events) {
				stop = len(events)
			}
			select {
			case <-ctx.Done():
				return
			case batchChan <- events[start:stop]:
			}
		}
	}()

	wg.Wait()

	stats.EventsSubmitted = int(atomic.LoadInt64(&submitted))
	stats.EventsAccepted = int(atomic.LoadInt64(&accepted))
	stats.EventsShed = int(atomic.LoadInt64(&shed))
	stats.EventsFailed = int(atomic.LoadInt64(&failed))

	log.Info(ctx, "event submission completed",
		logger.Int("accepted", stats.EventsAccepted),
		logger.Int("shed", stats.EventsShed),
		logger.Int("failed", stats.EventsFailed))
	return nil
}

// submitBatch posts one batch. A nil ack with shed=false means a hard
// failure; shed=true means the collector answered 429.
func submitBatch(ctx context.Context, client *HTTPClient, url string, batch []Event) (*AckResponse, bool) {
	var body any = batch
	if len(batch) == 1 {
		body = batch[0]
	}

	resp, err := client.Post(ctx, url, body)
	if err != nil {
		return nil, false
	}
	raw, err := readResponseBody(resp)
	if err != nil {
		return nil, false
	}

	switch resp.StatusCode {
	case http.StatusOK:
		var ack AckResponse
		if err := json.Unmarshal(raw, &ack); err != nil {
			return &AckResponse{Status: "accepted", Accepted: len(batch)}, false
		}
		return &ack, false
	case http.StatusTooManyRequests:
		return nil, true
	default:
		return nil, false
	}
}
