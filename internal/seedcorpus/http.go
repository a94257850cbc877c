package seedcorpus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// HTTPClient wraps http.Client with timeout
type HTTPClient struct {
	client  *http.Client
	timeout time.Duration
}

// newHTTPClient creates a new HTTP client with timeout
func newHTTPClient(timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{
			Timeout: timeout,
		},
		timeout: timeout,
	}
}

// Get performs a GET request
func (c *HTTPClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.client.Do(req)
}

// Post performs a POST request with JSON body
func (c *HTTPClient) Post(ctx context.Context, url string, body interface{}) (*http.Response, error) {
	jsonData, err := marshalJSON(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	return c.client.Do(req)
}

// marshalJSON marshals a struct to JSON
func marshalJSON(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// unmarshalJSON unmarshals JSON to a struct
func unmarshalJSON(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// readResponseBody reads and closes the response body
func readResponseBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// submitRecords submits records concurrently. With BatchSize > 1 it
// posts slices to /batches, otherwise one record at a time to /records.
func submitRecords(ctx context.Context, config *Config, records []Record, stats *Stats) error {
	if config.BatchSize > 1 {
		return submitBatches(ctx, config, records, stats)
	}

	log.Printf("submitting %d records with %d workers", len(records), config.Workers)

	client := newHTTPClient(config.Timeout)
	url := config.BaseURL + "/records"

	var (
		accepted  int64
		duplicate int64
		failed    int64
		submitted int64
	)

	var lastReport time.Time
	reportInterval := 1 * time.Second

	recordChan := make(chan Record, config.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for record := range recordChan {
				select {
				case <-ctx.Done():
					return
				default:
					result := submitSingleRecord(ctx, client, url, record)

					atomic.AddInt64(&submitted, 1)
					switch result {
					case "accepted":
						atomic.AddInt64(&accepted, 1)
					case "duplicate":
						atomic.AddInt64(&duplicate, 1)
					case "failed":
						atomic.AddInt64(&failed, 1)
					}

					if time.Since(lastReport) >= reportInterval {
						lastReport = time.Now()
						total := atomic.LoadInt64(&submitted)
						acc := atomic.LoadInt64(&accepted)
						dup := atomic.LoadInt64(&duplicate)
						fail := atomic.LoadInt64(&failed)

						if config.Verbose {
							log.Printf("progress: %d/%d submitted (accepted: %d, duplicate: %d, failed: %d)",
								total, len(records), acc, dup, fail)
						} else {
							fmt.Printf("\rsubmitted: %d/%d (accepted: %d, duplicate: %d, failed: %d)",
								total, len(records), acc, dup, fail)
						}
					}
				}
			}
		}()
	}

	go func() {
		defer close(recordChan)
		for _, record := range records {
			select {
			case <-ctx.Done():
				return
			case recordChan <- record:
			}
		}
	}()

	wg.Wait()

	if !config.Verbose {
		fmt.Println() // New line after progress indicator
	}

	stats.RecordsSubmitted = int(atomic.LoadInt64(&submitted))
	stats.RecordsAccepted = int(atomic.LoadInt64(&accepted))
	stats.RecordsDuplicate = int(atomic.LoadInt64(&duplicate))
	stats.RecordsFailed = int(atomic.LoadInt64(&failed))

	log.Printf(`record submission completed:
   Accepted: %d
   Duplicate: %d
   Failed: %d
`, stats.RecordsAccepted, stats.RecordsDuplicate, stats.RecordsFailed)

	return nil
}

// submitSingleRecord submits a single record and returns the result
func submitSingleRecord(ctx context.Context, client *HTTPClient, url string, record Record) string {
	resp, err := client.Post(ctx, url, record)
	if err != nil {
		return "failed"
	}

	body, err := readResponseBody(resp)
	if err != nil {
		return "failed"
	}

	switch resp.StatusCode {
	case StatusAccepted:
		// Accepted - queued for ingestion
		return "accepted"
	case StatusOK:
		// OK - duplicate record
		var ack AckResponse
		if err := unmarshalJSON(body, &ack); err == nil && ack.Duplicate {
			return "duplicate"
		}
		return "duplicate" // Assume duplicate for 200 even if parsing fails
	default:
		return "failed"
	}
}

// submitBatches posts records in slices to the synchronous batch endpoint.
func submitBatches(ctx context.Context, config *Config, records []Record, stats *Stats) error {
	log.Printf("submitting %d records in batches of %d", len(records), config.BatchSize)

	client := newHTTPClient(config.Timeout)
	url := config.BaseURL + "/batches"

	for start := 0; start < len(records); start += config.BatchSize {
		end := start + config.BatchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled during batch submission: %w", ctx.Err())
		default:
		}

		resp, err := client.Post(ctx, url, map[string][]Record{"records": batch})
		if err != nil {
			stats.RecordsFailed += len(batch)
			stats.RecordsSubmitted += len(batch)
			continue
		}

		body, err := readResponseBody(resp)
		if err != nil || resp.StatusCode != StatusOK {
			stats.RecordsFailed += len(batch)
			stats.RecordsSubmitted += len(batch)
			continue
		}

		var summary BatchSummary
		if err := unmarshalJSON(body, &summary); err != nil {
			stats.RecordsFailed += len(batch)
			stats.RecordsSubmitted += len(batch)
			continue
		}

		stats.RecordsSubmitted += summary.Received
		stats.RecordsAccepted += summary.Succeeded
		stats.RecordsDuplicate += summary.Duplicates
		stats.RecordsFailed += summary.Malformed
		if config.Verbose {
			log.Printf("batch %d-%d: succeeded=%d duplicates=%d malformed=%d",
				start, end, summary.Succeeded, summary.Duplicates, summary.Malformed)
		}
	}

	log.Printf(`batch submission completed:
   Accepted: %d
   Duplicate: %d
   Failed: %d
`, stats.RecordsAccepted, stats.RecordsDuplicate, stats.RecordsFailed)

	return nil
}
