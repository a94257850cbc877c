package seedcorpus

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// retrievePlayerStats fetches rollups for every player that appeared in
// the submitted records, concurrently.
func retrievePlayerStats(ctx context.Context, config *Config, records []Record, stats *Stats) ([]PlayerStat, error) {
	players := uniquePlayers(records)
	log.Printf("retrieving stats for %d players with %d workers", len(players), config.Workers)

	client := newHTTPClient(config.Timeout)

	results := make([]PlayerStat, len(players))
	var (
		retrieved int64
		failed    int64
	)

	var lastReport time.Time
	reportInterval := 1 * time.Second

	indexChan := make(chan int, config.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for index := range indexChan {
				select {
				case <-ctx.Done():
					return
				default:
					name := players[index]
					stat, err := retrieveSinglePlayerStat(ctx, client, config.BaseURL, name)

					if err != nil {
						atomic.AddInt64(&failed, 1)
						if config.Verbose {
							log.Printf("failed to get stats for %s: %v", name, err)
						}
					} else {
						results[index] = stat
						atomic.AddInt64(&retrieved, 1)
					}

					if time.Since(lastReport) >= reportInterval {
						lastReport = time.Now()
						total := atomic.LoadInt64(&retrieved) + atomic.LoadInt64(&failed)
						log.Printf("stats progress: %d/%d retrieved (failed: %d)",
							total, len(players), atomic.LoadInt64(&failed))
					}
				}
			}
		}()
	}

	go func() {
		defer close(indexChan)
		for i := range players {
			select {
			case <-ctx.Done():
				return
			case indexChan <- i:
			}
		}
	}()

	wg.Wait()

	// Filter out empty entries (failed retrievals)
	validStats := make([]PlayerStat, 0, len(results))
	for _, stat := range results {
		if stat.PlayerName != "" {
			validStats = append(validStats, stat)
		}
	}

	stats.StatsRetrieved = len(validStats)

	log.Printf(`player stats retrieval completed:
   Retrieved: %d
   Failed: %d
`, len(validStats), int(atomic.LoadInt64(&failed)))

	return validStats, nil
}

// retrieveSinglePlayerStat fetches the rollup for one player.
func retrieveSinglePlayerStat(ctx context.Context, client *HTTPClient, baseURL, name string) (PlayerStat, error) {
	statURL := fmt.Sprintf("%s/players/%s/stats", baseURL, url.PathEscape(name))

	resp, err := client.Get(ctx, statURL)
	if err != nil {
		return PlayerStat{}, fmt.Errorf("request failed: %w", err)
	}

	body, err := readResponseBody(resp)
	if err != nil {
		return PlayerStat{}, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != StatusOK {
		return PlayerStat{}, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var stat PlayerStat
	if err := unmarshalJSON(body, &stat); err != nil {
		return PlayerStat{}, fmt.Errorf("failed to parse response: %w", err)
	}

	return stat, nil
}

// searchCorpus runs a hybrid search over the seeded corpus and returns
// the response for verification.
func searchCorpus(ctx context.Context, config *Config, records []Record, stats *Stats) (SearchResponse, error) {
	log.Printf("running hybrid search over the seeded corpus")

	client := newHTTPClient(config.Timeout)
	searchURL := config.BaseURL + "/search"

	// Query by the move text of an actual seeded game so semantic
	// ranking has a strong expected match.
	sample := records[0]
	payload := map[string]interface{}{
		"text":  sample.MoveText,
		"eco":   sample.ECO,
		"limit": 20,
	}

	resp, err := client.Post(ctx, searchURL, payload)
	if err != nil {
		return SearchResponse{}, fmt.Errorf("request failed: %w", err)
	}

	body, err := readResponseBody(resp)
	if err != nil {
		return SearchResponse{}, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != StatusOK {
		return SearchResponse{}, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var out SearchResponse
	if err := unmarshalJSON(body, &out); err != nil {
		return SearchResponse{}, fmt.Errorf("failed to parse response: %w", err)
	}

	stats.SearchHits = len(out.Hits)
	log.Printf("search returned %d hits (semantic skipped: %v)", len(out.Hits), out.SemanticSkipped)

	return out, nil
}

// uniquePlayers collects the distinct player names across records.
func uniquePlayers(records []Record) []string {
	seen := make(map[string]struct{}, len(records)*2)
	for _, r := range records {
		seen[r.White] = struct{}{}
		seen[r.Black] = struct{}{}
	}
	players := make([]string, 0, len(seen))
	for name := range seen {
		players = append(players, name)
	}
	sort.Strings(players)
	return players
}
