package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Asset-Ingestion-Service/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Asset-Ingestion-Service/internal/ingestion/signature"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Secret      string
	KeyID       string
	// DuplicateEvery resubmits an earlier title every n requests so the
	// conflict path is exercised. Zero disables it.
	DuplicateEvery int
}

type Stats struct {
	totalRequests atomic.Int64
	created       atomic.Int64
	conflicts     atomic.Int64
	rateLimited   atomic.Int64
	errorCount    atomic.Int64
	latencies     []time.Duration
	latenciesMu   sync.Mutex
	statusCodes   map[int]*atomic.Int64
	statusCodesMu sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 10000),
		statusCodes: make(map[int]*atomic.Int64),
	}
}

func (s *Stats) RecordRequest(duration time.Duration, statusCode int, err error) {
	s.totalRequests.Add(1)

	if err != nil {
		s.errorCount.Add(1)
		return
	}

	switch {
	case statusCode == http.StatusCreated:
		s.created.Add(1)
	case statusCode == http.StatusConflict:
		s.conflicts.Add(1)
	case statusCode == http.StatusTooManyRequests:
		s.rateLimited.Add(1)
	case statusCode >= 400:
		s.errorCount.Add(1)
	}

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()

	s.statusCodesMu.Lock()
	if _, ok := s.statusCodes[statusCode]; !ok {
		s.statusCodes[statusCode] = &atomic.Int64{}
	}
	s.statusCodes[statusCode].Add(1)
	s.statusCodesMu.Unlock()
}

// loadtest drives signed ingest requests against a running service and
// reports latency and the status code mix. The service's rate limiter will
// answer most requests with 429 unless its limit is raised for the run.
func main() {
	baseURL := flag.String("url", "http://localhost:8081", "base URL of the ingest service")
	concurrency := flag.Int("concurrency", 4, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	duplicateEvery := flag.Int("duplicate-every", 10, "resubmit an earlier title every n requests (0 disables)")
	flag.Parse()

	cfg := Config{
		BaseURL:        *baseURL,
		Concurrency:    *concurrency,
		Duration:       *duration,
		Secret:         os.Getenv("AI_INGEST_SECRET"),
		KeyID:          os.Getenv("AI_INGEST_API_KEY_ID"),
		DuplicateEvery: *duplicateEvery,
	}
	if cfg.Secret == "" || cfg.KeyID == "" {
		fmt.Fprintln(os.Stderr, "error: AI_INGEST_SECRET and AI_INGEST_API_KEY_ID must be set")
		os.Exit(1)
	}

	fmt.Println("=== Asset Ingest Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Println()

	stats := runLoadTest(cfg)
	printReport(stats, cfg.Duration)
}

func runLoadTest(cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	runID := time.Now().Unix()
	var wg sync.WaitGroup
	fmt.Print("Running")

	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for n := 0; ; n++ {
				select {
				case <-ctx.Done():
					return
				default:
				}

				seq := n
				if cfg.DuplicateEvery > 0 && n > 0 && n%cfg.DuplicateEvery == 0 {
					seq = 0
				}
				title := fmt.Sprintf("loadtest %d worker %d asset %d", runID, workerID, seq)

				start := time.Now()
				resp, err := client.Do(mustNewRequest(ctx, cfg, title))
				elapsed := time.Since(start)

				if err != nil {
					if ctx.Err() == nil {
						stats.RecordRequest(elapsed, 0, err)
					}
					continue
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()

				stats.RecordRequest(elapsed, resp.StatusCode, nil)
			}
		}(w)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

func mustNewRequest(ctx context.Context, cfg Config, title string) *http.Request {
	body, err := json.Marshal(ingestion.AssetPayload{
		Title:       title,
		Description: "generated by loadtest",
		AssetType:   ingestion.AssetPromptBundle,
		Content:     json.RawMessage(`{"prompts":["hello"]}`),
		Platform:    []string{"chatgpt"},
		Tags:        []string{"loadtest"},
	})
	if err != nil {
		panic(fmt.Sprintf("encoding payload: %v", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseURL+"/api/v1/assets/ingest", bytes.NewReader(body))
	if err != nil {
		panic(fmt.Sprintf("creating request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	signature.SetHeaders(req.Header, cfg.KeyID, []byte(cfg.Secret), body, time.Now())
	return req
}

func printReport(stats *Stats, duration time.Duration) {
	total := stats.totalRequests.Load()
	errors := stats.errorCount.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Created:         %d\n", stats.created.Load())
	fmt.Printf("Conflicts:       %d\n", stats.conflicts.Load())
	fmt.Printf("Rate Limited:    %d\n", stats.rateLimited.Load())
	fmt.Printf("Errors:          %d\n", errors)

	if total > 0 {
		errorRate := float64(errors) / float64(total) * 100
		fmt.Printf("Error Rate:      %.2f%%\n", errorRate)
		rps := float64(total) / duration.Seconds()
		fmt.Printf("Requests/sec:    %.2f\n", rps)
	}

	stats.latenciesMu.Lock()
	latencies := make([]time.Duration, len(stats.latencies))
	copy(latencies, stats.latencies)
	stats.latenciesMu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool {
			return latencies[i] < latencies[j]
		})

		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Println()
		fmt.Println("=== Latency ===")
		fmt.Printf("Min:    %s\n", latencies[0])
		fmt.Printf("Avg:    %s\n", avg)
		fmt.Printf("P50:    %s\n", percentile(latencies, 50))
		fmt.Printf("P95:    %s\n", percentile(latencies, 95))
		fmt.Printf("P99:    %s\n", percentile(latencies, 99))
		fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])
	}

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	stats.statusCodesMu.Lock()
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, stats.statusCodes[code].Load())
	}
	stats.statusCodesMu.Unlock()

	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
