// Command loadtest drives read traffic against the document query API and
// reports throughput, latency percentiles and status codes.
//
// Usage:
//
//	go run ./cmd/loadtest -url http://localhost:8080 -concurrency 20 -rps 200
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

type target struct {
	name  string
	query url.Values
}

var targets = []target{
	{"list", url.Values{}},
	{"list_page_2", url.Values{"page": {"2"}, "page_size": {"10"}}},
	{"search_team", url.Values{"q": {"lakers"}}},
	{"search_league", url.Values{"q": {"nfl"}}},
	{"coverage", url.Values{"coverage": {"moneyline"}}},
	{"min_confidence", url.Values{"min_confidence": {"0.7"}}},
	{"combined", url.Values{"coverage": {"spread"}, "min_confidence": {"0.5"}, "q": {"chiefs"}}},
}

type sample struct {
	target  string
	status  int
	latency time.Duration
	failed  bool
}

type recorder struct {
	mu      sync.Mutex
	samples []sample
}

func (r *recorder) add(s sample) {
	r.mu.Lock()
	r.samples = append(r.samples, s)
	r.mu.Unlock()
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the ingestion service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	rps := flag.Float64("rps", 0, "overall request rate limit (0 is unlimited)")
	flag.Parse()

	fmt.Println("=== Document Query Load Test ===")
	fmt.Printf("Target:      %s\n", *baseURL)
	fmt.Printf("Concurrency: %d\n", *concurrency)
	fmt.Printf("Duration:    %s\n", *duration)
	if *rps > 0 {
		fmt.Printf("Rate limit:  %.0f req/s\n", *rps)
	}
	fmt.Println()

	limit := rate.Inf
	if *rps > 0 {
		limit = rate.Limit(*rps)
	}
	rec := run(*baseURL, *concurrency, *duration, rate.NewLimiter(limit, *concurrency))
	if !report(rec, *duration) {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

func run(baseURL string, concurrency int, duration time.Duration, limiter *rate.Limiter) *recorder {
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        concurrency * 2,
			MaxIdleConnsPerHost: concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	rec := &recorder{samples: make([]sample, 0, 100000)}
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < concurrency; w++ {
		g.Go(func() error {
			for i := w; ; i++ {
				if err := limiter.Wait(ctx); err != nil {
					return nil
				}
				t := targets[i%len(targets)]
				rec.add(do(ctx, client, baseURL+"/api/v1/documents?"+t.query.Encode(), t.name))
			}
		})
	}
	_ = g.Wait()
	return rec
}

func do(ctx context.Context, client *http.Client, rawURL, name string) sample {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return sample{target: name, failed: true}
	}
	start := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(start)
	if err != nil {
		// Requests cut off by the end of the run are not failures.
		if ctx.Err() != nil {
			return sample{target: name, status: -1}
		}
		return sample{target: name, latency: latency, failed: true}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return sample{
		target:  name,
		status:  resp.StatusCode,
		latency: latency,
		failed:  resp.StatusCode < 200 || resp.StatusCode >= 300,
	}
}

func report(rec *recorder, duration time.Duration) bool {
	rec.mu.Lock()
	samples := slices.DeleteFunc(slices.Clone(rec.samples), func(s sample) bool { return s.status == -1 })
	rec.mu.Unlock()

	var failed int
	latencies := make([]time.Duration, 0, len(samples))
	byStatus := make(map[int]int)
	byTarget := make(map[string][]time.Duration)
	for _, s := range samples {
		if s.failed {
			failed++
		}
		byStatus[s.status]++
		if s.latency > 0 {
			latencies = append(latencies, s.latency)
			byTarget[s.target] = append(byTarget[s.target], s.latency)
		}
	}

	total := len(samples)
	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Successful:      %d\n", total-failed)
	fmt.Printf("Errors:          %d\n", failed)
	if total > 0 {
		fmt.Printf("Error Rate:      %.2f%%\n", float64(failed)/float64(total)*100)
		fmt.Printf("Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	}

	if len(latencies) > 0 {
		slices.Sort(latencies)
		fmt.Println()
		fmt.Println("=== Latency ===")
		fmt.Printf("Min:    %s\n", latencies[0])
		fmt.Printf("Avg:    %s\n", mean(latencies))
		fmt.Printf("P50:    %s\n", percentile(latencies, 50))
		fmt.Printf("P90:    %s\n", percentile(latencies, 90))
		fmt.Printf("P99:    %s\n", percentile(latencies, 99))
		fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])

		fmt.Println()
		fmt.Println("=== P95 by query ===")
		for _, t := range targets {
			l := byTarget[t.name]
			if len(l) == 0 {
				continue
			}
			slices.Sort(l)
			fmt.Printf("  %-16s %s\n", t.name, percentile(l, 95))
		}
	}

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	codes := make([]int, 0, len(byStatus))
	for code := range byStatus {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	for _, code := range codes {
		label := fmt.Sprint(code)
		if code == 0 {
			label = "transport error"
		}
		fmt.Printf("  %s: %d\n", label, byStatus[code])
	}
	return total > 0
}

func mean(l []time.Duration) time.Duration {
	var sum time.Duration
	for _, d := range l {
		sum += d
	}
	return sum / time.Duration(len(l))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}
