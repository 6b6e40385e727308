// Command loadtest sends ticket searches to a running searcher and reports
// throughput, latency percentiles and answer codes.
//
// Usage:
//
//	go run ./cmd/loadtest [-url http://localhost:8080] [-concurrency 10] [-duration 30s] [-queries file] [-user N]
//
// The queries file holds one query per line. Without it a built-in mix of
// valid and invalid queries is used.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

var defaultQueries = []string{
	"printer",
	"status:open",
	"status:open assignee:@me",
	"involves:@me -status:finished",
	"no:assignee status:new",
	"priority:high,medium type:incident",
	`"mail quota" or mailbox`,
	"team:network label:access",
	"org:acme (printer or toner)",
	"#1",
	"requester:alix@example.com",
	"not label:urgent status:open",
	// Invalid on purpose: exercised as 400 answers.
	"(status:open",
	`"unterminated`,
	"bogus:1",
}

type result struct {
	latency time.Duration
	status  int
	err     error
}

type stats struct {
	mu        sync.Mutex
	latencies []time.Duration
	statuses  map[int]int
	failures  int
}

func (s *stats) record(r result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.err != nil {
		s.failures++
		return
	}
	s.latencies = append(s.latencies, r.latency)
	s.statuses[r.status]++
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the search service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	queriesPath := flag.String("queries", "", "file with one query per line")
	actor := flag.Int64("user", 20, "acting user id sent with every search, 0 for none")
	flag.Parse()

	queries := defaultQueries
	if *queriesPath != "" {
		var err error
		if queries, err = readQueries(*queriesPath); err != nil {
			fmt.Fprintf(os.Stderr, "reading queries: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Println("=== Ticket Search Load Test ===")
	fmt.Printf("Target:      %s\n", *baseURL)
	fmt.Printf("Concurrency: %d\n", *concurrency)
	fmt.Printf("Duration:    %s\n", *duration)
	fmt.Printf("Queries:     %d unique\n\n", len(queries))

	s := &stats{statuses: make(map[int]int)}
	run(*baseURL, *concurrency, *duration, queries, *actor, s)
	if !report(os.Stdout, s, *duration) {
		os.Exit(1)
	}
}

func readQueries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var queries []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			queries = append(queries, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("%s holds no query", path)
	}
	return queries, nil
}

func run(baseURL string, concurrency int, duration time.Duration, queries []string, actor int64, s *stats) {
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

	var g errgroup.Group
	for w := range concurrency {
		g.Go(func() error {
			for i := w; ctx.Err() == nil; i++ {
				q := queries[i%len(queries)]
				r := search(ctx, client, baseURL, q, actor)
				if ctx.Err() != nil {
					return nil
				}
				s.record(r)
			}
			return nil
		})
	}
	g.Wait()
}

func search(ctx context.Context, client *http.Client, baseURL, q string, actor int64) result {
	u := fmt.Sprintf("%s/api/v1/tickets/search?q=%s&limit=25", baseURL, url.QueryEscape(q))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return result{err: err}
	}
	if actor > 0 {
		req.Header.Set("X-Bileto-User", strconv.FormatInt(actor, 10))
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return result{err: err}
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return result{latency: time.Since(start), status: resp.StatusCode}
}

// report prints the summary and reports whether any request completed.
func report(w io.Writer, s *stats, duration time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	completed := len(s.latencies)
	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Completed:        %d\n", completed)
	fmt.Fprintf(w, "Transport errors: %d\n", s.failures)
	fmt.Fprintf(w, "Answered 200:     %d\n", s.statuses[http.StatusOK])
	fmt.Fprintf(w, "Rejected (400):   %d\n", s.statuses[http.StatusBadRequest])
	if completed == 0 {
		fmt.Fprintln(w, "\nWARNING: no request completed. Is the service running?")
		return false
	}
	fmt.Fprintf(w, "Requests/sec:     %.2f\n", float64(completed)/duration.Seconds())

	latencies := slices.Clone(s.latencies)
	slices.Sort(latencies)
	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	fmt.Fprintln(w, "\n=== Latency ===")
	fmt.Fprintf(w, "Min: %s\n", latencies[0])
	fmt.Fprintf(w, "Avg: %s\n", sum/time.Duration(completed))
	for _, p := range []int{50, 90, 95, 99} {
		fmt.Fprintf(w, "P%d: %s\n", p, percentile(latencies, p))
	}
	fmt.Fprintf(w, "Max: %s\n", latencies[completed-1])

	fmt.Fprintln(w, "\n=== Status Codes ===")
	codes := make([]int, 0, len(s.statuses))
	for code := range s.statuses {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "  %d: %d\n", code, s.statuses[code])
	}
	return true
}

func percentile(sorted []time.Duration, p int) time.Duration {
	idx := (p*len(sorted)+99)/100 - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}
