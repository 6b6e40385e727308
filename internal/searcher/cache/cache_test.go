package cache

import (
	"context"
	"encoding/json"
	"errors"
	"path"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bileto/ticket-search/internal/query"
	"github.com/bileto/ticket-search/internal/searcher/executor"
	"github.com/bileto/ticket-search/internal/tickets"
	"github.com/bileto/ticket-search/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type memoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string][]byte)}
}

func (s *memoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, false, s.err
	}
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *memoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.data[key] = value
	return nil
}

func (s *memoryStore) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k := range s.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(s.data, k)
			n++
		}
	}
	return n, nil
}

func (s *memoryStore) Ping(ctx context.Context) error { return s.err }

func parse(t *testing.T, input string) *query.Query {
	t.Helper()
	q, err := query.Parse(input)
	if err != nil {
		t.Fatal(err)
	}
	return q
}

func TestKeyUsesCanonicalForm(t *testing.T) {
	opts := tickets.SearchOptions{Actor: 1, Limit: 25}
	a := Key(parse(t, "status:open   and printer"), opts)
	b := Key(parse(t, "status:open printer"), tickets.SearchOptions{Actor: 2, Limit: 25})
	if a != b {
		t.Errorf("equivalent queries from different users should share a key")
	}
	if Key(parse(t, "printer status:open"), opts) == a {
		t.Errorf("condition order is significant")
	}
	if Key(parse(t, "assignee:@me"), opts) == Key(parse(t, "assignee:@me"), tickets.SearchOptions{Actor: 2, Limit: 25}) {
		t.Errorf("@me searches must be keyed by actor")
	}
	for _, input := range []string{"assignee:@Me", "not involves:@ME"} {
		if Key(parse(t, input), opts) == Key(parse(t, input), tickets.SearchOptions{Actor: 2, Limit: 25}) {
			t.Errorf("%s: @me in any case must be keyed by actor", input)
		}
	}
	if Key(parse(t, "printer"), opts) == Key(parse(t, "printer"), tickets.SearchOptions{Actor: 1, Limit: 25, Offset: 25}) {
		t.Errorf("pages must not share a key")
	}
}

func TestGetOrCompute(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	c := New(newMemoryStore(), time.Minute, m)
	q := parse(t, "printer")
	computed := 0
	compute := func() (*executor.SearchResult, error) {
		computed++
		return &executor.SearchResult{Canonical: "printer", Total: 1}, nil
	}

	res, hit, err := c.GetOrCompute(context.Background(), "printer", q, tickets.SearchOptions{}, compute)
	if err != nil || hit || res.Total != 1 {
		t.Fatalf("first call: res=%+v hit=%v err=%v", res, hit, err)
	}
	res, hit, err = c.GetOrCompute(context.Background(), "  printer ", q, tickets.SearchOptions{}, compute)
	if err != nil || !hit || res.Query != "  printer " {
		t.Fatalf("second call: res=%+v hit=%v err=%v", res, hit, err)
	}
	if computed != 1 {
		t.Errorf("computed %d times", computed)
	}
	if hits, misses := c.Stats(); hits != 1 || misses != 1 {
		t.Errorf("stats = %d/%d", hits, misses)
	}
	if testutil.ToFloat64(m.CacheHitsTotal) != 1 {
		t.Errorf("hit counter not incremented")
	}
}

func TestGetOrComputeFallsBackWhenStoreFails(t *testing.T) {
	store := newMemoryStore()
	store.err = errors.New("redis down")
	c := New(store, time.Minute, nil)
	res, hit, err := c.GetOrCompute(context.Background(), "printer", parse(t, "printer"), tickets.SearchOptions{}, func() (*executor.SearchResult, error) {
		return &executor.SearchResult{Total: 2}, nil
	})
	if err != nil || hit || res.Total != 2 {
		t.Errorf("res=%+v hit=%v err=%v", res, hit, err)
	}
}

func TestGetOrComputeDeduplicates(t *testing.T) {
	c := New(newMemoryStore(), time.Minute, nil)
	q := parse(t, "printer")
	var calls atomic.Int32
	release := make(chan struct{})
	compute := func() (*executor.SearchResult, error) {
		calls.Add(1)
		<-release
		return &executor.SearchResult{Total: 1}, nil
	}

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.GetOrCompute(context.Background(), "printer", q, tickets.SearchOptions{}, compute)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	if calls.Load() != 1 {
		t.Errorf("compute ran %d times", calls.Load())
	}
}

func TestInvalidator(t *testing.T) {
	store := newMemoryStore()
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	c := New(store, time.Minute, m)
	c.GetOrCompute(context.Background(), "printer", parse(t, "printer"), tickets.SearchOptions{}, func() (*executor.SearchResult, error) {
		return &executor.SearchResult{}, nil
	})
	store.data["unrelated"] = []byte("x")

	inv := NewInvalidator(c, m)
	payload, _ := json.Marshal(tickets.ChangeEvent{TicketID: 3, Change: "updated"})
	if err := inv.Handle(context.Background(), []byte("3"), payload); err != nil {
		t.Fatal(err)
	}
	if len(store.data) != 1 {
		t.Errorf("expected only the unrelated key to survive, got %d keys", len(store.data))
	}
	if err := inv.Handle(context.Background(), nil, []byte("{")); err != nil {
		t.Errorf("undecodable events must be skipped, got %v", err)
	}
	if got := testutil.ToFloat64(m.TicketEventsTotal.WithLabelValues("invalid")); got != 1 {
		t.Errorf("invalid counter = %v", got)
	}
}
