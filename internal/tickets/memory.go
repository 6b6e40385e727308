package tickets

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"

	"github.com/bileto/ticket-search/internal/query"
	"gopkg.in/yaml.v3"
)

// MemoryRepository keeps tickets in memory and evaluates queries with the
// matcher. It backs the memory search backend and the tests.
type MemoryRepository struct {
	mu      sync.RWMutex
	tickets []Ticket
	logger  *slog.Logger
}

func NewMemoryRepository(tickets ...Ticket) *MemoryRepository {
	r := &MemoryRepository{
		logger: slog.Default().With("component", "memory-repository"),
	}
	for _, t := range tickets {
		r.Put(t)
	}
	return r
}

type fixtures struct {
	Tickets []Ticket `yaml:"tickets"`
}

// LoadFixtures reads a YAML file holding a top-level tickets list.
func LoadFixtures(path string) (*MemoryRepository, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixtures %s: %w", path, err)
	}
	var f fixtures
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing fixtures %s: %w", path, err)
	}
	r := NewMemoryRepository(f.Tickets...)
	r.logger.Info("fixtures loaded", "path", path, "tickets", len(f.Tickets))
	return r, nil
}

// Put inserts t or replaces the ticket with the same id.
func (r *MemoryRepository) Put(t Ticket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := slices.IndexFunc(r.tickets, func(o Ticket) bool { return o.ID == t.ID })
	if i >= 0 {
		r.tickets[i] = t
		return
	}
	r.tickets = append(r.tickets, t)
}

func (r *MemoryRepository) Search(ctx context.Context, q *query.Query, opts SearchOptions) (*Page, error) {
	f, err := Compile(q, opts.Actor)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	var matched []Ticket
	for i := range r.tickets {
		if f.Matches(&r.tickets[i]) {
			matched = append(matched, r.tickets[i])
		}
	}
	r.mu.RUnlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	slices.SortFunc(matched, compareRecent)
	page := &Page{Total: len(matched), Limit: opts.Limit, Offset: opts.Offset, Tickets: []Ticket{}}
	if opts.Offset < len(matched) {
		end := len(matched)
		if opts.Limit > 0 {
			end = min(end, opts.Offset+opts.Limit)
		}
		page.Tickets = matched[opts.Offset:end]
	}
	return page, nil
}

func (r *MemoryRepository) Ping(ctx context.Context) error {
	return nil
}

// compareRecent orders by updated_at DESC, id DESC.
func compareRecent(a, b Ticket) int {
	if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
		return c
	}
	return cmp.Compare(b.ID, a.ID)
}
