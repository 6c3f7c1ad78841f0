package scope

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/callrail-extractor/pkg/cache"
	"github.com/Sternrassler/callrail-extractor/pkg/catalog"
	"github.com/Sternrassler/callrail-extractor/pkg/normalize"
	"github.com/Sternrassler/callrail-extractor/pkg/pagination"
	"github.com/goccy/go-json"
)

type fakeFetcher struct {
	mu      sync.Mutex
	calls   map[string]int
	records map[string][]normalize.Record
	errs    map[string]error
	delay   time.Duration
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		calls:   map[string]int{},
		records: map[string][]normalize.Record{},
		errs:    map[string]error{},
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, ep catalog.Endpoint, w pagination.Window, scope pagination.Scope) ([]normalize.Record, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if ep.NeedsAccount {
		if _, err := scope.AccountID(ctx); err != nil {
			return nil, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[ep.Name]++
	if err := f.errs[ep.Name]; err != nil {
		return nil, err
	}
	return f.records[ep.Name], nil
}

func (f *fakeFetcher) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

type memStore struct {
	mu      sync.Mutex
	entries map[string]*cache.CacheEntry
	gets    atomic.Int32
}

func newMemStore() *memStore {
	return &memStore{entries: map[string]*cache.CacheEntry{}}
}

func (s *memStore) Get(_ context.Context, key cache.CacheKey) (*cache.CacheEntry, error) {
	s.gets.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key.String()]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return e, nil
}

func (s *memStore) Set(_ context.Context, key cache.CacheKey, entry *cache.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key.String()] = entry
	return nil
}

func TestAccountID_LooksUpFirstAccountOnce(t *testing.T) {
	f := newFakeFetcher()
	f.records[catalog.Accounts] = []normalize.Record{{"id": "ACC1"}, {"id": "ACC2"}}
	f.delay = 10 * time.Millisecond

	r := NewResolver(f, catalog.Default(), nil, Config{})

	var wg sync.WaitGroup
	ids := make([]string, 8)
	errs := make([]error, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], errs[i] = r.AccountID(context.Background())
		}(i)
	}
	wg.Wait()

	for i, id := range ids {
		if errs[i] != nil {
			t.Errorf("caller %d: error = %v", i, errs[i])
		}
		if id != "ACC1" {
			t.Errorf("caller %d: id = %q, want ACC1", i, id)
		}
	}
	if n := f.count(catalog.Accounts); n != 1 {
		t.Errorf("account lookups = %d, want 1", n)
	}

	if _, err := r.AccountID(context.Background()); err != nil {
		t.Fatalf("AccountID() error = %v", err)
	}
	if n := f.count(catalog.Accounts); n != 1 {
		t.Errorf("account lookups after memoization = %d, want 1", n)
	}
}

func TestAccountID_Configured(t *testing.T) {
	f := newFakeFetcher()
	r := NewResolver(f, catalog.Default(), nil, Config{AccountID: "ACC9"})

	id, err := r.AccountID(context.Background())
	if err != nil {
		t.Fatalf("AccountID() error = %v", err)
	}
	if id != "ACC9" {
		t.Errorf("id = %q, want ACC9", id)
	}
	if n := f.count(catalog.Accounts); n != 0 {
		t.Errorf("account lookups = %d, want 0", n)
	}
}

func TestAccountID_NumericID(t *testing.T) {
	f := newFakeFetcher()
	f.records[catalog.Accounts] = []normalize.Record{{"id": json.Number("123456789")}}

	id, err := NewResolver(f, catalog.Default(), nil, Config{}).AccountID(context.Background())
	if err != nil {
		t.Fatalf("AccountID() error = %v", err)
	}
	if id != "123456789" {
		t.Errorf("id = %q, want 123456789", id)
	}
}

func TestAccountID_Failures(t *testing.T) {
	t.Run("no accounts", func(t *testing.T) {
		f := newFakeFetcher()
		_, err := NewResolver(f, catalog.Default(), nil, Config{}).AccountID(context.Background())
		if !errors.Is(err, ErrNoAccount) {
			t.Errorf("error = %v, want ErrNoAccount", err)
		}
	})

	t.Run("fetch error is not cached", func(t *testing.T) {
		f := newFakeFetcher()
		boom := errors.New("unauthorized")
		f.errs[catalog.Accounts] = boom
		r := NewResolver(f, catalog.Default(), nil, Config{})

		if _, err := r.AccountID(context.Background()); !errors.Is(err, boom) {
			t.Errorf("error = %v, want %v", err, boom)
		}

		f.mu.Lock()
		delete(f.errs, catalog.Accounts)
		f.records[catalog.Accounts] = []normalize.Record{{"id": "ACC1"}}
		f.mu.Unlock()

		id, err := r.AccountID(context.Background())
		if err != nil {
			t.Fatalf("AccountID() error = %v", err)
		}
		if id != "ACC1" {
			t.Errorf("id = %q, want ACC1", id)
		}
	})
}

func TestFirstCompanyID(t *testing.T) {
	f := newFakeFetcher()
	f.records[catalog.Accounts] = []normalize.Record{{"id": "ACC1"}}
	f.records[catalog.Companies] = []normalize.Record{{"id": "COM1"}}
	r := NewResolver(f, catalog.Default(), nil, Config{})

	for i := 0; i < 3; i++ {
		id, err := r.FirstCompanyID(context.Background())
		if err != nil {
			t.Fatalf("FirstCompanyID() error = %v", err)
		}
		if id != "COM1" {
			t.Errorf("id = %q, want COM1", id)
		}
	}
	if n := f.count(catalog.Companies); n != 1 {
		t.Errorf("company lookups = %d, want 1", n)
	}
}

func TestFirstCompanyID_None(t *testing.T) {
	f := newFakeFetcher()
	f.records[catalog.Accounts] = []normalize.Record{{"id": "ACC1"}}
	r := NewResolver(f, catalog.Default(), nil, Config{})

	id, err := r.FirstCompanyID(context.Background())
	if err != nil {
		t.Fatalf("FirstCompanyID() error = %v", err)
	}
	if id != "" {
		t.Errorf("id = %q, want empty", id)
	}

	_, _ = r.FirstCompanyID(context.Background())
	if n := f.count(catalog.Companies); n != 1 {
		t.Errorf("company lookups = %d, want 1 (absence is memoized)", n)
	}
}

func TestResolver_SharedCache(t *testing.T) {
	store := newMemStore()
	tenant := cache.TenantFor("api-key")

	f1 := newFakeFetcher()
	f1.records[catalog.Accounts] = []normalize.Record{{"id": "ACC1"}}
	f1.records[catalog.Companies] = []normalize.Record{{"id": "COM1"}}
	first := NewResolver(f1, catalog.Default(), store, Config{Tenant: tenant})

	if _, err := first.FirstCompanyID(context.Background()); err != nil {
		t.Fatalf("FirstCompanyID() error = %v", err)
	}

	// A second run with the same tenant does not hit the API.
	f2 := newFakeFetcher()
	second := NewResolver(f2, catalog.Default(), store, Config{Tenant: tenant})

	account, err := second.AccountID(context.Background())
	if err != nil {
		t.Fatalf("AccountID() error = %v", err)
	}
	company, err := second.FirstCompanyID(context.Background())
	if err != nil {
		t.Fatalf("FirstCompanyID() error = %v", err)
	}

	if account != "ACC1" || company != "COM1" {
		t.Errorf("account, company = %q, %q; want ACC1, COM1", account, company)
	}
	if n := f2.count(catalog.Accounts) + f2.count(catalog.Companies); n != 0 {
		t.Errorf("API lookups on cached run = %d, want 0", n)
	}

	// A different tenant misses.
	f3 := newFakeFetcher()
	f3.records[catalog.Accounts] = []normalize.Record{{"id": "ACC7"}}
	other := NewResolver(f3, catalog.Default(), store, Config{Tenant: cache.TenantFor("other")})
	account, err = other.AccountID(context.Background())
	if err != nil {
		t.Fatalf("AccountID() error = %v", err)
	}
	if account != "ACC7" {
		t.Errorf("account = %q, want ACC7", account)
	}
}
