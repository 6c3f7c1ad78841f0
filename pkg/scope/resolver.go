// Package scope resolves the account and company identifiers that CallRail
// endpoints are scoped by.
package scope

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/callrail-extractor/pkg/cache"
	"github.com/Sternrassler/callrail-extractor/pkg/catalog"
	"github.com/Sternrassler/callrail-extractor/pkg/normalize"
	"github.com/Sternrassler/callrail-extractor/pkg/pagination"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// ErrNoAccount is returned when the API key has no visible account.
var ErrNoAccount = errors.New("no account id found")

// Fetcher fetches one window of an endpoint. *pagination.BatchFetcher implements it.
type Fetcher interface {
	Fetch(ctx context.Context, ep catalog.Endpoint, w pagination.Window, scope pagination.Scope) ([]normalize.Record, error)
}

// Config holds resolver configuration.
type Config struct {
	// AccountID skips the account lookup when set.
	AccountID string

	// Tenant namespaces cached ids, usually cache.TenantFor(apiKey).
	Tenant string

	// TTL is how long ids stay in the shared cache. Zero uses cache.DefaultTTL.
	TTL time.Duration
}

// Resolver looks scope ids up once per run. Concurrent callers share one
// lookup. When a cache.Store is given, ids are also reused across runs.
type Resolver struct {
	fetcher  Fetcher
	registry *catalog.Registry
	store    cache.Store
	config   Config
	logger   zerolog.Logger

	group singleflight.Group

	mu              sync.Mutex
	accountID       string
	companyID       string
	companyResolved bool
}

// NewResolver creates a resolver. store may be nil.
func NewResolver(fetcher Fetcher, registry *catalog.Registry, store cache.Store, cfg Config) *Resolver {
	if cfg.TTL <= 0 {
		cfg.TTL = cache.DefaultTTL
	}
	return &Resolver{
		fetcher:   fetcher,
		registry:  registry,
		store:     store,
		config:    cfg,
		logger:    log.With().Str("component", "scope").Logger(),
		accountID: cfg.AccountID,
	}
}

// AccountID returns the account every account-scoped path is built with:
// the configured one, or the first account visible to the API key.
func (r *Resolver) AccountID(ctx context.Context) (string, error) {
	r.mu.Lock()
	id := r.accountID
	r.mu.Unlock()
	if id != "" {
		return id, nil
	}

	v, err, _ := r.group.Do(cache.KindAccount, func() (any, error) {
		key := cache.CacheKey{Kind: cache.KindAccount, Tenant: r.config.Tenant}
		if id, ok := r.cached(ctx, key); ok {
			return id, nil
		}

		r.logger.Info().Msg("Fetching account information")
		id, err := r.first(ctx, catalog.Accounts, nil)
		if err != nil {
			return "", fmt.Errorf("look up account: %w", err)
		}
		if id == "" {
			return "", ErrNoAccount
		}
		r.remember(ctx, key, id)
		return id, nil
	})
	if err != nil {
		r.logger.Error().Err(err).Msg("Error getting account ID")
		return "", err
	}

	id = v.(string)
	r.mu.Lock()
	r.accountID = id
	r.mu.Unlock()

	r.logger.Info().Str("account_id", id).Msg("Using account ID")
	return id, nil
}

// FirstCompanyID returns the id of the first company under the account, or
// "" when the account has none.
func (r *Resolver) FirstCompanyID(ctx context.Context) (string, error) {
	r.mu.Lock()
	id, done := r.companyID, r.companyResolved
	r.mu.Unlock()
	if done {
		return id, nil
	}

	accountID, err := r.AccountID(ctx)
	if err != nil {
		return "", err
	}

	v, err, _ := r.group.Do(cache.KindCompany, func() (any, error) {
		key := cache.CacheKey{
			Kind:   cache.KindCompany,
			Tenant: r.config.Tenant,
			Params: map[string]string{"account_id": accountID},
		}
		if id, ok := r.cached(ctx, key); ok {
			return id, nil
		}

		id, err := r.first(ctx, catalog.Companies, r)
		if err != nil {
			return "", fmt.Errorf("look up company: %w", err)
		}
		r.remember(ctx, key, id)
		return id, nil
	})
	if err != nil {
		return "", err
	}

	id = v.(string)
	r.mu.Lock()
	r.companyID, r.companyResolved = id, true
	r.mu.Unlock()
	return id, nil
}

// first fetches one record of the named endpoint and returns its id.
func (r *Resolver) first(ctx context.Context, name string, scope pagination.Scope) (string, error) {
	ep, ok := r.registry.Describe(name)
	if !ok {
		return "", fmt.Errorf("endpoint %q not in catalog", name)
	}

	records, err := r.fetcher.Fetch(ctx, ep, pagination.Window{Offset: 0, Size: 1}, scope)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", nil
	}

	switch v := records[0]["id"].(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		return fmt.Sprint(v), nil
	}
}

func (r *Resolver) cached(ctx context.Context, key cache.CacheKey) (string, bool) {
	if r.store == nil {
		return "", false
	}
	entry, err := r.store.Get(ctx, key)
	switch {
	case err == nil:
		r.logger.Debug().Str("key", key.String()).Msg("Scope id served from cache")
		return entry.Value, true
	case !errors.Is(err, cache.ErrCacheMiss):
		r.logger.Warn().Err(err).Str("key", key.String()).Msg("Scope cache read failed")
	}
	return "", false
}

func (r *Resolver) remember(ctx context.Context, key cache.CacheKey, id string) {
	if r.store == nil || id == "" {
		return
	}
	if err := r.store.Set(ctx, key, cache.NewEntry(id, r.config.TTL)); err != nil {
		r.logger.Warn().Err(err).Str("key", key.String()).Msg("Scope cache write failed")
	}
}
