package pagination

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/callrail-extractor/pkg/catalog"
	"github.com/Sternrassler/callrail-extractor/pkg/normalize"
	"github.com/Sternrassler/callrail-extractor/pkg/retry"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrNoScope is returned when an account-scoped endpoint is fetched without a Scope.
var ErrNoScope = errors.New("endpoint needs an account scope")

// Getter performs one GET against the CallRail API and returns the decoded body.
// *client.Client implements it.
type Getter interface {
	Get(ctx context.Context, path string, query url.Values) (any, error)
}

// Scope supplies the identifiers that scoped endpoints are filtered by.
type Scope interface {
	AccountID(ctx context.Context) (string, error)
	FirstCompanyID(ctx context.Context) (string, error)
}

// Window is one contiguous slice of an endpoint's records.
type Window struct {
	Offset int
	Size   int
}

// Config holds batch fetcher configuration
type Config struct {
	// Timeout bounds one page request including its retries. Zero means no extra bound.
	Timeout time.Duration
}

// DefaultConfig returns the default fetcher configuration.
func DefaultConfig() Config {
	return Config{
		Timeout: 5 * time.Minute,
	}
}

// BatchFetcher fetches one window of an endpoint per call.
type BatchFetcher struct {
	getter Getter
	policy *retry.Policy
	config Config
	logger zerolog.Logger
}

// NewBatchFetcher creates a new batch fetcher. A nil policy uses retry.Default.
func NewBatchFetcher(getter Getter, policy *retry.Policy, config Config) *BatchFetcher {
	if policy == nil {
		policy = retry.Default()
	}
	return &BatchFetcher{
		getter: getter,
		policy: policy,
		config: config,
		logger: log.With().Str("component", "fetcher").Logger(),
	}
}

// Fetch requests the window w of ep under the retry policy and returns the raw
// records found in the response.
func (bf *BatchFetcher) Fetch(ctx context.Context, ep catalog.Endpoint, w Window, scope Scope) ([]normalize.Record, error) {
	if w.Size <= 0 {
		return nil, fmt.Errorf("fetch %s: window size must be positive, got %d", ep.Name, w.Size)
	}
	if w.Offset < 0 {
		return nil, fmt.Errorf("fetch %s: window offset must not be negative, got %d", ep.Name, w.Offset)
	}

	path := ep.Path
	if ep.NeedsAccount {
		if scope == nil {
			return nil, fmt.Errorf("fetch %s: %w", ep.Name, ErrNoScope)
		}
		accountID, err := scope.AccountID(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: resolve account: %w", ep.Name, err)
		}
		path = ep.ResolvePath(accountID)
	}

	query := Params(ep, w)

	if ep.NeedsCompany && scope != nil {
		companyID, err := scope.FirstCompanyID(ctx)
		switch {
		case err != nil:
			bf.logger.Warn().Err(err).Str("endpoint", ep.Name).Msg("Could not resolve company_id, fetching without filter")
		case companyID != "":
			query.Set("company_id", companyID)
		}
	}

	if bf.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, bf.config.Timeout)
		defer cancel()
	}

	op := fmt.Sprintf("fetch %s offset=%d size=%d", ep.Name, w.Offset, w.Size)
	body, err := retry.Do(ctx, bf.policy, op, func(ctx context.Context) (any, error) {
		return bf.getter.Get(ctx, path, query)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", ep.Name, err)
	}

	records := ExtractRecords(ep.Name, body)

	bf.logger.Debug().
		Str("endpoint", ep.Name).
		Int("offset", w.Offset).
		Int("size", w.Size).
		Int("records", len(records)).
		Msg("Fetched window")

	return records, nil
}

// Params builds the paging and field-selection query for a window.
func Params(ep catalog.Endpoint, w Window) url.Values {
	maxPerPage := ep.MaxPerPage
	if maxPerPage <= 0 {
		maxPerPage = catalog.DefaultMaxPerPage
	}

	q := url.Values{}
	q.Set("per_page", strconv.Itoa(min(w.Size, maxPerPage)))
	if ep.Pagination != catalog.PaginationCursor {
		q.Set("page", strconv.Itoa(w.Offset/w.Size+1))
	}

	if !ep.SkipFieldSelection {
		if fields := ep.AllFields(); len(fields) > 0 {
			q.Set("fields", strings.Join(fields, ","))
		}
	}
	return q
}

// ExtractRecords finds the record list in a response body: a bare array, the
// first array under the endpoint name, "data", "results" or "items", or a
// single object with an id. Anything else yields no records.
func ExtractRecords(name string, body any) []normalize.Record {
	switch v := body.(type) {
	case []any:
		return objects(v)
	case []map[string]any:
		return v
	case map[string]any:
		for _, key := range []string{name, "data", "results", "items"} {
			if list, ok := v[key].([]any); ok {
				return objects(list)
			}
		}
		if _, ok := v["id"]; ok {
			return []normalize.Record{v}
		}
	}
	return nil
}

func objects(list []any) []normalize.Record {
	out := make([]normalize.Record, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
