package extract

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Sternrassler/callrail-extractor/pkg/catalog"
	"github.com/Sternrassler/callrail-extractor/pkg/pagination"
	"github.com/Sternrassler/callrail-extractor/pkg/sink"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds run defaults.
type Config struct {
	// DefaultLimit is used when Run is called with limit <= 0.
	DefaultLimit int

	// BatchSize is used when Run is called with batchSize <= 0.
	BatchSize int

	// MinBatch and MaxBatch clamp the effective batch size.
	MinBatch int
	MaxBatch int

	// Pause separates window requests. Zero uses DefaultPause, negative disables it.
	Pause time.Duration

	// RunID tags logs and the summary. Empty generates a new uuid per run.
	RunID string
}

// DefaultConfig returns the defaults of the CallRail extractor.
func DefaultConfig() Config {
	return Config{
		DefaultLimit: 100,
		BatchSize:    100,
		MinBatch:     10,
		MaxBatch:     1000,
		Pause:        DefaultPause,
	}
}

// Coordinator runs a list of endpoints sequentially and aggregates their
// results.
type Coordinator struct {
	registry *catalog.Registry
	fetcher  Fetcher
	scope    pagination.Scope
	writer   sink.Writer
	config   Config
	progress *Progress
}

// NewCoordinator creates a coordinator. scope is usually a *scope.Resolver.
func NewCoordinator(registry *catalog.Registry, fetcher Fetcher, scope pagination.Scope, writer sink.Writer, config Config) *Coordinator {
	defaults := DefaultConfig()
	if config.DefaultLimit <= 0 {
		config.DefaultLimit = defaults.DefaultLimit
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.MinBatch <= 0 {
		config.MinBatch = 1
	}
	if config.MaxBatch < config.MinBatch {
		config.MaxBatch = max(defaults.MaxBatch, config.MinBatch)
	}
	if config.Pause == 0 {
		config.Pause = DefaultPause
	}
	return &Coordinator{
		registry: registry,
		fetcher:  fetcher,
		scope:    scope,
		writer:   writer,
		config:   config,
	}
}

// Progress returns the tracker of the current or last run.
func (c *Coordinator) Progress() *Progress {
	return c.progress
}

// Run extracts names in the given order. It fails before any network call
// when a name is unknown, and fails the whole run when the account scope
// cannot be resolved. Any other endpoint failure is recorded in the summary.
// A cancelled context stops the run without a summary.
func (c *Coordinator) Run(ctx context.Context, names []string, limit, batchSize int) (*RunSummary, error) {
	started := time.Now()

	names, err := ValidateNames(c.registry, names)
	if err != nil {
		return nil, err
	}

	runID := c.config.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	logger := log.With().Str("component", "coordinator").Str("run_id", runID).Logger()

	limit, batchSize = c.effective(limit, batchSize)
	logger.Info().
		Strs("endpoints", names).
		Int("limit", limit).
		Int("batch_size", batchSize).
		Msg("Starting run")

	accountID, err := c.scope.AccountID(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Account scope unavailable")
		return nil, &ScopeError{Err: err}
	}
	logger.Info().Str("account_id", accountID).Msg("Account scope resolved")

	c.progress = NewProgress(logger)
	c.progress.Start(len(names))

	summary := newRunSummary(runID, started)
	for _, name := range names {
		ep, _ := c.registry.Describe(name)
		result := c.runEndpoint(ctx, ep, limit, batchSize, runID, logger)
		summary.add(result)

		if ctx.Err() != nil {
			logger.Warn().Err(ctx.Err()).Str("endpoint", name).Msg("Run cancelled")
			return nil, fmt.Errorf("run cancelled: %w", ctx.Err())
		}
	}
	summary.Elapsed = time.Since(started)

	logger.Info().
		Int("successful", summary.SuccessfulEndpoints).
		Int("failed", summary.FailedEndpoints).
		Int("records", summary.TotalRecords).
		Dur("duration", summary.Elapsed).
		Msg("Run complete")
	return summary, nil
}

// runEndpoint turns anything escaping the orchestrator into a failed result.
func (c *Coordinator) runEndpoint(ctx context.Context, ep catalog.Endpoint, limit, batchSize int, runID string, logger zerolog.Logger) (result EndpointResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			logger.Error().Err(err).Str("endpoint", ep.Name).Msg("Error processing endpoint")
			c.progress.FinishEndpoint(ep.Name, 0, false)
			result = failedResult(ep.Name, time.Since(start), err)
		}
	}()

	orch := NewOrchestrator(ep, c.fetcher, c.scope, c.writer, c.progress).WithRunID(runID)
	orch.Pause = max(c.config.Pause, 0)
	return orch.Run(ctx, limit, batchSize)
}

func (c *Coordinator) effective(limit, batchSize int) (int, int) {
	if limit <= 0 {
		limit = c.config.DefaultLimit
	}
	if batchSize <= 0 {
		batchSize = c.config.BatchSize
	}
	batchSize = min(max(batchSize, c.config.MinBatch), c.config.MaxBatch)
	return limit, batchSize
}

// ValidateNames checks a requested endpoint list against registry and returns
// it trimmed. Empty entries are dropped. Unknown names take precedence over
// duplicates, and both are a *ConfigError.
func ValidateNames(registry *catalog.Registry, names []string) ([]string, error) {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	if len(out) == 0 {
		return nil, &ConfigError{Reason: "no endpoints requested", Available: registry.Names()}
	}
	if invalid := registry.Unknown(out); len(invalid) > 0 {
		return nil, &ConfigError{Invalid: invalid, Available: registry.Names()}
	}

	seen := make(map[string]struct{}, len(out))
	var dups []string
	for _, n := range out {
		if _, ok := seen[n]; ok {
			if !slices.Contains(dups, n) {
				dups = append(dups, n)
			}
			continue
		}
		seen[n] = struct{}{}
	}
	if len(dups) > 0 {
		return nil, &ConfigError{Reason: "duplicate endpoints: " + strings.Join(dups, ", "), Available: registry.Names()}
	}
	return out, nil
}
