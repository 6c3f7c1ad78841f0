// Package extract drives the extraction of CallRail endpoints: it walks each
// endpoint's pagination space in bounded windows, hands the records to a
// sink and aggregates the per-endpoint results into a run summary.
package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/callrail-extractor/pkg/catalog"
	"github.com/Sternrassler/callrail-extractor/pkg/normalize"
	"github.com/Sternrassler/callrail-extractor/pkg/pagination"
	"github.com/Sternrassler/callrail-extractor/pkg/sink"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultPause separates consecutive window requests of one endpoint.
const DefaultPause = 100 * time.Millisecond

// Fetcher fetches one window of an endpoint. *pagination.BatchFetcher implements it.
type Fetcher interface {
	Fetch(ctx context.Context, ep catalog.Endpoint, w pagination.Window, scope pagination.Scope) ([]normalize.Record, error)
}

// Orchestrator extracts a single endpoint.
type Orchestrator struct {
	endpoint catalog.Endpoint
	fetcher  Fetcher
	scope    pagination.Scope
	writer   sink.Writer
	progress *Progress
	logger   zerolog.Logger

	// Pause is waited between window requests. Zero disables it.
	Pause time.Duration
}

// NewOrchestrator creates an orchestrator for ep. progress may be nil.
func NewOrchestrator(ep catalog.Endpoint, fetcher Fetcher, scope pagination.Scope, writer sink.Writer, progress *Progress) *Orchestrator {
	return &Orchestrator{
		endpoint: ep,
		fetcher:  fetcher,
		scope:    scope,
		writer:   writer,
		progress: progress,
		logger:   log.With().Str("component", "orchestrator").Str("endpoint", ep.Name).Logger(),
		Pause:    DefaultPause,
	}
}

// WithRunID tags the orchestrator's logs with a run id.
func (o *Orchestrator) WithRunID(runID string) *Orchestrator {
	o.logger = o.logger.With().Str("run_id", runID).Logger()
	return o
}

// Run extracts at most limit records in windows of batchSize. A failed
// window counts one error and the run moves on to the next window. Only a
// failing sink makes the whole endpoint fail.
func (o *Orchestrator) Run(ctx context.Context, limit, batchSize int) EndpointResult {
	start := time.Now()
	name := o.endpoint.Name
	result := EndpointResult{Endpoint: name}

	if limit <= 0 || batchSize <= 0 {
		err := fmt.Errorf("limit and batch size must be positive (limit=%d, batch_size=%d)", limit, batchSize)
		o.logger.Error().Err(err).Msg("Endpoint not started")
		return failedResult(name, time.Since(start), err)
	}

	o.logger.Info().
		Int("limit", limit).
		Int("batch_size", batchSize).
		Msg("Starting endpoint")
	o.progress.StartEndpoint(name, limit, batchSize)

	var records []normalize.Record
	batch := 0
	for offset := 0; offset < limit && len(records) < limit; offset += batchSize {
		if offset > 0 && o.Pause > 0 {
			if err := pause(ctx, o.Pause); err != nil {
				result.ErrorCount++
				result.Error = err.Error()
				break
			}
		}
		batch++

		w := pagination.Window{Offset: offset, Size: min(batchSize, limit-offset)}
		raws, err := o.fetcher.Fetch(ctx, o.endpoint, w, o.scope)
		if err != nil {
			result.ErrorCount++
			batchesTotal.WithLabelValues(name, "failed").Inc()
			o.progress.Batch(name, 0, false)
			o.logger.Error().
				Err(err).
				Int("batch", batch).
				Int("offset", w.Offset).
				Int("size", w.Size).
				Msg("Batch failed")
			if ctx.Err() != nil {
				result.Error = ctx.Err().Error()
				break
			}
			continue
		}

		normalized := normalize.ApplyAll(o.endpoint, raws)
		records = append(records, normalized...)
		batchesTotal.WithLabelValues(name, "ok").Inc()
		o.progress.Batch(name, len(normalized), true)
		o.logger.Debug().
			Int("batch", batch).
			Int("offset", w.Offset).
			Int("records", len(normalized)).
			Int("total_records", len(records)).
			Msg("Batch fetched")
	}

	if len(records) > limit {
		records = records[:limit]
	}

	if len(records) > 0 {
		path, err := o.writer.Write(ctx, name, records, o.endpoint.AllFields())
		if err != nil {
			err = fmt.Errorf("write %s output: %w", name, err)
			o.logger.Error().Err(err).Msg("Endpoint failed")
			result = failedResult(name, time.Since(start), err)
			o.progress.FinishEndpoint(name, 0, false)
			return result
		}
		result.OutputPath = path
	} else {
		o.logger.Warn().Msg("No records retrieved")
	}

	result.RecordsProcessed = len(records)
	result.Success = result.RecordsProcessed > 0 || result.ErrorCount == 0
	result.Elapsed = time.Since(start)
	recordsTotal.WithLabelValues(name).Add(float64(result.RecordsProcessed))
	o.progress.FinishEndpoint(name, result.RecordsProcessed, result.Success)

	o.logger.Info().
		Int("records", result.RecordsProcessed).
		Int("errors", result.ErrorCount).
		Bool("success", result.Success).
		Dur("duration", result.Elapsed).
		Str("path", result.OutputPath).
		Msg("Endpoint complete")
	return result
}

func pause(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
