package extract

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Progress tracks a run at two levels: endpoints completed out of the
// requested total, and batches completed within each endpoint. Every update
// is logged as a structured line. A nil *Progress ignores all updates.
type Progress struct {
	mu        sync.Mutex
	logger    zerolog.Logger
	total     int
	completed int
	records   int
	endpoints map[string]*EndpointProgress
}

// EndpointProgress is the batch level state of one endpoint.
type EndpointProgress struct {
	Batches       int
	TotalBatches  int
	Records       int
	FailedBatches int
	Started       time.Time
}

// NewProgress creates a tracker logging to logger.
func NewProgress(logger zerolog.Logger) *Progress {
	return &Progress{
		logger:    logger,
		endpoints: make(map[string]*EndpointProgress),
	}
}

// Start resets the tracker for a run over total endpoints.
func (p *Progress) Start(total int) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total = total
	p.completed = 0
	p.records = 0
	p.endpoints = make(map[string]*EndpointProgress)
}

// StartEndpoint opens batch tracking for an endpoint.
func (p *Progress) StartEndpoint(name string, limit, batchSize int) {
	if p == nil {
		return
	}
	batches := 0
	if batchSize > 0 {
		batches = (limit + batchSize - 1) / batchSize
	}

	p.mu.Lock()
	p.endpoints[name] = &EndpointProgress{TotalBatches: batches, Started: time.Now()}
	p.mu.Unlock()

	p.logger.Debug().
		Str("endpoint", name).
		Int("total_batches", batches).
		Int("limit", limit).
		Msg("Extracting endpoint")
}

// Batch records one finished batch of an endpoint.
func (p *Progress) Batch(name string, records int, ok bool) {
	if p == nil {
		return
	}
	p.mu.Lock()
	ep, found := p.endpoints[name]
	if !found {
		p.mu.Unlock()
		return
	}
	ep.Batches++
	ep.Records += records
	if !ok {
		ep.FailedBatches++
	}
	snapshot := *ep
	p.mu.Unlock()

	p.logger.Debug().
		Str("endpoint", name).
		Int("completed", snapshot.Batches).
		Int("total", snapshot.TotalBatches).
		Float64("progress_pct", percent(snapshot.Batches, snapshot.TotalBatches)).
		Int("records", snapshot.Records).
		Msg("Batch progress")
}

// FinishEndpoint closes an endpoint and advances the overall progress.
func (p *Progress) FinishEndpoint(name string, records int, success bool) {
	if p == nil {
		return
	}
	p.mu.Lock()
	var elapsed time.Duration
	if ep, ok := p.endpoints[name]; ok {
		elapsed = time.Since(ep.Started)
		delete(p.endpoints, name)
	}
	p.completed++
	p.records += records
	completed, total, sum := p.completed, p.total, p.records
	p.mu.Unlock()

	rate := 0.0
	if elapsed > 0 {
		rate = float64(records) / elapsed.Seconds()
	}
	p.logger.Info().
		Str("endpoint", name).
		Bool("success", success).
		Float64("records_per_sec", rate).
		Int("completed", completed).
		Int("total", total).
		Float64("progress_pct", percent(completed, total)).
		Int("records", sum).
		Msg("Overall progress")
}

// Endpoint returns the batch state of an endpoint still in progress.
func (p *Progress) Endpoint(name string) (EndpointProgress, bool) {
	if p == nil {
		return EndpointProgress{}, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	ep, ok := p.endpoints[name]
	if !ok {
		return EndpointProgress{}, false
	}
	return *ep, true
}

// Overall returns completed endpoints, the total and records so far.
func (p *Progress) Overall() (completed, total, records int) {
	if p == nil {
		return 0, 0, 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.completed, p.total, p.records
}

func percent(n, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}
