package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// EndpointResult is the outcome of extracting one endpoint.
type EndpointResult struct {
	Endpoint         string        `json:"endpoint"`
	RecordsProcessed int           `json:"records_processed"`
	ErrorCount       int           `json:"errors"`
	Elapsed          time.Duration `json:"-"`
	OutputPath       string        `json:"output_path"`
	Success          bool          `json:"success"`
	Error            string        `json:"error,omitempty"`
}

// MarshalJSON renders Elapsed as seconds.
func (r EndpointResult) MarshalJSON() ([]byte, error) {
	type plain EndpointResult
	return json.Marshal(struct {
		plain
		Elapsed float64 `json:"total_time"`
	}{plain(r), r.Elapsed.Seconds()})
}

// failedResult is what a catastrophic endpoint failure turns into.
func failedResult(name string, elapsed time.Duration, err error) EndpointResult {
	return EndpointResult{
		Endpoint:   name,
		ErrorCount: 1,
		Elapsed:    elapsed,
		Success:    false,
		Error:      err.Error(),
	}
}

// RunSummary aggregates the results of one run.
type RunSummary struct {
	RunID               string                    `json:"run_id"`
	StartedAt           time.Time                 `json:"start_time"`
	TotalEndpoints      int                       `json:"total_endpoints"`
	SuccessfulEndpoints int                       `json:"successful_endpoints"`
	FailedEndpoints     int                       `json:"failed_endpoints"`
	TotalRecords        int                       `json:"total_records"`
	TotalErrors         int                       `json:"total_errors"`
	Elapsed             time.Duration             `json:"-"`
	Order               []string                  `json:"order"`
	Results             map[string]EndpointResult `json:"endpoints"`
}

func newRunSummary(runID string, started time.Time) *RunSummary {
	return &RunSummary{
		RunID:     runID,
		StartedAt: started,
		Results:   make(map[string]EndpointResult),
	}
}

// add records a result and updates the totals.
func (s *RunSummary) add(r EndpointResult) {
	s.Order = append(s.Order, r.Endpoint)
	s.Results[r.Endpoint] = r
	s.TotalEndpoints++
	s.TotalRecords += r.RecordsProcessed
	s.TotalErrors += r.ErrorCount
	if r.Success {
		s.SuccessfulEndpoints++
	} else {
		s.FailedEndpoints++
	}
}

// ExitCode is 1 when any endpoint failed, 0 otherwise.
func (s *RunSummary) ExitCode() int {
	if s.FailedEndpoints > 0 {
		return 1
	}
	return 0
}

// MarshalJSON renders Elapsed as seconds.
func (s *RunSummary) MarshalJSON() ([]byte, error) {
	type plain RunSummary
	return json.Marshal(struct {
		*plain
		Elapsed float64 `json:"total_time"`
	}{(*plain)(s), s.Elapsed.Seconds()})
}

// WriteJSON writes the summary to path, creating parent directories.
func (s *RunSummary) WriteJSON(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run summary: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create summary directory: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write run summary: %w", err)
	}
	return nil
}

// Log writes the human readable summary block.
func (s *RunSummary) Log(logger zerolog.Logger) {
	rule := strings.Repeat("=", 60)

	logger.Info().Msg(rule)
	logger.Info().Msg("DOWNLOAD SUMMARY")
	logger.Info().Msg(rule)
	logger.Info().Msgf("Total time: %.2f seconds", s.Elapsed.Seconds())
	logger.Info().Msgf("Total endpoints: %d", s.TotalEndpoints)
	logger.Info().Msgf("Successful endpoints: %d", s.SuccessfulEndpoints)
	logger.Info().Msgf("Failed endpoints: %d", s.FailedEndpoints)
	logger.Info().Msgf("Total records downloaded: %d", s.TotalRecords)
	logger.Info().Msgf("Total errors: %d", s.TotalErrors)
	logger.Info().Msg("")

	for _, name := range s.Order {
		r := s.Results[name]
		status := "SUCCESS"
		if !r.Success {
			status = "FAILED"
		}
		logger.Info().Msgf("%s %s: %d records (%.2fs)", status, name, r.RecordsProcessed, r.Elapsed.Seconds())
		if r.OutputPath != "" {
			logger.Info().Msgf("  -> %s", r.OutputPath)
		}
	}

	logger.Info().Msg(rule)
}
