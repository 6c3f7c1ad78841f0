// Package sink writes extracted records to flat files, one file per endpoint,
// and optionally mirrors them to an S3-compatible bucket.
package sink

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Sternrassler/callrail-extractor/pkg/normalize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Output formats.
const (
	FormatCSV     = "csv"
	FormatParquet = "parquet"
)

var sinkFilesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "callrail_sink_files_total",
	Help: "Total number of output files written by format",
}, []string{"format"})

// Writer persists one endpoint's records and returns the output location.
// Writing the same endpoint again replaces the previous output.
type Writer interface {
	Write(ctx context.Context, endpoint string, records []normalize.Record, columns []string) (string, error)
}

// CSVWriter writes <dir>/<endpoint>.csv with a header row.
type CSVWriter struct {
	dir    string
	logger zerolog.Logger
}

// NewCSVWriter creates a CSV writer rooted at dir.
func NewCSVWriter(dir string) *CSVWriter {
	return &CSVWriter{
		dir:    dir,
		logger: log.With().Str("component", "sink").Str("format", FormatCSV).Logger(),
	}
}

// Write implements Writer.
func (w *CSVWriter) Write(ctx context.Context, endpoint string, records []normalize.Record, columns []string) (string, error) {
	if len(records) == 0 {
		w.logger.Warn().Str("endpoint", endpoint).Msg("No records to write")
		return "", nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	table := BuildTable(records, columns)

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(table.Header); err != nil {
		return "", fmt.Errorf("write csv header: %w", err)
	}
	if err := cw.WriteAll(table.Rows); err != nil {
		return "", fmt.Errorf("write csv rows: %w", err)
	}

	path := filepath.Join(w.dir, endpoint+"."+FormatCSV)
	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		return "", err
	}

	sinkFilesTotal.WithLabelValues(FormatCSV).Inc()
	w.logger.Info().
		Str("endpoint", endpoint).
		Int("records", len(records)).
		Str("path", path).
		Msg("Wrote output file")
	return path, nil
}

// writeFileAtomic replaces path with data, creating the directory on demand.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
