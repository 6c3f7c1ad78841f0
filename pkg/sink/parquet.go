package sink

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Sternrassler/callrail-extractor/pkg/normalize"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	writerfile "github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

// ParquetWriter writes <dir>/<endpoint>.parquet with one optional UTF8
// column per flattened field, Snappy compressed.
type ParquetWriter struct {
	dir    string
	logger zerolog.Logger
}

// NewParquetWriter creates a Parquet writer rooted at dir.
func NewParquetWriter(dir string) *ParquetWriter {
	return &ParquetWriter{
		dir:    dir,
		logger: log.With().Str("component", "sink").Str("format", FormatParquet).Logger(),
	}
}

// Write implements Writer.
func (w *ParquetWriter) Write(ctx context.Context, endpoint string, records []normalize.Record, columns []string) (string, error) {
	if len(records) == 0 {
		return "", nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	table := BuildTable(records, columns)
	data, err := encodeParquet(table)
	if err != nil {
		return "", fmt.Errorf("encode parquet for %s: %w", endpoint, err)
	}

	path := filepath.Join(w.dir, endpoint+"."+FormatParquet)
	if err := writeFileAtomic(path, data); err != nil {
		return "", err
	}

	sinkFilesTotal.WithLabelValues(FormatParquet).Inc()
	w.logger.Info().
		Str("endpoint", endpoint).
		Int("records", len(records)).
		Str("path", path).
		Msg("Wrote output file")
	return path, nil
}

func encodeParquet(table Table) ([]byte, error) {
	names := parquetNames(table.Header)
	schema, err := parquetSchema(names)
	if err != nil {
		return nil, err
	}

	buf := &bytes.Buffer{}
	pfw := writerfile.NewWriterFile(buf)
	pw, err := writer.NewJSONWriter(schema, pfw, 4)
	if err != nil {
		return nil, fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, cells := range table.Rows {
		row := make(map[string]string, len(cells))
		for i, name := range names {
			row[name] = cells[i]
		}
		line, err := json.Marshal(row)
		if err != nil {
			_ = pw.WriteStop()
			_ = pfw.Close()
			return nil, fmt.Errorf("encode parquet row: %w", err)
		}
		if err := pw.Write(string(line)); err != nil {
			_ = pw.WriteStop()
			_ = pfw.Close()
			return nil, fmt.Errorf("write parquet row: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		_ = pfw.Close()
		return nil, fmt.Errorf("finish parquet file: %w", err)
	}
	_ = pfw.Close()
	return buf.Bytes(), nil
}

// parquetNames maps flattened keys to column names the parquet-go tag syntax
// accepts: letters, digits and underscores, unique ignoring case. Nested API
// keys are free-form ("Lead Source, Paid"), and a comma or '=' breaks the tag.
func parquetNames(header []string) []string {
	names := make([]string, len(header))
	used := make(map[string]struct{}, len(header))
	for i, col := range header {
		base := sanitizeColumn(col)
		name := base
		for n := 2; ; n++ {
			if _, dup := used[strings.ToLower(name)]; !dup {
				break
			}
			name = base + "_" + strconv.Itoa(n)
		}
		used[strings.ToLower(name)] = struct{}{}
		names[i] = name
	}
	return names
}

func sanitizeColumn(col string) string {
	var b strings.Builder
	for _, r := range col {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "column"
	}
	return b.String()
}

func parquetSchema(names []string) (string, error) {
	fields := make([]map[string]string, 0, len(names))
	for _, col := range names {
		fields = append(fields, map[string]string{
			"Tag": fmt.Sprintf("name=%s, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL", col),
		})
	}
	b, err := json.Marshal(map[string]any{
		"Tag":    "name=parquet_go_root, repetitiontype=REQUIRED",
		"Fields": fields,
	})
	if err != nil {
		return "", fmt.Errorf("build parquet schema: %w", err)
	}
	return string(b), nil
}
