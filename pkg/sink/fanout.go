package sink

import (
	"context"
	"fmt"
	"strings"

	"github.com/Sternrassler/callrail-extractor/pkg/normalize"
	"golang.org/x/sync/errgroup"
)

// Fanout writes the same records through several writers concurrently and
// returns the path of the first one. Written files are uploaded when an
// Uploader is set.
type Fanout struct {
	writers  []Writer
	uploader *Uploader
}

// NewFanout combines writers. uploader may be nil.
func NewFanout(uploader *Uploader, writers ...Writer) *Fanout {
	return &Fanout{writers: writers, uploader: uploader}
}

// Write implements Writer.
func (f *Fanout) Write(ctx context.Context, endpoint string, records []normalize.Record, columns []string) (string, error) {
	if len(f.writers) == 0 {
		return "", fmt.Errorf("no output writers configured")
	}

	paths := make([]string, len(f.writers))
	g, gctx := errgroup.WithContext(ctx)
	for i, w := range f.writers {
		g.Go(func() error {
			p, err := w.Write(gctx, endpoint, records, columns)
			if err != nil {
				return err
			}
			paths[i] = p
			if p != "" && f.uploader != nil {
				if _, err := f.uploader.Upload(gctx, p); err != nil {
					return fmt.Errorf("upload %s: %w", p, err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	return paths[0], nil
}

// Config selects output formats and the optional upload target.
type Config struct {
	Dir     string
	Formats []string
	Upload  UploadConfig
}

// New builds the writer for cfg: a single format writer, or a Fanout when
// several formats or an upload target are configured.
func New(ctx context.Context, cfg Config) (Writer, error) {
	formats := cfg.Formats
	if len(formats) == 0 {
		formats = []string{FormatCSV}
	}

	seen := make(map[string]struct{})
	var writers []Writer
	for _, format := range formats {
		format = strings.ToLower(strings.TrimSpace(format))
		if _, dup := seen[format]; dup {
			continue
		}
		seen[format] = struct{}{}
		switch format {
		case FormatCSV:
			writers = append(writers, NewCSVWriter(cfg.Dir))
		case FormatParquet:
			writers = append(writers, NewParquetWriter(cfg.Dir))
		default:
			return nil, fmt.Errorf("unknown output format %q", format)
		}
	}

	var uploader *Uploader
	if cfg.Upload.Enabled() {
		store, err := NewS3Store(cfg.Upload)
		if err != nil {
			return nil, err
		}
		uploader = NewUploader(store, cfg.Upload.Bucket, cfg.Upload.Prefix)
		if err := uploader.Prepare(ctx); err != nil {
			return nil, err
		}
	}

	if len(writers) == 1 && uploader == nil {
		return writers[0], nil
	}
	return NewFanout(uploader, writers...), nil
}
