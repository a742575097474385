package export

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"

	"github.com/couchcryptid/snih-data-etl/internal/domain"
	"github.com/google/renameio/v2"
)

// FileSink writes exports to the local filesystem. Files are written to a
// temporary sibling, synced and renamed into place, so a failed export never
// leaves a truncated file behind.
type FileSink struct {
	logger *slog.Logger
}

func NewFileSink(logger *slog.Logger) *FileSink {
	return &FileSink{logger: logger}
}

// WriteRecords encodes records to path and returns the number of bytes written.
func (s *FileSink) WriteRecords(path string, format domain.OutputFormat, records []domain.Record, schema domain.FieldSchema) (int64, error) {
	return s.write(path, func(w io.Writer) error {
		return EncodeRecords(w, format, records, schema)
	})
}

// WriteDocument encodes v as indented JSON to path.
func (s *FileSink) WriteDocument(path string, v any) (int64, error) {
	return s.write(path, func(w io.Writer) error {
		return EncodeJSON(w, v)
	})
}

func (s *FileSink) write(path string, encode func(io.Writer) error) (int64, error) {
	pf, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer pf.Cleanup() //nolint:errcheck // no-op once replaced

	cw := &countingWriter{w: pf}
	bw := bufio.NewWriter(cw)
	if err := encode(bw); err != nil {
		return 0, fmt.Errorf("encode %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		return 0, fmt.Errorf("write %s: %w", path, err)
	}
	// Syncs the temp file before renaming it over path.
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return 0, fmt.Errorf("replace %s: %w", path, err)
	}

	s.logger.Debug("export written", "path", path, "bytes", cw.n)
	return cw.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
