// Package export serializes pipelined rows to artifact formats. Writers
// consume rows one chunk at a time so peak memory stays bounded by the
// chunk size, never by the dataset.
package export

import (
	"context"
	"io"

	"github.com/artisthq/exportd/constants"
	"github.com/artisthq/exportd/internal/entity"
)

// Config controls serialization.
type Config struct {
	// Delimiter defaults to ',' when zero.
	Delimiter      rune
	IncludeHeaders bool
	// ChunkSize is how many rows are written between flushes; it bounds
	// how far the producer can outrun the sink.
	ChunkSize int
	// OnChunk, if set, is called with the running record count after each
	// flushed chunk. Used for progress reporting.
	OnChunk func(written int64)
}

func (c Config) chunkSize() int {
	if c.ChunkSize <= 0 {
		return 1000
	}
	return c.ChunkSize
}

func (c Config) delimiter() rune {
	if c.Delimiter == 0 {
		return ','
	}
	return c.Delimiter
}

// Result summarizes a completed write.
type Result struct {
	RecordCount int64
	ByteCount   int64
}

// RowSource is the pull-based row sequence a writer consumes.
type RowSource interface {
	Next(ctx context.Context) (row entity.Row, ok bool, err error)
}

// Writer streams rows to a sink. Implementations must not materialize the
// full row set; sink failures are surfaced wrapped in common.ErrSink so the
// engine can fail the job and discard the partial artifact.
type Writer interface {
	Write(ctx context.Context, header []string, rows RowSource, sink io.Writer) (Result, error)
}

// ForFormat returns the writer for an artifact format.
func ForFormat(f constants.Format, cfg Config) Writer {
	if f == constants.FormatXLSX {
		return &XLSXWriter{Config: cfg}
	}
	return &CSVWriter{Config: cfg}
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}
