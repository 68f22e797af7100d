package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/artisthq/exportd/internal/common"
)

// CSVWriter streams rows as RFC 4180 CSV. encoding/csv handles quoting:
// fields containing the delimiter, quotes or newlines are quoted and inner
// quotes doubled.
type CSVWriter struct {
	Config
}

func (w *CSVWriter) Write(ctx context.Context, header []string, rows RowSource, sink io.Writer) (Result, error) {
	counting := &countingWriter{w: sink}
	cw := csv.NewWriter(counting)
	cw.Comma = w.delimiter()

	var written int64
	flush := func() error {
		cw.Flush()
		if err := cw.Error(); err != nil {
			return fmt.Errorf("%w: %v", common.ErrSink, err)
		}
		return nil
	}

	if w.IncludeHeaders {
		if err := cw.Write(header); err != nil {
			return Result{}, fmt.Errorf("%w: %v", common.ErrSink, err)
		}
		// Header-only output is valid for an empty dataset, so make sure
		// it reaches the sink even if no row ever does.
		if err := flush(); err != nil {
			return Result{ByteCount: counting.n}, err
		}
	}

	chunk := w.chunkSize()
	for {
		if err := ctx.Err(); err != nil {
			return Result{RecordCount: written, ByteCount: counting.n}, err
		}
		row, ok, err := rows.Next(ctx)
		if err != nil {
			return Result{RecordCount: written, ByteCount: counting.n}, err
		}
		if !ok {
			break
		}

		fields := make([]string, len(header))
		for i, col := range header {
			fields[i] = row[col]
		}
		if err := cw.Write(fields); err != nil {
			return Result{RecordCount: written, ByteCount: counting.n}, fmt.Errorf("%w: %v", common.ErrSink, err)
		}
		written++

		if written%int64(chunk) == 0 {
			if err := flush(); err != nil {
				return Result{RecordCount: written, ByteCount: counting.n}, err
			}
			if w.OnChunk != nil {
				w.OnChunk(written)
			}
		}
	}

	if err := flush(); err != nil {
		return Result{RecordCount: written, ByteCount: counting.n}, err
	}
	if w.OnChunk != nil {
		w.OnChunk(written)
	}
	return Result{RecordCount: written, ByteCount: counting.n}, nil
}
