// Package source defines the narrow contract the export engine consumes
// data through: a time-range + filter query producing a lazy, single-pass
// sequence of records. Stores stay swappable behind this interface.
package source

import (
	"context"
	"time"

	"github.com/artisthq/exportd/constants"
	"github.com/artisthq/exportd/internal/entity"
)

// Query selects records for one export run. Filters are equality
// constraints on source field names, already validated upstream.
type Query struct {
	Type     constants.ExportType
	DateFrom time.Time
	DateTo   time.Time
	Filters  map[string]string
}

// Iterator is a pull-based, single-pass record sequence. The consumer only
// asks for the next record when it is ready to process it, which keeps the
// memory bound cooperative. Restart by fetching again with the same query.
type Iterator interface {
	// Next returns the next record. ok is false once the sequence is
	// exhausted; an empty sequence is valid and not an error.
	Next(ctx context.Context) (rec entity.Record, ok bool, err error)
	// EstimatedTotal returns the expected record count, or -1 when the
	// source cannot know it up front.
	EstimatedTotal() int64
	Close() error
}

// DataSource produces record sequences for export jobs.
type DataSource interface {
	Fetch(ctx context.Context, q Query) (Iterator, error)
}
