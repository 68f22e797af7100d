package source

import (
	"context"

	"github.com/artisthq/exportd/internal/entity"
)

// Static is an in-memory data source. Used by tests and by the CLI when
// reading from a pre-materialized record set.
type Static struct {
	Records []entity.Record
	// Err, if set, is returned by Fetch to simulate an unavailable store.
	Err error
}

func (s *Static) Fetch(_ context.Context, _ Query) (Iterator, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return &staticIterator{records: s.Records}, nil
}

type staticIterator struct {
	records []entity.Record
	pos     int
}

func (it *staticIterator) Next(ctx context.Context) (entity.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if it.pos >= len(it.records) {
		return nil, false, nil
	}
	rec := it.records[it.pos]
	it.pos++
	return rec, true, nil
}

func (it *staticIterator) EstimatedTotal() int64 { return int64(len(it.records)) }

func (it *staticIterator) Close() error { return nil }
