package engine

import (
	"context"

	"github.com/artisthq/exportd/internal/entity"
	"github.com/artisthq/exportd/internal/pipeline"
	"github.com/artisthq/exportd/internal/source"
)

// pipelineRows adapts a data source iterator into the writer's row source,
// applying the per-row transforms lazily. One record is resident at a time;
// the writer's chunk size bounds everything downstream.
type pipelineRows struct {
	it source.Iterator
	p  *pipeline.RowPipeline
}

func (r *pipelineRows) Next(ctx context.Context) (entity.Row, bool, error) {
	rec, ok, err := r.it.Next(ctx)
	if err != nil || !ok {
		return nil, false, err
	}
	return r.p.Apply(rec), true, nil
}
