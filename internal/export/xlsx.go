package export

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/artisthq/exportd/internal/common"
)

const xlsxSheet = "Export"

// XLSXWriter streams rows into an XLSX workbook via excelize's stream
// writer, which spills worksheet data to temp storage instead of holding
// rows in memory.
type XLSXWriter struct {
	Config
}

func (w *XLSXWriter) Write(ctx context.Context, header []string, rows RowSource, sink io.Writer) (Result, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(xlsxSheet)
	if err != nil {
		return Result{}, fmt.Errorf("%w: new sheet: %v", common.ErrSink, err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return Result{}, fmt.Errorf("%w: delete default sheet: %v", common.ErrSink, err)
	}

	sw, err := f.NewStreamWriter(xlsxSheet)
	if err != nil {
		return Result{}, fmt.Errorf("%w: stream writer: %v", common.ErrSink, err)
	}

	rowIdx := 1
	if w.IncludeHeaders {
		cells := make([]any, len(header))
		for i, h := range header {
			cells[i] = h
		}
		if err := sw.SetRow(cellRef(rowIdx), cells); err != nil {
			return Result{}, fmt.Errorf("%w: header row: %v", common.ErrSink, err)
		}
		rowIdx++
	}

	var written int64
	chunk := w.chunkSize()
	for {
		if err := ctx.Err(); err != nil {
			return Result{RecordCount: written}, err
		}
		row, ok, err := rows.Next(ctx)
		if err != nil {
			return Result{RecordCount: written}, err
		}
		if !ok {
			break
		}

		cells := make([]any, len(header))
		for i, col := range header {
			cells[i] = row[col]
		}
		if err := sw.SetRow(cellRef(rowIdx), cells); err != nil {
			return Result{RecordCount: written}, fmt.Errorf("%w: row %d: %v", common.ErrSink, rowIdx, err)
		}
		rowIdx++
		written++

		if w.OnChunk != nil && written%int64(chunk) == 0 {
			w.OnChunk(written)
		}
	}

	if err := sw.Flush(); err != nil {
		return Result{RecordCount: written}, fmt.Errorf("%w: flush: %v", common.ErrSink, err)
	}
	n, err := f.WriteTo(sink)
	if err != nil {
		return Result{RecordCount: written, ByteCount: n}, fmt.Errorf("%w: %v", common.ErrSink, err)
	}
	if w.OnChunk != nil {
		w.OnChunk(written)
	}
	return Result{RecordCount: written, ByteCount: n}, nil
}

func cellRef(row int) string {
	cell, _ := excelize.CoordinatesToCellName(1, row)
	return cell
}
