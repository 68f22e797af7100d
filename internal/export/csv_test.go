package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artisthq/exportd/internal/common"
	"github.com/artisthq/exportd/internal/entity"
)

type sliceRows struct {
	rows []entity.Row
	pos  int
}

func (s *sliceRows) Next(ctx context.Context) (entity.Row, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if s.pos >= len(s.rows) {
		return nil, false, nil
	}
	r := s.rows[s.pos]
	s.pos++
	return r, true, nil
}

func TestCSVWriterBasicExport(t *testing.T) {
	w := &CSVWriter{Config{IncludeHeaders: true}}
	rows := &sliceRows{rows: []entity.Row{
		{"test_id": "t1", "model": "gpt-5", "score": "95.5"},
		{"test_id": "t2", "model": "claude", "score": "0"},
	}}
	var buf bytes.Buffer

	res, err := w.Write(context.Background(), []string{"test_id", "model", "score"}, rows, &buf)

	require.NoError(t, err)
	assert.Equal(t, int64(2), res.RecordCount)
	assert.Equal(t, int64(buf.Len()), res.ByteCount)
	assert.Equal(t, "test_id,model,score\nt1,gpt-5,95.5\nt2,claude,0\n", buf.String())
}

func TestCSVWriterEmptyDatasetHeaderOnly(t *testing.T) {
	w := &CSVWriter{Config{IncludeHeaders: true}}
	var buf bytes.Buffer

	res, err := w.Write(context.Background(), []string{"a", "b"}, &sliceRows{}, &buf)

	require.NoError(t, err)
	assert.Equal(t, int64(0), res.RecordCount)
	assert.Equal(t, "a,b\n", buf.String())
}

func TestCSVWriterNoHeaders(t *testing.T) {
	w := &CSVWriter{Config{IncludeHeaders: false}}
	rows := &sliceRows{rows: []entity.Row{{"a": "1"}}}
	var buf bytes.Buffer

	_, err := w.Write(context.Background(), []string{"a"}, rows, &buf)

	require.NoError(t, err)
	assert.Equal(t, "1\n", buf.String())
}

func TestCSVWriterMissingColumnEmptyCell(t *testing.T) {
	w := &CSVWriter{Config{IncludeHeaders: true}}
	rows := &sliceRows{rows: []entity.Row{{"a": "1"}}}
	var buf bytes.Buffer

	_, err := w.Write(context.Background(), []string{"a", "b"}, rows, &buf)

	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,\n", buf.String())
}

func TestCSVWriterRoundTripWithEscaping(t *testing.T) {
	header := []string{"name", "note"}
	in := []entity.Row{
		{"name": `has "quotes"`, "note": "comma, inside"},
		{"name": "line\nbreak", "note": "plain"},
		{"name": "café ☕", "note": ""},
	}
	w := &CSVWriter{Config{IncludeHeaders: true}}
	var buf bytes.Buffer

	_, err := w.Write(context.Background(), header, &sliceRows{rows: in}, &buf)
	require.NoError(t, err)

	parsed, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, parsed, len(in)+1)
	assert.Equal(t, header, parsed[0])
	for i, row := range in {
		for j, col := range header {
			assert.Equal(t, row[col], parsed[i+1][j], "row %d col %s", i, col)
		}
	}
}

func TestCSVWriterChunkCallback(t *testing.T) {
	var calls []int64
	w := &CSVWriter{Config{ChunkSize: 2, OnChunk: func(n int64) { calls = append(calls, n) }}}

	var rows []entity.Row
	for i := 0; i < 5; i++ {
		rows = append(rows, entity.Row{"n": strconv.Itoa(i)})
	}
	var buf bytes.Buffer

	res, err := w.Write(context.Background(), []string{"n"}, &sliceRows{rows: rows}, &buf)

	require.NoError(t, err)
	assert.Equal(t, int64(5), res.RecordCount)
	assert.Equal(t, []int64{2, 4, 5}, calls)
}

// generatedRows produces rows on demand and records the largest number of
// rows pulled between flush callbacks, so a test can prove the writer never
// buffers more than a chunk of the dataset.
type generatedRows struct {
	total        int
	pos          int
	sinceFlush   int
	maxLookahead int
}

func (g *generatedRows) Next(ctx context.Context) (entity.Row, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if g.pos >= g.total {
		return nil, false, nil
	}
	g.pos++
	g.sinceFlush++
	if g.sinceFlush > g.maxLookahead {
		g.maxLookahead = g.sinceFlush
	}
	return entity.Row{
		"n":       strconv.Itoa(g.pos),
		"payload": strings.Repeat("x", 32),
	}, true, nil
}

func (g *generatedRows) flushed(int64) { g.sinceFlush = 0 }

func TestCSVWriterStreamsWithBoundedLookahead(t *testing.T) {
	const total, chunk = 100_000, 64
	src := &generatedRows{total: total}
	w := &CSVWriter{Config{IncludeHeaders: true, ChunkSize: chunk, OnChunk: src.flushed}}

	res, err := w.Write(context.Background(), []string{"n", "payload"}, src, io.Discard)

	require.NoError(t, err)
	assert.Equal(t, int64(total), res.RecordCount)
	assert.LessOrEqual(t, src.maxLookahead, chunk,
		"writer pulled %d rows without flushing; it must stream chunk by chunk", src.maxLookahead)
}

// failingSink rejects writes once the byte budget is spent.
type failingSink struct {
	budget int
	wrote  int
}

func (f *failingSink) Write(p []byte) (int, error) {
	if f.wrote+len(p) > f.budget {
		return 0, errors.New("disk full")
	}
	f.wrote += len(p)
	return len(p), nil
}

func TestCSVWriterSinkFailureMidStream(t *testing.T) {
	var rows []entity.Row
	for i := 0; i < 100; i++ {
		rows = append(rows, entity.Row{"v": strings.Repeat("x", 50)})
	}
	w := &CSVWriter{Config{IncludeHeaders: true, ChunkSize: 10}}

	_, err := w.Write(context.Background(), []string{"v"}, &sliceRows{rows: rows}, &failingSink{budget: 500})

	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrSink)
}

func TestCSVWriterPropagatesSourceError(t *testing.T) {
	w := &CSVWriter{Config{}}
	srcErr := errors.New("store went away")

	_, err := w.Write(context.Background(), []string{"a"}, &errorRows{err: srcErr}, &bytes.Buffer{})

	assert.ErrorIs(t, err, srcErr)
	assert.NotErrorIs(t, err, common.ErrSink)
}

type errorRows struct{ err error }

func (e *errorRows) Next(context.Context) (entity.Row, bool, error) { return nil, false, e.err }

func TestCSVWriterContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w := &CSVWriter{Config{}}

	_, err := w.Write(ctx, []string{"a"}, &sliceRows{rows: []entity.Row{{"a": "1"}}}, &bytes.Buffer{})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestCSVWriterCustomDelimiter(t *testing.T) {
	w := &CSVWriter{Config{IncludeHeaders: true, Delimiter: ';'}}
	rows := &sliceRows{rows: []entity.Row{{"a": "1", "b": "2"}}}
	var buf bytes.Buffer

	_, err := w.Write(context.Background(), []string{"a", "b"}, rows, &buf)

	require.NoError(t, err)
	assert.Equal(t, "a;b\n1;2\n", buf.String())
}
