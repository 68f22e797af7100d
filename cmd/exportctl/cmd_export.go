package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/artisthq/exportd/constants"
	"github.com/artisthq/exportd/internal/common"
	"github.com/artisthq/exportd/internal/entity"
	"github.com/artisthq/exportd/internal/export"
	"github.com/artisthq/exportd/internal/pipeline"
	"github.com/artisthq/exportd/internal/source"
)

var exportFlags struct {
	output       string
	dataDB       string
	dateFrom     string
	dateTo       string
	fields       []string
	filters      []string
	format       string
	privacyLevel string
	noHeaders    bool
	progress     bool
	chunkSize    int
}

var exportCmd = &cobra.Command{
	Use:   "export <type>",
	Short: "Export records to a CSV or XLSX file",
	Long: `Export records of the given type (evaluation_results,
performance_metrics or agent_interactions) to a file, or to stdout when
--output is "-". Privacy redaction runs at the requested level; fields
outside the type's exportable set are rejected.`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	f := exportCmd.Flags()
	f.StringVarP(&exportFlags.output, "output", "o", "-", `output file, "-" for stdout`)
	f.StringVar(&exportFlags.dataDB, "data-db", "./data.db", "path to the data database")
	f.StringVar(&exportFlags.dateFrom, "date-from", "", "inclusive lower time bound (RFC3339 or YYYY-MM-DD)")
	f.StringVar(&exportFlags.dateTo, "date-to", "", "inclusive upper time bound (RFC3339 or YYYY-MM-DD)")
	f.StringSliceVar(&exportFlags.fields, "fields", nil, "comma-separated field list (default: the type's default set)")
	f.StringArrayVar(&exportFlags.filters, "filter", nil, "equality filter key=value, repeatable")
	f.StringVar(&exportFlags.format, "format", "csv", "artifact format: csv or xlsx")
	f.StringVar(&exportFlags.privacyLevel, "privacy-level", string(constants.PrivacyLevelStrict), "privacy level: public, internal or strict")
	f.BoolVar(&exportFlags.noHeaders, "no-headers", false, "omit the CSV header row")
	f.BoolVar(&exportFlags.progress, "progress", false, "report per-chunk progress on stderr")
	f.IntVar(&exportFlags.chunkSize, "chunk-size", 1000, "rows per flush")
}

func runExport(cmd *cobra.Command, args []string) error {
	req, err := buildRequest(args[0])
	if err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return err
	}
	req.Normalize()

	if req.Format == constants.FormatXLSX && exportFlags.output == "-" {
		return common.ValidationErrorf("xlsx output requires --output FILE")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := source.NewSQLiteStore(exportFlags.dataDB)
	if err != nil {
		return err
	}
	defer store.Close()

	it, err := store.Fetch(ctx, source.Query{
		Type:     req.ExportType,
		DateFrom: req.DateFrom,
		DateTo:   req.DateTo,
		Filters:  req.Filters,
	})
	if err != nil {
		return err
	}
	defer it.Close()

	sink, closeSink, err := openSink(exportFlags.output)
	if err != nil {
		return err
	}

	p := pipeline.NewRowPipeline(req)
	total := it.EstimatedTotal()
	w := export.ForFormat(req.Format, export.Config{
		ChunkSize:      exportFlags.chunkSize,
		IncludeHeaders: !req.NoHeaders,
		OnChunk: func(written int64) {
			if exportFlags.progress {
				if total > 0 {
					fmt.Fprintf(os.Stderr, "%d/%d records\n", written, total)
				} else {
					fmt.Fprintf(os.Stderr, "%d records\n", written)
				}
			}
		},
	})

	res, err := w.Write(ctx, p.Header(), &iteratorRows{it: it, p: p}, sink)
	if err != nil {
		closeSink(true)
		return err
	}
	if err := closeSink(false); err != nil {
		return fmt.Errorf("%w: close output: %v", common.ErrSink, err)
	}

	fmt.Fprintf(os.Stderr, "exported %d records (%d bytes) to %s\n",
		res.RecordCount, res.ByteCount, exportFlags.output)
	return nil
}

func buildRequest(rawType string) (*entity.ExportRequest, error) {
	req := &entity.ExportRequest{
		ExportType:   constants.ExportType(strings.TrimSpace(rawType)),
		Fields:       exportFlags.fields,
		PrivacyLevel: constants.PrivacyLevel(exportFlags.privacyLevel),
		Format:       constants.Format(exportFlags.format),
		NoHeaders:    exportFlags.noHeaders,
	}
	var err error
	if req.DateFrom, err = parseTimeFlag(exportFlags.dateFrom); err != nil {
		return nil, common.ValidationErrorf("--date-from: %v", err)
	}
	if req.DateTo, err = parseTimeFlag(exportFlags.dateTo); err != nil {
		return nil, common.ValidationErrorf("--date-to: %v", err)
	}
	if len(exportFlags.filters) > 0 {
		req.Filters = make(map[string]string, len(exportFlags.filters))
		for _, raw := range exportFlags.filters {
			k, v, ok := strings.Cut(raw, "=")
			if !ok || k == "" {
				return nil, common.ValidationErrorf("--filter %q: want key=value", raw)
			}
			req.Filters[k] = v
		}
	}
	return req, nil
}

func parseTimeFlag(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

// openSink returns the output writer and a closer. The closer discards the
// partial file when the export fails, so a reachable file is a complete one.
func openSink(path string) (io.Writer, func(failed bool) error, error) {
	if path == "-" {
		return os.Stdout, func(bool) error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: create output: %v", common.ErrSink, err)
	}
	return f, func(failed bool) error {
		closeErr := f.Close()
		if failed {
			os.Remove(path)
			return nil
		}
		return closeErr
	}, nil
}

// iteratorRows applies the row pipeline lazily over a source iterator.
type iteratorRows struct {
	it source.Iterator
	p  *pipeline.RowPipeline
}

func (r *iteratorRows) Next(ctx context.Context) (entity.Row, bool, error) {
	rec, ok, err := r.it.Next(ctx)
	if err != nil || !ok {
		return nil, false, err
	}
	return r.p.Apply(rec), true, nil
}
