// Package formflat exports survey submissions as flat, related tables.
//
// A form definition drives everything: it yields one table per repeat group
// plus a root table, human-readable column titles, and the type and choice
// information used to clean each cell.
//
//	ex, _ := formflat.New(src, formflat.DefaultOptions())
//	res, _ := ex.Export(ctx, "12345", formflat.FormatXLSX, file)
//	fmt.Println(res.Records, res.Stats.UnresolvedChoices)
package formflat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/happyhackingspace/formflat/internal/apperr"
	"github.com/happyhackingspace/formflat/internal/export"
	"github.com/happyhackingspace/formflat/internal/flatten"
	"github.com/happyhackingspace/formflat/internal/form"
	"github.com/happyhackingspace/formflat/internal/options"
	"github.com/happyhackingspace/formflat/internal/preprocess"
	"github.com/happyhackingspace/formflat/internal/schema"
	"github.com/happyhackingspace/formflat/internal/titles"
)

// Options configures an export.
type Options = options.Options

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options { return options.Default() }

// Format is an output format.
type Format = export.Format

const (
	FormatXLSX   = export.FormatXLSX
	FormatCSV    = export.FormatCSV
	FormatSQLite = export.FormatSQLite
)

// ParseFormat parses a format name such as "xlsx", "csv" or "sqlite".
func ParseFormat(s string) (Format, error) { return export.ParseFormat(s) }

// Dataset is the processed output of an export, one table per schema table.
type Dataset = export.Dataset

// Stats counts the non-fatal cell problems of an export.
type Stats = preprocess.Stats

// Source provides the raw JSON of a form definition and its submissions.
type Source interface {
	FormDefinition(ctx context.Context, formID string) ([]byte, error)
	Submissions(ctx context.Context, formID string) ([]byte, error)
}

// Progress is called after each submission is flattened.
type Progress func(done, total int)

// Exporter runs export jobs against a Source.
type Exporter struct {
	src      Source
	opts     Options
	progress Progress
}

// Option customizes an Exporter.
type Option func(*Exporter)

// WithProgress sets a callback reporting flattened submissions.
func WithProgress(fn Progress) Option {
	return func(e *Exporter) { e.progress = fn }
}

// New returns an Exporter reading from src.
func New(src Source, opts Options, o ...Option) (*Exporter, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("formflat: %w", err)
	}
	e := &Exporter{src: src, opts: opts}
	for _, fn := range o {
		fn(e)
	}
	return e, nil
}

// Result describes a finished export job.
type Result struct {
	JobID    string
	FormID   string
	Format   Format
	Records  int
	Tables   int
	Stats    Stats
	Duration time.Duration
}

// Fetch downloads the form definition and submissions concurrently.
func (e *Exporter) Fetch(ctx context.Context, formID string) (definition, data []byte, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		definition, err = e.src.FormDefinition(gctx, formID)
		return err
	})
	g.Go(func() error {
		var err error
		data, err = e.src.Submissions(gctx, formID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return definition, data, nil
}

// Export fetches formID, builds its dataset and writes it to w in format f.
// Fatal errors are returned before anything is written.
func (e *Exporter) Export(ctx context.Context, formID string, f Format, w io.Writer) (*Result, error) {
	start := time.Now()
	res := &Result{JobID: uuid.NewString(), FormID: formID, Format: f}
	log := slog.With("job", res.JobID, "form", formID)
	log.Info("Export started", "format", f)

	writer, err := export.New(f, e.opts)
	if err != nil {
		return nil, err
	}
	definition, data, err := e.Fetch(ctx, formID)
	if err != nil {
		log.Warn("Fetch failed", "error", err)
		return nil, err
	}
	ds, stats, records, err := build(definition, data, e.opts, e.progress)
	if err != nil {
		log.Warn("Build failed", "error", err)
		return nil, err
	}
	if err := writer.Write(ctx, ds, w); err != nil {
		return nil, fmt.Errorf("write %s: %w", f, err)
	}

	res.Records = records
	res.Tables = len(ds.Tables)
	res.Stats = stats
	res.Duration = time.Since(start)
	log.Info("Export finished",
		"records", res.Records,
		"tables", res.Tables,
		"type_conversions", stats.TypeConversions,
		"unresolved_choices", stats.UnresolvedChoices,
		"duration", res.Duration,
	)
	return res, nil
}

// Build turns a form definition and its submission list into a Dataset.
func Build(definition, data []byte, opts Options) (*Dataset, Stats, error) {
	ds, stats, _, err := build(definition, data, opts, nil)
	return ds, stats, err
}

func build(definition, data []byte, opts Options, progress Progress) (*Dataset, Stats, int, error) {
	def, err := form.Parse(definition)
	if err != nil {
		return nil, Stats{}, 0, err
	}
	s, err := schema.Build(def, opts)
	if err != nil {
		return nil, Stats{}, 0, err
	}
	records, err := DecodeSubmissions(data)
	if err != nil {
		return nil, Stats{}, 0, err
	}

	if langs := def.Languages(); len(langs) > 0 && !slices.Contains(langs, opts.Locale) {
		slog.Warn("Locale not used by form, labels fall back", "locale", opts.Locale, "languages", langs)
	}

	tables, err := flatten.New(s, opts).FlattenAll(records, progress)
	if err != nil {
		return nil, Stats{}, 0, err
	}

	p := preprocess.New(def, s, titles.Build(def, opts), opts)
	ds := &Dataset{}
	for _, tbl := range s.Tables() {
		plan := p.Plan(tbl.Name)
		out := &export.Table{
			Name:   tbl.Name,
			Header: plan.Header,
			Types:  columnTypes(tbl, plan),
		}
		for _, row := range tables.Rows(tbl.Name) {
			out.Rows = append(out.Rows, p.Row(row))
		}
		ds.Tables = append(ds.Tables, out)
	}
	return ds, p.Stats(), len(records), nil
}

// metadataTypes are the bind types of the numeric metadata columns.
var metadataTypes = map[string]string{
	options.ID:          form.BindInt,
	options.Index:       form.BindInt,
	options.ParentIndex: form.BindInt,
}

func columnTypes(t *schema.Table, plan *preprocess.Plan) []string {
	types := make([]string, len(plan.Header))
	set := func(field, typ string) {
		if i, ok := plan.Slot(field); ok && types[i] == "" {
			types[i] = typ
		}
	}
	for _, c := range t.Columns {
		set(c.XPath, c.Type)
	}
	for _, f := range options.ExtraFields {
		typ := metadataTypes[f]
		if typ == "" {
			typ = form.BindString
		}
		set(f, typ)
	}
	return types
}

// DecodeSubmissions parses a submission list. Both a bare JSON array and a
// paginated object with a "results" array are accepted.
func DecodeSubmissions(data []byte) ([]map[string]any, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, apperr.SourceDataf("decode submissions", "empty response")
	}
	var records []map[string]any
	if data[0] == '{' {
		var page struct {
			Results *[]map[string]any `json:"results"`
		}
		if err := json.Unmarshal(data, &page); err != nil {
			return nil, apperr.SourceData("decode submissions", err)
		}
		if page.Results == nil {
			return nil, apperr.SourceDataf("decode submissions", "object has no results list")
		}
		return *page.Results, nil
	}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, apperr.SourceData("decode submissions", err)
	}
	return records, nil
}

// Describe returns the tables and column titles a definition exports to.
func Describe(definition []byte, opts Options) ([]TableInfo, error) {
	def, err := form.Parse(definition)
	if err != nil {
		return nil, err
	}
	s, err := schema.Build(def, opts)
	if err != nil {
		return nil, err
	}
	p := preprocess.New(def, s, titles.Build(def, opts), opts)

	var out []TableInfo
	for _, tbl := range s.Tables() {
		plan := p.Plan(tbl.Name)
		info := TableInfo{Name: tbl.Name}
		for _, c := range tbl.Columns {
			i, _ := plan.Slot(c.XPath)
			info.Columns = append(info.Columns, ColumnInfo{XPath: c.XPath, Type: c.Type, Title: plan.Header[i]})
		}
		out = append(out, info)
	}
	return out, nil
}

// TableInfo describes one output table.
type TableInfo struct {
	Name    string       `json:"name"`
	Columns []ColumnInfo `json:"columns"`
}

// ColumnInfo describes one column of an output table.
type ColumnInfo struct {
	XPath string `json:"xpath"`
	Type  string `json:"type"`
	Title string `json:"title"`
}
