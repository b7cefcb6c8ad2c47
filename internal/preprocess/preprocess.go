// Package preprocess turns flattened rows into typed, labelled output rows.
//
// Steps run in a fixed order per row: decode aliased keys, expand
// select-multiple answers, expand geopoints, convert declared types, replace
// choice codes with labels, and finally move every value to its titled slot.
// Cell-level failures never abort a row; they are logged and counted.
package preprocess

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/happyhackingspace/formflat/internal/apperr"
	"github.com/happyhackingspace/formflat/internal/flatten"
	"github.com/happyhackingspace/formflat/internal/form"
	"github.com/happyhackingspace/formflat/internal/options"
	"github.com/happyhackingspace/formflat/internal/schema"
	"github.com/happyhackingspace/formflat/internal/textutil"
	"github.com/happyhackingspace/formflat/internal/titles"
)

// DateLayout is the layout of date answers.
const DateLayout = "2006-01-02"

// Stats counts the non-fatal problems seen while processing.
type Stats struct {
	Rows              int
	TypeConversions   int
	UnresolvedChoices int
}

// Processor applies the row pipeline for one export job. It is not safe for
// concurrent use.
type Processor struct {
	def    *form.Definition
	schema *schema.Schema
	opts   options.Options
	plans  map[string]*Plan
	warned map[string]bool
	stats  Stats
}

// New returns a Processor with one relabel plan per schema table.
func New(def *form.Definition, s *schema.Schema, m *titles.Map, opts options.Options) *Processor {
	p := &Processor{
		def:    def,
		schema: s,
		opts:   opts,
		plans:  make(map[string]*Plan, len(s.Tables())),
		warned: make(map[string]bool),
	}
	for _, t := range s.Tables() {
		p.plans[t.Name] = NewPlan(t, m, opts)
	}
	return p
}

// Plan returns the relabel plan of a table.
func (p *Processor) Plan(table string) *Plan { return p.plans[table] }

// Stats returns the counters accumulated so far.
func (p *Processor) Stats() Stats { return p.stats }

// Process runs the pipeline on row and returns its values keyed by final title.
// Keys the schema does not know are dropped.
func (p *Processor) Process(row *flatten.Row) map[string]any {
	plan := p.plans[row.Table]
	values := p.values(row)
	out := make(map[string]any, len(plan.Header))
	for _, field := range p.schema.Table(row.Table).Fields() {
		if v, ok := values[field]; ok {
			i, _ := plan.Slot(field)
			out[plan.Header[i]] = v
		}
	}
	return out
}

// Row runs the pipeline on row and returns the cells aligned with the plan header.
func (p *Processor) Row(row *flatten.Row) []any {
	plan := p.plans[row.Table]
	values := p.values(row)
	cells := make([]any, len(plan.Header))
	for _, field := range p.schema.Table(row.Table).Fields() {
		v, ok := values[field]
		if !ok {
			continue
		}
		i, _ := plan.Slot(field)
		cells[i] = v
	}
	return cells
}

func (p *Processor) values(row *flatten.Row) map[string]any {
	p.stats.Rows++
	t := p.schema.Table(row.Table)

	values := make(map[string]any, len(row.Values)+len(options.ExtraFields))
	for k, v := range row.Values {
		values[k] = v
	}
	decodeKeys(values)
	p.splitSelectMultiples(t, values)
	splitGeoPoints(t, values)
	p.convertTypes(t, values)
	p.substituteLabels(t, values)

	values[options.Index] = row.Index
	values[options.ParentIndex] = row.ParentIndex
	values[options.ParentTable] = row.ParentTable
	return values
}

func decodeKeys(values map[string]any) {
	for k, v := range values {
		if d := DecodeKey(k); d != k {
			delete(values, k)
			values[d] = v
		}
	}
}

func (p *Processor) splitSelectMultiples(t *schema.Table, values map[string]any) {
	for _, ms := range t.SelectMultiples {
		answer, _ := values[ms.XPath].(string)
		selected := make(map[string]bool)
		for _, code := range textutil.SplitFields(answer) {
			selected[ms.XPath+"/"+code] = true
		}
		for _, choice := range ms.Choices {
			switch {
			case len(selected) == 0:
				values[choice] = nil
			case p.opts.BinarySelectMultiples:
				if selected[choice] {
					values[choice] = 1
				} else {
					values[choice] = 0
				}
			default:
				values[choice] = selected[choice]
			}
		}
	}
}

func splitGeoPoints(t *schema.Table, values map[string]any) {
	for _, gp := range t.GeoPoints {
		answer, _ := values[gp.XPath].(string)
		parts := strings.Fields(answer)
		for i, component := range gp.Components {
			if i < len(parts) {
				values[component] = parts[i]
			}
		}
	}
}

func (p *Processor) convertTypes(t *schema.Table, values map[string]any) {
	for _, c := range t.Columns {
		raw, ok := values[c.XPath].(string)
		if !ok || raw == "" {
			continue
		}
		converted, err := convert(raw, c.Type)
		if err != nil {
			p.stats.TypeConversions++
			cerr := &apperr.TypeConversionError{Column: c.XPath, Type: c.Type, Value: raw, Err: err}
			slog.Debug("Value left unconverted", "error", cerr)
			continue
		}
		values[c.XPath] = converted
	}
}

func convert(raw, typ string) (any, error) {
	switch typ {
	case form.BindInt:
		return strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	case form.BindDecimal:
		return strconv.ParseFloat(strings.TrimSpace(raw), 64)
	case form.BindDate:
		return time.Parse(DateLayout, strings.TrimSpace(raw))
	default:
		return raw, nil
	}
}

func (p *Processor) substituteLabels(t *schema.Table, values map[string]any) {
	for _, c := range t.Columns {
		if c.Type != form.BindSelectOne && c.Type != form.BindSelectMultiple {
			continue
		}
		raw, ok := values[c.XPath].(string)
		if !ok || raw == "" {
			continue
		}
		if c.Type == form.BindSelectOne {
			values[c.XPath] = p.label(c, strings.TrimSpace(raw))
			continue
		}
		codes := textutil.SplitFields(raw)
		labels := make([]string, len(codes))
		for i, code := range codes {
			labels[i] = p.label(c, code)
		}
		values[c.XPath] = strings.Join(labels, ", ")
	}
}

// label resolves a choice code, inline choices first and then the itemset.
// Unresolved codes are returned as is.
func (p *Processor) label(c *schema.Column, code string) string {
	if l, ok := choiceLabel(c.Choices, code, p.opts); ok {
		return l
	}
	if l, ok := choiceLabel(p.def.ItemsetChoices(c.Itemset), code, p.opts); ok {
		return l
	}
	p.stats.UnresolvedChoices++
	key := c.XPath + "\x00" + code
	if !p.warned[key] {
		p.warned[key] = true
		slog.Warn("Choice label not found", "error", &apperr.ChoiceResolutionError{Column: c.XPath, Code: code})
	}
	return code
}
