// Package schema derives the per-table column layout of an export from a form definition.
package schema

import (
	"fmt"
	"strings"

	"github.com/happyhackingspace/formflat/internal/apperr"
	"github.com/happyhackingspace/formflat/internal/form"
	"github.com/happyhackingspace/formflat/internal/options"
	"github.com/happyhackingspace/formflat/internal/textutil"
)

// GeoSuffixes name the components of a geopoint answer, in answer order.
var GeoSuffixes = []string{"latitude", "longitude", "altitude", "precision"}

// Column describes one exported field.
type Column struct {
	Title    string // xpath rendered with the group delimiter
	XPath    string
	Name     string // short name, the last path segment
	Type     string // bind type
	FormType string
	Itemset  string
	Choices  []form.Choice

	// Source and Choice are set on columns derived from a select-multiple
	// question: Source is the question xpath, Choice the choice code.
	Source string
	Choice string
}

// MultiSelect records the choice columns a select-multiple answer expands into.
type MultiSelect struct {
	XPath   string
	Choices []string // choice column xpaths
}

// GeoPoint records the component columns a geopoint answer expands into.
type GeoPoint struct {
	XPath      string
	Components []string
}

// Table is the column layout of one output table.
type Table struct {
	Name            string
	Columns         []*Column
	SelectMultiples []MultiSelect
	GeoPoints       []GeoPoint

	byXPath map[string]*Column
}

// Column returns the column with the given xpath, or nil.
func (t *Table) Column(xpath string) *Column {
	return t.byXPath[xpath]
}

// Fields returns the column xpaths followed by the metadata columns.
func (t *Table) Fields() []string {
	fields := make([]string, 0, len(t.Columns)+len(options.ExtraFields))
	for _, c := range t.Columns {
		fields = append(fields, c.XPath)
	}
	return append(fields, options.ExtraFields...)
}

func (t *Table) add(c *Column) bool {
	if _, ok := t.byXPath[c.XPath]; ok {
		return false
	}
	t.byXPath[c.XPath] = c
	t.Columns = append(t.Columns, c)
	return true
}

// Schema is the ordered set of tables of one form. It is read-only once built.
type Schema struct {
	Name   string // root table name
	tables []*Table
	byName map[string]*Table
}

// Tables returns the tables in document order, root first.
func (s *Schema) Tables() []*Table { return s.tables }

// Table returns the table with the given name, or nil.
func (s *Schema) Table(name string) *Table { return s.byName[name] }

// Root returns the root table.
func (s *Schema) Root() *Table { return s.byName[s.Name] }

func (s *Schema) newTable(name string) (*Table, error) {
	if _, ok := s.byName[name]; ok {
		return nil, apperr.SourceDataf("build schema", "table %q defined twice", name)
	}
	t := &Table{Name: name, byXPath: make(map[string]*Column)}
	s.tables = append(s.tables, t)
	s.byName[name] = t
	return t, nil
}

// Build walks def depth-first and returns one table for the root plus one per repeat.
func Build(def *form.Definition, opts options.Options) (*Schema, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("build schema: %w", err)
	}
	if def == nil || def.Root == nil {
		return nil, apperr.SourceDataf("build schema", "definition has no root")
	}

	s := &Schema{Name: def.Name, byName: make(map[string]*Table)}
	root, err := s.newTable(def.Name)
	if err != nil {
		return nil, err
	}
	w := walker{def: def, schema: s, opts: opts}
	if err := w.walk(def.Root, root); err != nil {
		return nil, err
	}
	return s, nil
}

type walker struct {
	def    *form.Definition
	schema *Schema
	opts   options.Options
}

func (w walker) walk(parent *form.Node, current *Table) error {
	for _, n := range parent.Children {
		switch n.Kind {
		case form.KindRepeat:
			t, err := w.schema.newTable(n.Path)
			if err != nil {
				return err
			}
			if err := w.walk(n, t); err != nil {
				return err
			}
		case form.KindGroup:
			if err := w.walk(n, current); err != nil {
				return err
			}
		default:
			if w.opts.IsExcluded(n.Type, n.BindType) {
				continue
			}
			w.addQuestion(n, current)
		}
	}
	return nil
}

func (w walker) addQuestion(n *form.Node, t *Table) {
	choices := n.Choices
	if len(choices) == 0 {
		choices = w.def.ItemsetChoices(n.Itemset)
	}
	t.add(&Column{
		Title:    w.title(n.Path),
		XPath:    n.Path,
		Name:     n.Name,
		Type:     n.BindType,
		FormType: n.Type,
		Itemset:  n.Itemset,
		Choices:  choices,
	})

	switch n.BindType {
	case form.BindSelectMultiple:
		if !w.opts.SplitSelectMultiples {
			return
		}
		ms := MultiSelect{XPath: n.Path}
		for _, c := range choices {
			xpath := n.Path + "/" + c.Name
			t.add(&Column{
				Title:  w.title(xpath),
				XPath:  xpath,
				Name:   c.Name,
				Type:   form.BindString,
				Source: n.Path,
				Choice: c.Name,
			})
			ms.Choices = append(ms.Choices, xpath)
		}
		t.SelectMultiples = append(t.SelectMultiples, ms)
	case form.BindGeopoint:
		gp := GeoPoint{XPath: n.Path, Components: GeoXPaths(n.Path)}
		for _, xpath := range gp.Components {
			t.add(&Column{
				Title:  w.title(xpath),
				XPath:  xpath,
				Name:   textutil.LastSegment(xpath),
				Type:   form.BindDecimal,
				Source: n.Path,
			})
		}
		t.GeoPoints = append(t.GeoPoints, gp)
	}
}

func (w walker) title(xpath string) string {
	if w.opts.GroupDelimiter == options.DelimiterSlash {
		return xpath
	}
	return strings.ReplaceAll(xpath, "/", w.opts.GroupDelimiter)
}

// GeoXPaths returns the component xpaths of a geopoint question, so "grp/gps"
// yields "grp/_gps_latitude" through "grp/_gps_precision".
func GeoXPaths(xpath string) []string {
	prefix, name := "", xpath
	if i := strings.LastIndex(xpath, "/"); i >= 0 {
		prefix, name = xpath[:i+1], xpath[i+1:]
	}
	out := make([]string, len(GeoSuffixes))
	for i, suffix := range GeoSuffixes {
		out[i] = prefix + "_" + name + "_" + suffix
	}
	return out
}
