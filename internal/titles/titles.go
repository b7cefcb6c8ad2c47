// Package titles builds the human-readable column titles of a form.
//
// Every labelled question gets a positional index ("01", "03.02") reflecting
// its sibling order and nesting depth. Questions whose label text collides
// with another question's label are disambiguated by the configured strategy.
package titles

import (
	"fmt"
	"strings"

	"github.com/happyhackingspace/formflat/internal/form"
	"github.com/happyhackingspace/formflat/internal/htmlutil"
	"github.com/happyhackingspace/formflat/internal/options"
	"github.com/happyhackingspace/formflat/internal/textutil"
)

// Entry is the title of one question.
type Entry struct {
	Name  string // short name
	Path  string
	Index string // dotted positional index
	Text  string // resolved label text
	Title string // final title
}

// Map holds titles in document order with lookups by path and short name.
type Map struct {
	entries []Entry
	byPath  map[string]int
	byName  map[string]int
	names   map[string]int  // titled entries per short name
	known   map[string]bool // every question path, titled or not
}

// Build walks def and returns its title map.
func Build(def *form.Definition, opts options.Options) *Map {
	m := &Map{
		byPath: make(map[string]int),
		byName: make(map[string]int),
		names:  make(map[string]int),
		known:  make(map[string]bool),
	}
	if def == nil || def.Root == nil {
		return m
	}
	m.collect(def.Root, "", opts)
	m.dedup(opts.TitleDedup)

	for i, e := range m.entries {
		m.byPath[e.Path] = i
		m.names[e.Name]++
		if _, ok := m.byName[e.Name]; !ok {
			m.byName[e.Name] = i
		}
	}
	return m
}

func (m *Map) collect(parent *form.Node, prefix string, opts options.Options) {
	for i, n := range parent.Children {
		index := fmt.Sprintf("%02d", i+1)
		if prefix != "" {
			index = prefix + "." + index
		}
		if n.Kind != form.KindQuestion {
			m.collect(n, index, opts)
			continue
		}
		m.known[n.Path] = true
		if n.Label.IsZero() {
			continue
		}
		text := n.Label.Resolve(opts.Locale)
		if opts.StripLabelMarkup {
			text = htmlutil.StripTags(text)
		} else {
			text = textutil.NormalizeWhitespaces(text)
		}
		if text == "" {
			continue
		}
		title := text
		if opts.NumberedTitles {
			title = index + " " + text
		}
		m.entries = append(m.entries, Entry{Name: n.Name, Path: n.Path, Index: index, Text: text, Title: title})
	}
}

// dedup rewrites the titles of entries whose label text is shared with another entry.
func (m *Map) dedup(strategy options.TitleDedup) {
	groups := make(map[string][]int)
	var order []string
	for i, e := range m.entries {
		if _, ok := groups[e.Text]; !ok {
			order = append(order, e.Text)
		}
		groups[e.Text] = append(groups[e.Text], i)
	}

	for _, text := range order {
		members := groups[text]
		if len(members) < 2 {
			continue
		}
		for n, i := range members {
			e := &m.entries[i]
			switch strategy {
			case options.DedupNumeral:
				e.Title = fmt.Sprintf("%s (%d)", e.Title, n+1)
			default:
				e.Title = fmt.Sprintf("%s (%s)", e.Title, e.Name)
			}
		}
	}

	// Same short name and same label at two positions still collide under
	// the name strategy when titles are not numbered.
	seen := make(map[string]int)
	for i := range m.entries {
		e := &m.entries[i]
		seen[e.Title]++
		if c := seen[e.Title]; c > 1 {
			e.Title = fmt.Sprintf("%s (%d)", e.Title, c)
		}
	}
}

// Len returns the number of titled questions.
func (m *Map) Len() int { return len(m.entries) }

// Entries returns the titles in document order.
func (m *Map) Entries() []Entry { return m.entries }

// ByPath returns the title of the question at path.
func (m *Map) ByPath(path string) (string, bool) {
	i, ok := m.byPath[path]
	if !ok {
		return "", false
	}
	return m.entries[i].Title, true
}

// ByName returns the title of the first question with the given short name.
func (m *Map) ByName(name string) (string, bool) {
	i, ok := m.byName[name]
	if !ok {
		return "", false
	}
	return m.entries[i].Title, true
}

// Lookup resolves a column xpath by exact path. A path the form does not
// declare falls back to its short name when exactly one titled question
// carries that name.
func (m *Map) Lookup(xpath string) (string, bool) {
	if t, ok := m.ByPath(xpath); ok {
		return t, true
	}
	if m.known[xpath] {
		return "", false
	}
	name := textutil.LastSegment(xpath)
	if m.names[name] != 1 {
		return "", false
	}
	return m.ByName(name)
}

// String renders the map as "path<TAB>title" lines.
func (m *Map) String() string {
	var b strings.Builder
	for _, e := range m.entries {
		fmt.Fprintf(&b, "%s\t%s\n", e.Path, e.Title)
	}
	return b.String()
}
