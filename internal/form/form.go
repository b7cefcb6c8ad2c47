// Package form models a survey form definition as a tree of typed nodes.
//
// A definition is the JSON document served by the survey API at
// forms/{id}/form.json: a root "survey" node whose children are questions,
// groups and repeats, plus a top-level map of shared choice lists.
package form

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/happyhackingspace/formflat/internal/apperr"
)

// Kind tags the variant of a Node.
type Kind int

const (
	KindQuestion Kind = iota
	KindGroup
	KindRepeat
)

func (k Kind) String() string {
	switch k {
	case KindGroup:
		return "group"
	case KindRepeat:
		return "repeat"
	default:
		return "question"
	}
}

// Bind types the export pipeline treats specially.
const (
	BindInt            = "int"
	BindDecimal        = "decimal"
	BindDate           = "date"
	BindDateTime       = "dateTime"
	BindString         = "string"
	BindSelectOne      = "select1"
	BindSelectMultiple = "select"
	BindGeopoint       = "geopoint"
)

// Label is either a plain string or a mapping from locale name to text.
type Label struct {
	Text     string
	ByLocale map[string]string
}

// UnmarshalJSON accepts both label shapes.
func (l *Label) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		l.Text = s
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("label must be a string or a locale map: %w", err)
	}
	l.ByLocale = m
	return nil
}

// IsZero reports whether the label carries no text at all.
func (l Label) IsZero() bool {
	return l.Text == "" && len(l.ByLocale) == 0
}

// Resolve returns the label text for locale. Locale-keyed labels fall back to
// "default" and then to the alphabetically first locale.
func (l Label) Resolve(locale string) string {
	if len(l.ByLocale) == 0 {
		return l.Text
	}
	if s, ok := l.ByLocale[locale]; ok {
		return s
	}
	if s, ok := l.ByLocale["default"]; ok {
		return s
	}
	keys := make([]string, 0, len(l.ByLocale))
	for k := range l.ByLocale {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return l.ByLocale[keys[0]]
}

// Choice is one option of a select question.
type Choice struct {
	Name  string `json:"name"`
	Label Label  `json:"label"`
}

// Node is one element of the definition tree.
type Node struct {
	Kind     Kind
	Name     string
	Path     string // slash-delimited, excluding the root survey name
	Type     string // form type, e.g. "select one"
	BindType string
	Label    Label
	Itemset  string
	Choices  []Choice
	Children []*Node
}

// Definition is a parsed form definition.
type Definition struct {
	Name            string
	Title           string
	IDString        string
	DefaultLanguage string
	Root            *Node
	Choices         map[string][]Choice
}

// ItemsetChoices returns the shared choice list referenced by name.
func (d *Definition) ItemsetChoices(itemset string) []Choice {
	if d == nil || itemset == "" {
		return nil
	}
	return d.Choices[itemset]
}

// Walk visits every node below the root depth-first in document order.
// Returning false from fn skips the node's children.
func (d *Definition) Walk(fn func(n *Node) bool) {
	var visit func(n *Node)
	visit = func(n *Node) {
		for _, c := range n.Children {
			if fn(c) {
				visit(c)
			}
		}
	}
	if d.Root != nil {
		visit(d.Root)
	}
}

// Languages returns the sorted label locales used anywhere in the form.
func (d *Definition) Languages() []string {
	seen := make(map[string]bool)
	addLabel := func(l Label) {
		for locale := range l.ByLocale {
			seen[locale] = true
		}
	}
	addChoices := func(cs []Choice) {
		for _, c := range cs {
			addLabel(c.Label)
		}
	}
	d.Walk(func(n *Node) bool {
		addLabel(n.Label)
		addChoices(n.Choices)
		return true
	})
	for _, cs := range d.Choices {
		addChoices(cs)
	}

	langs := make([]string, 0, len(seen))
	for l := range seen {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	return langs
}

// rawNode mirrors the JSON node shape.
type rawNode struct {
	Name     string            `json:"name"`
	Type     string            `json:"type"`
	Label    Label             `json:"label"`
	Bind     map[string]any    `json:"bind"`
	Itemset  string            `json:"itemset"`
	Children []json.RawMessage `json:"children"`
}

type rawDefinition struct {
	rawNode
	Title           string              `json:"title"`
	IDString        string              `json:"id_string"`
	DefaultLanguage string              `json:"default_language"`
	Choices         map[string][]Choice `json:"choices"`
}

// Parse decodes a form definition. Structural problems are reported as
// SourceDataError so the export job aborts before producing output.
func Parse(data []byte) (*Definition, error) {
	var raw rawDefinition
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, apperr.SourceData("parse form definition", err)
	}
	if raw.Name == "" {
		return nil, apperr.SourceDataf("parse form definition", "definition has no root name")
	}
	if raw.Children == nil {
		return nil, apperr.SourceDataf("parse form definition", "definition %q has no children", raw.Name)
	}

	def := &Definition{
		Name:            raw.Name,
		Title:           raw.Title,
		IDString:        raw.IDString,
		DefaultLanguage: raw.DefaultLanguage,
		Choices:         raw.Choices,
		Root:            &Node{Kind: KindGroup, Name: raw.Name, Type: raw.Type, Label: raw.Label},
	}
	if def.Choices == nil {
		def.Choices = map[string][]Choice{}
	}

	seen := make(map[string]bool)
	children, err := parseChildren(raw.Children, "", seen)
	if err != nil {
		return nil, apperr.SourceData("parse form definition", err)
	}
	def.Root.Children = children
	return def, nil
}

func parseChildren(raws []json.RawMessage, prefix string, seen map[string]bool) ([]*Node, error) {
	nodes := make([]*Node, 0, len(raws))
	for i, msg := range raws {
		var rn rawNode
		if err := json.Unmarshal(msg, &rn); err != nil {
			return nil, fmt.Errorf("child %d of %q: %w", i, prefix, err)
		}
		if rn.Name == "" {
			return nil, fmt.Errorf("child %d of %q has no name", i, prefix)
		}
		path := rn.Name
		if prefix != "" {
			path = prefix + "/" + rn.Name
		}
		if seen[path] {
			return nil, fmt.Errorf("duplicate path %q", path)
		}
		seen[path] = true

		n := &Node{
			Kind:    kindOf(rn.Type),
			Name:    rn.Name,
			Path:    path,
			Type:    rn.Type,
			Label:   rn.Label,
			Itemset: rn.Itemset,
		}
		n.BindType = bindTypeOf(rn)

		switch {
		case n.Kind != KindQuestion:
			children, err := parseChildren(rn.Children, path, seen)
			if err != nil {
				return nil, err
			}
			n.Children = children
		case len(rn.Children) > 0:
			for j, cm := range rn.Children {
				var c Choice
				if err := json.Unmarshal(cm, &c); err != nil {
					return nil, fmt.Errorf("choice %d of %q: %w", j, path, err)
				}
				n.Choices = append(n.Choices, c)
			}
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func kindOf(typ string) Kind {
	switch typ {
	case "group":
		return KindGroup
	case "repeat":
		return KindRepeat
	default:
		return KindQuestion
	}
}

// typeToBind maps form question types to bind types for definitions that omit bind.type.
var typeToBind = map[string]string{
	"integer":               BindInt,
	"int":                   BindInt,
	"range":                 BindInt,
	"decimal":               BindDecimal,
	"date":                  BindDate,
	"today":                 BindDate,
	"datetime":              BindDateTime,
	"dateTime":              BindDateTime,
	"start":                 BindDateTime,
	"end":                   BindDateTime,
	"time":                  "time",
	"select one":            BindSelectOne,
	"select_one":            BindSelectOne,
	"select1":               BindSelectOne,
	"select all that apply": BindSelectMultiple,
	"select multiple":       BindSelectMultiple,
	"select_multiple":       BindSelectMultiple,
	"geopoint":              BindGeopoint,
	"gps":                   BindGeopoint,
	"geotrace":              "geotrace",
	"geoshape":              "geoshape",
	"image":                 "binary",
	"audio":                 "binary",
	"video":                 "binary",
	"file":                  "binary",
	"barcode":               "barcode",
}

func bindTypeOf(rn rawNode) string {
	if t, ok := rn.Bind["type"].(string); ok && t != "" {
		return t
	}
	if t, ok := typeToBind[rn.Type]; ok {
		return t
	}
	if kindOf(rn.Type) != KindQuestion {
		return ""
	}
	return BindString
}
