package preprocess

import (
	"fmt"

	"github.com/happyhackingspace/formflat/internal/form"
	"github.com/happyhackingspace/formflat/internal/htmlutil"
	"github.com/happyhackingspace/formflat/internal/options"
	"github.com/happyhackingspace/formflat/internal/schema"
	"github.com/happyhackingspace/formflat/internal/textutil"
	"github.com/happyhackingspace/formflat/internal/titles"
)

// Plan maps the fields of one table to the titled header slots of the output.
type Plan struct {
	Table  string
	Header []string

	slots map[string]int // field (xpath or metadata name) -> header index
}

// NewPlan computes the final header of t. Titles come from m by path and then
// short name, falling back to the short name. A title already used in the table
// gets " (n)" appended, where n is the number of prior uses plus two. Fields
// that still resolve to an existing title share its slot.
func NewPlan(t *schema.Table, m *titles.Map, opts options.Options) *Plan {
	p := &Plan{Table: t.Name, slots: make(map[string]int, len(t.Columns)+len(options.ExtraFields))}
	used := make(map[string]int)
	index := make(map[string]int)

	assign := func(field, title string) {
		if i, ok := index[title]; ok {
			p.slots[field] = i
			return
		}
		index[title] = len(p.Header)
		p.slots[field] = len(p.Header)
		p.Header = append(p.Header, title)
	}

	for _, c := range t.Columns {
		base := columnTitle(t, c, m, opts)
		title := base
		if n := used[base]; n > 0 {
			title = fmt.Sprintf("%s (%d)", base, n+2)
		}
		used[base]++
		assign(c.XPath, title)
	}
	for _, f := range options.ExtraFields {
		assign(f, f)
	}
	return p
}

// Slot returns the header index a field is written to.
func (p *Plan) Slot(field string) (int, bool) {
	i, ok := p.slots[field]
	return i, ok
}

func columnTitle(t *schema.Table, c *schema.Column, m *titles.Map, opts options.Options) string {
	if c.Choice != "" {
		question := t.Column(c.Source)
		qTitle := c.Source
		if question != nil {
			qTitle = lookupTitle(question.XPath, question.Name, m)
		}
		label := c.Choice
		if question != nil {
			if l, ok := choiceLabel(question.Choices, c.Choice, opts); ok {
				label = l
			}
		}
		return qTitle + "/" + label
	}
	return lookupTitle(c.XPath, c.Name, m)
}

func lookupTitle(xpath, name string, m *titles.Map) string {
	if m != nil {
		if t, ok := m.Lookup(xpath); ok {
			return t
		}
	}
	if name == "" {
		return textutil.LastSegment(xpath)
	}
	return name
}

func choiceLabel(choices []form.Choice, code string, opts options.Options) (string, bool) {
	for _, c := range choices {
		if c.Name != code {
			continue
		}
		if c.Label.IsZero() {
			return code, true
		}
		text := c.Label.Resolve(opts.Locale)
		if opts.StripLabelMarkup {
			text = htmlutil.StripTags(text)
		}
		return text, true
	}
	return "", false
}
