// Package htmlutil extracts plain text from form labels that carry HTML markup.
package htmlutil

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/happyhackingspace/formflat/internal/textutil"
)

// blockSelector matches elements whose boundaries separate words.
const blockSelector = "br, p, div, li, tr, td, th, h1, h2, h3, h4, h5, h6"

// LoadFragment parses an HTML fragment into a goquery Document rooted at a <div>.
func LoadFragment(fragment string) (*goquery.Document, error) {
	root := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	})
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
		root.AppendChild(n)
	}
	return goquery.NewDocumentFromNode(root), nil
}

// StripTags returns the visible text of a label, with entities decoded and
// whitespace normalized. Labels without markup are only whitespace-normalized.
func StripTags(label string) string {
	if !strings.ContainsAny(label, "<&") {
		return textutil.NormalizeWhitespaces(label)
	}
	doc, err := LoadFragment(label)
	if err != nil {
		return textutil.NormalizeWhitespaces(html.UnescapeString(label))
	}
	doc.Find("script, style").Remove()
	doc.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		s.BeforeHtml(" ")
		s.AfterHtml(" ")
	})
	return textutil.NormalizeWhitespaces(doc.Text())
}
