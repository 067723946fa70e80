package pricedom

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ParseDocument parses a full HTML page.
func ParseDocument(r io.Reader) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

// RenderDocument serializes a page parsed by ParseDocument.
func RenderDocument(doc *goquery.Document) (string, error) {
	var buf bytes.Buffer
	for n := doc.Nodes[0].FirstChild; n != nil; n = n.NextSibling {
		if err := html.Render(&buf, n); err != nil {
			return "", fmt.Errorf("render document: %w", err)
		}
	}
	return buf.String(), nil
}

// Fragment is a piece of markup, such as a cart fragment returned by the
// storefront AJAX endpoints, parsed under a synthetic page so selectors and
// ancestor lookups behave as they do in the full page.
type Fragment struct {
	doc     *goquery.Document
	wrapper *html.Node
}

var leadingTag = regexp.MustCompile(`^\s*<([A-Za-z][A-Za-z0-9]*)`)

// fragmentContext picks the parent element table parts need to survive parsing.
func fragmentContext(markup string) atom.Atom {
	m := leadingTag.FindStringSubmatch(markup)
	if m == nil {
		return atom.Div
	}
	switch strings.ToLower(m[1]) {
	case "tr":
		return atom.Tbody
	case "td", "th":
		return atom.Tr
	case "tbody", "thead", "tfoot", "caption", "colgroup":
		return atom.Table
	case "option", "optgroup":
		return atom.Select
	default:
		return atom.Div
	}
}

// ParseFragment parses markup as the content of an element.
func ParseFragment(markup string) (*Fragment, error) {
	a := fragmentContext(markup)
	wrapper := &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
	nodes, err := html.ParseFragment(strings.NewReader(markup), wrapper)
	if err != nil {
		return nil, fmt.Errorf("parse fragment: %w", err)
	}

	root := &html.Node{Type: html.DocumentNode}
	htmlEl := &html.Node{Type: html.ElementNode, DataAtom: atom.Html, Data: "html"}
	body := &html.Node{Type: html.ElementNode, DataAtom: atom.Body, Data: "body"}
	root.AppendChild(htmlEl)
	htmlEl.AppendChild(body)
	body.AppendChild(wrapper)
	for _, n := range nodes {
		wrapper.AppendChild(n)
	}
	return &Fragment{doc: goquery.NewDocumentFromNode(root), wrapper: wrapper}, nil
}

// Document exposes the synthetic page holding the fragment.
func (f *Fragment) Document() *goquery.Document { return f.doc }

// HTML serializes the fragment content.
func (f *Fragment) HTML() (string, error) {
	var buf bytes.Buffer
	for n := f.wrapper.FirstChild; n != nil; n = n.NextSibling {
		if err := html.Render(&buf, n); err != nil {
			return "", fmt.Errorf("render fragment: %w", err)
		}
	}
	return buf.String(), nil
}

func attached(n *html.Node) bool {
	for n.Parent != nil {
		n = n.Parent
	}
	return n.Type == html.DocumentNode
}
