// Package html adapts a saved HTML snapshot of the chat page to the page
// port. Snapshots are read-only: clicks fail with page.ErrReadOnly.
package html

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/lugia19/claude-counter/internal/page"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// Page is a parsed snapshot.
type Page struct {
	doc      *goquery.Document
	location string
}

// Parse reads an HTML document. location is the page path the snapshot
// was taken at; when empty it is recovered from the canonical link or
// og:url meta tag, if present.
func Parse(r io.Reader, location string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("html: parsing snapshot: %w", err)
	}
	if location == "" {
		location = snapshotLocation(doc)
	}
	return &Page{doc: doc, location: location}, nil
}

// Open parses the snapshot file at path.
func Open(path, location string) (*Page, error) {
	f, err := os.Open(path) //nolint:gosec // snapshot path is supplied by the local user
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return Parse(f, location)
}

// Location implements page.Page.
func (p *Page) Location(context.Context) (string, error) {
	return p.location, nil
}

// QueryAll implements page.Scope.
func (p *Page) QueryAll(_ context.Context, selector string) ([]page.Element, error) {
	return find(p.doc.Selection, selector)
}

func snapshotLocation(doc *goquery.Document) string {
	candidates := []string{
		doc.Find(`link[rel="canonical"]`).AttrOr("href", ""),
		doc.Find(`meta[property="og:url"]`).AttrOr("content", ""),
	}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if u, err := url.Parse(c); err == nil && u.Path != "" {
			return u.Path
		}
	}
	return ""
}

type element struct {
	sel *goquery.Selection
}

func (e element) QueryAll(_ context.Context, selector string) ([]page.Element, error) {
	return find(e.sel, selector)
}

func (e element) Text(context.Context) (string, error) {
	return e.sel.Text(), nil
}

func (e element) Attr(_ context.Context, name string) (string, bool, error) {
	v, ok := e.sel.Attr(name)
	return v, ok, nil
}

func (e element) Matches(_ context.Context, selector string) (bool, error) {
	m, err := compile(selector)
	if err != nil {
		return false, err
	}
	return e.sel.IsMatcher(m), nil
}

func (e element) Closest(_ context.Context, selector string) (page.Element, error) {
	m, err := compile(selector)
	if err != nil {
		return nil, err
	}
	c := e.sel.ClosestMatcher(m)
	if c.Length() == 0 {
		return nil, page.ErrNoElement
	}
	return element{sel: c.First()}, nil
}

// Visible treats hidden and inline display:none/opacity:0 as invisible;
// snapshots carry no computed style.
func (e element) Visible(context.Context) (bool, error) {
	for s := e.sel; s.Length() > 0; s = s.Parent() {
		if _, hidden := s.Attr("hidden"); hidden {
			return false, nil
		}
		style := strings.ReplaceAll(strings.ToLower(s.AttrOr("style", "")), " ", "")
		if strings.Contains(style, "display:none") || strings.Contains(style, "opacity:0;") ||
			strings.HasSuffix(style, "opacity:0") {
			return false, nil
		}
	}
	return true, nil
}

func (e element) Click(context.Context) error {
	return page.ErrReadOnly
}

func find(root *goquery.Selection, selector string) ([]page.Element, error) {
	m, err := compile(selector)
	if err != nil {
		return nil, err
	}
	var out []page.Element
	root.FindMatcher(m).Each(func(_ int, s *goquery.Selection) {
		out = append(out, element{sel: s})
	})
	return out, nil
}

// compile parses selector up front; goquery's string methods treat an
// unparsable selector as matching nothing.
func compile(selector string) (goquery.Matcher, error) {
	m, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("html: bad selector %q: %w", selector, err)
	}
	return m, nil
}
