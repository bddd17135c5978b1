package scrape

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/lugia19/claude-counter/internal/locator"
	"github.com/lugia19/claude-counter/internal/page"
	"github.com/lugia19/claude-counter/internal/page/html"
)

// clickRule swaps the rendered document when an element matching
// selector is clicked.
type clickRule struct {
	selector string
	next     string
}

// fakePage serves a sequence of HTML snapshots, switching between them
// on clicks the way the live application re-renders.
type fakePage struct {
	t      *testing.T
	loc    string
	cur    *html.Page
	rules  []clickRule
	clicks []string
}

func newFakePage(t *testing.T, loc, doc string, rules ...clickRule) *fakePage {
	t.Helper()
	f := &fakePage{t: t, loc: loc, rules: rules}
	f.render(doc)
	return f
}

func (f *fakePage) render(doc string) {
	f.t.Helper()
	p, err := html.Parse(strings.NewReader(doc), f.loc)
	if err != nil {
		f.t.Fatalf("parsing fake document: %v", err)
	}
	f.cur = p
}

func (f *fakePage) Location(context.Context) (string, error) { return f.loc, nil }

func (f *fakePage) QueryAll(ctx context.Context, selector string) ([]page.Element, error) {
	els, err := f.cur.QueryAll(ctx, selector)
	return f.wrap(els), err
}

func (f *fakePage) wrap(els []page.Element) []page.Element {
	out := make([]page.Element, len(els))
	for i, el := range els {
		out[i] = fakeElement{Element: el, f: f}
	}
	return out
}

type fakeElement struct {
	page.Element
	f *fakePage
}

func (e fakeElement) QueryAll(ctx context.Context, selector string) ([]page.Element, error) {
	els, err := e.Element.QueryAll(ctx, selector)
	return e.f.wrap(els), err
}

func (e fakeElement) Closest(ctx context.Context, selector string) (page.Element, error) {
	el, err := e.Element.Closest(ctx, selector)
	if err != nil {
		return nil, err
	}
	return fakeElement{Element: el, f: e.f}, nil
}

func (e fakeElement) Click(ctx context.Context) error {
	for _, r := range e.f.rules {
		if ok, _ := e.Element.Matches(ctx, r.selector); ok {
			e.f.clicks = append(e.f.clicks, r.selector)
			e.f.render(r.next)
			return nil
		}
	}
	e.f.clicks = append(e.f.clicks, "(no rule)")
	return nil
}

type recordingSleep struct {
	calls []time.Duration
}

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.calls = append(r.calls, d)
	return ctx.Err()
}

func newTestScraper(p page.Page) (*Scraper, *recordingSleep) {
	rs := &recordingSleep{}
	s := New(p)
	s.Policy = locator.Policy{Attempts: 5, Interval: 100 * time.Millisecond, Sleep: rs.sleep}
	return s, rs
}
