// Package page defines the port every read of, and click on, the chat
// application's rendered page goes through. Adapters live in the cdp
// (live browser tab) and html (static snapshot) subpackages.
package page

import (
	"context"
	"errors"
)

var (
	// ErrNoElement is returned by First and Closest when nothing matches.
	ErrNoElement = errors.New("page: no matching element")
	// ErrReadOnly is returned by Click on pages that cannot be interacted with.
	ErrReadOnly = errors.New("page: read-only page")
	// ErrDetached is returned when an element is no longer in the document.
	ErrDetached = errors.New("page: element detached")
)

// Scope is anything that can be searched with a CSS selector.
type Scope interface {
	// QueryAll returns matches in document order; an empty slice is not an error.
	QueryAll(ctx context.Context, selector string) ([]Element, error)
}

// Element is a handle to one node of the rendered page.
type Element interface {
	Scope
	// Text returns the element's textContent.
	Text(ctx context.Context) (string, error)
	// Attr returns an attribute value and whether it is present.
	Attr(ctx context.Context, name string) (string, bool, error)
	// Matches reports whether the element matches selector.
	Matches(ctx context.Context, selector string) (bool, error)
	// Closest returns the nearest inclusive ancestor matching selector.
	Closest(ctx context.Context, selector string) (Element, error)
	// Visible reports whether the element is attached and not hidden.
	Visible(ctx context.Context) (bool, error)
	Click(ctx context.Context) error
}

// Page is the rendered document of the chat application.
type Page interface {
	Scope
	// Location returns the current URL path, e.g. "/chat/<id>".
	Location(ctx context.Context) (string, error)
}

// TriggerKind names a page event that should start a counting pass.
type TriggerKind string

const (
	TriggerSend       TriggerKind = "send"
	TriggerRegenerate TriggerKind = "regenerate"
	TriggerSave       TriggerKind = "save"
	TriggerEnter      TriggerKind = "enter"
	// TriggerManual marks a pass requested from the command line.
	TriggerManual TriggerKind = "manual"
)

// Trigger is one qualifying user action observed on the page.
type Trigger struct {
	Kind TriggerKind
}

// Watcher is implemented by pages that can report user actions.
type Watcher interface {
	// Triggers returns a channel of observed actions, closed when ctx ends.
	Triggers(ctx context.Context) (<-chan Trigger, error)
}

// First returns the first match of selector in s.
func First(ctx context.Context, s Scope, selector string) (Element, error) {
	els, err := s.QueryAll(ctx, selector)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, ErrNoElement
	}
	return els[0], nil
}

// TextOrEmpty returns the element's text, or "" if it cannot be read.
func TextOrEmpty(ctx context.Context, e Element) string {
	if e == nil {
		return ""
	}
	s, err := e.Text(ctx)
	if err != nil {
		return ""
	}
	return s
}
