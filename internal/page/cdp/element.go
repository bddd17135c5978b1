package cdp

import (
	"context"
	"errors"

	"github.com/lugia19/claude-counter/internal/page"
)

// element is a registry handle; id 0 is never issued to an element.
type element struct {
	p  *Page
	id int64
}

func (e *element) QueryAll(ctx context.Context, selector string) ([]page.Element, error) {
	return e.p.queryAll(ctx, e.id, selector)
}

func (e *element) Text(ctx context.Context) (string, error) {
	v, err := e.p.call(ctx, "text", e.id)
	if err != nil {
		return "", err
	}
	s, _ := v.(string)
	return s, nil
}

func (e *element) Attr(ctx context.Context, name string) (string, bool, error) {
	v, err := e.p.call(ctx, "attr", e.id, name)
	if err != nil {
		return "", false, err
	}
	list, _ := v.([]any)
	if len(list) == 0 {
		return "", false, nil
	}
	s, _ := list[0].(string)
	return s, true, nil
}

func (e *element) Matches(ctx context.Context, selector string) (bool, error) {
	v, err := e.p.call(ctx, "matches", e.id, selector)
	if err != nil {
		return false, err
	}
	b, _ := v.(bool)
	return b, nil
}

func (e *element) Closest(ctx context.Context, selector string) (page.Element, error) {
	v, err := e.p.call(ctx, "closest", e.id, selector)
	if err != nil {
		return nil, err
	}
	ids := toIDs(v)
	if len(ids) == 0 {
		return nil, page.ErrNoElement
	}
	return &element{p: e.p, id: ids[0]}, nil
}

func (e *element) Visible(ctx context.Context) (bool, error) {
	v, err := e.p.call(ctx, "visible", e.id)
	if errors.Is(err, page.ErrDetached) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	b, _ := v.(bool)
	return b, nil
}

func (e *element) Click(ctx context.Context) error {
	_, err := e.p.call(ctx, "click", e.id)
	return err
}
