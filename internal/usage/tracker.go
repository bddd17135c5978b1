package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lugia19/claude-counter/internal/store"

	"github.com/samber/lo"
)

// State is the tracker's view of the active model.
type State struct {
	Model   string
	Total   int64     // accumulated in the active window
	Last    int64     // size of the most recent counting pass
	ResetAt time.Time // zero until a window exists
}

// Tracker owns the active model's window. Window updates are serialized
// so concurrent counting passes never overwrite each other's additions.
type Tracker struct {
	store store.Store
	now   func() time.Time

	mu    sync.Mutex
	state State
}

// NewTracker loads the stored window for model. A nil clock uses time.Now.
func NewTracker(ctx context.Context, s store.Store, model string, now func() time.Time) (*Tracker, error) {
	if now == nil {
		now = time.Now
	}
	t := &Tracker{store: s, now: now}
	if _, err := t.load(ctx, model); err != nil {
		return nil, err
	}
	return t, nil
}

// State returns a copy of the current state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Model returns the active model label.
func (t *Tracker) Model() string {
	return t.State().Model
}

// Add accumulates count into the active model's window and persists it.
// The stored window is re-read first so a reset boundary that passed
// since the last pass starts a fresh window.
func (t *Tracker) Add(ctx context.Context, count int64) (State, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	model := t.state.Model
	stored, err := readWindow(ctx, t.store, model)
	if err != nil {
		return t.state, err
	}

	next := Accumulate(stored, count, t.now())
	next.Model = model
	if err := store.SetJSON(ctx, t.store, WindowKey(model), next); err != nil {
		return t.state, fmt.Errorf("saving window for %q: %w", model, err)
	}

	t.state.Total = next.Total
	t.state.Last = count
	t.state.ResetAt = next.ResetAt()
	return t.state, nil
}

// SwitchModel makes model the active one, loading its window (or starting
// from zero) and clearing Last. It reports whether the model changed. The
// previous model's stored window is left untouched.
func (t *Tracker) SwitchModel(ctx context.Context, model string) (State, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if model == t.state.Model {
		return t.state, false, nil
	}
	st, err := t.loadLocked(ctx, model)
	return st, err == nil, err
}

// Reload re-reads the active model's window, e.g. after another process
// wrote to the store.
func (t *Tracker) Reload(ctx context.Context) (State, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	last := t.state.Last
	st, err := t.loadLocked(ctx, t.state.Model)
	if err != nil {
		return st, err
	}
	t.state.Last = last
	return t.state, nil
}

func (t *Tracker) load(ctx context.Context, model string) (State, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loadLocked(ctx, model)
}

func (t *Tracker) loadLocked(ctx context.Context, model string) (State, error) {
	stored, err := readWindow(ctx, t.store, model)
	if err != nil {
		return t.state, err
	}

	total, active := Load(stored, t.now())
	st := State{Model: model, Total: total}
	if active {
		st.ResetAt = stored.ResetAt()
	}
	t.state = st
	return st, nil
}

func readWindow(ctx context.Context, s store.Store, model string) (*Window, error) {
	var w Window
	ok, err := store.GetJSON(ctx, s, WindowKey(model), &w)
	if err != nil {
		return nil, fmt.Errorf("loading window for %q: %w", model, err)
	}
	if !ok {
		return nil, nil
	}
	return &w, nil
}

// StoredWindow pairs a window with the key suffix it was stored under.
type StoredWindow struct {
	Key    string // model label with whitespace collapsed
	Window Window
}

// Label returns the model label the window was written for. Windows
// stored without one fall back to the key with underscores read as spaces.
func (w StoredWindow) Label() string {
	if w.Window.Model != "" {
		return w.Window.Model
	}
	return strings.ReplaceAll(w.Key, "_", " ")
}

// ListWindows returns every stored usage window. File token entries share
// the namespace but hold bare numbers, so anything that does not decode
// as a window object is skipped.
func ListWindows(ctx context.Context, s store.Store) ([]StoredWindow, error) {
	keys, err := s.Keys(ctx, Namespace+"_")
	if err != nil {
		return nil, err
	}

	var out []StoredWindow
	for _, k := range keys {
		data, err := s.Get(ctx, k)
		if err != nil {
			continue
		}
		var w Window
		if !isObject(data) || json.Unmarshal(data, &w) != nil {
			continue
		}
		out = append(out, StoredWindow{Key: strings.TrimPrefix(k, Namespace+"_"), Window: w})
	}
	return out, nil
}

// ActiveWindows filters windows whose reset boundary is still ahead of now.
func ActiveWindows(ws []StoredWindow, now time.Time) []StoredWindow {
	return lo.Filter(ws, func(w StoredWindow, _ int) bool {
		return !w.Window.Expired(now)
	})
}

// DeleteWindow removes a model's stored window.
func DeleteWindow(ctx context.Context, s store.Store, model string) error {
	return s.Delete(ctx, WindowKey(model))
}

func isObject(data []byte) bool {
	trimmed := strings.TrimSpace(string(data))
	return strings.HasPrefix(trimmed, "{")
}
