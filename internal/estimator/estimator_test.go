package estimator

import (
	"context"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lugia19/claude-counter/internal/locator"
	"github.com/lugia19/claude-counter/internal/page"
	"github.com/lugia19/claude-counter/internal/page/html"
	"github.com/lugia19/claude-counter/internal/scrape"
	"github.com/lugia19/claude-counter/internal/store"
	"github.com/lugia19/claude-counter/internal/usage"
)

// swapPage lets a test re-render the page between operations.
type swapPage struct {
	mu  sync.Mutex
	cur *html.Page
}

func (s *swapPage) set(t *testing.T, loc, doc string) {
	t.Helper()
	p, err := html.Parse(strings.NewReader(doc), loc)
	if err != nil {
		t.Fatal(err)
	}
	s.mu.Lock()
	s.cur = p
	s.mu.Unlock()
}

func (s *swapPage) get() *html.Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

func (s *swapPage) Location(ctx context.Context) (string, error) {
	return s.get().Location(ctx)
}

func (s *swapPage) QueryAll(ctx context.Context, selector string) ([]page.Element, error) {
	return s.get().QueryAll(ctx, selector)
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type sleeps struct {
	mu    sync.Mutex
	calls []time.Duration
}

func (s *sleeps) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.calls = append(s.calls, d)
	s.mu.Unlock()
	return ctx.Err()
}

func chatDoc(model string, turns ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><div data-testid="model-selector-dropdown"><span class="whitespace-nowrap">`)
	b.WriteString(model)
	b.WriteString(`</span></div>`)
	for i, turn := range turns {
		if i%2 == 0 {
			b.WriteString(`<div data-testid="user-message">` + turn + `</div>`)
		} else {
			b.WriteString(`<div class="font-claude-message">` + turn + `</div>`)
		}
	}
	b.WriteString(`</body></html>`)
	return b.String()
}

type harness struct {
	est   *Estimator
	page  *swapPage
	store *store.Memory
	clock *clock
	sleep *sleeps
}

func newHarness(t *testing.T, loc, doc string) *harness {
	t.Helper()
	ctx := context.Background()
	h := &harness{
		page:  &swapPage{},
		store: store.NewMemory(),
		clock: &clock{t: time.Date(2024, 11, 5, 14, 20, 0, 0, time.Local)},
		sleep: &sleeps{},
	}
	h.page.set(t, loc, doc)

	sc := scrape.New(h.page)
	sc.Policy = locator.Policy{Attempts: 2, Interval: time.Millisecond, Sleep: h.sleep.sleep}
	sc.Files = usage.NewFileCache(h.store)

	tr, err := usage.NewTracker(ctx, h.store, sc.CurrentModel(ctx), h.clock.now)
	if err != nil {
		t.Fatal(err)
	}
	cfg := DefaultConfig()
	cfg.Sleep = h.sleep.sleep
	h.est = New(cfg, sc, tr, usage.DefaultLimits(), log.New(io.Discard, "", 0))
	return h
}

// "abcd" estimates to 2 tokens and "abcdefgh" to 3.
const (
	fourChars  = "abcd"
	eightChars = "abcdefgh"
)

func TestCountPassAccumulates(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "/chat/c1", chatDoc("3 Opus", fourChars, eightChars))

	snap, err := h.est.CountPass(ctx, page.TriggerSend)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Last != 5 || snap.Total != 5 {
		t.Fatalf("first pass = last %d total %d, want 5/5", snap.Last, snap.Total)
	}
	if snap.Model != "3 Opus" || snap.Limit != 1_500_000 {
		t.Errorf("model/limit = %q/%d", snap.Model, snap.Limit)
	}
	if snap.PassID == "" || snap.Trigger != page.TriggerSend || snap.Cause != "pass" {
		t.Errorf("pass metadata = %+v", snap)
	}
	wantReset := time.Date(2024, 11, 5, 19, 0, 0, 0, time.Local)
	if !snap.ResetAt.Equal(wantReset) {
		t.Errorf("ResetAt = %v, want %v", snap.ResetAt, wantReset)
	}

	// The whole visible conversation is counted again on the next pass.
	h.clock.advance(time.Hour)
	snap, err = h.est.CountPass(ctx, page.TriggerEnter)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Last != 5 || snap.Total != 10 {
		t.Errorf("second pass = last %d total %d, want 5/10", snap.Last, snap.Total)
	}
	if !snap.ResetAt.Equal(wantReset) {
		t.Errorf("ResetAt moved to %v", snap.ResetAt)
	}

	var stored usage.Window
	ok, err := store.GetJSON(ctx, h.store, usage.WindowKey("3 Opus"), &stored)
	if err != nil || !ok {
		t.Fatalf("stored window missing: %v", err)
	}
	if stored.Total != 10 || stored.ResetTimestamp != wantReset.UnixMilli() {
		t.Errorf("stored = %+v", stored)
	}
}

func TestCountPassAfterReset(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "/chat/c1", chatDoc("3 Opus", fourChars))

	if _, err := h.est.CountPass(ctx, page.TriggerSend); err != nil {
		t.Fatal(err)
	}
	h.clock.advance(5 * time.Hour)
	snap, err := h.est.CountPass(ctx, page.TriggerSend)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Total != 2 {
		t.Errorf("Total after reset = %d, want 2", snap.Total)
	}
}

func TestCountPassMissingElements(t *testing.T) {
	h := newHarness(t, "/new", `<html><body><p>nothing rendered</p></body></html>`)
	snap, err := h.est.CountPass(context.Background(), page.TriggerSend)
	if err != nil {
		t.Fatalf("CountPass: %v", err)
	}
	if snap.Last != 0 || snap.Total != 0 {
		t.Errorf("snapshot = %+v, want zero counts", snap)
	}
	if snap.Model != usage.DefaultModel {
		t.Errorf("Model = %q, want %q", snap.Model, usage.DefaultModel)
	}
}

func TestHandleTriggerSettleDelay(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		loc  string
		want time.Duration
	}{
		{"/chat/c1", 100 * time.Millisecond},
		{"/new", 5 * time.Second},
	}
	for _, tt := range tests {
		h := newHarness(t, tt.loc, chatDoc("3 Opus", fourChars))
		if _, err := h.est.HandleTrigger(ctx, page.Trigger{Kind: page.TriggerSave}); err != nil {
			t.Fatal(err)
		}
		if len(h.sleep.calls) == 0 || h.sleep.calls[0] != tt.want {
			t.Errorf("%s: sleeps = %v, want first %v", tt.loc, h.sleep.calls, tt.want)
		}
	}
}

func TestHandleTriggerCanceled(t *testing.T) {
	h := newHarness(t, "/chat/c1", chatDoc("3 Opus", fourChars))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := h.est.HandleTrigger(ctx, page.Trigger{Kind: page.TriggerSend}); err == nil {
		t.Fatal("HandleTrigger on canceled ctx returned nil error")
	}
	if got := h.est.Snapshot().Total; got != 0 {
		t.Errorf("Total = %d, want 0", got)
	}
}

func TestPollModelSwitch(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "/chat/c1", chatDoc("3 Opus", fourChars))

	if _, err := h.est.CountPass(ctx, page.TriggerSend); err != nil {
		t.Fatal(err)
	}
	changed, err := h.est.PollModel(ctx)
	if err != nil || changed {
		t.Fatalf("PollModel without change = %v, %v", changed, err)
	}

	h.page.set(t, "/chat/c1", chatDoc("3.5 Haiku", fourChars))
	changed, err = h.est.PollModel(ctx)
	if err != nil || !changed {
		t.Fatalf("PollModel = %v, %v; want change", changed, err)
	}
	snap := h.est.Snapshot()
	if snap.Model != "3.5 Haiku" || snap.Total != 0 || snap.Last != 0 || snap.Cause != "model" {
		t.Errorf("snapshot after switch = %+v", snap)
	}

	var opus usage.Window
	if ok, _ := store.GetJSON(ctx, h.store, usage.WindowKey("3 Opus"), &opus); !ok || opus.Total != 2 {
		t.Errorf("previous model window = %+v, %v; want untouched total 2", opus, ok)
	}
}

func TestConcurrentPassesAllCounted(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "/chat/c1", chatDoc("3 Opus", fourChars))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.est.CountPass(ctx, page.TriggerSend); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	var w usage.Window
	if _, err := store.GetJSON(ctx, h.store, usage.WindowKey("3 Opus"), &w); err != nil {
		t.Fatal(err)
	}
	if w.Total != 20 {
		t.Errorf("Total = %d, want 20", w.Total)
	}
}

func TestSnapshotWarning(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "/chat/c1", chatDoc("3 Opus", fourChars))
	h.est.SetLimits(usage.Limits{Default: 10, WarningThreshold: 0.9, Models: map[string]int64{"3 Opus": 2}})

	snap, err := h.est.CountPass(ctx, page.TriggerSend)
	if err != nil {
		t.Fatal(err)
	}
	if !snap.Warning || snap.Percent != 100 || snap.Limit != 2 {
		t.Errorf("snapshot = %+v, want warning at 100%%", snap)
	}
}

func TestRunDispatchesTriggers(t *testing.T) {
	h := newHarness(t, "/chat/c1", chatDoc("3 Opus", fourChars))
	snaps, unsubscribe := h.est.Subscribe(4)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	triggers := make(chan page.Trigger, 1)
	done := make(chan struct{})
	go func() {
		h.est.Run(ctx, triggers)
		close(done)
	}()

	triggers <- page.Trigger{Kind: page.TriggerRegenerate}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case snap := <-snaps:
			if snap.Cause != "pass" {
				continue
			}
			if snap.Trigger != page.TriggerRegenerate || snap.Total != 2 {
				t.Errorf("snapshot = %+v", snap)
			}
			cancel()
			<-done
			return
		case <-deadline:
			cancel()
			t.Fatal("no snapshot published for trigger")
		}
	}
}

func TestSnapshotFollowsTrackerUnderModelSwitches(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "/chat/c1", chatDoc("3 Opus", fourChars))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := h.est.CountPass(ctx, page.TriggerSend); err != nil {
				t.Error(err)
			}
		}()
		model := "3 Opus"
		if i%2 == 1 {
			model = "3.5 Haiku"
		}
		go func() {
			defer wg.Done()
			h.page.set(t, "/chat/c1", chatDoc(model, fourChars))
			if _, err := h.est.PollModel(ctx); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	st := h.est.tracker.State()
	snap := h.est.Snapshot()
	if snap.Model != st.Model || snap.Total != st.Total {
		t.Errorf("published %s/%d, tracker holds %s/%d", snap.Model, snap.Total, st.Model, st.Total)
	}
}

func TestRunReportsPollFailures(t *testing.T) {
	h := newHarness(t, "/chat/c1", chatDoc("3 Opus", fourChars))
	h.est.cfg.PollInterval = 5 * time.Millisecond
	if err := h.store.Set(context.Background(), usage.WindowKey("3.5 Haiku"), []byte("{broken")); err != nil {
		t.Fatal(err)
	}
	h.page.set(t, "/chat/c1", chatDoc("3.5 Haiku", fourChars))

	errs := make(chan error, 8)
	h.est.OnError(func(err error) {
		select {
		case errs <- err:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.est.Run(ctx, nil)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	select {
	case err := <-errs:
		if !strings.Contains(err.Error(), "model poll") {
			t.Errorf("reported error = %v, want model poll failure", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("poll failure was not reported")
	}
}
