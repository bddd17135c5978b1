// Package estimator turns page activity into usage: it runs counting
// passes after qualifying actions, follows the selected model and
// publishes snapshots for renderers.
package estimator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lugia19/claude-counter/internal/locator"
	"github.com/lugia19/claude-counter/internal/page"
	"github.com/lugia19/claude-counter/internal/scrape"
	"github.com/lugia19/claude-counter/internal/usage"

	"github.com/google/uuid"
)

// Config controls estimator timing.
type Config struct {
	// SettleDelay is waited after an action before counting, giving the
	// page time to render the new turn.
	SettleDelay time.Duration
	// NewChatSettleDelay replaces SettleDelay when no conversation is open
	// yet; the first message of a chat also has to wait for navigation.
	NewChatSettleDelay time.Duration
	PollInterval       time.Duration
	Sleep              locator.SleepFunc // nil uses a real timer
}

// DefaultConfig returns the standard timings.
func DefaultConfig() Config {
	return Config{
		SettleDelay:        100 * time.Millisecond,
		NewChatSettleDelay: 5 * time.Second,
		PollInterval:       time.Second,
	}
}

// Snapshot is the render-facing view of the active window.
type Snapshot struct {
	At      time.Time        `json:"at"`
	Model   string           `json:"model"`
	Total   int64            `json:"total"`
	Last    int64            `json:"last"`
	Limit   int64            `json:"limit"`
	ResetAt time.Time        `json:"reset_at,omitzero"`
	Percent float64          `json:"percent"`
	Warning bool             `json:"warning"`
	Cause   string           `json:"cause"` // init, pass, model or limits
	Trigger page.TriggerKind `json:"trigger,omitempty"`
	PassID  string           `json:"pass_id,omitempty"`
}

// Estimator coordinates the scraper and the tracker.
type Estimator struct {
	cfg     Config
	scraper *scrape.Scraper
	tracker *usage.Tracker
	log     *log.Logger

	mu      sync.RWMutex
	limits  usage.Limits
	last    Snapshot
	onError func(error)

	// commitMu holds a tracker change together with its publish, so
	// subscribers see snapshots in the order the tracker changed.
	commitMu sync.Mutex

	subMu   sync.Mutex
	nextSub int
	subs    map[int]chan Snapshot

	passes sync.WaitGroup
}

// New returns an estimator. A nil logger uses the standard logger.
func New(cfg Config, sc *scrape.Scraper, tr *usage.Tracker, limits usage.Limits, logger *log.Logger) *Estimator {
	d := DefaultConfig()
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = d.SettleDelay
	}
	if cfg.NewChatSettleDelay <= 0 {
		cfg.NewChatSettleDelay = d.NewChatSettleDelay
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = d.PollInterval
	}
	if cfg.Sleep == nil {
		cfg.Sleep = locator.Sleep
	}
	if logger == nil {
		logger = log.Default()
	}
	e := &Estimator{
		cfg:     cfg,
		scraper: sc,
		tracker: tr,
		log:     logger,
		limits:  limits,
		subs:    make(map[int]chan Snapshot),
	}
	e.last = e.snapshotOf(tr.State(), "init")
	return e
}

// SetLimits swaps the model ceilings, e.g. after a config reload, and
// republishes the current state.
func (e *Estimator) SetLimits(l usage.Limits) {
	e.mu.Lock()
	e.limits = l
	e.mu.Unlock()

	e.commitMu.Lock()
	defer e.commitMu.Unlock()
	e.publish(e.snapshotOf(e.tracker.State(), "limits"))
}

// OnError registers fn to receive the failures Run would otherwise only
// log, such as a window that cannot be saved.
func (e *Estimator) OnError(fn func(error)) {
	e.mu.Lock()
	e.onError = fn
	e.mu.Unlock()
}

func (e *Estimator) report(err error) {
	e.mu.RLock()
	fn := e.onError
	e.mu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

// Snapshot returns the most recently published state.
func (e *Estimator) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.last
}

// Subscribe returns a channel receiving every published snapshot and a
// function that unsubscribes. Slow subscribers miss snapshots.
func (e *Estimator) Subscribe(buffer int) (<-chan Snapshot, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Snapshot, buffer)
	e.subMu.Lock()
	e.nextSub++
	id := e.nextSub
	e.subs[id] = ch
	e.subMu.Unlock()
	return ch, func() {
		e.subMu.Lock()
		delete(e.subs, id)
		e.subMu.Unlock()
	}
}

func (e *Estimator) snapshotOf(st usage.State, cause string) Snapshot {
	e.mu.RLock()
	limits := e.limits
	e.mu.RUnlock()
	return Snapshot{
		At:      time.Now(),
		Model:   st.Model,
		Total:   st.Total,
		Last:    st.Last,
		Limit:   limits.For(st.Model),
		ResetAt: st.ResetAt,
		Percent: limits.Percent(st.Model, st.Total),
		Warning: limits.Warning(st.Model, st.Total),
		Cause:   cause,
	}
}

func (e *Estimator) publish(snap Snapshot) {
	e.mu.Lock()
	e.last = snap
	e.mu.Unlock()

	e.subMu.Lock()
	defer e.subMu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

// CountPass measures the conversation and adds the result to the active
// window. Elements that never render contribute zero; only a failure to
// persist the window is returned.
func (e *Estimator) CountPass(ctx context.Context, trigger page.TriggerKind) (Snapshot, error) {
	id := uuid.NewString()
	logger := log.New(e.log.Writer(), e.log.Prefix()+"pass "+id[:8]+": ", e.log.Flags())
	sc := e.scraper.WithLogger(logger)

	conv, err := sc.ConversationID(ctx)
	if err != nil && !errors.Is(err, scrape.ErrNoActiveConversation) {
		logger.Printf("conversation id: %v", err)
	}

	messages, err := sc.MessageTokens(ctx)
	if err != nil {
		logger.Printf("messages: %v", err)
		messages = 0
	}
	files := sc.FileTokens(ctx, conv)
	count := messages + files

	e.commitMu.Lock()
	defer e.commitMu.Unlock()
	st, err := e.tracker.Add(ctx, count)
	if err != nil {
		return e.Snapshot(), err
	}
	logger.Printf("counted %d tokens (%d messages, %d files); %s total %d, resets %s",
		count, messages, files, st.Model, st.Total, st.ResetAt.Format(time.Kitchen))

	snap := e.snapshotOf(st, "pass")
	snap.Trigger = trigger
	snap.PassID = id
	e.publish(snap)
	return snap, nil
}

// HandleTrigger waits for the page to settle after an action and counts.
func (e *Estimator) HandleTrigger(ctx context.Context, t page.Trigger) (Snapshot, error) {
	delay := e.cfg.SettleDelay
	if _, err := e.scraper.ConversationID(ctx); err != nil {
		delay = e.cfg.NewChatSettleDelay
	}
	if err := e.cfg.Sleep(ctx, delay); err != nil {
		return e.Snapshot(), err
	}
	return e.CountPass(ctx, t.Kind)
}

// PollModel re-reads the selected model and switches windows on change.
func (e *Estimator) PollModel(ctx context.Context) (bool, error) {
	model := e.scraper.CurrentModel(ctx)

	e.commitMu.Lock()
	defer e.commitMu.Unlock()
	prev := e.tracker.Model()
	st, changed, err := e.tracker.SwitchModel(ctx, model)
	if err != nil {
		return false, err
	}
	if changed {
		e.log.Printf("model changed from %s to %s", prev, model)
		e.publish(e.snapshotOf(st, "model"))
	}
	return changed, nil
}

// Run handles triggers and polls the model until ctx is canceled. Each
// trigger runs in its own goroutine; Run waits for them before returning.
// A closed trigger channel stops trigger handling but not polling.
func (e *Estimator) Run(ctx context.Context, triggers <-chan page.Trigger) {
	defer e.passes.Wait()

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-triggers:
			if !ok {
				triggers = nil
				continue
			}
			e.log.Printf("%s detected", t.Kind)
			e.passes.Add(1)
			go func() {
				defer e.passes.Done()
				if _, err := e.HandleTrigger(ctx, t); err != nil && ctx.Err() == nil {
					e.log.Printf("counting after %s: %v", t.Kind, err)
					e.report(fmt.Errorf("counting after %s: %w", t.Kind, err))
				}
			}()
		case <-ticker.C:
			if _, err := e.PollModel(ctx); err != nil && ctx.Err() == nil {
				e.log.Printf("model poll: %v", err)
				e.report(fmt.Errorf("model poll: %w", err))
			}
		}
	}
}
