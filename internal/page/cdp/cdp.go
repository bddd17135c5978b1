// Package cdp drives a live chat tab over the Chrome DevTools Protocol.
//
// Attach connects to a running browser (or launches one), picks the tab
// showing the chat application and installs a small element registry plus
// the click/keydown hooks that report qualifying actions.
package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lugia19/claude-counter/internal/page"

	"github.com/chromedp/cdproto/cdp"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

// ErrNoTarget is returned when no tab shows the configured host and a new
// one could not be opened.
var ErrNoTarget = errors.New("cdp: no chat tab found")

const errUninstalled = "uninstalled"

// Options configures Attach.
type Options struct {
	// URL is the DevTools endpoint of a running browser, e.g.
	// ws://127.0.0.1:9222. Empty launches a new browser.
	URL      string
	Host     string // defaults to claude.ai
	Headless bool
	Hooks    Hooks
}

// Page is an attached chat tab. It implements page.Page and page.Watcher.
type Page struct {
	tab    context.Context
	target *chromedp.Target
	script string
	cancel []context.CancelFunc
	// detach runs before cancel for tabs the user opened, so closing the
	// page leaves them open.
	detach func()
}

var (
	_ page.Page    = (*Page)(nil)
	_ page.Watcher = (*Page)(nil)
)

// Attach connects to the browser and prepares the chat tab.
func Attach(ctx context.Context, opts Options) (*Page, error) {
	if opts.Host == "" {
		opts.Host = "claude.ai"
	}
	script, err := Script(opts.Hooks)
	if err != nil {
		return nil, err
	}

	p := &Page{script: script}
	// Close owns the browser contexts; cancelling ctx only aborts calls in
	// flight. A cancelled chromedp tab context closes its target.
	ctx = context.WithoutCancel(ctx)
	var allocCtx context.Context
	var cancelAlloc context.CancelFunc
	if opts.URL != "" {
		allocCtx, cancelAlloc = chromedp.NewRemoteAllocator(ctx, opts.URL)
	} else {
		execOpts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.Flag("headless", opts.Headless))
		allocCtx, cancelAlloc = chromedp.NewExecAllocator(ctx, execOpts...)
	}
	p.cancel = append(p.cancel, cancelAlloc)

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	p.cancel = append(p.cancel, cancelBrowser)

	infos, err := chromedp.Targets(browserCtx)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("cdp: listing targets: %w", err)
	}

	var tabCtx context.Context
	var cancelTab context.CancelFunc
	var navigate []chromedp.Action
	if info, ok := pickTarget(infos, opts.Host); ok {
		tabCtx, cancelTab = chromedp.NewContext(browserCtx, chromedp.WithTargetID(info.TargetID))
		p.detach = func() { detachTab(tabCtx) }
	} else {
		tabCtx, cancelTab = chromedp.NewContext(browserCtx)
		navigate = append(navigate, chromedp.Navigate("https://"+opts.Host+"/"))
	}
	p.cancel = append(p.cancel, cancelTab)

	actions := append([]chromedp.Action{
		runtime.AddBinding(bindingName),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := cdppage.AddScriptToEvaluateOnNewDocument(p.script).Do(ctx)
			return err
		}),
	}, navigate...)
	actions = append(actions, p.installAction())
	if err := chromedp.Run(tabCtx, actions...); err != nil {
		p.Close()
		if len(navigate) > 0 {
			return nil, fmt.Errorf("%w: %v", ErrNoTarget, err)
		}
		return nil, fmt.Errorf("cdp: preparing tab: %w", err)
	}

	p.tab = tabCtx
	p.target = chromedp.FromContext(tabCtx).Target
	return p, nil
}

// Close releases the browser connection. A tab the counter opened is
// closed; an existing tab is only detached from.
func (p *Page) Close() {
	if p.detach != nil {
		p.detach()
		p.detach = nil
	}
	for i := len(p.cancel) - 1; i >= 0; i-- {
		p.cancel[i]()
	}
	p.cancel = nil
}

// detachTab ends the DevTools session on the tab and unlinks the target
// from its chromedp context, whose cancellation would otherwise close it.
func detachTab(tabCtx context.Context) {
	c := chromedp.FromContext(tabCtx)
	if c == nil || c.Target == nil || c.Browser == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := target.DetachFromTarget().WithSessionID(c.Target.SessionID).Do(cdp.WithExecutor(ctx, c.Browser)); err != nil {
		log.Printf("cdp: detaching from tab: %v", err)
	}
	c.Target = nil
}

func (p *Page) installAction() chromedp.Action {
	var ok bool
	return chromedp.Evaluate(p.script, &ok)
}

// exec binds ctx to the tab so cdproto commands issued under it reach the
// page while still honoring the caller's deadline.
func (p *Page) exec(ctx context.Context) context.Context {
	return cdp.WithExecutor(ctx, p.target)
}

type reply struct {
	OK    bool   `json:"ok"`
	Value any    `json:"value"`
	Err   string `json:"err"`
}

func callExpr(method string, args []any) (string, error) {
	if args == nil {
		args = []any{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("window." + registryName + " ? window." + registryName + ".call(")
	b.WriteString(strconv.Quote(method))
	b.WriteString(", ")
	b.Write(raw)
	b.WriteString(") : {ok: false, err: ")
	b.WriteString(strconv.Quote(errUninstalled))
	b.WriteString("}")
	return b.String(), nil
}

func (p *Page) call(ctx context.Context, method string, args ...any) (any, error) {
	if p.tab == nil || p.tab.Err() != nil {
		return nil, page.ErrDetached
	}
	expr, err := callExpr(method, args)
	if err != nil {
		return nil, fmt.Errorf("cdp: %s: %w", method, err)
	}
	for attempt := 0; ; attempt++ {
		var r reply
		if err := chromedp.Evaluate(expr, &r).Do(p.exec(ctx)); err != nil {
			return nil, fmt.Errorf("cdp: %s: %w", method, err)
		}
		if r.OK {
			return r.Value, nil
		}
		if r.Err == errUninstalled && attempt == 0 {
			if err := p.installAction().Do(p.exec(ctx)); err != nil {
				return nil, fmt.Errorf("cdp: reinstalling page script: %w", err)
			}
			continue
		}
		return nil, replyError(method, r.Err)
	}
}

func replyError(method, msg string) error {
	if msg == "detached" {
		return page.ErrDetached
	}
	return fmt.Errorf("cdp: %s: %s", method, msg)
}

// Location implements page.Page.
func (p *Page) Location(ctx context.Context) (string, error) {
	v, err := p.call(ctx, "location")
	if err != nil {
		return "", err
	}
	s, _ := v.(string)
	return s, nil
}

// QueryAll implements page.Scope for the whole document.
func (p *Page) QueryAll(ctx context.Context, selector string) ([]page.Element, error) {
	return p.queryAll(ctx, 0, selector)
}

func (p *Page) queryAll(ctx context.Context, id int64, selector string) ([]page.Element, error) {
	v, err := p.call(ctx, "all", id, selector)
	if err != nil {
		return nil, err
	}
	ids := toIDs(v)
	els := make([]page.Element, 0, len(ids))
	for _, id := range ids {
		els = append(els, &element{p: p, id: id})
	}
	return els, nil
}

// toIDs converts a decoded JSON array of numbers.
func toIDs(v any) []int64 {
	list, _ := v.([]any)
	out := make([]int64, 0, len(list))
	for _, x := range list {
		if f, ok := x.(float64); ok {
			out = append(out, int64(f))
		}
	}
	return out
}

// Triggers implements page.Watcher. Actions arriving while the consumer
// is busy are dropped.
func (p *Page) Triggers(ctx context.Context) (<-chan page.Trigger, error) {
	if p.tab == nil {
		return nil, page.ErrDetached
	}
	ch := make(chan page.Trigger, 16)
	var (
		mu     sync.Mutex
		closed bool
	)
	listenCtx, cancel := context.WithCancel(p.tab)
	chromedp.ListenTarget(listenCtx, func(ev any) {
		e, ok := ev.(*runtime.EventBindingCalled)
		if !ok || e.Name != bindingName {
			return
		}
		kind, ok := parseTriggerKind(e.Payload)
		if !ok {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- page.Trigger{Kind: kind}:
		default:
			log.Printf("cdp: dropping %s trigger, consumer busy", kind)
		}
	})
	go func() {
		select {
		case <-ctx.Done():
		case <-p.tab.Done():
		}
		cancel()
		mu.Lock()
		closed = true
		close(ch)
		mu.Unlock()
	}()
	return ch, nil
}

func parseTriggerKind(payload string) (page.TriggerKind, bool) {
	switch k := page.TriggerKind(payload); k {
	case page.TriggerSend, page.TriggerRegenerate, page.TriggerSave, page.TriggerEnter:
		return k, true
	}
	return "", false
}

// pickTarget returns the first page target whose URL is on host.
func pickTarget(infos []*target.Info, host string) (*target.Info, bool) {
	for _, info := range infos {
		if info == nil || info.Type != "page" {
			continue
		}
		u, err := url.Parse(info.URL)
		if err != nil {
			continue
		}
		h := u.Hostname()
		if h == host || strings.HasSuffix(h, "."+host) {
			return info, true
		}
	}
	return nil, false
}
