package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/lugia19/claude-counter/internal/page"

	"github.com/chromedp/cdproto/target"
)

func TestScriptEmbedsHooks(t *testing.T) {
	h := Hooks{
		Send:       `button[aria-label="Send Message"]`,
		Save:       `button[type="submit"]`,
		Regenerate: `button:has(path[d="M1"])`,
		Prompts:    []string{`div[aria-label="Write your prompt to Claude"]`},
	}
	src, err := Script(h)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(src, hooksMarker) {
		t.Fatal("hooks marker left in script")
	}
	want, _ := json.Marshal(h)
	if !strings.Contains(src, string(want)) {
		t.Errorf("script does not embed hooks JSON %s", want)
	}
	for _, name := range []string{registryName, bindingName} {
		if !strings.Contains(src, name) {
			t.Errorf("script does not mention %s", name)
		}
	}
}

func TestScriptNilPrompts(t *testing.T) {
	src, err := Script(Hooks{})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(src, `"prompts":[]`) {
		t.Error("nil prompts should encode as an empty array")
	}
}

func TestCallExpr(t *testing.T) {
	got, err := callExpr("all", []any{int64(3), `a[href="x"]`})
	if err != nil {
		t.Fatal(err)
	}
	want := `window.__ccounter ? window.__ccounter.call("all", [3,"a[href=\"x\"]"]) : {ok: false, err: "uninstalled"}`
	if got != want {
		t.Errorf("callExpr =\n%s\nwant\n%s", got, want)
	}

	got, _ = callExpr("location", nil)
	if !strings.Contains(got, `.call("location", [])`) {
		t.Errorf("nil args should encode as [], got %s", got)
	}
}

func TestReplyError(t *testing.T) {
	if err := replyError("text", "detached"); !errors.Is(err, page.ErrDetached) {
		t.Errorf("detached reply = %v, want ErrDetached", err)
	}
	err := replyError("all", "SyntaxError: bad selector")
	if err == nil || !strings.Contains(err.Error(), "bad selector") {
		t.Errorf("replyError = %v", err)
	}
}

func TestToIDs(t *testing.T) {
	var v any
	if err := json.Unmarshal([]byte(`[1, 2, "x", 7]`), &v); err != nil {
		t.Fatal(err)
	}
	got := toIDs(v)
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 7 {
		t.Errorf("toIDs = %v, want [1 2 7]", got)
	}
	if len(toIDs(nil)) != 0 {
		t.Error("toIDs(nil) should be empty")
	}
}

func TestParseTriggerKind(t *testing.T) {
	tests := []struct {
		in   string
		want page.TriggerKind
		ok   bool
	}{
		{"send", page.TriggerSend, true},
		{"regenerate", page.TriggerRegenerate, true},
		{"save", page.TriggerSave, true},
		{"enter", page.TriggerEnter, true},
		{"scroll", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := parseTriggerKind(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("parseTriggerKind(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestPickTarget(t *testing.T) {
	infos := []*target.Info{
		{TargetID: "sw", Type: "service_worker", URL: "https://claude.ai/sw.js"},
		{TargetID: "other", Type: "page", URL: "https://example.com/claude.ai"},
		{TargetID: "chat", Type: "page", URL: "https://claude.ai/chat/abc"},
		{TargetID: "second", Type: "page", URL: "https://claude.ai/new"},
	}
	got, ok := pickTarget(infos, "claude.ai")
	if !ok || got.TargetID != "chat" {
		t.Errorf("pickTarget = %v, %v; want chat", got, ok)
	}

	sub := []*target.Info{{TargetID: "sub", Type: "page", URL: "https://www.claude.ai/"}}
	if got, ok := pickTarget(sub, "claude.ai"); !ok || got.TargetID != "sub" {
		t.Errorf("subdomain not matched: %v, %v", got, ok)
	}

	if _, ok := pickTarget(infos[:2], "claude.ai"); ok {
		t.Error("pickTarget matched a non-chat target")
	}
}

func TestCloseDetachesBeforeCancel(t *testing.T) {
	var order []string
	p := &Page{
		detach: func() { order = append(order, "detach") },
		cancel: []context.CancelFunc{
			func() { order = append(order, "browser") },
			func() { order = append(order, "tab") },
		},
	}
	p.Close()
	p.Close()

	want := []string{"detach", "tab", "browser"}
	if strings.Join(order, ",") != strings.Join(want, ",") {
		t.Errorf("close order = %v, want %v", order, want)
	}
}

func TestCloseOwnedTabSkipsDetach(t *testing.T) {
	canceled := 0
	p := &Page{cancel: []context.CancelFunc{func() { canceled++ }}}
	p.Close()
	if canceled != 1 {
		t.Errorf("cancel calls = %d, want 1", canceled)
	}
}

func TestDetachTabWithoutChromedpContext(t *testing.T) {
	// Must not panic on a context that never reached a browser.
	detachTab(context.Background())
}
