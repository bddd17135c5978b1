package exporter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lugia19/claude-counter/internal/page/html"
	"github.com/lugia19/claude-counter/internal/scrape"
)

var sample = []scrape.Message{
	{Role: scrape.RoleUser, Content: "What is 2+2?"},
	{Role: scrape.RoleAssistant, Content: "4 <b>&</b>"},
}

func TestRenderText(t *testing.T) {
	got, err := Render(sample, Text)
	if err != nil {
		t.Fatal(err)
	}
	want := "[User]\nWhat is 2+2?\n\n[Assistant]\n4 <b>&</b>\n"
	if string(got) != want {
		t.Errorf("Render(txt) = %q, want %q", got, want)
	}
}

func TestRenderJSONL(t *testing.T) {
	got, err := Render(sample, JSONL)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"role":"user","content":"What is 2+2?"}` + "\n" + `{"role":"assistant","content":"4 <b>&</b>"}`
	if string(got) != want {
		t.Errorf("Render(jsonl) =\n%s\nwant\n%s", got, want)
	}

	sc := bufio.NewScanner(bytes.NewReader(got))
	lines := 0
	for sc.Scan() {
		var obj map[string]any
		if err := json.Unmarshal(sc.Bytes(), &obj); err != nil {
			t.Fatalf("line %d: %v", lines, err)
		}
		if len(obj) != 2 || obj["role"] == nil || obj["content"] == nil {
			t.Errorf("line %d fields = %v, want exactly role and content", lines, obj)
		}
		lines++
	}
	if lines != len(sample) {
		t.Errorf("lines = %d, want %d", lines, len(sample))
	}
}

func TestRenderEmpty(t *testing.T) {
	for _, f := range Formats {
		got, err := Render(nil, f)
		if err != nil {
			t.Errorf("Render(nil, %s) error: %v", f, err)
		}
		if len(got) != 0 {
			t.Errorf("Render(nil, %s) = %q, want empty", f, got)
		}
	}
}

func TestRenderUnsupported(t *testing.T) {
	if _, err := Render(sample, Format("csv")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
		err  bool
	}{
		{"txt", Text, false},
		{"JSONL", JSONL, false},
		{" jsonl ", JSONL, false},
		{"md", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.err || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
		if err != nil && !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("ParseFormat(%q) err = %v, want ErrUnsupportedFormat", tt.in, err)
		}
	}
}

func TestFilename(t *testing.T) {
	got, err := Filename("", "abc-123", JSONL)
	if err != nil || got != "Claude_export_abc-123.jsonl" {
		t.Errorf("Filename = %q, %v", got, err)
	}
	got, _ = Filename("chat", "x", Text)
	if got != "chat_x.txt" {
		t.Errorf("Filename with prefix = %q", got)
	}
	if _, err := Filename("", "", Text); !errors.Is(err, ErrNoActiveConversation) {
		t.Errorf("err = %v, want ErrNoActiveConversation", err)
	}
}

func snapshotSource(t *testing.T, loc, body string) Source {
	t.Helper()
	p, err := html.Parse(strings.NewReader("<html><body>"+body+"</body></html>"), loc)
	if err != nil {
		t.Fatal(err)
	}
	return scrape.New(p)
}

func TestExportWritesFile(t *testing.T) {
	dir := t.TempDir()
	src := snapshotSource(t, "/chat/conv-9",
		`<div data-testid="user-message">hi</div><div class="font-claude-message">hello</div>`)

	res, err := Export(context.Background(), src, Options{Format: Text, Dir: dir})
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(dir, "Claude_export_conv-9.txt")
	if res.Path != want || res.Messages != 2 {
		t.Errorf("result = %+v", res)
	}
	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "[User]\nhi\n\n[Assistant]\nhello\n" {
		t.Errorf("file = %q", data)
	}
}

func TestExportNormalizesFormat(t *testing.T) {
	dir := t.TempDir()
	src := snapshotSource(t, "/chat/conv-3", `<div data-testid="user-message">hi</div>`)

	res, err := Export(context.Background(), src, Options{Format: Format(" JSONL "), Dir: dir})
	if err != nil {
		t.Fatal(err)
	}
	if res.Filename != "Claude_export_conv-3.jsonl" {
		t.Errorf("Filename = %q", res.Filename)
	}
	data, err := os.ReadFile(res.Path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"role":"user","content":"hi"}` {
		t.Errorf("file = %q", data)
	}
}

func TestExportNoConversation(t *testing.T) {
	dir := t.TempDir()
	src := snapshotSource(t, "/new", `<div data-testid="user-message">hi</div>`)

	_, err := Export(context.Background(), src, Options{Format: JSONL, Dir: dir})
	if !errors.Is(err, ErrNoActiveConversation) {
		t.Fatalf("err = %v, want ErrNoActiveConversation", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("export dir has %d files, want none", len(entries))
	}
}

func TestExportStdoutEmpty(t *testing.T) {
	var out bytes.Buffer
	src := snapshotSource(t, "/chat/empty", `<p>no turns yet</p>`)

	res, err := Export(context.Background(), src, Options{Format: JSONL, Dir: "-", Stdout: &out})
	if err != nil {
		t.Fatal(err)
	}
	if out.Len() != 0 || res.Messages != 0 || res.Path != "" {
		t.Errorf("stdout = %q, result = %+v; want empty", out.String(), res)
	}
	if res.Filename != "Claude_export_empty.jsonl" {
		t.Errorf("Filename = %q", res.Filename)
	}
}
