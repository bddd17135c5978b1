// Package exporter serializes visible conversation turns to a file.
package exporter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/lugia19/claude-counter/internal/scrape"
)

var (
	// ErrNoActiveConversation is returned when there is no conversation id
	// to name the export after.
	ErrNoActiveConversation = errors.New("exporter: no active conversation")
	// ErrUnsupportedFormat is returned for any format other than txt or jsonl.
	ErrUnsupportedFormat = errors.New("exporter: unsupported format")
)

// DefaultPrefix starts every export filename.
const DefaultPrefix = "Claude_export"

// Format is an export encoding; its value is also the file extension.
type Format string

const (
	Text  Format = "txt"
	JSONL Format = "jsonl"
)

// Formats lists the supported formats in menu order.
var Formats = []Format{Text, JSONL}

// Label is the menu text for f.
func (f Format) Label() string {
	switch f {
	case Text:
		return "Text (.txt)"
	case JSONL:
		return "JSONL (.jsonl)"
	}
	return string(f)
}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case Text, JSONL:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// Render encodes messages. Zero messages render as an empty body.
func Render(msgs []scrape.Message, f Format) ([]byte, error) {
	parts := make([]string, 0, len(msgs))
	switch f {
	case Text:
		for _, m := range msgs {
			parts = append(parts, "["+roleLabel(m.Role)+"]\n"+m.Content+"\n")
		}
	case JSONL:
		for _, m := range msgs {
			line, err := encodeLine(m)
			if err != nil {
				return nil, err
			}
			parts = append(parts, line)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, string(f))
	}
	return []byte(strings.Join(parts, "\n")), nil
}

func roleLabel(r scrape.Role) string {
	if r == scrape.RoleUser {
		return "User"
	}
	return "Assistant"
}

// encodeLine writes one object without HTML escaping, the way a browser's
// JSON.stringify would.
func encodeLine(m scrape.Message) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m); err != nil {
		return "", fmt.Errorf("encoding message: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// Filename returns "<prefix>_<conversationID>.<format>".
func Filename(prefix, conversationID string, f Format) (string, error) {
	if conversationID == "" {
		return "", ErrNoActiveConversation
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return prefix + "_" + conversationID + "." + string(f), nil
}

// Source is what an export reads from.
type Source interface {
	ConversationID(ctx context.Context) (string, error)
	Messages(ctx context.Context) ([]scrape.Message, error)
}

// Options controls Export.
type Options struct {
	Format Format
	Prefix string
	// Dir is the output directory; "-" writes to Stdout instead.
	Dir    string
	Stdout io.Writer
}

// Result describes a finished export.
type Result struct {
	Path     string // empty when written to stdout
	Filename string
	Messages int
	Bytes    int
}

// Export reads the open conversation from src and writes it out. Without
// a conversation nothing is written.
func Export(ctx context.Context, src Source, opts Options) (Result, error) {
	f, err := ParseFormat(string(opts.Format))
	if err != nil {
		return Result{}, err
	}
	opts.Format = f
	conv, err := src.ConversationID(ctx)
	if errors.Is(err, scrape.ErrNoActiveConversation) {
		return Result{}, ErrNoActiveConversation
	}
	if err != nil {
		return Result{}, err
	}
	name, err := Filename(opts.Prefix, conv, opts.Format)
	if err != nil {
		return Result{}, err
	}

	msgs, err := src.Messages(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("reading messages: %w", err)
	}
	body, err := Render(msgs, opts.Format)
	if err != nil {
		return Result{}, err
	}

	res := Result{Filename: name, Messages: len(msgs), Bytes: len(body)}
	if opts.Dir == "-" {
		w := opts.Stdout
		if w == nil {
			w = os.Stdout
		}
		_, err := w.Write(body)
		return res, err
	}

	dir := opts.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return Result{}, fmt.Errorf("creating export dir: %w", err)
	}
	res.Path = filepath.Join(dir, name)
	if err := os.WriteFile(res.Path, body, 0o600); err != nil {
		return Result{}, fmt.Errorf("writing export: %w", err)
	}
	return res, nil
}
