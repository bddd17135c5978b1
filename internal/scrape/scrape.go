// Package scrape reads conversation state out of the rendered chat page:
// the conversation id, the selected model, the visible turns and the
// token size of attached files.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/lugia19/claude-counter/internal/estimate"
	"github.com/lugia19/claude-counter/internal/locator"
	"github.com/lugia19/claude-counter/internal/page"
	"github.com/lugia19/claude-counter/internal/usage"
)

// ErrNoActiveConversation is returned when the page is not showing a chat.
var ErrNoActiveConversation = errors.New("scrape: no active conversation")

var conversationPath = regexp.MustCompile(`/chat/([^/?]+)`)

// ConversationIDFromPath extracts the id from a location path.
func ConversationIDFromPath(path string) (string, bool) {
	m := conversationPath.FindStringSubmatch(path)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Role is the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one visible turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// DefaultSidebarSettle is how long the sidebar is given to finish its
// open animation once it reports content.
const DefaultSidebarSettle = 300 * time.Millisecond

// Scraper reads one page. The zero value is not usable; use New.
type Scraper struct {
	Page      page.Page
	Selectors Selectors
	Policy    locator.Policy
	// SidebarSettle is waited after the sidebar opens.
	SidebarSettle time.Duration
	// Files caches measured file sizes. Nil measures every file every pass.
	Files *usage.FileCache
	Log   *log.Logger
}

// New returns a scraper with default selectors and retry policy.
func New(p page.Page) *Scraper {
	return &Scraper{
		Page:          p,
		Selectors:     DefaultSelectors(),
		Policy:        locator.DefaultPolicy(),
		SidebarSettle: DefaultSidebarSettle,
		Log:           log.New(io.Discard, "", 0),
	}
}

// WithLogger returns a shallow copy of s that logs to l.
func (s *Scraper) WithLogger(l *log.Logger) *Scraper {
	c := *s
	c.Log = l
	return &c
}

func (s *Scraper) logf(format string, args ...any) {
	if s.Log != nil {
		s.Log.Printf(format, args...)
	}
}

func (s *Scraper) sleep(ctx context.Context, d time.Duration) error {
	if s.Policy.Sleep != nil {
		return s.Policy.Sleep(ctx, d)
	}
	return locator.Sleep(ctx, d)
}

// ConversationID returns the id of the open conversation.
func (s *Scraper) ConversationID(ctx context.Context) (string, error) {
	loc, err := s.Page.Location(ctx)
	if err != nil {
		return "", fmt.Errorf("reading location: %w", err)
	}
	id, ok := ConversationIDFromPath(loc)
	if !ok {
		return "", ErrNoActiveConversation
	}
	return id, nil
}

// CurrentModel returns the selected model's label, or usage.DefaultModel
// when the selector or its label is missing or blank.
func (s *Scraper) CurrentModel(ctx context.Context) string {
	sel, err := page.First(ctx, s.Page, s.Selectors.ModelSelector)
	if err != nil {
		return usage.DefaultModel
	}
	label, err := page.First(ctx, sel, s.Selectors.ModelLabel)
	if err != nil {
		return usage.DefaultModel
	}
	if text := strings.TrimSpace(page.TextOrEmpty(ctx, label)); text != "" {
		return text
	}
	return usage.DefaultModel
}

// Messages returns every rendered turn in document order. Each element
// matched by the union selector is classified by whether it matches the
// user selector.
func (s *Scraper) Messages(ctx context.Context) ([]Message, error) {
	els, err := s.Page.QueryAll(ctx, s.Selectors.MessageUnion())
	if err != nil {
		return nil, fmt.Errorf("scanning messages: %w", err)
	}
	msgs := make([]Message, 0, len(els))
	for _, el := range els {
		isUser, err := el.Matches(ctx, s.Selectors.UserMessage)
		if err != nil {
			if errors.Is(err, page.ErrDetached) {
				continue
			}
			return nil, fmt.Errorf("classifying message: %w", err)
		}
		text, err := el.Text(ctx)
		if err != nil {
			if errors.Is(err, page.ErrDetached) {
				continue
			}
			return nil, fmt.Errorf("reading message: %w", err)
		}
		role := RoleAssistant
		if isUser {
			role = RoleUser
		}
		msgs = append(msgs, Message{Role: role, Content: text})
	}
	return msgs, nil
}

// MessageTokens estimates the size of every visible turn.
func (s *Scraper) MessageTokens(ctx context.Context) (int64, error) {
	msgs, err := s.Messages(ctx)
	if err != nil {
		return 0, err
	}
	var total int64
	for i, m := range msgs {
		n := estimate.Tokens(m.Content)
		s.logf("%s message %d: %d tokens", m.Role, i, n)
		total += n
	}
	return total, nil
}

// WaitFor polls scope for selector under the scraper's retry policy and
// returns locator.ErrNotFound when the budget runs out.
func (s *Scraper) WaitFor(ctx context.Context, scope page.Scope, selector string) (page.Element, error) {
	return locator.Poll(ctx, s.Policy, func(ctx context.Context) (page.Element, bool, error) {
		el, err := page.First(ctx, scope, selector)
		if errors.Is(err, page.ErrNoElement) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, err
		}
		return el, true, nil
	})
}
