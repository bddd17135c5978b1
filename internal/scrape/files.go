package scrape

import (
	"context"
	"errors"

	"github.com/lugia19/claude-counter/internal/estimate"
	"github.com/lugia19/claude-counter/internal/locator"
	"github.com/lugia19/claude-counter/internal/page"
	"github.com/lugia19/claude-counter/internal/usage"
)

func (s *Scraper) sidebarPopulated(ctx context.Context, sidebar page.Element) bool {
	for _, sel := range s.Selectors.SidebarSections {
		if _, err := page.First(ctx, sidebar, sel); err == nil {
			return true
		}
	}
	return false
}

// EnsureSidebarOpen makes sure the conversation sidebar is showing its
// file sections, clicking its toggle if needed. It reports false when the
// sidebar cannot be brought up; file counting is then skipped.
func (s *Scraper) EnsureSidebarOpen(ctx context.Context) bool {
	if sidebar, err := page.First(ctx, s.Page, s.Selectors.SidebarContent); err == nil && s.sidebarPopulated(ctx, sidebar) {
		return true
	}

	button, err := page.First(ctx, s.Page, s.Selectors.SidebarButton)
	if err != nil {
		s.logf("sidebar button not found")
		return false
	}
	if err := button.Click(ctx); err != nil {
		s.logf("opening sidebar: %v", err)
		return false
	}

	_, err = locator.Poll(ctx, s.Policy, func(ctx context.Context) (struct{}, bool, error) {
		sidebar, err := page.First(ctx, s.Page, s.Selectors.SidebarContent)
		if err != nil {
			return struct{}{}, false, nil
		}
		visible, _ := sidebar.Visible(ctx)
		return struct{}{}, visible && s.sidebarPopulated(ctx, sidebar), nil
	})
	if err != nil {
		s.logf("sidebar did not load: %v", err)
		return false
	}
	if err := s.sleep(ctx, s.SidebarSettle); err != nil {
		return false
	}
	return true
}

// FileTokens sums project and content file sizes for the conversation.
// Anything that fails to render contributes zero.
func (s *Scraper) FileTokens(ctx context.Context, conversationID string) int64 {
	if !s.EnsureSidebarOpen(ctx) {
		return 0
	}
	return s.ProjectFileTokens(ctx, conversationID) + s.ContentFileTokens(ctx, conversationID)
}

// ProjectFileTokens measures every project file thumbnail in the sidebar.
func (s *Scraper) ProjectFileTokens(ctx context.Context, conversationID string) int64 {
	container, err := page.First(ctx, s.Page, s.Selectors.ProjectFilesContainer)
	if err != nil {
		return 0
	}
	buttons, err := container.QueryAll(ctx, s.Selectors.ProjectFile)
	if err != nil {
		s.logf("listing project files: %v", err)
		return 0
	}
	var total int64
	for _, b := range buttons {
		total += s.projectFile(ctx, conversationID, b)
	}
	return total
}

func (s *Scraper) projectFile(ctx context.Context, conversationID string, button page.Element) int64 {
	holder, err := button.Closest(ctx, s.Selectors.ProjectFileName)
	if err != nil {
		s.logf("project file container not found")
		return 0
	}
	name, ok, err := holder.Attr(ctx, "data-testid")
	if err != nil || !ok || name == "" {
		s.logf("project file name not found")
		return 0
	}
	if n, ok := s.cached(ctx, usage.ProjectFile, conversationID, name); ok {
		return n
	}

	if err := button.Click(ctx); err != nil {
		s.logf("opening project file %s: %v", name, err)
		return 0
	}
	modal, err := s.WaitFor(ctx, s.Page, s.Selectors.Modal)
	if err != nil {
		s.logf("project file %s: modal: %v", name, err)
		return 0
	}
	content, err := page.First(ctx, modal, s.Selectors.ModalContent)
	if err != nil {
		s.logf("project file %s: modal content not found", name)
		return 0
	}
	n := estimate.Tokens(page.TextOrEmpty(ctx, content))
	s.logf("project file %s: %d tokens", name, n)
	s.store(ctx, usage.ProjectFile, conversationID, name, n)

	if closeBtn, err := page.First(ctx, modal, s.Selectors.ModalClose); err == nil {
		if err := closeBtn.Click(ctx); err != nil {
			s.logf("closing project file %s: %v", name, err)
		}
	} else {
		s.logf("project file %s: close button not found", name)
	}
	return n
}

// ContentFileTokens measures every content file listed in the sidebar.
func (s *Scraper) ContentFileTokens(ctx context.Context, conversationID string) int64 {
	buttons, err := s.Page.QueryAll(ctx, s.Selectors.ContentFile)
	if err != nil {
		s.logf("listing content files: %v", err)
		return 0
	}
	var total int64
	for _, b := range buttons {
		total += s.contentFile(ctx, conversationID, b)
	}
	return total
}

func (s *Scraper) contentFile(ctx context.Context, conversationID string, button page.Element) int64 {
	label, err := page.First(ctx, button, s.Selectors.ContentFileName)
	if err != nil {
		s.logf("content file name not found")
		return 0
	}
	name := page.TextOrEmpty(ctx, label)
	if name == "" {
		s.logf("content file name not found")
		return 0
	}
	if n, ok := s.cached(ctx, usage.ContentFile, conversationID, name); ok {
		return n
	}

	if err := button.Click(ctx); err != nil {
		s.logf("opening content file %s: %v", name, err)
		return 0
	}
	view, err := s.WaitFor(ctx, s.Page, s.Selectors.FileViewContainer)
	if err != nil {
		s.logf("content file %s: file view: %v", name, err)
		return 0
	}
	content, err := page.First(ctx, view, s.Selectors.FileContent)
	if err != nil {
		s.logf("content file %s: content not found", name)
		return 0
	}
	n := estimate.Tokens(page.TextOrEmpty(ctx, content))
	s.logf("content file %s: %d tokens", name, n)
	s.store(ctx, usage.ContentFile, conversationID, name, n)

	if back, err := page.First(ctx, view, s.Selectors.BackButton); err == nil {
		if err := back.Click(ctx); err != nil {
			s.logf("leaving content file %s: %v", name, err)
		}
	}
	return n
}

func (s *Scraper) cached(ctx context.Context, kind usage.FileKind, conversationID, name string) (int64, bool) {
	if s.Files == nil {
		return 0, false
	}
	n, ok, err := s.Files.Get(ctx, kind, conversationID, name)
	if err != nil {
		s.logf("reading cached %s file %s: %v", kind, name, err)
		return 0, false
	}
	if ok {
		s.logf("%s file %s: %d tokens (cached)", kind, name, n)
	}
	return n, ok
}

func (s *Scraper) store(ctx context.Context, kind usage.FileKind, conversationID, name string, n int64) {
	if s.Files == nil {
		return
	}
	if err := s.Files.Put(ctx, kind, conversationID, name, n); err != nil && !errors.Is(err, context.Canceled) {
		s.logf("caching %s file %s: %v", kind, name, err)
	}
}
