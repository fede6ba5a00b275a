package tabagent

import (
	"context"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/pagerelay/pagerelay/pkg/extract"
	"github.com/pagerelay/pagerelay/pkg/logging"
	"github.com/pagerelay/pagerelay/pkg/storage"
	"github.com/pagerelay/pagerelay/pkg/types"
)

// Agent is one tab's worker. It owns the tab's page exclusively; nothing
// else touches it.
type Agent struct {
	tabID      int
	context    playwright.BrowserContext
	page       playwright.Page
	store      storage.Store
	registry   *extract.Registry
	log        *logging.Logger
	createdAt  time.Time
	lastUsedAt time.Time
}

// TabID returns the tab this agent serves.
func (a *Agent) TabID() int { return a.tabID }

// Page exposes the live page for automation deliveries against this tab.
func (a *Agent) Page() playwright.Page { return a.page }

// CurrentURL reports the page's current location.
func (a *Agent) CurrentURL() string { return a.page.URL() }

// Navigate loads a URL in the tab.
func (a *Agent) Navigate(url string) error {
	a.lastUsedAt = time.Now()

	waitUntil := playwright.WaitUntilStateDomcontentloaded
	if _, err := a.page.Goto(url, playwright.PageGotoOptions{WaitUntil: waitUntil}); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

// capture reads the rendered document and any active user selection.
func (a *Agent) capture() (extract.Page, error) {
	a.lastUsedAt = time.Now()

	html, err := a.page.Content()
	if err != nil {
		return extract.Page{}, fmt.Errorf("failed to read page content: %w", err)
	}

	// Selection is best effort: a failed evaluate just means no override.
	selection := ""
	if raw, err := a.page.Evaluate("() => window.getSelection().toString()"); err == nil {
		if s, ok := raw.(string); ok {
			selection = s
		}
	}

	return extract.Page{
		URL:       a.page.URL(),
		HTML:      html,
		Selection: selection,
	}, nil
}

// ExtractContent captures the tab, runs the matching strategy, and writes the
// record to the tab's content key. The record is the return value too, but
// the storage write is the delivery mechanism the coordinator polls on.
func (a *Agent) ExtractContent(ctx context.Context) (*types.ExtractedContent, error) {
	page, err := a.capture()
	if err != nil {
		// Keep the failure policy uniform: downstream gets a flagged
		// record, not a missing key.
		content := types.NewErrorContent(types.ContentTypeGeneral, a.page.URL(), err.Error())
		if storeErr := a.store.Set(storage.TabContentKey(a.tabID), content); storeErr != nil {
			return nil, fmt.Errorf("failed to store error record: %w", storeErr)
		}
		return content, nil
	}

	content := a.registry.Run(ctx, page)
	if content.Error {
		a.log.Warnf("tab %d: extraction degraded: %s", a.tabID, content.Message)
	} else {
		a.log.Infof("tab %d: extracted %s content from %s", a.tabID, content.ContentType, page.URL)
	}

	if err := a.store.Set(storage.TabContentKey(a.tabID), content); err != nil {
		return nil, fmt.Errorf("failed to store extracted content: %w", err)
	}
	return content, nil
}
