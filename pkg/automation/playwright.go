package automation

import (
	"context"
	"fmt"

	"github.com/playwright-community/playwright-go"
)

// playwrightDriver adapts a playwright page to the PageDriver interface.
// Playwright's own per-call timeouts bound each operation; the context is
// consulted between calls by the state machine.
type playwrightDriver struct {
	page playwright.Page
}

// NewPlaywrightDriver wraps a live playwright page as a PageDriver.
func NewPlaywrightDriver(page playwright.Page) PageDriver {
	return &playwrightDriver{page: page}
}

func (d *playwrightDriver) Navigate(_ context.Context, url string) error {
	waitUntil := playwright.WaitUntilStateDomcontentloaded
	if _, err := d.page.Goto(url, playwright.PageGotoOptions{WaitUntil: waitUntil}); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

func (d *playwrightDriver) CurrentURL() string {
	return d.page.URL()
}

func (d *playwrightDriver) Exists(_ context.Context, selector string) (bool, error) {
	// Invalid selectors surface as query errors; they match nothing.
	element, err := d.page.QuerySelector(selector)
	if err != nil {
		return false, nil
	}
	return element != nil, nil
}

func (d *playwrightDriver) BodyText(_ context.Context) (string, error) {
	body, err := d.page.QuerySelector("body")
	if err != nil || body == nil {
		return "", fmt.Errorf("no body element found")
	}
	text, err := body.TextContent()
	if err != nil {
		return "", fmt.Errorf("text extraction failed: %w", err)
	}
	return text, nil
}

func (d *playwrightDriver) Fill(_ context.Context, selector, text string) error {
	if err := d.page.Fill(selector, text); err != nil {
		return fmt.Errorf("fill failed: %w", err)
	}
	return nil
}

func (d *playwrightDriver) Type(_ context.Context, selector, text string) error {
	if err := d.page.Type(selector, text); err != nil {
		return fmt.Errorf("type failed: %w", err)
	}
	return nil
}

func (d *playwrightDriver) DispatchInputChanged(_ context.Context, selector string) error {
	return d.page.DispatchEvent(selector, "input", nil)
}

func (d *playwrightDriver) Click(_ context.Context, selector string) error {
	if err := d.page.Click(selector); err != nil {
		return fmt.Errorf("click failed: %w", err)
	}
	return nil
}
