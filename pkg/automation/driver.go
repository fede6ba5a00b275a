package automation

import "context"

// PageDriver is the minimal surface the state machine needs from a live
// browser page. The playwright implementation is the only production driver;
// tests substitute fakes.
type PageDriver interface {
	// Navigate loads the given URL and waits for the page to settle.
	Navigate(ctx context.Context, url string) error

	// CurrentURL reports the page's current location.
	CurrentURL() string

	// Exists reports whether at least one element matches the selector.
	// Invalid selectors report false rather than failing the delivery.
	Exists(ctx context.Context, selector string) (bool, error)

	// BodyText returns the page's visible body text, used for advisory
	// login-marker checks.
	BodyText(ctx context.Context) (string, error)

	// Fill sets an input's value programmatically.
	Fill(ctx context.Context, selector, text string) error

	// Type simulates per-key typing, for editors that ignore programmatic
	// value changes.
	Type(ctx context.Context, selector, text string) error

	// DispatchInputChanged fires an input event on the element so reactive
	// frameworks notice the new value.
	DispatchInputChanged(ctx context.Context, selector string) error

	// Click clicks the first element matching the selector.
	Click(ctx context.Context, selector string) error
}
