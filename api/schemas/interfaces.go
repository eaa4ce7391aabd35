package schemas

import (
	"context"
)

// -- Automation Driver Interface --

// Driver is the boundary to the browser-automation engine. Every method may
// suspend on I/O and may fail; callers are expected to convert failures into
// logged step errors rather than letting them escape a run.
type Driver interface {
	// Navigate loads the given URL and waits for the page to settle.
	Navigate(ctx context.Context, url string) error
	// Screenshot captures the current viewport as an encoded image.
	Screenshot(ctx context.Context) ([]byte, error)
	// Click clicks the single element identified by the locator.
	Click(ctx context.Context, locator string) error
	// ClickAt dispatches a click at absolute pixel coordinates.
	ClickAt(ctx context.Context, x, y float64) error
	// Fill clears and types text into the element identified by the locator.
	Fill(ctx context.Context, locator, text string) error
	// Wait pauses for the given number of milliseconds, honoring ctx.
	Wait(ctx context.Context, milliseconds int) error
	// Scroll scrolls the page by the given pixel deltas.
	Scroll(ctx context.Context, dx, dy float64) error
	// Viewport reports the live page dimensions in CSS pixels.
	Viewport(ctx context.Context) (width, height int64, err error)
	// MatchCount reports how many nodes the locator currently matches.
	MatchCount(ctx context.Context, locator string) (int, error)
	// Close releases the underlying browser session.
	Close(ctx context.Context) error
}

// -- Planning Oracle Interface --

// Oracle maps a (screenshot, goal) pair to recognized elements and a
// suggested action plan. Implementations must be total: any remote failure
// is recovered locally (deterministic fallback), never surfaced to callers.
type Oracle interface {
	Analyze(ctx context.Context, screenshot []byte, goal string) (Analysis, error)
}

// -- Locator Resolution Interface --

// Resolver turns an abstract element description into a concrete locator the
// driver understands. An empty locator with a nil error means no selector
// strategy matched and the caller should fall back to coordinates.
type Resolver interface {
	Resolve(ctx context.Context, element *UIElement) (locator string, err error)
}

// -- Voice Interface --

// Speaker is the best-effort voice output boundary. Absence of platform
// support degrades to a no-op without error.
type Speaker interface {
	Say(ctx context.Context, text string) error
}
