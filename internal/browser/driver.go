// File: internal/browser/driver.go
// Description: Chromedp-backed implementation of the automation driver. It
// owns the browser process lifecycle: allocator options, a launch probe, one
// long-lived tab for the run, and deterministic teardown.

package browser

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot-cli/internal/config"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

// Driver drives a single headless Chrome tab over the DevTools protocol. It
// implements schemas.Driver. All automation for a run shares the one tab, so
// page state (cart contents, form values) persists across steps.
type Driver struct {
	logger *zap.Logger
	cfg    config.BrowserConfig

	// allocatorCtx manages the browser process; tabCtx is the run's tab.
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
	tabCtx          context.Context
	tabCancel       context.CancelFunc
}

// NewDriver launches the browser process and opens the tab the run will use.
// The launch is probed with a navigation to about:blank so a broken Chrome
// install fails fast instead of on the first real step.
func NewDriver(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Driver, error) {
	d := &Driver{
		logger: logger.Named("browser"),
		cfg:    cfg,
	}

	opts := buildAllocatorOptions(cfg)
	d.allocatorCtx, d.allocatorCancel = chromedp.NewExecAllocator(ctx, opts...)
	d.tabCtx, d.tabCancel = chromedp.NewContext(d.allocatorCtx)

	launchTimeout := cfg.LaunchTimeout
	if launchTimeout <= 0 {
		launchTimeout = 30 * time.Second
	}
	probeCtx, cancel := context.WithTimeout(d.tabCtx, launchTimeout)
	defer cancel()

	if err := chromedp.Run(probeCtx, chromedp.Navigate("about:blank")); err != nil {
		d.allocatorCancel()
		return nil, fmt.Errorf("browser failed to start or respond: %w", err)
	}

	d.logger.Info("Browser launched and responsive",
		zap.Bool("headless", cfg.Headless),
	)
	return d, nil
}

// buildAllocatorOptions assembles the launch flags. The defaults are filtered
// to drop the enable-automation banner, and container-safe flags are added on
// Linux.
func buildAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	var opts []chromedp.ExecAllocatorOption
	opts = append(opts, chromedp.DefaultExecAllocatorOptions[:]...)
	// Overriding the flag to false drops it from the launch args, since the
	// exec allocator stores flags in a map and omits false booleans.
	opts = append(opts, chromedp.Flag("enable-automation", false))

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("ignore-certificate-errors", cfg.IgnoreTLSErrors),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-gpu", cfg.Headless),
		chromedp.UserAgent(userAgent),
	)

	// Custom arguments from the config file, "--flag" or "--flag=value".
	for _, arg := range cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		flagName := strings.TrimPrefix(parts[0], "--")
		if len(parts) == 2 {
			opts = append(opts, chromedp.Flag(flagName, parts[1]))
		} else {
			opts = append(opts, chromedp.Flag(flagName, true))
		}
	}

	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-setuid-sandbox", true),
		)
	}

	return opts
}

// run executes chromedp actions on the driver's tab while honoring the
// caller's context: cancellation or deadline on ctx aborts the tab-bound run.
func (d *Driver) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(d.tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		// Prefer the caller's error when it caused the abort.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

// Navigate loads the URL and waits for the document body to become ready.
func (d *Driver) Navigate(ctx context.Context, url string) error {
	navTimeout := d.cfg.NavigationTimeout
	if navTimeout <= 0 {
		navTimeout = 30 * time.Second
	}
	navCtx, cancel := context.WithTimeout(ctx, navTimeout)
	defer cancel()

	d.logger.Debug("Navigating", zap.String("url", url))
	return d.run(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// Screenshot captures the current viewport as a PNG.
func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := d.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("screenshot capture failed: %w", err)
	}
	return buf, nil
}

// Click clicks the single element the locator identifies. Locators are XPath
// expressions produced by the resolver.
func (d *Driver) Click(ctx context.Context, locator string) error {
	return d.run(ctx, chromedp.Click(locator, chromedp.BySearch))
}

// ClickAt dispatches a raw left-button press/release pair at absolute pixel
// coordinates. Used when no locator strategy matched and only the bounding
// box is known.
func (d *Driver) ClickAt(ctx context.Context, x, y float64) error {
	return d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		press := input.DispatchMouseEvent(input.MousePressed, x, y).
			WithButton(input.Left).
			WithButtons(1).
			WithClickCount(1)
		if err := press.Do(ctx); err != nil {
			return fmt.Errorf("mouse press failed: %w", err)
		}
		release := input.DispatchMouseEvent(input.MouseReleased, x, y).
			WithButton(input.Left).
			WithClickCount(1)
		if err := release.Do(ctx); err != nil {
			return fmt.Errorf("mouse release failed: %w", err)
		}
		return nil
	}))
}

// Fill clears the element and types the text into it.
func (d *Driver) Fill(ctx context.Context, locator, text string) error {
	return d.run(ctx,
		chromedp.WaitVisible(locator, chromedp.BySearch),
		chromedp.Clear(locator, chromedp.BySearch),
		chromedp.SendKeys(locator, text, chromedp.BySearch),
	)
}

// Wait pauses for the given number of milliseconds or until ctx is done.
func (d *Driver) Wait(ctx context.Context, milliseconds int) error {
	if milliseconds <= 0 {
		return nil
	}
	timer := time.NewTimer(time.Duration(milliseconds) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Scroll dispatches a mouse wheel event with the given pixel deltas.
func (d *Driver) Scroll(ctx context.Context, dx, dy float64) error {
	return d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return input.DispatchMouseEvent(input.MouseWheel, 0, 0).
			WithDeltaX(dx).
			WithDeltaY(dy).
			Do(ctx)
	}))
}

// Viewport reports the live page dimensions in CSS pixels. It is queried per
// call, never cached, so coordinate clicks track window resizes and zoom.
func (d *Driver) Viewport(ctx context.Context) (int64, int64, error) {
	var width, height int64
	err := d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, _, _, _, cssVisualViewport, _, err := page.GetLayoutMetrics().Do(ctx)
		if err != nil {
			return err
		}
		if cssVisualViewport == nil {
			return fmt.Errorf("layout metrics returned no visual viewport")
		}
		width = int64(cssVisualViewport.ClientWidth)
		height = int64(cssVisualViewport.ClientHeight)
		return nil
	}))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read viewport metrics: %w", err)
	}
	return width, height, nil
}

// MatchCount reports how many nodes the locator currently matches. AtLeast(0)
// keeps chromedp from blocking until a match appears.
func (d *Driver) MatchCount(ctx context.Context, locator string) (int, error) {
	var nodes []*cdp.Node
	err := d.run(ctx, chromedp.Nodes(locator, &nodes, chromedp.BySearch, chromedp.AtLeast(0)))
	if err != nil {
		return 0, fmt.Errorf("locator query failed: %w", err)
	}
	return len(nodes), nil
}

// Close tears the tab and the browser process down. It is safe to call with
// an already-cancelled parent context; teardown then proceeds without waiting
// for the process to confirm exit.
func (d *Driver) Close(ctx context.Context) error {
	if d.tabCancel != nil {
		d.tabCancel()
	}
	if d.allocatorCancel != nil {
		d.allocatorCancel()
		select {
		case <-d.allocatorCtx.Done():
		case <-ctx.Done():
			d.logger.Warn("Browser teardown deadline exceeded", zap.Error(ctx.Err()))
			return ctx.Err()
		}
	}
	d.logger.Info("Browser closed")
	return nil
}
