package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/chromedp/chromedp"
)

// consentSelectors are clicked best-effort to dismiss cookie banners and
// consent dialogs before content extraction.
var consentSelectors = []string{
	`button#onetrust-accept-btn-handler`,
	`button[aria-label="Accept all"]`,
	`button[aria-label="Accept cookies"]`,
	`button.fc-cta-consent`,
	`button[mode="primary"]`,
	`.qc-cmp2-summary-buttons button[mode="primary"]`,
	`#didomi-notice-agree-button`,
	`button.cky-btn-accept`,
}

// overlaySelectors are removed from the DOM when present (ad and paywall
// overlays that hide article text).
var overlaySelectors = []string{
	`.modal-backdrop`, `.overlay`, `.ad-overlay`, `.newsletter-popup`, `#gdpr-banner`,
}

// stealthScript hides the usual automation tells before any page script
// runs.
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', {get: () => undefined});
Object.defineProperty(navigator, 'languages', {get: () => ['en-US', 'en']});
Object.defineProperty(navigator, 'plugins', {get: () => [1, 2, 3, 4, 5]});
window.chrome = window.chrome || { runtime: {} };
`

// ChromeBrowser renders pages with chromedp, applying stealth settings,
// consent handling, and small human-like interactions.
type ChromeBrowser struct {
	loadTimeout time.Duration
	logger      *slog.Logger
	rng         *rand.Rand
}

// NewChromeBrowser creates a browser renderer with the given per-page load
// timeout.
func NewChromeBrowser(loadTimeout time.Duration) *ChromeBrowser {
	return &ChromeBrowser{
		loadTimeout: loadTimeout,
		logger:      slog.Default().With("component", "browser"),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Render loads a URL and returns the rendered HTML. Three attempts: a
// headless pass, a headless pass with a longer wait, and finally a visible
// browser (some bot walls only pass a headful client).
func (b *ChromeBrowser) Render(ctx context.Context, url string, waitSelector string) (string, error) {
	attempts := []struct {
		headless bool
		wait     time.Duration
	}{
		{headless: true, wait: 2 * time.Second},
		{headless: true, wait: 8 * time.Second},
		{headless: false, wait: 8 * time.Second},
	}

	var lastErr error
	for i, attempt := range attempts {
		html, err := b.renderOnce(ctx, url, waitSelector, attempt.headless, attempt.wait)
		if err == nil {
			return html, nil
		}
		lastErr = err
		b.logger.Debug("browser attempt failed", "url", url, "attempt", i+1, "headless", attempt.headless, "error", err)
	}
	return "", fmt.Errorf("browser render %s: %w", url, lastErr)
}

func (b *ChromeBrowser) renderOnce(ctx context.Context, url, waitSelector string, headless bool, settle time.Duration) (string, error) {
	width := 1200 + b.rng.Intn(400)
	height := 800 + b.rng.Intn(300)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-infobars", true),
		chromedp.WindowSize(width, height),
		chromedp.UserAgent(userAgents[b.rng.Intn(len(userAgents))]),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()
	timeoutCtx, cancelTimeout := context.WithTimeout(browserCtx, b.loadTimeout)
	defer cancelTimeout()

	var html string
	actions := []chromedp.Action{
		chromedp.Evaluate(stealthScript, nil),
		chromedp.Navigate(url),
		chromedp.Sleep(settle),
	}
	for _, sel := range consentSelectors {
		sel := sel
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			// Best effort with a short deadline per selector.
			clickCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
			defer cancel()
			_ = chromedp.Click(sel, chromedp.ByQuery).Do(clickCtx)
			return nil
		}))
	}
	actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, sel := range overlaySelectors {
			script := fmt.Sprintf(`document.querySelectorAll(%q).forEach(e => e.remove());`, sel)
			_ = chromedp.Evaluate(script, nil).Do(ctx)
		}
		return nil
	}))
	// Small human-like movement and scroll before reading the DOM.
	actions = append(actions,
		chromedp.MouseClickXY(float64(100+b.rng.Intn(200)), float64(100+b.rng.Intn(200))),
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight / 3);`, nil),
		chromedp.Sleep(300*time.Millisecond),
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight / 2);`, nil),
	)
	if waitSelector != "" {
		actions = append(actions, chromedp.WaitVisible(waitSelector, chromedp.ByQuery))
	}
	actions = append(actions, chromedp.OuterHTML("html", &html))

	if err := chromedp.Run(timeoutCtx, actions...); err != nil {
		return "", err
	}
	return html, nil
}
