package sources

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/eduthreat/sentinel/pkg/config"
	"github.com/eduthreat/sentinel/pkg/fetch"
	"github.com/eduthreat/sentinel/pkg/model"
)

// captchaMarkers are text fragments that identify a challenge page.
var captchaMarkers = []string{
	"captcha", "verify you are human", "are you a robot",
	"unusual traffic", "cf-challenge", "checking your browser",
}

// captchaSelectors are DOM elements that identify a challenge page.
var captchaSelectors = []string{
	"#challenge-form", ".g-recaptcha", ".h-captcha", "#cf-challenge-running",
}

// keywordAdapter runs a site search per configured keyword and walks the
// result pages.
type keywordAdapter struct {
	spec    config.SourceSpec
	fetcher *fetch.Fetcher
}

func (a *keywordAdapter) Name() string       { return a.spec.Name }
func (a *keywordAdapter) Group() model.Group { return model.Group(a.spec.Group) }

func (a *keywordAdapter) Collect(ctx context.Context, opts CollectOptions, sink Sink) error {
	budget := a.spec.MaxPages
	if opts.MaxPages > 0 {
		budget = opts.MaxPages
	}
	if budget <= 0 {
		budget = 1
	}

	var walkErr error
	for _, keyword := range a.spec.Keywords {
		if err := a.walkKeyword(ctx, keyword, budget, opts, sink); err != nil {
			// A CAPTCHA kills the whole walk for this target; anything else
			// is per-keyword and the rest still run.
			if isFatal(err) {
				return fmt.Errorf("source %s keyword %q: %w", a.spec.Name, keyword, err)
			}
			walkErr = err
		}
	}
	if walkErr != nil {
		return fmt.Errorf("source %s: last keyword error: %w", a.spec.Name, walkErr)
	}
	return nil
}

func isFatal(err error) bool {
	return errors.Is(err, ErrCaptcha) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (a *keywordAdapter) walkKeyword(ctx context.Context, keyword string, budget int, opts CollectOptions, sink Sink) error {
	for page := 1; page <= budget; page++ {
		pageURL := fmt.Sprintf(a.spec.SearchURL, url.QueryEscape(keyword), page)

		fopts := fetch.DefaultOptions()
		if a.spec.RequiresBrowser {
			fopts.WaitSelector = a.spec.Selectors.Article
		}
		doc, err := a.fetcher.Get(ctx, pageURL, fopts)
		if err != nil {
			if page == 1 {
				return err
			}
			return nil
		}

		parsed, err := goquery.NewDocumentFromReader(bytes.NewReader(doc.Body))
		if err != nil {
			return fmt.Errorf("parse search page: %w", err)
		}

		if captchaPage(parsed, doc.Body) {
			return fmt.Errorf("%w: %s", ErrCaptcha, pageURL)
		}

		incidents := parseListing(parsed, a.spec, pageURL)
		if len(incidents) == 0 {
			return nil
		}
		if err := sink(incidents); err != nil {
			return err
		}

		if a.spec.Selectors.NextPage != "" && parsed.Find(a.spec.Selectors.NextPage).Length() == 0 {
			return nil
		}
	}
	return nil
}

// captchaPage detects challenge interstitials by marker text and known
// widget selectors.
func captchaPage(doc *goquery.Document, body []byte) bool {
	for _, sel := range captchaSelectors {
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}
	lower := strings.ToLower(string(body))
	for _, marker := range captchaMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
