package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const availabilityEndpoint = "https://archive.org/wayback/available"

// Archive looks up and fetches Wayback Machine snapshots for pages that
// are gone or walled off.
type Archive struct {
	client *http.Client
	logger *slog.Logger
}

func newArchive(client *http.Client, logger *slog.Logger) *Archive {
	return &Archive{client: client, logger: logger.With("component", "archive")}
}

type availabilityResponse struct {
	ArchivedSnapshots struct {
		Closest struct {
			Available bool   `json:"available"`
			URL       string `json:"url"`
			Timestamp string `json:"timestamp"`
		} `json:"closest"`
	} `json:"archived_snapshots"`
}

// Fetch resolves the closest snapshot for rawURL and returns its HTML with
// the archival toolbar stripped. A lookup miss returns ErrNoSnapshot.
func (a *Archive) Fetch(ctx context.Context, rawURL string) (*Document, error) {
	snapURL, err := a.lookup(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, snapURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build archive request: %w", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: snapURL, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	cleaned, err := stripArchiveChrome(body)
	if err != nil {
		// Strip failure is not fatal; the raw snapshot still has the text.
		cleaned = body
	}
	return &Document{URL: rawURL, FinalURL: snapURL, StatusCode: 200, Body: cleaned, Via: "archive"}, nil
}

func (a *Archive) lookup(ctx context.Context, rawURL string) (string, error) {
	q := url.Values{"url": {rawURL}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, availabilityEndpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("build availability request: %w", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("availability lookup: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{URL: availabilityEndpoint, Status: resp.StatusCode}
	}

	var avail availabilityResponse
	if err := json.NewDecoder(resp.Body).Decode(&avail); err != nil {
		return "", fmt.Errorf("decode availability response: %w", err)
	}
	closest := avail.ArchivedSnapshots.Closest
	if !closest.Available || closest.URL == "" {
		return "", ErrNoSnapshot
	}
	// Normalize to https; the API sometimes returns http snapshot URLs.
	return strings.Replace(closest.URL, "http://", "https://", 1), nil
}

// stripArchiveChrome removes the Wayback toolbar and injected assets from
// a snapshot.
func stripArchiveChrome(body []byte) ([]byte, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	doc.Find(`#wm-ipp-base, #wm-ipp, #wm-ipp-print, #donato`).Remove()
	doc.Find(`script[src*="archive.org"], link[href*="archive.org"]`).Remove()
	html, err := doc.Html()
	if err != nil {
		return nil, err
	}
	return []byte(html), nil
}
