package sources

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/eduthreat/sentinel/pkg/config"
	"github.com/eduthreat/sentinel/pkg/extract"
	"github.com/eduthreat/sentinel/pkg/model"
)

// parseListing extracts incidents from one listing page using the catalog
// selectors. Blocks without a resolvable link are skipped.
func parseListing(doc *goquery.Document, spec config.SourceSpec, pageURL string) []*model.Incident {
	sel := spec.Selectors
	var out []*model.Incident

	doc.Find(sel.Article).Each(func(_ int, block *goquery.Selection) {
		title := strings.TrimSpace(block.Find(sel.Title).First().Text())
		href, _ := block.Find(sel.Link).First().Attr("href")
		link := resolveURL(pageURL, href)
		if title == "" || link == "" {
			return
		}

		inc := newIncident(spec, link)
		inc.Title = title
		inc.UniversityName = guessInstitution(title)
		inc.VictimRawName = title
		inc.AddURL(link)

		if sel.Subtitle != "" {
			inc.Subtitle = strings.TrimSpace(block.Find(sel.Subtitle).First().Text())
		}
		if sel.Country != "" {
			inc.Country = normalizeCountry(block.Find(sel.Country).First().Text())
		}
		if sel.Date != "" {
			if iso, ok := blockDate(block, sel.Date); ok {
				inc.SetIncidentDate(iso, model.PrecisionDay)
				if t, err := time.Parse("2006-01-02", iso); err == nil {
					inc.SourcePublished = t
				}
			}
		}
		out = append(out, inc)
	})
	return out
}

// blockDate reads a date from a selector, preferring the datetime
// attribute of time elements over text content.
func blockDate(block *goquery.Selection, selector string) (string, bool) {
	node := block.Find(selector).First()
	if dt, ok := node.Attr("datetime"); ok {
		if iso, ok := extract.NormalizeDate(dt); ok {
			return iso, true
		}
	}
	return extract.NormalizeDate(node.Text())
}
