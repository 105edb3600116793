package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/eduthreat/sentinel/pkg/llm"
	"github.com/eduthreat/sentinel/pkg/metrics"
	"github.com/eduthreat/sentinel/pkg/model"
	"github.com/eduthreat/sentinel/pkg/store"
)

// ArticleFetcher pulls the text of one article URL. Implemented by
// extract.Extractor; stubbed in tests.
type ArticleFetcher interface {
	Extract(ctx context.Context, incidentID, rawURL string) *model.Article
}

// PassSummary tallies one phase-2 pass over the unenriched backlog.
type PassSummary struct {
	Processed int
	Enriched  int
	Skipped   int
	Failed    int
}

// Pipeline runs phase 2 end to end for a batch: fetch article text for
// every incident URL, then enrich from the collected articles.
type Pipeline struct {
	store     *store.Store
	extractor ArticleFetcher
	enricher  *Enricher
	reg       *metrics.Registry
	logger    *slog.Logger
}

func NewPipeline(st *store.Store, extractor ArticleFetcher, enricher *Enricher, reg *metrics.Registry) *Pipeline {
	return &Pipeline{
		store:     st,
		extractor: extractor,
		enricher:  enricher,
		reg:       reg,
		logger:    slog.Default().With("component", "pipeline"),
	}
}

// Run processes up to batchSize unenriched incidents. A rate-limited LLM
// aborts the whole pass so the backlog is retried later instead of burning
// through it with guaranteed failures; per-incident failures just count.
func (p *Pipeline) Run(ctx context.Context, batchSize int) (PassSummary, error) {
	sum, err := p.run(ctx, batchSize)
	status := "success"
	if err != nil {
		status = "error"
	}
	p.reg.Inc("enrichment_runs", map[string]string{"status": status})
	return sum, err
}

func (p *Pipeline) run(ctx context.Context, batchSize int) (PassSummary, error) {
	incidents, err := p.store.GetUnenrichedIncidents(ctx, batchSize)
	if err != nil {
		return PassSummary{}, fmt.Errorf("load backlog: %w", err)
	}
	p.logger.Info("enrichment pass starting", "backlog", len(incidents))

	var sum PassSummary
	for _, inc := range incidents {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		articles, err := p.articlesFor(ctx, inc)
		if err != nil {
			return sum, err
		}

		outcome, err := p.enricher.EnrichIncident(ctx, inc, articles)
		if err != nil {
			if errors.Is(err, llm.ErrRateLimited) {
				p.logger.Error("LLM rate limited, aborting pass",
					"incident", inc.IncidentID, "processed", sum.Processed)
				return sum, err
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return sum, err
			}
			sum.Processed++
			sum.Failed++
			p.logger.Error("enrichment failed", "incident", inc.IncidentID, "error", err)
			continue
		}

		sum.Processed++
		switch outcome.Kind {
		case model.OutcomeEnriched:
			sum.Enriched++
		case model.OutcomeFailed:
			sum.Failed++
		default:
			sum.Skipped++
		}
	}

	p.logger.Info("enrichment pass complete", "processed", sum.Processed,
		"enriched", sum.Enriched, "skipped", sum.Skipped, "failed", sum.Failed)
	return sum, nil
}

// articlesFor returns the stored articles for an incident, extracting them
// first when none have been fetched yet.
func (p *Pipeline) articlesFor(ctx context.Context, inc *model.Incident) ([]*model.Article, error) {
	articles, err := p.store.GetArticles(ctx, inc.IncidentID)
	if err != nil {
		return nil, fmt.Errorf("load articles %s: %w", inc.IncidentID, err)
	}
	if len(articles) > 0 {
		return articles, nil
	}

	for _, u := range inc.AllURLs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		a := p.extractor.Extract(ctx, inc.IncidentID, u)
		if err := p.store.SaveArticle(ctx, a); err != nil {
			return nil, fmt.Errorf("save article %s: %w", u, err)
		}
		articles = append(articles, a)
		if a.FetchSuccessful {
			p.reg.Inc("articles_fetched", nil)
		} else {
			p.reg.Inc("articles_failed", nil)
		}
	}
	return articles, nil
}
