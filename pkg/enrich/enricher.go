package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eduthreat/sentinel/pkg/country"
	"github.com/eduthreat/sentinel/pkg/enrich/schema"
	"github.com/eduthreat/sentinel/pkg/llm"
	"github.com/eduthreat/sentinel/pkg/metrics"
	"github.com/eduthreat/sentinel/pkg/model"
	"github.com/eduthreat/sentinel/pkg/store"
)

// Gateway is the LLM call surface the enricher depends on.
type Gateway interface {
	Call(ctx context.Context, system, user string, schema map[string]any) (string, error)
}

// Options tunes one enrichment pass.
type Options struct {
	// SkipIfNotEducation marks incidents the model classifies as unrelated
	// to education as skipped instead of enriching them.
	SkipIfNotEducation bool
	// RateLimitDelay is the courtesy pause between LLM calls.
	RateLimitDelay time.Duration
}

// Enricher turns one incident plus its prefetched articles into a stored
// enrichment record.
type Enricher struct {
	gateway Gateway
	store   *store.Store
	reg     *metrics.Registry
	logger  *slog.Logger
	opts    Options
	sleep   func(time.Duration)
}

// New creates an enricher.
func New(gateway Gateway, st *store.Store, reg *metrics.Registry, opts Options) *Enricher {
	return &Enricher{
		gateway: gateway,
		store:   st,
		reg:     reg,
		logger:  slog.Default().With("component", "enricher"),
		opts:    opts,
		sleep:   time.Sleep,
	}
}

// articleResult is one per-article extraction attempt.
type articleResult struct {
	article    *model.Article
	record     *Record
	normalized map[string]any
	raw        string
	coverage   int
}

// EnrichIncident runs the full per-incident workflow. A returned error
// means the pass should stop (rate limit or storage failure); per-article
// model failures are absorbed into the outcome instead.
func (e *Enricher) EnrichIncident(ctx context.Context, inc *model.Incident, articles []*model.Article) (*model.EnrichmentOutcome, error) {
	existing, err := e.store.GetEnrichmentVersion(ctx, inc.IncidentID)
	if err != nil {
		return nil, err
	}
	if !store.ShouldUpgrade(existing, schema.Version) {
		e.logger.Info("keeping enrichment from a newer schema major",
			"incident", inc.IncidentID, "existing", existing, "candidate", schema.Version)
		e.reg.Inc("enrichment_skipped", map[string]string{"reason": "newer_schema"})
		return &model.EnrichmentOutcome{Kind: model.OutcomeNewerSchema, IncidentID: inc.IncidentID}, nil
	}

	usable := make([]*model.Article, 0, len(articles))
	for _, a := range articles {
		if a.Usable() {
			usable = append(usable, a)
		}
	}
	if len(usable) == 0 {
		if err := e.store.MarkEnrichmentSkipped(ctx, inc.IncidentID, "no valid articles"); err != nil {
			return nil, err
		}
		e.reg.Inc("enrichment_skipped", map[string]string{"reason": "no_valid_articles"})
		return &model.EnrichmentOutcome{Kind: model.OutcomeNoValidArticles, IncidentID: inc.IncidentID}, nil
	}

	var results []*articleResult
	for i, article := range usable {
		if i > 0 && e.opts.RateLimitDelay > 0 {
			e.sleep(e.opts.RateLimitDelay)
		}
		res, err := e.enrichArticle(ctx, inc, article)
		if err != nil {
			if errors.Is(err, llm.ErrRateLimited) || ctx.Err() != nil {
				return nil, err
			}
			e.logger.Warn("article enrichment failed", "incident", inc.IncidentID, "url", article.URL, "error", err)
			e.reg.Inc("enrichment_article_failures", nil)
			continue
		}
		results = append(results, res)
	}

	if len(results) == 0 {
		e.reg.Inc("enrichment_failed", nil)
		return &model.EnrichmentOutcome{
			Kind:       model.OutcomeFailed,
			IncidentID: inc.IncidentID,
			Err:        fmt.Errorf("all %d articles failed enrichment", len(usable)),
		}, nil
	}

	best := results[0]
	for _, r := range results[1:] {
		if r.coverage > best.coverage {
			best = r
		}
	}

	if e.opts.SkipIfNotEducation && noneEducationRelated(results) {
		reasoning := educationReasoning(best.record)
		if err := e.store.MarkEnrichmentSkipped(ctx, inc.IncidentID, reasoning); err != nil {
			return nil, err
		}
		e.reg.Inc("enrichment_skipped", map[string]string{"reason": "not_education_related"})
		return &model.EnrichmentOutcome{
			Kind:       model.OutcomeNotEducation,
			IncidentID: inc.IncidentID,
			Reasoning:  reasoning,
		}, nil
	}

	if err := e.persist(ctx, inc, best); err != nil {
		return nil, err
	}
	e.reg.Inc("enrichment_enriched", nil)
	return &model.EnrichmentOutcome{
		Kind:       model.OutcomeEnriched,
		IncidentID: inc.IncidentID,
		PrimaryURL: best.article.URL,
		Coverage:   best.coverage,
	}, nil
}

func (e *Enricher) enrichArticle(ctx context.Context, inc *model.Incident, article *model.Article) (*articleResult, error) {
	start := time.Now()
	raw, err := e.gateway.Call(ctx, systemPrompt, BuildUserPrompt(inc, article), schema.Build())
	e.reg.Observe("enrichment_llm_seconds", nil, time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	rec, normalized, err := Parse(raw)
	if err != nil {
		e.reg.Inc("enrichment_parse_failures", nil)
		return nil, err
	}
	return &articleResult{
		article:    article,
		record:     rec,
		normalized: normalized,
		raw:        raw,
		coverage:   CoverageScore(normalized),
	}, nil
}

// noneEducationRelated is true only when every successful result denies
// education relevance.
func noneEducationRelated(results []*articleResult) bool {
	for _, r := range results {
		rel := r.record.EducationRelevance
		if rel != nil && rel.IsEducationRelated != nil {
			if *rel.IsEducationRelated {
				return false
			}
			continue
		}
		if r.record.IsEduCyberIncident {
			return false
		}
	}
	return true
}

func educationReasoning(rec *Record) string {
	if rec.EducationRelevance != nil && rec.EducationRelevance.Reasoning != "" {
		return rec.EducationRelevance.Reasoning
	}
	return "model classified the incident as not education related"
}

func (e *Enricher) persist(ctx context.Context, inc *model.Incident, best *articleResult) error {
	fullRecord, err := json.Marshal(best.normalized)
	if err != nil {
		return fmt.Errorf("marshal enrichment record: %w", err)
	}
	hash, err := ContentHash(fullRecord)
	if err != nil {
		return err
	}

	rec := best.record
	params := store.SaveEnrichmentParams{
		IncidentID:  inc.IncidentID,
		FullRecord:  string(fullRecord),
		RawResponse: best.raw,
		Version:     schema.Version,
		ContentHash: hash,
		Flat:        BuildFlat(inc.IncidentID, rec),
		PrimaryURL:  best.article.URL,
		Summary:     rec.EnrichedSummary,
	}
	if len(rec.Timeline) > 0 {
		params.TimelineJSON = toJSON(rec.Timeline)
	}
	if len(rec.MitreAttackTechniques) > 0 {
		params.MitreJSON = toJSON(rec.MitreAttackTechniques)
	}
	if dyn := attackDynamics(rec); dyn != "" {
		params.DynamicsJSON = dyn
	}

	// Corrections: fill incident fields the feed did not know.
	if inc.IncidentDate == "" && rec.IncidentDate != "" {
		params.IncidentDate = rec.IncidentDate
		params.DatePrecision = model.DatePrecision(rec.IncidentDatePrecision)
	}
	if inc.Country == "" && rec.Country != "" {
		params.Country = country.Normalize(rec.Country)
	}

	return e.store.SaveEnrichment(ctx, params)
}

// attackDynamics condenses how the attack unfolded into one JSON object
// for the incidents table.
func attackDynamics(rec *Record) string {
	dyn := map[string]any{}
	if rec.AttackCategory != "" {
		dyn["attack_category"] = rec.AttackCategory
	}
	if rec.AttackVector != "" {
		dyn["attack_vector"] = rec.AttackVector
	}
	if len(rec.AttackChain) > 0 {
		dyn["attack_chain"] = rec.AttackChain
	}
	if rec.InitialAccessDescription != "" {
		dyn["initial_access"] = rec.InitialAccessDescription
	}
	if rec.RansomwareFamily != "" {
		dyn["ransomware_family"] = rec.RansomwareFamily
	}
	if len(dyn) == 0 {
		return ""
	}
	return toJSON(dyn)
}
