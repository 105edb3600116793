package enrich

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduthreat/sentinel/pkg/llm"
	"github.com/eduthreat/sentinel/pkg/metrics"
	"github.com/eduthreat/sentinel/pkg/model"
	"github.com/eduthreat/sentinel/pkg/store"
)

type stubGateway struct {
	respond func(user string) (string, error)
	calls   int
}

func (g *stubGateway) Call(ctx context.Context, system, user string, schema map[string]any) (string, error) {
	g.calls++
	return g.respond(user)
}

func openEnrichStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func seedIncident(t *testing.T, st *store.Store, urls ...string) *model.Incident {
	t.Helper()
	inc := &model.Incident{
		IncidentID:       model.IncidentID("test_source", urls[0]),
		Source:           "test_source",
		SourceEventID:    urls[0],
		UniversityName:   "Example State University",
		VictimRawName:    "Example State University",
		DatePrecision:    model.PrecisionUnknown,
		Status:           model.StatusSuspected,
		SourceConfidence: model.ConfidenceMedium,
		AllURLs:          urls,
	}
	require.NoError(t, st.InsertIncident(context.Background(), inc))
	return inc
}

func seedArticle(t *testing.T, st *store.Store, incidentID, url, content string) *model.Article {
	t.Helper()
	a := &model.Article{
		IncidentID:      incidentID,
		URL:             url,
		Title:           "Cyber attack reported",
		Content:         content,
		FetchSuccessful: true,
		ContentLength:   len(content),
	}
	require.NoError(t, st.SaveArticle(context.Background(), a))
	return a
}

func minimalResponse(summary string) string {
	return fmt.Sprintf(`{"is_edu_cyber_incident": true, "enriched_summary": %q}`, summary)
}

const richResponse = `{
	"is_edu_cyber_incident": true,
	"enriched_summary": "LockBit ransomware attack on Example State University.",
	"institution_name": "Example State University",
	"institution_type": "university_public",
	"country": "United States",
	"incident_severity": "high",
	"incident_date": "2024-05-12",
	"attack_category": "ransomware",
	"attack_vector": "vpn_exploitation",
	"ransomware_family": "lockbit",
	"was_ransom_demanded": true,
	"ransom_amount": 4750000,
	"data_exfiltrated": true,
	"data_categories": ["student_pii"],
	"systems_affected": ["email_system", "file_servers"]
}`

func longText(s string) string {
	return s + strings.Repeat(" additional reporting details", 10)
}

func TestEnrichIncident_SingleArticle(t *testing.T) {
	st := openEnrichStore(t)
	inc := seedIncident(t, st, "https://news.example.com/a")
	art := seedArticle(t, st, inc.IncidentID, inc.AllURLs[0], longText("ransomware at a university"))

	gw := &stubGateway{respond: func(string) (string, error) { return richResponse, nil }}
	e := New(gw, st, metrics.NewRegistry(), Options{})

	out, err := e.EnrichIncident(context.Background(), inc, []*model.Article{art})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeEnriched, out.Kind)
	assert.Equal(t, art.URL, out.PrimaryURL)
	assert.Greater(t, out.Coverage, 5)

	stored, err := st.GetIncident(context.Background(), inc.IncidentID)
	require.NoError(t, err)
	assert.True(t, stored.LLMEnriched)
	assert.Equal(t, art.URL, stored.PrimaryURL)
	assert.Equal(t, "2024-05-12", stored.IncidentDate)
	assert.Equal(t, "United States", stored.Country)

	flat, err := st.GetFlat(context.Background(), inc.IncidentID)
	require.NoError(t, err)
	assert.Equal(t, "lockbit", flat.RansomwareFamily)
	require.NotNil(t, flat.RansomAmount)
	assert.Equal(t, 4750000.0, *flat.RansomAmount)
}

func TestEnrichIncident_MultiArticlePicksHighestCoverage(t *testing.T) {
	st := openEnrichStore(t)
	inc := seedIncident(t, st, "https://a.example.com/1", "https://b.example.com/2")
	thin := seedArticle(t, st, inc.IncidentID, inc.AllURLs[0], longText("brief mention of an attack"))
	rich := seedArticle(t, st, inc.IncidentID, inc.AllURLs[1], longText("detailed incident report"))

	gw := &stubGateway{respond: func(user string) (string, error) {
		if strings.Contains(user, rich.URL) {
			return richResponse, nil
		}
		return minimalResponse("brief summary of the attack"), nil
	}}
	e := New(gw, st, metrics.NewRegistry(), Options{})

	out, err := e.EnrichIncident(context.Background(), inc, []*model.Article{thin, rich})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeEnriched, out.Kind)
	assert.Equal(t, rich.URL, out.PrimaryURL)
	assert.Equal(t, 2, gw.calls)

	// Only the primary article survives the transaction.
	articles, err := st.GetArticles(context.Background(), inc.IncidentID)
	require.NoError(t, err)
	require.Len(t, articles, 1)
	assert.Equal(t, rich.URL, articles[0].URL)
	assert.True(t, articles[0].IsPrimary)
}

func TestEnrichIncident_NoValidArticles(t *testing.T) {
	st := openEnrichStore(t)
	inc := seedIncident(t, st, "https://a.example.com/1")
	failed := &model.Article{
		IncidentID:      inc.IncidentID,
		URL:             inc.AllURLs[0],
		FetchSuccessful: false,
		ErrorMessage:    "bot wall",
	}

	gw := &stubGateway{respond: func(string) (string, error) { return "", nil }}
	e := New(gw, st, metrics.NewRegistry(), Options{})

	out, err := e.EnrichIncident(context.Background(), inc, []*model.Article{failed})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeNoValidArticles, out.Kind)
	assert.Zero(t, gw.calls)

	stored, err := st.GetIncident(context.Background(), inc.IncidentID)
	require.NoError(t, err)
	assert.True(t, stored.LLMEnriched)
	assert.Contains(t, stored.Notes, "LLM_ENRICHMENT_SKIPPED: no valid articles")
}

func TestEnrichIncident_NotEducationRelated(t *testing.T) {
	st := openEnrichStore(t)
	inc := seedIncident(t, st, "https://a.example.com/1")
	art := seedArticle(t, st, inc.IncidentID, inc.AllURLs[0], longText("hospital ransomware coverage"))

	gw := &stubGateway{respond: func(string) (string, error) {
		return `{
			"is_edu_cyber_incident": false,
			"enriched_summary": "Ransomware at a regional retail chain.",
			"education_relevance": {"is_education_related": false, "reasoning": "The affected entity is a retail chain."}
		}`, nil
	}}
	e := New(gw, st, metrics.NewRegistry(), Options{SkipIfNotEducation: true})

	out, err := e.EnrichIncident(context.Background(), inc, []*model.Article{art})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeNotEducation, out.Kind)
	assert.Contains(t, out.Reasoning, "retail chain")

	stored, err := st.GetIncident(context.Background(), inc.IncidentID)
	require.NoError(t, err)
	assert.True(t, stored.LLMEnriched)
	// The marker carries the model's reasoning directly.
	assert.Contains(t, stored.Notes, "LLM_ENRICHMENT_SKIPPED: The affected entity is a retail chain.")

	// No enrichment record was written.
	n, err := st.CountFlat(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEnrichIncident_KeepsEnrichmentFromNewerSchema(t *testing.T) {
	st := openEnrichStore(t)
	inc := seedIncident(t, st, "https://a.example.com/1")
	art := seedArticle(t, st, inc.IncidentID, inc.AllURLs[0], longText("university ransomware report"))

	// An enrichment written under a future schema major is already stored.
	prior := store.SaveEnrichmentParams{
		IncidentID: inc.IncidentID,
		FullRecord: `{"is_edu_cyber_incident": true, "enriched_summary": "future record"}`,
		Version:    "99.0.0",
		Flat:       BuildFlat(inc.IncidentID, &Record{IsEduCyberIncident: true, EnrichedSummary: "future record"}),
		Summary:    "future record",
	}
	require.NoError(t, st.SaveEnrichment(context.Background(), prior))

	gw := &stubGateway{respond: func(string) (string, error) { return richResponse, nil }}
	reg := metrics.NewRegistry()
	e := New(gw, st, reg, Options{})

	out, err := e.EnrichIncident(context.Background(), inc, []*model.Article{art})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeNewerSchema, out.Kind)
	assert.Zero(t, gw.calls)
	assert.Equal(t, 1.0, reg.Counter("enrichment_skipped", map[string]string{"reason": "newer_schema"}))

	v, err := st.GetEnrichmentVersion(context.Background(), inc.IncidentID)
	require.NoError(t, err)
	assert.Equal(t, "99.0.0", v)

	flat, err := st.GetFlat(context.Background(), inc.IncidentID)
	require.NoError(t, err)
	assert.Equal(t, "future record", flat.EnrichedSummary)
	assert.Empty(t, flat.RansomwareFamily)
}

func TestEnrichIncident_RateLimitPropagates(t *testing.T) {
	st := openEnrichStore(t)
	inc := seedIncident(t, st, "https://a.example.com/1")
	art := seedArticle(t, st, inc.IncidentID, inc.AllURLs[0], longText("some article text"))

	gw := &stubGateway{respond: func(string) (string, error) {
		return "", fmt.Errorf("give up: %w", llm.ErrRateLimited)
	}}
	e := New(gw, st, metrics.NewRegistry(), Options{})

	_, err := e.EnrichIncident(context.Background(), inc, []*model.Article{art})
	assert.ErrorIs(t, err, llm.ErrRateLimited)

	stored, err := st.GetIncident(context.Background(), inc.IncidentID)
	require.NoError(t, err)
	assert.False(t, stored.LLMEnriched)
}

func TestEnrichIncident_ParseFailureLeavesUnenriched(t *testing.T) {
	st := openEnrichStore(t)
	inc := seedIncident(t, st, "https://a.example.com/1")
	art := seedArticle(t, st, inc.IncidentID, inc.AllURLs[0], longText("some article text"))

	gw := &stubGateway{respond: func(string) (string, error) {
		return "sorry, I cannot produce JSON today", nil
	}}
	reg := metrics.NewRegistry()
	e := New(gw, st, reg, Options{})

	out, err := e.EnrichIncident(context.Background(), inc, []*model.Article{art})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeFailed, out.Kind)
	assert.Error(t, out.Err)
	assert.Equal(t, 1.0, reg.Counter("enrichment_parse_failures", nil))

	stored, err := st.GetIncident(context.Background(), inc.IncidentID)
	require.NoError(t, err)
	assert.False(t, stored.LLMEnriched)
}

func TestBuildFlat(t *testing.T) {
	demanded := true
	amount := 2000000.0
	rec := &Record{
		IsEduCyberIncident: true,
		EnrichedSummary:    "summary",
		InstitutionName:    "Example College",
		AttackCategory:     "ransomware",
		RansomwareFamily:   "akira",
		WasRansomDemanded:  &demanded,
		RansomAmount:       &amount,
		DataCategories:     []string{"student_pii", "health_records"},
		SystemsAffected:    []string{"email_system"},
		MitreAttackTechniques: []MitreTechnique{
			{TechniqueID: "T1486", TechniqueName: "Data Encrypted for Impact", Tactic: "impact"},
		},
		Timeline: []TimelineEvent{
			{Date: "2024-01-01", EventDescription: "initial access", EventType: "initial_compromise"},
		},
		IOCs: &IOCs{Domains: []string{"evil.example"}, IPAddresses: []string{"203.0.113.7"}},
	}
	f := BuildFlat("inc_1", rec)
	assert.Equal(t, "inc_1", f.IncidentID)
	assert.Equal(t, "student_pii; health_records", f.DataCategories)
	assert.Equal(t, 1, f.SystemsAffectedCount)
	assert.Equal(t, 1, f.MitreTechniquesCount)
	assert.Equal(t, 1, f.TimelineEventsCount)
	assert.Equal(t, 2, f.IOCCount)
	assert.Contains(t, f.MitreTechniquesJSON, "T1486")
	require.NotNil(t, f.WasRansomDemanded)
	assert.True(t, *f.WasRansomDemanded)
}
