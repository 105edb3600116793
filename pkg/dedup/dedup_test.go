package dedup

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduthreat/sentinel/pkg/metrics"
	"github.com/eduthreat/sentinel/pkg/model"
	"github.com/eduthreat/sentinel/pkg/store"
)

func TestNormalizeInstitution(t *testing.T) {
	cases := map[string]string{
		"The Example University System":  "example university",
		"Example University":             "example university",
		"EXAMPLE  UNIVERSITY":            "example university",
		"St. Mary's College":             "st mary s college",
		"Springfield Unified School District": "springfield school district",
		"":                               "",
		"  The  ":                        "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeInstitution(in), "input %q", in)
	}
}

func openDedupStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// seedEnriched inserts an enriched incident whose coverage is the number of
// populated fields in data.
func seedEnriched(t *testing.T, st *store.Store, id, institution, date string, fields int) {
	t.Helper()
	ctx := context.Background()
	inc := &model.Incident{
		IncidentID:       id,
		Source:           "test_source",
		SourceEventID:    id,
		UniversityName:   institution,
		VictimRawName:    institution,
		IncidentDate:     date,
		DatePrecision:    model.PrecisionDay,
		Status:           model.StatusSuspected,
		SourceConfidence: model.ConfidenceMedium,
	}
	if date == "" {
		inc.DatePrecision = model.PrecisionUnknown
	}
	require.NoError(t, st.InsertIncident(ctx, inc))

	data := `{"is_edu_cyber_incident": true, "enriched_summary": "attack"`
	for i := 0; i < fields; i++ {
		data += fmt.Sprintf(`, "field_%d": "value"`, i)
	}
	data += `}`

	require.NoError(t, st.SaveEnrichment(ctx, store.SaveEnrichmentParams{
		IncidentID: id,
		FullRecord: data,
		Version:    "2.1.0",
		Flat: &model.FlatEnrichment{
			IncidentID:         id,
			IsEduCyberIncident: true,
			InstitutionName:    institution,
			EnrichedSummary:    "attack",
		},
	}))
}

func TestRun_RemovesDuplicatesKeepingRichest(t *testing.T) {
	st := openDedupStore(t)
	ctx := context.Background()

	seedEnriched(t, st, "src_a_1", "Example University", "2024-11-01", 2)
	seedEnriched(t, st, "src_b_1", "The Example University", "2024-11-05", 8)
	seedEnriched(t, st, "src_c_1", "example university", "2024-11-10", 4)
	// Outside the 14-day chain from the cluster above.
	seedEnriched(t, st, "src_a_2", "Example University", "2025-02-01", 1)
	// Different institution entirely.
	seedEnriched(t, st, "src_a_3", "Other College", "2024-11-01", 3)

	reg := metrics.NewRegistry()
	res, err := New(st, reg).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Examined)
	assert.Equal(t, 1, res.Groups)
	assert.Equal(t, 2, res.Removed)
	assert.Equal(t, 2.0, reg.Counter("dedup_removed", nil))

	remaining, err := st.ListEnriched(ctx)
	require.NoError(t, err)
	ids := make([]string, 0, len(remaining))
	for _, r := range remaining {
		ids = append(ids, r.IncidentID)
	}
	assert.ElementsMatch(t, []string{"src_b_1", "src_a_2", "src_a_3"}, ids)
}

func TestRun_DryRunDeletesNothing(t *testing.T) {
	st := openDedupStore(t)
	ctx := context.Background()

	seedEnriched(t, st, "src_a_1", "Example University", "2024-11-01", 2)
	seedEnriched(t, st, "src_b_1", "Example University", "2024-11-02", 5)

	d := New(st, metrics.NewRegistry())
	d.DryRun = true
	res, err := d.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Groups)
	assert.Equal(t, 1, res.Removed)

	remaining, err := st.ListEnriched(ctx)
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
}

func TestRun_UndatedJoinsFirstCluster(t *testing.T) {
	st := openDedupStore(t)
	ctx := context.Background()

	seedEnriched(t, st, "src_a_1", "Example University", "2024-11-01", 6)
	seedEnriched(t, st, "src_b_1", "Example University", "", 2)

	res, err := New(st, metrics.NewRegistry()).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Removed)

	remaining, err := st.ListEnriched(ctx)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "src_a_1", remaining[0].IncidentID)
}

func TestSplitByWindow_ChainsAdjacentDates(t *testing.T) {
	cands := []candidate{
		{id: "a", date: parseDate("2024-01-01")},
		{id: "b", date: parseDate("2024-01-10")},
		{id: "c", date: parseDate("2024-01-20")},
		{id: "d", date: parseDate("2024-03-01")},
	}
	groups := splitByWindow(cands)
	require.Len(t, groups, 2)
	assert.Len(t, groups[0], 3)
	assert.Len(t, groups[1], 1)
}
