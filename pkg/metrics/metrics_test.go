package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_CounterLabels(t *testing.T) {
	r := NewRegistry()
	r.Inc("ingestion_incidents", map[string]string{"source": "rss_edu", "group": "rss"})
	r.Inc("ingestion_incidents", map[string]string{"group": "rss", "source": "rss_edu"})
	r.Inc("ingestion_incidents", map[string]string{"source": "other", "group": "rss"})

	// Label order must not split the series.
	got := r.Counter("ingestion_incidents", map[string]string{"source": "rss_edu", "group": "rss"})
	assert.Equal(t, 2.0, got)
}

func TestRegistry_Histogram(t *testing.T) {
	r := NewRegistry()
	r.Observe("enrichment_duration_seconds", nil, 2)
	r.Observe("enrichment_duration_seconds", nil, 6)
	r.Observe("enrichment_duration_seconds", nil, 4)

	_, _, hists := r.Snapshot()
	h := hists["enrichment_duration_seconds"]
	assert.Equal(t, int64(3), h.Count)
	assert.Equal(t, 12.0, h.Sum)
	assert.Equal(t, 2.0, h.Min)
	assert.Equal(t, 6.0, h.Max)
	assert.Equal(t, 4.0, h.Avg)
}

func TestRegistry_Gauge(t *testing.T) {
	r := NewRegistry()
	r.Set("unenriched_incidents", nil, 41)
	r.Set("unenriched_incidents", nil, 17)
	assert.Equal(t, 17.0, r.Gauge("unenriched_incidents", nil))
}
