// Package metrics provides the in-process metrics registry used across the
// pipeline: labeled counters, gauges, and histograms behind a single mutex,
// with a periodic structured-log summary instead of an external exporter.
package metrics

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// Registry holds all pipeline metrics. Contention is negligible: updates
// come from the single scheduler-driven job at a time.
type Registry struct {
	mu         sync.Mutex
	counters   map[string]float64
	gauges     map[string]float64
	histograms map[string]*histogram
	startedAt  time.Time
}

type histogram struct {
	count int64
	sum   float64
	min   float64
	max   float64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		counters:   make(map[string]float64),
		gauges:     make(map[string]float64),
		histograms: make(map[string]*histogram),
		startedAt:  time.Now(),
	}
}

// key renders "name{k1=v1,k2=v2}" with labels sorted for stable identity.
func key(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%s", k, labels[k])
	}
	b.WriteByte('}')
	return b.String()
}

// Inc increments a labeled counter by one.
func (r *Registry) Inc(name string, labels map[string]string) {
	r.Add(name, labels, 1)
}

// Add increments a labeled counter by delta.
func (r *Registry) Add(name string, labels map[string]string, delta float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[key(name, labels)] += delta
}

// Set records a gauge value.
func (r *Registry) Set(name string, labels map[string]string, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gauges[key(name, labels)] = value
}

// Observe records one histogram observation.
func (r *Registry) Observe(name string, labels map[string]string, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(name, labels)
	h := r.histograms[k]
	if h == nil {
		h = &histogram{min: value, max: value}
		r.histograms[k] = h
	}
	h.count++
	h.sum += value
	if value < h.min {
		h.min = value
	}
	if value > h.max {
		h.max = value
	}
}

// Counter returns the current value of a labeled counter.
func (r *Registry) Counter(name string, labels map[string]string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[key(name, labels)]
}

// Gauge returns the current value of a labeled gauge.
func (r *Registry) Gauge(name string, labels map[string]string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gauges[key(name, labels)]
}

// HistogramStat is the summarized view of one histogram series.
type HistogramStat struct {
	Count int64
	Sum   float64
	Min   float64
	Max   float64
	Avg   float64
}

// Snapshot returns a copy of every series for reporting.
func (r *Registry) Snapshot() (counters, gauges map[string]float64, hists map[string]HistogramStat) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counters = make(map[string]float64, len(r.counters))
	for k, v := range r.counters {
		counters[k] = v
	}
	gauges = make(map[string]float64, len(r.gauges))
	for k, v := range r.gauges {
		gauges[k] = v
	}
	hists = make(map[string]HistogramStat, len(r.histograms))
	for k, h := range r.histograms {
		stat := HistogramStat{Count: h.count, Sum: h.sum, Min: h.min, Max: h.max}
		if h.count > 0 {
			stat.Avg = h.sum / float64(h.count)
		}
		hists[k] = stat
	}
	return counters, gauges, hists
}

// LogSummary emits every series through the logger, sorted by name so the
// output is diffable between runs.
func (r *Registry) LogSummary(logger *slog.Logger) {
	counters, gauges, hists := r.Snapshot()

	names := make([]string, 0, len(counters))
	for k := range counters {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		logger.Info("metric", "type", "counter", "series", k, "value", counters[k])
	}

	names = names[:0]
	for k := range gauges {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		logger.Info("metric", "type", "gauge", "series", k, "value", gauges[k])
	}

	names = names[:0]
	for k := range hists {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		h := hists[k]
		logger.Info("metric", "type", "histogram", "series", k,
			"count", h.Count, "avg", h.Avg, "min", h.Min, "max", h.Max)
	}
	logger.Info("metrics summary complete", "uptime", time.Since(r.startedAt).Round(time.Second).String())
}
