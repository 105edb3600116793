// Package dedup collapses enriched incidents that describe the same event:
// the same institution attacked within a narrow date window, reported by
// more than one source under different ids.
package dedup

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/eduthreat/sentinel/pkg/enrich"
	"github.com/eduthreat/sentinel/pkg/metrics"
	"github.com/eduthreat/sentinel/pkg/store"
)

// window is how far apart two incident dates may be and still describe the
// same event. Breach reporting commonly trails the attack by days.
const window = 14 * 24 * time.Hour

var (
	punctRe = regexp.MustCompile(`[^\w\s]`)
	spaceRe = regexp.MustCompile(`\s+`)
)

// stopWords are generic tokens that differ between sources naming the same
// institution ("Example University" vs "The Example University System").
var stopWords = map[string]bool{
	"the": true, "of": true, "at": true, "and": true,
	"system": true, "campus": true, "public": true,
	"unified": true, "independent": true, "consolidated": true,
}

// NormalizeInstitution canonicalizes an institution name for grouping:
// lowercase, punctuation stripped, stop words removed, whitespace collapsed.
func NormalizeInstitution(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = punctRe.ReplaceAllString(s, " ")
	words := spaceRe.Split(s, -1)
	kept := words[:0]
	for _, w := range words {
		if w == "" || stopWords[w] {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

// Result summarizes one dedup pass.
type Result struct {
	Groups   int // duplicate groups found
	Removed  int // incidents deleted
	Examined int
}

// Deduper runs the post-enrichment duplicate sweep.
type Deduper struct {
	store  *store.Store
	reg    *metrics.Registry
	logger *slog.Logger
	// DryRun reports what would be removed without deleting anything.
	DryRun bool
}

func New(st *store.Store, reg *metrics.Registry) *Deduper {
	return &Deduper{
		store:  st,
		reg:    reg,
		logger: slog.Default().With("component", "dedup"),
	}
}

type candidate struct {
	id       string
	date     time.Time
	coverage int
}

// Run finds groups of enriched incidents with the same normalized
// institution name and incident dates within the window, keeps the one
// with the richest enrichment, and deletes the rest.
func (d *Deduper) Run(ctx context.Context) (Result, error) {
	records, err := d.store.ListEnriched(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("dedup: %w", err)
	}

	byName := make(map[string][]candidate)
	for _, r := range records {
		name := NormalizeInstitution(r.InstitutionName)
		if name == "" {
			continue
		}
		byName[name] = append(byName[name], candidate{
			id:       r.IncidentID,
			date:     parseDate(r.IncidentDate),
			coverage: coverageOf(r.Data),
		})
	}

	res := Result{Examined: len(records)}
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for _, group := range splitByWindow(byName[name]) {
			if len(group) < 2 {
				continue
			}
			res.Groups++
			keep, drop := pickSurvivor(group)
			d.logger.Info("duplicate group",
				"institution", name, "keep", keep.id, "drop", len(drop))
			for _, c := range drop {
				if d.DryRun {
					res.Removed++
					continue
				}
				if err := d.store.DeleteIncident(ctx, c.id); err != nil {
					return res, fmt.Errorf("dedup: delete %s: %w", c.id, err)
				}
				res.Removed++
			}
		}
	}

	d.reg.Add("dedup_removed", nil, float64(res.Removed))
	d.logger.Info("dedup complete", "examined", res.Examined,
		"groups", res.Groups, "removed", res.Removed, "dry_run", d.DryRun)
	return res, nil
}

// splitByWindow partitions same-name candidates into clusters whose dates
// chain within the window. Undated candidates join the first cluster, or
// form one of their own when every candidate is undated.
func splitByWindow(cands []candidate) [][]candidate {
	var dated, undated []candidate
	for _, c := range cands {
		if c.date.IsZero() {
			undated = append(undated, c)
		} else {
			dated = append(dated, c)
		}
	}
	sort.Slice(dated, func(i, j int) bool { return dated[i].date.Before(dated[j].date) })

	var groups [][]candidate
	for _, c := range dated {
		n := len(groups)
		if n > 0 {
			last := groups[n-1][len(groups[n-1])-1]
			if c.date.Sub(last.date) <= window {
				groups[n-1] = append(groups[n-1], c)
				continue
			}
		}
		groups = append(groups, []candidate{c})
	}
	if len(undated) > 0 {
		if len(groups) == 0 {
			groups = append(groups, undated)
		} else {
			groups[0] = append(groups[0], undated...)
		}
	}
	return groups
}

// pickSurvivor keeps the highest coverage; ties go to the lexicographically
// smallest id so repeated runs are deterministic.
func pickSurvivor(group []candidate) (candidate, []candidate) {
	best := group[0]
	for _, c := range group[1:] {
		if c.coverage > best.coverage ||
			(c.coverage == best.coverage && c.id < best.id) {
			best = c
		}
	}
	var drop []candidate
	for _, c := range group {
		if c.id != best.id {
			drop = append(drop, c)
		}
	}
	return best, drop
}

func coverageOf(data string) int {
	var m map[string]any
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return 0
	}
	return enrich.CoverageScore(m)
}

func parseDate(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}
	}
	return t
}
