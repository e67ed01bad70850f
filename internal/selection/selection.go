// Package selection implements the article selector: the first stage of
// episode building, choosing the N anchor articles for an episode while
// guaranteeing topic diversity and excluding clusters the user has
// already heard.
package selection

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"newscast/internal/apperr"
	"newscast/internal/core"
	"newscast/internal/persistence"
	"newscast/internal/taxonomy"
)

// worldNewsRegions is the closed set of subcategories folded into the
// "World News" virtual topic for selection guarantees (spec §4.3/§4.5).
var worldNewsRegions = map[string]struct{}{
	"Africa": {}, "Asia": {}, "Europe": {}, "Middle East": {},
	"North America": {}, "South America": {}, "Oceania": {},
}

func isWorldNewsRegion(subcategory string) bool {
	_, ok := worldNewsRegions[subcategory]
	return ok
}

// Config carries the tunables named in spec §6's configuration table.
type Config struct {
	FreshnessDays int
	CoverageBoost float64
	DecayRate     map[string]float64
	MinImportance float64
	BackupLimit   int
}

// Request is one selection call's inputs.
type Request struct {
	Subcategories   []string
	CustomTags      []string
	HeardClusterIDs map[string]struct{}
	N               int
}

// candidate is one cluster's best-scoring eligible article.
type candidate struct {
	article    core.Article
	combined   float64
	importance float64
}

// Selector runs the three-phase deterministic selection algorithm.
type Selector struct {
	db  persistence.Database
	cfg Config
}

// New builds a Selector.
func New(db persistence.Database, cfg Config) *Selector {
	if cfg.FreshnessDays <= 0 {
		cfg.FreshnessDays = 5
	}
	if cfg.CoverageBoost == 0 {
		cfg.CoverageBoost = 17
	}
	if cfg.DecayRate == nil {
		cfg.DecayRate = taxonomy.DefaultDecayRates()
	}
	if cfg.MinImportance == 0 {
		cfg.MinImportance = 40
	}
	if cfg.BackupLimit <= 0 {
		cfg.BackupLimit = 3
	}
	return &Selector{db: db, cfg: cfg}
}

// Select returns the anchor articles for an episode, ordered by raw
// importance descending per spec §4.3's downstream-convenience rule.
func (s *Selector) Select(ctx context.Context, req Request) ([]core.Article, error) {
	now := time.Now().UTC()
	since := now.Add(-time.Duration(s.cfg.FreshnessDays) * 24 * time.Hour)

	heardIDs := make([]string, 0, len(req.HeardClusterIDs))
	for id := range req.HeardClusterIDs {
		heardIDs = append(heardIDs, id)
	}

	eligible, err := s.db.Articles().EligibleForSelection(ctx, req.Subcategories, req.CustomTags, heardIDs, since)
	if err != nil {
		return nil, fmt.Errorf("eligible for selection: %w", err)
	}

	candidates, err := s.buildCandidates(ctx, eligible, req.HeardClusterIDs, now)
	if err != nil {
		return nil, err
	}

	chosen := s.threePhaseSelect(candidates, req)

	sort.SliceStable(chosen, func(i, j int) bool {
		if chosen[i].importance != chosen[j].importance {
			return chosen[i].importance > chosen[j].importance
		}
		return chosen[i].article.ClusterID < chosen[j].article.ClusterID
	})

	result := make([]core.Article, 0, len(chosen))
	for _, c := range chosen {
		result = append(result, c.article)
	}

	if len(result) == 0 {
		return nil, apperr.New(apperr.NoContent, "no new articles available for the requested subcategories", nil)
	}
	return result, nil
}

// buildCandidates groups eligible articles by cluster, keeping the
// highest-combined-score article per cluster, and drops clusters below
// MinImportance or already heard.
func (s *Selector) buildCandidates(ctx context.Context, articles []core.Article, heard map[string]struct{}, now time.Time) (map[string]candidate, error) {
	best := make(map[string]candidate)
	clusterCache := make(map[string]*core.StoryCluster)

	for _, a := range articles {
		if _, ok := heard[a.ClusterID]; ok {
			continue
		}
		cluster, ok := clusterCache[a.ClusterID]
		if !ok {
			c, err := s.db.Clusters().Get(ctx, a.ClusterID)
			if err != nil {
				return nil, fmt.Errorf("get cluster %s: %w", a.ClusterID, err)
			}
			if c == nil {
				continue
			}
			clusterCache[a.ClusterID] = c
			cluster = c
		}
		if cluster.Importance < s.cfg.MinImportance {
			continue
		}

		count, err := s.db.Clusters().ArticleCount(ctx, a.ClusterID)
		if err != nil {
			return nil, fmt.Errorf("article count %s: %w", a.ClusterID, err)
		}

		combined := combinedScore(cluster.Importance, count, s.cfg.CoverageBoost, ageHours(a, now), decayRateFor(s.cfg.DecayRate, a.Category))

		if cur, exists := best[a.ClusterID]; !exists || combined > cur.combined {
			best[a.ClusterID] = candidate{article: a, combined: combined, importance: cluster.Importance}
		}
	}
	return best, nil
}

func decayRateFor(rates map[string]float64, category string) float64 {
	return taxonomy.DecayRate(rates, category)
}

func ageHours(a core.Article, now time.Time) float64 {
	t := a.PublishedAt
	if t.IsZero() {
		t = a.CreatedAt
	}
	return now.Sub(t).Hours()
}

func combinedScore(importance float64, articleCount int, coverageBoost, ageHoursVal, decayRate float64) float64 {
	n := articleCount
	if n < 1 {
		n = 1
	}
	return (importance + coverageBoost*math.Log(float64(n))) * math.Exp(-ageHoursVal*decayRate)
}

// threePhaseSelect runs Phase 1 (guarantees), Phase 2a (subcategory
// diversity), and Phase 2b (fill), in that order, never selecting the
// same cluster twice.
func (s *Selector) threePhaseSelect(pool map[string]candidate, req Request) []candidate {
	selected := make(map[string]candidate)
	remaining := make(map[string]candidate, len(pool))
	for k, v := range pool {
		remaining[k] = v
	}

	take := func(clusterID string) {
		selected[clusterID] = remaining[clusterID]
		delete(remaining, clusterID)
	}

	sortedByScore := func(in map[string]candidate) []candidate {
		out := make([]candidate, 0, len(in))
		for _, c := range in {
			out = append(out, c)
		}
		sort.Slice(out, func(i, j int) bool {
			if out[i].combined != out[j].combined {
				return out[i].combined > out[j].combined
			}
			return out[i].article.ClusterID < out[j].article.ClusterID
		})
		return out
	}

	// Phase 1a: one candidate per custom tag.
	for _, tag := range req.CustomTags {
		lowerTag := strings.ToLower(tag)
		var bestMatch *candidate
		for _, c := range sortedByScore(remaining) {
			if hasTagCaseInsensitive(c.article.Tags, lowerTag) {
				cc := c
				bestMatch = &cc
				break
			}
		}
		if bestMatch == nil {
			continue
		}
		take(bestMatch.article.ClusterID)
	}

	// Phase 1b: two highest-combined World News candidates, if requested.
	wantsWorldNews := false
	for _, sub := range req.Subcategories {
		if isWorldNewsRegion(sub) {
			wantsWorldNews = true
			break
		}
	}
	if wantsWorldNews {
		taken := 0
		for _, c := range sortedByScore(remaining) {
			if taken >= 2 {
				break
			}
			if isWorldNewsRegion(c.article.Subcategory) {
				take(c.article.ClusterID)
				taken++
			}
		}
	}

	// Phase 2a: subcategory diversity for non-world-news subcategories.
	for _, sub := range req.Subcategories {
		if isWorldNewsRegion(sub) {
			continue
		}
		already := false
		for _, c := range selected {
			if c.article.Subcategory == sub {
				already = true
				break
			}
		}
		if already {
			continue
		}
		for _, c := range sortedByScore(remaining) {
			if c.article.Subcategory == sub {
				take(c.article.ClusterID)
				break
			}
		}
	}

	// Phase 2b: fill remaining slots by combined score desc.
	for _, c := range sortedByScore(remaining) {
		if len(selected) >= req.N {
			break
		}
		take(c.article.ClusterID)
	}

	out := make([]candidate, 0, len(selected))
	for _, c := range selected {
		out = append(out, c)
	}
	return out
}

func hasTagCaseInsensitive(tags []string, lowerTarget string) bool {
	for _, t := range tags {
		if strings.ToLower(t) == lowerTarget {
			return true
		}
	}
	return false
}

// Backups returns up to BackupLimit replacement articles from the same
// cluster as anchor, for use when anchor's content extraction fails
// (spec §4.3's cluster fallback).
func (s *Selector) Backups(ctx context.Context, anchor core.Article) ([]core.Article, error) {
	return s.db.Articles().ClusterBackups(ctx, anchor.ClusterID, anchor.ID, s.cfg.BackupLimit)
}
