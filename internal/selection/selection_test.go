package selection

import (
	"context"
	"testing"
	"time"

	"newscast/internal/core"
	"newscast/internal/persistence"
)

// emptyDB is a minimal persistence.Database fake returning no articles,
// enough to exercise Select's empty-pool NoContent path.
type emptyDB struct{}

func (emptyDB) Articles() persistence.ArticleRepository { return emptyArticles{} }
func (emptyDB) Clusters() persistence.ClusterRepository { return nil }
func (emptyDB) Episodes() persistence.EpisodeRepository { return nil }
func (emptyDB) Segments() persistence.EpisodeSegmentRepository { return nil }
func (emptyDB) SourceReferences() persistence.SourceReferenceRepository { return nil }
func (emptyDB) Users() persistence.UserRepository { return nil }
func (emptyDB) Close() error { return nil }
func (emptyDB) Ping(ctx context.Context) error { return nil }
func (emptyDB) BeginTx(ctx context.Context) (persistence.Transaction, error) { return nil, nil }

type emptyArticles struct{}

func (emptyArticles) Create(ctx context.Context, a *core.Article) error { return nil }
func (emptyArticles) Get(ctx context.Context, id string) (*core.Article, error) { return nil, nil }
func (emptyArticles) ExistsByHash(ctx context.Context, hash string) (bool, error) { return false, nil }
func (emptyArticles) SearchSimilar(ctx context.Context, embedding []float64, threshold float64, limit int) ([]core.Article, error) {
	return nil, nil
}
func (emptyArticles) EligibleForSelection(ctx context.Context, subcategories, customTags []string, heardClusterIDs []string, since time.Time) ([]core.Article, error) {
	return nil, nil
}
func (emptyArticles) ClusterBackups(ctx context.Context, clusterID, excludeArticleID string, limit int) ([]core.Article, error) {
	return nil, nil
}

func TestCombinedScore(t *testing.T) {
	// higher article count should boost the score via log(count)
	low := combinedScore(50, 1, 17, 0, 0.02)
	high := combinedScore(50, 8, 17, 0, 0.02)
	if high <= low {
		t.Errorf("expected higher article count to boost combined score: low=%v high=%v", low, high)
	}

	// decay should reduce score as age grows
	fresh := combinedScore(50, 1, 17, 0, 0.05)
	stale := combinedScore(50, 1, 17, 48, 0.05)
	if stale >= fresh {
		t.Errorf("expected older articles to score lower: fresh=%v stale=%v", fresh, stale)
	}
}

func TestAgeHoursFallsBackToCreatedAt(t *testing.T) {
	now := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	a := core.Article{CreatedAt: now.Add(-2 * time.Hour)}
	if got := ageHours(a, now); got < 1.9 || got > 2.1 {
		t.Errorf("expected ~2 hours, got %v", got)
	}
}

func TestHasTagCaseInsensitive(t *testing.T) {
	tags := []string{"Jensen Huang", "GPU"}
	if !hasTagCaseInsensitive(tags, "jensen huang") {
		t.Error("expected case-insensitive match")
	}
	if hasTagCaseInsensitive(tags, "nvidia") {
		t.Error("expected no match for unrelated tag")
	}
}

func TestThreePhaseSelect_Guarantees(t *testing.T) {
	pool := map[string]candidate{
		"tag-cluster":   {article: core.Article{ClusterID: "tag-cluster", Tags: []string{"Jensen Huang"}, Subcategory: "Business"}, combined: 90},
		"europe-1":      {article: core.Article{ClusterID: "europe-1", Subcategory: "Europe"}, combined: 80},
		"europe-2":      {article: core.Article{ClusterID: "europe-2", Subcategory: "Europe"}, combined: 75},
		"europe-3":      {article: core.Article{ClusterID: "europe-3", Subcategory: "Europe"}, combined: 70},
		"tennis-1":      {article: core.Article{ClusterID: "tennis-1", Subcategory: "Tennis"}, combined: 65},
		"ai-1":          {article: core.Article{ClusterID: "ai-1", Subcategory: "AI & Machine Learning"}, combined: 60},
		"filler-1":      {article: core.Article{ClusterID: "filler-1", Subcategory: "Business"}, combined: 55},
		"filler-2":      {article: core.Article{ClusterID: "filler-2", Subcategory: "Business"}, combined: 50},
	}

	s := New(nil, Config{})
	req := Request{
		Subcategories: []string{"Europe", "Tennis", "AI & Machine Learning"},
		CustomTags:    []string{"Jensen Huang"},
		N:             6,
	}
	chosen := s.threePhaseSelect(pool, req)

	if len(chosen) != 6 {
		t.Fatalf("expected 6 selected, got %d: %+v", len(chosen), chosen)
	}

	seen := map[string]bool{}
	for _, c := range chosen {
		if seen[c.article.ClusterID] {
			t.Errorf("cluster %s selected twice", c.article.ClusterID)
		}
		seen[c.article.ClusterID] = true
	}
	if !seen["tag-cluster"] {
		t.Error("expected tag-matching cluster to be guaranteed")
	}
	if !seen["europe-1"] || !seen["europe-2"] {
		t.Error("expected the two highest-combined Europe clusters to be guaranteed")
	}
	if !seen["tennis-1"] {
		t.Error("expected Tennis diversity guarantee")
	}
	if !seen["ai-1"] {
		t.Error("expected AI & Machine Learning diversity guarantee")
	}
}

func TestSelect_EmptyResultReturnsNoContentError(t *testing.T) {
	s := New(emptyDB{}, Config{})
	_, err := s.Select(context.Background(), Request{N: 3})
	if err == nil {
		t.Fatal("expected error for empty candidate pool")
	}
}
