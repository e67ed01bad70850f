package core

import (
	"testing"
	"time"
)

func TestArticleFields(t *testing.T) {
	now := time.Now()
	a := Article{
		ID:             "article-1",
		ClusterID:      "cluster-1",
		URL:            "https://example.com/story",
		UniquenessHash: "abc123",
		Title:          "Test Article",
		Summary:        "A short summary",
		PublishedAt:    now,
		Category:       "Technology",
		Subcategory:    "AI & Machine Learning",
		Tags:           []string{"AI", "Gemini"},
		Embedding:      make([]float64, 768),
		CreatedAt:      now,
	}

	if a.ClusterID != "cluster-1" {
		t.Errorf("expected cluster-1, got %s", a.ClusterID)
	}
	if len(a.Embedding) != 768 {
		t.Errorf("expected 768-dim embedding, got %d", len(a.Embedding))
	}
	if len(a.Tags) != 2 {
		t.Errorf("expected 2 tags, got %d", len(a.Tags))
	}
}

func TestStoryClusterImportanceIsMeanOfFactors(t *testing.T) {
	c := StoryCluster{
		SurpriseScore:   60,
		ProminenceScore: 80,
		MagnitudeScore:  55,
		EmotionScore:    40,
	}
	mean := float64(c.SurpriseScore+c.ProminenceScore+c.MagnitudeScore+c.EmotionScore) / 4
	c.Importance = mean

	if c.Importance != 58.75 {
		t.Errorf("expected importance 58.75, got %v", c.Importance)
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		name string
		from EpisodeStatus
		to   EpisodeStatus
		want bool
	}{
		{"pending to discovering", StatusPending, StatusDiscoveringArticles, true},
		{"skips a stage", StatusPending, StatusGeneratingScript, false},
		{"backwards", StatusGeneratingAudio, StatusGeneratingScript, false},
		{"completed is terminal", StatusCompleted, StatusUploadingFiles, false},
		{"any non-terminal state can fail", StatusGeneratingAudio, StatusFailed, true},
		{"failed cannot fail again", StatusFailed, StatusFailed, false},
		{"completed cannot fail", StatusCompleted, StatusFailed, false},
		{"final step to completed", StatusFinalizing, StatusCompleted, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanTransition(tc.from, tc.to); got != tc.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
			}
		})
	}
}

func TestEpisodePlayedAtSetAtMostOnce(t *testing.T) {
	ep := Episode{Status: StatusCompleted}
	if ep.PlayedAt != nil {
		t.Fatalf("expected nil PlayedAt before first play")
	}
	now := time.Now()
	ep.PlayedAt = &now
	if ep.PlayedAt == nil {
		t.Fatalf("expected PlayedAt to be set")
	}
}

func TestEpisodeSegmentOrdering(t *testing.T) {
	segs := []EpisodeSegment{
		{OrderIndex: 0, StartSeconds: 0, EndSeconds: 10},
		{OrderIndex: 1, StartSeconds: 10, EndSeconds: 22.5},
	}
	for i := 1; i < len(segs); i++ {
		if segs[i].StartSeconds < segs[i-1].EndSeconds {
			t.Errorf("segment %d overlaps with previous", i)
		}
	}
}
