// Package core defines the domain types shared across the ingestor and
// episode builder services.
package core

import "time"

// Article is one ingested item, owned by exactly one Story Cluster.
type Article struct {
	ID              string    `json:"id"`
	ClusterID       string    `json:"cluster_id"`
	URL             string    `json:"url"`
	UniquenessHash  string    `json:"uniqueness_hash"` // MD5(URL)
	SourceName      string    `json:"source_name"`
	Title           string    `json:"title"`
	Summary         string    `json:"summary"`
	PublishedAt     time.Time `json:"published_at"`
	Category        string    `json:"category"`
	Subcategory     string    `json:"subcategory"`
	Tags            []string  `json:"tags"`
	Embedding       []float64 `json:"embedding"` // 768-dim
	ExtractedBody   string    `json:"-"`         // populated at extraction time, not persisted
	CreatedAt       time.Time `json:"created_at"`
}

// StoryCluster groups articles that report the same real-world event.
type StoryCluster struct {
	ID              string    `json:"id"`
	CanonicalTitle  string    `json:"canonical_title"`
	SurpriseScore   int       `json:"surprise_score"`
	ProminenceScore int       `json:"prominence_score"`
	MagnitudeScore  int       `json:"magnitude_score"`
	EmotionScore    int       `json:"emotion_score"`
	Importance      float64   `json:"importance"`
	CreatedAt       time.Time `json:"created_at"`
}

// EpisodeStatus is a state in the episode state machine (spec §4.7).
type EpisodeStatus string

const (
	StatusPending             EpisodeStatus = "pending"
	StatusDiscoveringArticles EpisodeStatus = "discovering_articles"
	StatusExtractingContent   EpisodeStatus = "extracting_content"
	StatusGeneratingScript    EpisodeStatus = "generating_script"
	StatusGeneratingAudio     EpisodeStatus = "generating_audio"
	StatusGeneratingTimestamps EpisodeStatus = "generating_timestamps"
	StatusUploadingFiles      EpisodeStatus = "uploading_files"
	StatusFinalizing          EpisodeStatus = "finalizing"
	StatusCompleted           EpisodeStatus = "completed"
	StatusFailed              EpisodeStatus = "failed"
)

// stageOrder is the declared unidirectional transition graph.
var stageOrder = []EpisodeStatus{
	StatusPending, StatusDiscoveringArticles, StatusExtractingContent,
	StatusGeneratingScript, StatusGeneratingAudio, StatusGeneratingTimestamps,
	StatusUploadingFiles, StatusFinalizing, StatusCompleted,
}

// CanTransition reports whether moving from 'from' to 'to' respects the
// declared monotonic graph. failed is reachable from any non-terminal state.
func CanTransition(from, to EpisodeStatus) bool {
	if to == StatusFailed {
		return from != StatusCompleted && from != StatusFailed
	}
	fromIdx, toIdx := -1, -1
	for i, s := range stageOrder {
		if s == from {
			fromIdx = i
		}
		if s == to {
			toIdx = i
		}
	}
	return fromIdx >= 0 && toIdx == fromIdx+1
}

// Episode is one generated listening unit owned by a user.
type Episode struct {
	ID               string        `json:"id"`
	UserID           string        `json:"user_id"`
	Title            string        `json:"title"`
	Description      string        `json:"description"`
	Subcategories    []string      `json:"subcategories"`
	CustomTags       []string      `json:"custom_tags"`
	DurationMinutes  int           `json:"duration_minutes"`
	Status           EpisodeStatus `json:"status"`
	Stage            string        `json:"stage"`
	Progress         int           `json:"progress"`
	ErrorMessage     string        `json:"error_message,omitempty"`
	DurationSeconds  float64       `json:"duration_seconds"`
	AudioURL         string        `json:"audio_url"`
	TranscriptURL    string        `json:"transcript_url"`
	ChapterURL       string        `json:"chapter_url"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
	PlayedAt         *time.Time    `json:"played_at,omitempty"`
	PlayProgressSecs float64       `json:"play_progress_seconds"`
}

// EpisodeSegment is a contiguous chapter of one episode's audio timeline.
type EpisodeSegment struct {
	ID              string   `json:"id"`
	EpisodeID       string   `json:"episode_id"`
	OrderIndex      int      `json:"order_index"`
	StartSeconds    float64  `json:"start_seconds"`
	EndSeconds      float64  `json:"end_seconds"`
	Text            string   `json:"text"`
	Topic           string   `json:"topic"`
	SourceArticleIDs []string `json:"source_article_ids"`
}

// SourceReference attributes one episode segment to an article, for the
// "why this was in your episode" view.
type SourceReference struct {
	EpisodeID   string    `json:"episode_id"`
	ArticleID   string    `json:"article_id"`
	ClusterID   string    `json:"cluster_id"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
	Excerpt     string    `json:"excerpt"`
	Summary     string    `json:"summary"`
}

// UserPreferences is the subset of User state the core reads.
type UserPreferences struct {
	Subcategories []string `json:"subcategories"`
	CustomTags    []string `json:"custom_tags"`
}

// User is an external collaborator; the core only needs its preferences
// and the set of clusters it has already been served.
type User struct {
	ID          string
	Preferences UserPreferences
	HeardClusterIDs map[string]struct{}
}
