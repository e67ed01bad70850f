// Package persistence defines repository interfaces for articles, story
// clusters, episodes, episode segments, source references, and users,
// plus a transactional Database aggregate, following the donor's
// per-entity-repository-behind-one-Database-interface shape.
package persistence

import (
	"context"
	"time"

	"newscast/internal/core"
)

// ListOptions provides common pagination and ordering options.
type ListOptions struct {
	Limit  int
	Offset int
	SortBy string
	Order  string
}

// ArticleRepository handles article persistence.
type ArticleRepository interface {
	// Create inserts a new article. Returns apperr.Duplicate if the URL or
	// uniqueness hash already exists (spec §4.1 step 1 / step 7).
	Create(ctx context.Context, article *core.Article) error

	// Get retrieves an article by ID.
	Get(ctx context.Context, id string) (*core.Article, error)

	// ExistsByHash reports whether an article with this uniqueness hash
	// already exists.
	ExistsByHash(ctx context.Context, hash string) (bool, error)

	// SearchSimilar returns candidate neighbor articles by cosine
	// similarity of embedding, strictly greater than threshold, ordered
	// descending, capped at limit (spec §4.1 step 3).
	SearchSimilar(ctx context.Context, embedding []float64, threshold float64, limit int) ([]core.Article, error)

	// EligibleForSelection returns candidate articles matching
	// subcategories or custom tags, published within freshness window,
	// excluding heard clusters (spec §4.3). Several articles of one
	// cluster may be returned; the selector keeps one per cluster.
	EligibleForSelection(ctx context.Context, subcategories, customTags []string, heardClusterIDs []string, since time.Time) ([]core.Article, error)

	// ClusterBackups returns up to limit articles from clusterID other
	// than excludeArticleID, ordered by importance desc, published desc.
	ClusterBackups(ctx context.Context, clusterID, excludeArticleID string, limit int) ([]core.Article, error)
}

// ClusterRepository handles story-cluster persistence.
type ClusterRepository interface {
	// Create inserts a new cluster and returns its generated ID.
	Create(ctx context.Context, cluster *core.StoryCluster) (string, error)

	// Get retrieves a cluster by ID.
	Get(ctx context.Context, id string) (*core.StoryCluster, error)

	// ArticleCount returns the number of articles currently in the cluster
	// (used by the selector's COVERAGE_BOOST term).
	ArticleCount(ctx context.Context, clusterID string) (int, error)
}

// EpisodeRepository handles episode persistence and the state machine.
type EpisodeRepository interface {
	Create(ctx context.Context, ep *core.Episode) error
	Get(ctx context.Context, id string) (*core.Episode, error)

	// UpdateStatus performs a state-machine transition, writing the new
	// status, stage label, and progress percentage (spec §4.7).
	UpdateStatus(ctx context.Context, id string, status core.EpisodeStatus, stage string, progress int) error

	// Fail transitions the episode to failed and records errMsg.
	Fail(ctx context.Context, id string, errMsg string) error

	// Finalize records the drafted title/description, artifact URLs, and
	// duration on a completed episode.
	Finalize(ctx context.Context, id, title, description, audioURL, transcriptURL, chapterURL string, durationSeconds float64) error

	// HeardClusterIDs returns every cluster ID this user has already been
	// served, derived by joining episodes to source references.
	HeardClusterIDs(ctx context.Context, userID string) ([]string, error)
}

// EpisodeSegmentRepository handles episode segment persistence.
type EpisodeSegmentRepository interface {
	CreateBatch(ctx context.Context, segments []core.EpisodeSegment) error
	GetByEpisodeID(ctx context.Context, episodeID string) ([]core.EpisodeSegment, error)
}

// SourceReferenceRepository handles source-reference persistence.
type SourceReferenceRepository interface {
	CreateBatch(ctx context.Context, refs []core.SourceReference) error
	GetByEpisodeID(ctx context.Context, episodeID string) ([]core.SourceReference, error)
}

// UserRepository reads user preference state.
type UserRepository interface {
	Get(ctx context.Context, id string) (*core.User, error)
}

// Database aggregates all repositories behind one transactional handle.
type Database interface {
	Articles() ArticleRepository
	Clusters() ClusterRepository
	Episodes() EpisodeRepository
	Segments() EpisodeSegmentRepository
	SourceReferences() SourceReferenceRepository
	Users() UserRepository

	Close() error
	Ping(ctx context.Context) error
	BeginTx(ctx context.Context) (Transaction, error)
}

// Transaction scopes the article+cluster writes in spec §4.1 step 7 to one
// atomic commit/rollback.
type Transaction interface {
	Commit() error
	Rollback() error

	Articles() ArticleRepository
	Clusters() ClusterRepository
}
