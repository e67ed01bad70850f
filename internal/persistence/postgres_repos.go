package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"newscast/internal/apperr"
	"newscast/internal/core"
	"newscast/internal/vectorstore"
)

// --- articles ---------------------------------------------------------

type postgresArticleRepo struct {
	db    *sql.DB
	tx    *sql.Tx
	store vectorstore.Store // nearest-neighbor ranking (spec §4.1 step 3); nil means a PgVectorStore over db is built per call
}

func (r *postgresArticleRepo) q() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

func formatVector(embedding []float64) string {
	if len(embedding) == 0 {
		return "[]"
	}
	s := "["
	for i, v := range embedding {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf("%f", v)
	}
	return s + "]"
}

func (r *postgresArticleRepo) Create(ctx context.Context, a *core.Article) error {
	query := `
		INSERT INTO articles (
			id, cluster_id, url, uniqueness_hash, source_name, title, summary,
			published_at, category, subcategory, tags, embedding, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12::vector,$13)
	`
	_, err := r.q().ExecContext(ctx, query,
		a.ID, a.ClusterID, a.URL, a.UniquenessHash, a.SourceName, a.Title, a.Summary,
		a.PublishedAt, a.Category, a.Subcategory, pq.Array(a.Tags), formatVector(a.Embedding), a.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" { // unique_violation
			return apperr.New(apperr.Duplicate, "article already exists", err)
		}
		return fmt.Errorf("create article: %w", err)
	}
	return nil
}

func (r *postgresArticleRepo) Get(ctx context.Context, id string) (*core.Article, error) {
	row := r.q().QueryRowContext(ctx, `
		SELECT id, cluster_id, url, uniqueness_hash, source_name, title, summary,
		       published_at, category, subcategory, tags, created_at
		FROM articles WHERE id = $1`, id)
	return scanArticle(row)
}

func (r *postgresArticleRepo) ExistsByHash(ctx context.Context, hash string) (bool, error) {
	var exists bool
	err := r.q().QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM articles WHERE uniqueness_hash = $1)`, hash).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("exists by hash: %w", err)
	}
	return exists, nil
}

// SearchSimilar ranks candidate neighbors via the vectorstore adapter
// (spec §4.1 step 3), then hydrates the full article rows for the
// ranked IDs, preserving the similarity-descending order the store
// already returned. With a nil store (e.g. a transaction-scoped repo)
// a PgVectorStore is built over the non-transactional db, so the
// ranking query runs outside any open transaction.
func (r *postgresArticleRepo) SearchSimilar(ctx context.Context, embedding []float64, threshold float64, limit int) ([]core.Article, error) {
	if limit <= 0 {
		limit = 10
	}
	store := r.store
	if store == nil {
		store = vectorstore.NewPgVectorStore(r.db)
	}
	neighbors, err := store.Search(ctx, embedding, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("search similar: %w", err)
	}
	if len(neighbors) == 0 {
		return nil, nil
	}

	ids := make([]string, len(neighbors))
	order := make(map[string]int, len(neighbors))
	for i, n := range neighbors {
		ids[i] = n.ArticleID
		order[n.ArticleID] = i
	}

	rows, err := r.q().QueryContext(ctx, `
		SELECT id, cluster_id, url, uniqueness_hash, source_name, title, summary,
		       published_at, category, subcategory, tags, created_at
		FROM articles WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("hydrate similar: %w", err)
	}
	defer rows.Close()

	out := make([]core.Article, len(neighbors))
	for rows.Next() {
		var a core.Article
		var tags pq.StringArray
		if err := rows.Scan(&a.ID, &a.ClusterID, &a.URL, &a.UniquenessHash, &a.SourceName, &a.Title,
			&a.Summary, &a.PublishedAt, &a.Category, &a.Subcategory, &tags, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan similar: %w", err)
		}
		a.Tags = tags
		out[order[a.ID]] = a
	}
	return out, rows.Err()
}

func (r *postgresArticleRepo) EligibleForSelection(ctx context.Context, subcategories, customTags []string, heardClusterIDs []string, since time.Time) ([]core.Article, error) {
	query := `
		SELECT id, cluster_id, url, uniqueness_hash, source_name, title, summary,
		       published_at, category, subcategory, tags, created_at
		FROM articles
		WHERE COALESCE(published_at, created_at) >= $1
		  AND (subcategory = ANY($2) OR EXISTS (
		        SELECT 1 FROM unnest(tags) t WHERE lower(t) = ANY($3)
		      ))
		  AND NOT (cluster_id = ANY($4))
	`
	lowerTags := make([]string, len(customTags))
	for i, t := range customTags {
		lowerTags[i] = toLower(t)
	}
	rows, err := r.q().QueryContext(ctx, query, since, pq.Array(subcategories), pq.Array(lowerTags), pq.Array(heardClusterIDs))
	if err != nil {
		return nil, fmt.Errorf("eligible for selection: %w", err)
	}
	defer rows.Close()

	var out []core.Article
	for rows.Next() {
		var a core.Article
		var tags pq.StringArray
		if err := rows.Scan(&a.ID, &a.ClusterID, &a.URL, &a.UniquenessHash, &a.SourceName, &a.Title,
			&a.Summary, &a.PublishedAt, &a.Category, &a.Subcategory, &tags, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan eligible: %w", err)
		}
		a.Tags = tags
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *postgresArticleRepo) ClusterBackups(ctx context.Context, clusterID, excludeArticleID string, limit int) ([]core.Article, error) {
	if limit <= 0 {
		limit = 3
	}
	rows, err := r.q().QueryContext(ctx, `
		SELECT a.id, a.cluster_id, a.url, a.uniqueness_hash, a.source_name, a.title, a.summary,
		       a.published_at, a.category, a.subcategory, a.tags, a.created_at
		FROM articles a
		JOIN clusters c ON c.id = a.cluster_id
		WHERE a.cluster_id = $1 AND a.id != $2
		ORDER BY c.importance DESC, a.published_at DESC
		LIMIT $3`, clusterID, excludeArticleID, limit)
	if err != nil {
		return nil, fmt.Errorf("cluster backups: %w", err)
	}
	defer rows.Close()

	var out []core.Article
	for rows.Next() {
		var a core.Article
		var tags pq.StringArray
		if err := rows.Scan(&a.ID, &a.ClusterID, &a.URL, &a.UniquenessHash, &a.SourceName, &a.Title,
			&a.Summary, &a.PublishedAt, &a.Category, &a.Subcategory, &tags, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan backup: %w", err)
		}
		a.Tags = tags
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanArticle(row *sql.Row) (*core.Article, error) {
	var a core.Article
	var tags pq.StringArray
	if err := row.Scan(&a.ID, &a.ClusterID, &a.URL, &a.UniquenessHash, &a.SourceName, &a.Title,
		&a.Summary, &a.PublishedAt, &a.Category, &a.Subcategory, &tags, &a.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan article: %w", err)
	}
	a.Tags = tags
	return &a, nil
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// --- clusters -----------------------------------------------------------

type postgresClusterRepo struct {
	db *sql.DB
	tx *sql.Tx
}

func (r *postgresClusterRepo) q() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

func (r *postgresClusterRepo) Create(ctx context.Context, c *core.StoryCluster) (string, error) {
	row := r.q().QueryRowContext(ctx, `
		INSERT INTO clusters (id, canonical_title, surprise_score, prominence_score, magnitude_score, emotion_score, importance, created_at)
		VALUES (gen_random_uuid(), $1,$2,$3,$4,$5,$6,$7)
		RETURNING id`,
		c.CanonicalTitle, c.SurpriseScore, c.ProminenceScore, c.MagnitudeScore, c.EmotionScore, c.Importance, c.CreatedAt)
	var id string
	if err := row.Scan(&id); err != nil {
		return "", fmt.Errorf("create cluster: %w", err)
	}
	return id, nil
}

func (r *postgresClusterRepo) Get(ctx context.Context, id string) (*core.StoryCluster, error) {
	var c core.StoryCluster
	err := r.q().QueryRowContext(ctx, `
		SELECT id, canonical_title, surprise_score, prominence_score, magnitude_score, emotion_score, importance, created_at
		FROM clusters WHERE id = $1`, id).Scan(
		&c.ID, &c.CanonicalTitle, &c.SurpriseScore, &c.ProminenceScore, &c.MagnitudeScore, &c.EmotionScore, &c.Importance, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cluster: %w", err)
	}
	return &c, nil
}

func (r *postgresClusterRepo) ArticleCount(ctx context.Context, clusterID string) (int, error) {
	var n int
	err := r.q().QueryRowContext(ctx, `SELECT COUNT(*) FROM articles WHERE cluster_id = $1`, clusterID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("article count: %w", err)
	}
	return n, nil
}

// --- episodes -------------------------------------------------------------

type postgresEpisodeRepo struct{ db *sql.DB }

func (r *postgresEpisodeRepo) Create(ctx context.Context, ep *core.Episode) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO episodes (id, user_id, title, description, subcategories, custom_tags,
			duration_minutes, status, stage, progress, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		ep.ID, ep.UserID, ep.Title, ep.Description, pq.Array(ep.Subcategories), pq.Array(ep.CustomTags),
		ep.DurationMinutes, ep.Status, ep.Stage, ep.Progress, ep.CreatedAt, ep.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return apperr.New(apperr.Duplicate, "episode already exists", err)
		}
		return fmt.Errorf("create episode: %w", err)
	}
	return nil
}

func (r *postgresEpisodeRepo) Get(ctx context.Context, id string) (*core.Episode, error) {
	var ep core.Episode
	var subcats, tags pq.StringArray
	var playedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, description, subcategories, custom_tags, duration_minutes,
		       status, stage, progress, error_message, duration_seconds, audio_url, transcript_url,
		       chapter_url, created_at, updated_at, played_at
		FROM episodes WHERE id = $1`, id).Scan(
		&ep.ID, &ep.UserID, &ep.Title, &ep.Description, &subcats, &tags, &ep.DurationMinutes,
		&ep.Status, &ep.Stage, &ep.Progress, &ep.ErrorMessage, &ep.DurationSeconds, &ep.AudioURL,
		&ep.TranscriptURL, &ep.ChapterURL, &ep.CreatedAt, &ep.UpdatedAt, &playedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get episode: %w", err)
	}
	ep.Subcategories, ep.CustomTags = subcats, tags
	if playedAt.Valid {
		ep.PlayedAt = &playedAt.Time
	}
	return &ep, nil
}

// UpdateStatus enforces the state machine's monotonic graph at the
// application layer (core.CanTransition) before writing.
func (r *postgresEpisodeRepo) UpdateStatus(ctx context.Context, id string, status core.EpisodeStatus, stage string, progress int) error {
	var current core.EpisodeStatus
	if err := r.db.QueryRowContext(ctx, `SELECT status FROM episodes WHERE id=$1`, id).Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("update episode status: episode %q not found", id)
		}
		return fmt.Errorf("update episode status: load current status: %w", err)
	}
	if !core.CanTransition(current, status) {
		return fmt.Errorf("update episode status: illegal transition %s -> %s", current, status)
	}

	_, err := r.db.ExecContext(ctx, `
		UPDATE episodes SET status=$1, stage=$2, progress=$3, updated_at=now() WHERE id=$4`,
		status, stage, progress, id)
	if err != nil {
		return fmt.Errorf("update episode status: %w", err)
	}
	return nil
}

func (r *postgresEpisodeRepo) Fail(ctx context.Context, id string, errMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE episodes SET status=$1, error_message=$2, updated_at=now() WHERE id=$3`,
		core.StatusFailed, errMsg, id)
	if err != nil {
		return fmt.Errorf("fail episode: %w", err)
	}
	return nil
}

func (r *postgresEpisodeRepo) Finalize(ctx context.Context, id, title, description, audioURL, transcriptURL, chapterURL string, durationSeconds float64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE episodes
		SET status=$1, stage='completed', progress=100, title=$2, description=$3, audio_url=$4,
		    transcript_url=$5, chapter_url=$6, duration_seconds=$7, updated_at=now()
		WHERE id=$8`,
		core.StatusCompleted, title, description, audioURL, transcriptURL, chapterURL, durationSeconds, id)
	if err != nil {
		return fmt.Errorf("finalize episode: %w", err)
	}
	return nil
}

func (r *postgresEpisodeRepo) HeardClusterIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT sr.cluster_id
		FROM source_references sr
		JOIN episodes e ON e.id = sr.episode_id
		WHERE e.user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("heard cluster ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan heard cluster id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- segments -------------------------------------------------------------

type postgresSegmentRepo struct{ db *sql.DB }

func (r *postgresSegmentRepo) CreateBatch(ctx context.Context, segments []core.EpisodeSegment) error {
	if len(segments) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin segment batch: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO episode_segments (episode_id, order_index, start_seconds, end_seconds, text, topic, source_article_ids)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare segment insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range segments {
		if _, err := stmt.ExecContext(ctx, s.EpisodeID, s.OrderIndex, s.StartSeconds, s.EndSeconds, s.Text, s.Topic, pq.Array(s.SourceArticleIDs)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert segment: %w", err)
		}
	}
	return tx.Commit()
}

func (r *postgresSegmentRepo) GetByEpisodeID(ctx context.Context, episodeID string) ([]core.EpisodeSegment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT episode_id, order_index, start_seconds, end_seconds, text, topic, source_article_ids
		FROM episode_segments WHERE episode_id = $1 ORDER BY order_index`, episodeID)
	if err != nil {
		return nil, fmt.Errorf("get segments: %w", err)
	}
	defer rows.Close()

	var out []core.EpisodeSegment
	for rows.Next() {
		var s core.EpisodeSegment
		var ids pq.StringArray
		if err := rows.Scan(&s.EpisodeID, &s.OrderIndex, &s.StartSeconds, &s.EndSeconds, &s.Text, &s.Topic, &ids); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		s.SourceArticleIDs = ids
		out = append(out, s)
	}
	return out, rows.Err()
}

// --- source references -----------------------------------------------------

type postgresSourceRefRepo struct{ db *sql.DB }

func (r *postgresSourceRefRepo) CreateBatch(ctx context.Context, refs []core.SourceReference) error {
	if len(refs) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin source ref batch: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO source_references (episode_id, article_id, cluster_id, title, url, published_at, excerpt, summary)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare source ref insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range refs {
		if _, err := stmt.ExecContext(ctx, s.EpisodeID, s.ArticleID, s.ClusterID, s.Title, s.URL, s.PublishedAt, s.Excerpt, s.Summary); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert source ref: %w", err)
		}
	}
	return tx.Commit()
}

func (r *postgresSourceRefRepo) GetByEpisodeID(ctx context.Context, episodeID string) ([]core.SourceReference, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT episode_id, article_id, cluster_id, title, url, published_at, excerpt, summary
		FROM source_references WHERE episode_id = $1`, episodeID)
	if err != nil {
		return nil, fmt.Errorf("get source refs: %w", err)
	}
	defer rows.Close()

	var out []core.SourceReference
	for rows.Next() {
		var s core.SourceReference
		if err := rows.Scan(&s.EpisodeID, &s.ArticleID, &s.ClusterID, &s.Title, &s.URL, &s.PublishedAt, &s.Excerpt, &s.Summary); err != nil {
			return nil, fmt.Errorf("scan source ref: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// --- users ------------------------------------------------------------------

type postgresUserRepo struct{ db *sql.DB }

func (r *postgresUserRepo) Get(ctx context.Context, id string) (*core.User, error) {
	var u core.User
	var subcats, tags pq.StringArray
	err := r.db.QueryRowContext(ctx, `
		SELECT id, subcategories, custom_tags FROM users WHERE id = $1`, id).Scan(&u.ID, &subcats, &tags)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.Preferences = core.UserPreferences{Subcategories: subcats, CustomTags: tags}

	heard, err := (&postgresEpisodeRepo{db: r.db}).HeardClusterIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	u.HeardClusterIDs = make(map[string]struct{}, len(heard))
	for _, c := range heard {
		u.HeardClusterIDs[c] = struct{}{}
	}
	return &u, nil
}
