// Package clustering implements the ingestion pipeline that decides, for
// each incoming article, whether it is a duplicate, a new member of an
// existing story cluster, or the seed of a new one.
package clustering

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"newscast/internal/apperr"
	"newscast/internal/core"
	"newscast/internal/logger"
	"newscast/internal/persistence"
	"newscast/internal/taxonomy"
	"newscast/internal/vectorstore"
)

// SimilarityThreshold and NeighborLimit mirror the fixed candidate search
// bounds; JudgeNeighborCount caps how many neighbors are shown to the judge.
const (
	SimilarityThreshold = vectorstore.DefaultSimilarityThreshold
	NeighborLimit       = vectorstore.DefaultNeighborLimit
	JudgeNeighborCount  = 5
)

// Embedder produces a 768-dim embedding for arbitrary text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Judge asks an LLM whether the new article joins an existing cluster.
type Judge interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// ArticleInput is the raw record the ingestor hands to the pipeline.
type ArticleInput struct {
	URL         string
	Title       string
	Summary     string
	SourceName  string
	PublishedAt time.Time
	FeedHint    string // category hint used only as a judge fallback
}

// decision is the judge's parsed verdict.
type decision struct {
	Action          string   `json:"action"`
	ClusterID       string   `json:"cluster_id"`
	Subcategory     string   `json:"subcategory"`
	Tags            []string `json:"tags"`
	SurpriseScore   int      `json:"surprise_score"`
	ProminenceScore int      `json:"prominence_score"`
	MagnitudeScore  int      `json:"magnitude_score"`
	EmotionScore    int      `json:"emotion_score"`
	Importance      float64  `json:"importance_score"`
}

// Pipeline runs the per-article clustering decision end to end.
type Pipeline struct {
	db       persistence.Database
	embedder Embedder
	judge    Judge
}

// New builds a Pipeline.
func New(db persistence.Database, embedder Embedder, judge Judge) *Pipeline {
	return &Pipeline{db: db, embedder: embedder, judge: judge}
}

// Hash computes the uniqueness hash used to deduplicate by URL (spec §4.1 step 1).
func Hash(url string) string {
	sum := md5.Sum([]byte(url))
	return hex.EncodeToString(sum[:])
}

// Process runs the full ingestion/clustering algorithm for one article.
// It returns the new article's ID, or "" if the record was rejected as a
// duplicate. LLM failures degrade to a neutral new-cluster decision rather
// than failing the pipeline; DB errors propagate.
func (p *Pipeline) Process(ctx context.Context, in ArticleInput) (string, error) {
	log := logger.Stage("clustering", map[string]string{"url": in.URL})

	hash := Hash(in.URL)
	exists, err := p.db.Articles().ExistsByHash(ctx, hash)
	if err != nil {
		return "", fmt.Errorf("check existing hash: %w", err)
	}
	if exists {
		return "", nil
	}

	embedText := strings.TrimSpace(in.Title + " " + in.Summary)
	embedding, err := p.embedder.Embed(ctx, embedText)
	if err != nil {
		log.Warn().Err(err).Msg("embedding failed, skipping article")
		return "", nil
	}

	neighbors, err := p.db.Articles().SearchSimilar(ctx, embedding, SimilarityThreshold, NeighborLimit)
	if err != nil {
		return "", fmt.Errorf("search similar: %w", err)
	}
	if len(neighbors) > JudgeNeighborCount {
		neighbors = neighbors[:JudgeNeighborCount]
	}

	d, llmFailed := p.judgeClustering(ctx, in, neighbors)

	var category, subcategory string
	if llmFailed {
		// spec §4.1: LLM error falls back to category = feed hint, no
		// subcategory, bypassing the taxonomy lookup entirely.
		category, subcategory = in.FeedHint, ""
	} else {
		category, subcategory = taxonomy.CategoryFor(d.Subcategory)
	}

	tx, err := p.db.BeginTx(ctx)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	clusterID := d.ClusterID
	if d.Action == "create_new" || clusterID == "" {
		cluster := &core.StoryCluster{
			CanonicalTitle:  in.Title,
			SurpriseScore:   d.SurpriseScore,
			ProminenceScore: d.ProminenceScore,
			MagnitudeScore:  d.MagnitudeScore,
			EmotionScore:    d.EmotionScore,
			Importance:      d.Importance,
			CreatedAt:       time.Now().UTC(),
		}
		clusterID, err = tx.Clusters().Create(ctx, cluster)
		if err != nil {
			return "", fmt.Errorf("create cluster: %w", err)
		}
	}

	article := &core.Article{
		ID:             uuid.NewString(),
		ClusterID:      clusterID,
		URL:            in.URL,
		UniquenessHash: hash,
		SourceName:     in.SourceName,
		Title:          in.Title,
		Summary:        in.Summary,
		PublishedAt:    in.PublishedAt,
		Category:       category,
		Subcategory:    subcategory,
		Tags:           d.Tags,
		Embedding:      embedding,
		CreatedAt:      time.Now().UTC(),
	}

	if err := tx.Articles().Create(ctx, article); err != nil {
		if apperr.Is(err, apperr.Duplicate) {
			return "", nil
		}
		return "", fmt.Errorf("create article: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return article.ID, nil
}

// judgeClustering invokes the LLM judge and falls back to a neutral
// create-new decision on any failure or malformed response (spec §4.1's
// stated failure behavior).
func (p *Pipeline) judgeClustering(ctx context.Context, in ArticleInput, neighbors []core.Article) (decision, bool) {
	neutral := decision{
		Action:          "create_new",
		SurpriseScore:   50,
		ProminenceScore: 50,
		MagnitudeScore:  50,
		EmotionScore:    50,
		Importance:      50.0,
	}

	if p.judge == nil {
		return neutral, true
	}

	prompt := buildJudgePrompt(in, neighbors)
	raw, err := p.judge.GenerateText(ctx, prompt)
	if err != nil {
		return neutral, true
	}

	d, ok := parseJudgeResponse(raw)
	if !ok {
		// malformed response: the neutral create-new decision is used
		// with an empty subcategory (so the category becomes "General")
		// and neutral scores (spec §4.1 step 5); unlike an LLM call
		// error, this is reported with a false flag.
		return neutral, false
	}

	if d.Action == "join_existing" && d.ClusterID == "" {
		if len(neighbors) > 0 {
			d.ClusterID = neighbors[0].ClusterID
		} else {
			d.Action = "create_new"
		}
	}
	if d.SurpriseScore == 0 {
		d.SurpriseScore = 50
	}
	if d.ProminenceScore == 0 {
		d.ProminenceScore = 50
	}
	if d.MagnitudeScore == 0 {
		d.MagnitudeScore = 50
	}
	if d.EmotionScore == 0 {
		d.EmotionScore = 50
	}
	if d.Importance == 0 {
		d.Importance = float64(d.SurpriseScore+d.ProminenceScore+d.MagnitudeScore+d.EmotionScore) / 4
	}
	return d, false
}

// buildJudgePrompt follows the news-editor framing of the original
// clustering judge: new article, numbered similar articles with
// similarity scores, and the scoring rubric.
func buildJudgePrompt(in ArticleInput, neighbors []core.Article) string {
	var b strings.Builder
	b.WriteString("You are a news editor determining if articles belong to the same story.\n\n")
	fmt.Fprintf(&b, "NEW ARTICLE:\nTitle: %s\nSummary: %s\nSource: %s\nPublication Date: %s\n\n",
		in.Title, in.Summary, in.SourceName, in.PublishedAt.Format("2006-01-02 15:04 MST"))

	b.WriteString("SIMILAR EXISTING ARTICLES:\n")
	for i, n := range neighbors {
		fmt.Fprintf(&b, "%d. Title: %s\n   Cluster ID: %s\n", i+1, n.Title, n.ClusterID)
	}

	b.WriteString(`
INSTRUCTIONS:
1. Determine if the new article is about the same story as any existing article.
2. Discrete events within a series (different matches, different quarterly reports,
   events more than 24 hours apart) are different stories: create_new.
3. Assign a subcategory from the closed taxonomy and 5-6 descriptive tags.
4. Score surprise, prominence, magnitude, and emotion from 1-100; use 50 when unsure.
5. Report importance as the mean of the four scores, one decimal place.

Respond with JSON only:
{
  "action": "join_existing" or "create_new",
  "cluster_id": "cluster id to join, or null",
  "subcategory": "...",
  "tags": ["..."],
  "surprise_score": 1-100,
  "prominence_score": 1-100,
  "magnitude_score": 1-100,
  "emotion_score": 1-100,
  "importance_score": 0.0
}
`)
	return b.String()
}

// parseJudgeResponse tolerates a fenced-code-block wrapper around the JSON
// body and ignores unknown fields, per spec §6.
func parseJudgeResponse(raw string) (decision, bool) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var d decision
	if err := json.Unmarshal([]byte(cleaned), &d); err != nil {
		return decision{}, false
	}
	if d.Action != "join_existing" && d.Action != "create_new" {
		return decision{}, false
	}
	return d, true
}
