// Package vectorstore implements nearest-neighbor search over article
// embeddings using PostgreSQL's pgvector extension, adapted from a
// hierarchical tag-aware search adapter to the clustering pipeline's
// flat neighbor-candidate query (spec §4.1 step 3).
package vectorstore

import (
	"context"
	"database/sql"
	"fmt"
)

// DefaultSimilarityThreshold matches spec §4.1's fixed candidate cutoff.
const DefaultSimilarityThreshold = 0.85

// DefaultNeighborLimit matches spec §4.1's candidate cap.
const DefaultNeighborLimit = 10

// Neighbor is one nearest-neighbor search hit.
type Neighbor struct {
	ArticleID  string
	ClusterID  string
	Similarity float64
}

// Store is the narrow interface the clustering pipeline depends on.
type Store interface {
	// Search returns articles whose embedding cosine similarity to query is
	// strictly greater than threshold, ordered descending, capped at limit.
	Search(ctx context.Context, query []float64, threshold float64, limit int) ([]Neighbor, error)
}

// PgVectorStore implements Store against a Postgres+pgvector `articles`
// table (embedding stored in a `vector(768)` column named `embedding`).
type PgVectorStore struct {
	db *sql.DB
}

// NewPgVectorStore builds a PgVectorStore over db.
func NewPgVectorStore(db *sql.DB) *PgVectorStore {
	return &PgVectorStore{db: db}
}

// Search performs the cosine-similarity neighbor query. Strict
// greater-than on threshold matches the spec's boundary rule (exactly
// 0.85 is not a candidate).
func (p *PgVectorStore) Search(ctx context.Context, query []float64, threshold float64, limit int) ([]Neighbor, error) {
	if limit <= 0 {
		limit = DefaultNeighborLimit
	}
	vectorStr := formatVector(query)

	sqlQuery := `
		SELECT a.id, a.cluster_id, 1 - (a.embedding <=> $1::vector) AS similarity
		FROM articles a
		WHERE a.embedding IS NOT NULL
		  AND 1 - (a.embedding <=> $1::vector) > $2
		ORDER BY a.embedding <=> $1::vector
		LIMIT $3
	`

	rows, err := p.db.QueryContext(ctx, sqlQuery, vectorStr, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("search neighbors: %w", err)
	}
	defer rows.Close()

	var results []Neighbor
	for rows.Next() {
		var n Neighbor
		if err := rows.Scan(&n.ArticleID, &n.ClusterID, &n.Similarity); err != nil {
			return nil, fmt.Errorf("scan neighbor: %w", err)
		}
		results = append(results, n)
	}
	return results, rows.Err()
}

// formatVector encodes a float64 slice as a pgvector literal, e.g. "[0.1,0.2]".
func formatVector(embedding []float64) string {
	if len(embedding) == 0 {
		return "[]"
	}
	result := "["
	for i, val := range embedding {
		if i > 0 {
			result += ","
		}
		result += fmt.Sprintf("%f", val)
	}
	result += "]"
	return result
}
