package vectorstore

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPgVectorStore_SearchStrictThreshold(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "cluster_id", "similarity"}).
		AddRow("a1", "c1", 0.91).
		AddRow("a2", "c2", 0.86)

	mock.ExpectQuery(`(?s)SELECT a\.id, a\.cluster_id.*1 - \(a\.embedding <=> \$1::vector\) > \$2`).WillReturnRows(rows)

	store := NewPgVectorStore(db)
	results, err := store.Search(context.Background(), []float64{0.1, 0.2, 0.3}, DefaultSimilarityThreshold, DefaultNeighborLimit)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ArticleID != "a1" || results[0].Similarity != 0.91 {
		t.Errorf("unexpected first result: %+v", results[0])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestFormatVectorEmpty(t *testing.T) {
	if got := formatVector(nil); got != "[]" {
		t.Errorf("formatVector(nil) = %q, want [] ", got)
	}
}
