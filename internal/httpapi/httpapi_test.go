package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"newscast/internal/core"
	"newscast/internal/persistence"
)

type fakeDB struct {
	episode *core.Episode
	pingErr error
}

func (f fakeDB) Articles() persistence.ArticleRepository                 { return nil }
func (f fakeDB) Clusters() persistence.ClusterRepository                 { return nil }
func (f fakeDB) Episodes() persistence.EpisodeRepository                 { return fakeEpisodes{f.episode} }
func (f fakeDB) Segments() persistence.EpisodeSegmentRepository          { return nil }
func (f fakeDB) SourceReferences() persistence.SourceReferenceRepository { return nil }
func (f fakeDB) Users() persistence.UserRepository                       { return nil }
func (f fakeDB) Close() error                                            { return nil }
func (f fakeDB) Ping(ctx context.Context) error                          { return f.pingErr }
func (f fakeDB) BeginTx(ctx context.Context) (persistence.Transaction, error) {
	return nil, nil
}

type fakeEpisodes struct {
	episode *core.Episode
}

func (f fakeEpisodes) Create(ctx context.Context, ep *core.Episode) error { return nil }
func (f fakeEpisodes) Get(ctx context.Context, id string) (*core.Episode, error) {
	if f.episode == nil || f.episode.ID != id {
		// Mirrors the Postgres episode repository's Get contract:
		// sql.ErrNoRows is translated to (nil, nil), not an error.
		return nil, nil
	}
	return f.episode, nil
}
func (f fakeEpisodes) UpdateStatus(ctx context.Context, id string, status core.EpisodeStatus, stage string, progress int) error {
	return nil
}
func (f fakeEpisodes) Fail(ctx context.Context, id string, errMsg string) error { return nil }
func (f fakeEpisodes) Finalize(ctx context.Context, id, title, description, audioURL, transcriptURL, chapterURL string, durationSeconds float64) error {
	return nil
}
func (f fakeEpisodes) HeardClusterIDs(ctx context.Context, userID string) ([]string, error) {
	return nil, nil
}

func TestHandleStatusReturnsEpisodeRow(t *testing.T) {
	ep := &core.Episode{ID: "ep-1", Status: core.StatusGeneratingAudio, Stage: "tts", Progress: 40}
	srv := New(fakeDB{episode: ep})

	req := httptest.NewRequest(http.MethodGet, "/episodes/ep-1/status", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got core.Episode
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.ID != "ep-1" || got.Stage != "tts" {
		t.Errorf("unexpected episode payload: %+v", got)
	}
}

func TestHandleStatusNotFound(t *testing.T) {
	srv := New(fakeDB{})

	req := httptest.NewRequest(http.MethodGet, "/episodes/missing/status", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHandleHealthReflectsPingError(t *testing.T) {
	srv := New(fakeDB{pingErr: context.DeadlineExceeded})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestHandleStreamEmitsFrameAndStopsAtTerminalStatus(t *testing.T) {
	ep := &core.Episode{ID: "ep-2", Status: core.StatusCompleted, Stage: "finalizing", Progress: 100}
	srv := New(fakeDB{episode: ep})

	req := httptest.NewRequest(http.MethodGet, "/episodes/ep-2/stream", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var frame StatusFrame
	dec := json.NewDecoder(rec.Body)
	if err := dec.Decode(&frame); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	if frame.EpisodeID != "ep-2" || frame.Status != string(core.StatusCompleted) {
		t.Errorf("unexpected frame: %+v", frame)
	}
}

func TestHandleStreamUnknownEpisodeNeverPanics(t *testing.T) {
	srv := New(fakeDB{})

	req := httptest.NewRequest(http.MethodGet, "/episodes/missing/stream", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected stream handler to open with 200 before erroring out, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("expected no frame to be written for an unknown episode, got %q", rec.Body.String())
	}
}
