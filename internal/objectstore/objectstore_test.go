package objectstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestArtifactKeysWithoutUser(t *testing.T) {
	if got := AudioKey("ep-1", ""); got != "audio/ep-1.mp3" {
		t.Errorf("unexpected audio key: %q", got)
	}
	if got := TranscriptKey("ep-1", ""); got != "transcripts/ep-1.json" {
		t.Errorf("unexpected transcript key: %q", got)
	}
	if got := ChapterKey("ep-1", ""); got != "vtt/ep-1.vtt" {
		t.Errorf("unexpected chapter key: %q", got)
	}
}

func TestArtifactKeysWithUserPrefix(t *testing.T) {
	if got := AudioKey("ep-1", "user-9"); got != "users/user-9/audio/ep-1.mp3" {
		t.Errorf("unexpected prefixed audio key: %q", got)
	}
}

func TestLocalStorePutWritesFileAndReturnsURL(t *testing.T) {
	dir := t.TempDir()
	store := NewLocalStore(dir, "https://cdn.example.com")

	url, err := store.Put(context.Background(), AudioKey("ep-1", ""), strings.NewReader("fake mp3 bytes"), "audio/mpeg")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if url != "https://cdn.example.com/audio/ep-1.mp3" {
		t.Errorf("unexpected url: %q", url)
	}

	body, err := os.ReadFile(filepath.Join(dir, "audio", "ep-1.mp3"))
	if err != nil {
		t.Fatalf("read written file: %v", err)
	}
	if string(body) != "fake mp3 bytes" {
		t.Errorf("unexpected file contents: %q", body)
	}
}

func TestLocalStorePutCreatesNestedUserDirectories(t *testing.T) {
	dir := t.TempDir()
	store := NewLocalStore(dir, "https://cdn.example.com")

	url, err := store.Put(context.Background(), TranscriptKey("ep-2", "user-1"), strings.NewReader("[]"), "application/json")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if url != "https://cdn.example.com/users/user-1/transcripts/ep-2.json" {
		t.Errorf("unexpected url: %q", url)
	}
	if _, err := os.Stat(filepath.Join(dir, "users", "user-1", "transcripts", "ep-2.json")); err != nil {
		t.Errorf("expected nested file to exist: %v", err)
	}
}
