// Package objectstore writes the three per-episode artifacts (audio,
// transcript, chapter file) to durable storage and returns their public
// URLs (spec §4.8/§6). Grounded on storage_service.py's
// upload_audio/upload_transcript/upload_vtt trio: the `{kind}/{episode_id}.ext`
// naming convention, the optional `users/{user_id}/` prefix, and the
// local-vs-cloud provider split (here S3 instead of GCS, since
// aws-sdk-go-v2/service/s3 is the cloud object-storage dependency
// already carried by this module's go.mod).
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectStore persists one named artifact and returns its retrievable URL.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) (url string, err error)
}

// AudioKey, TranscriptKey, and ChapterKey build the storage key for
// each artifact kind, optionally prefixed by user, matching
// storage_service.py's blob_name convention exactly.
func AudioKey(episodeID, userID string) string      { return artifactKey("audio", episodeID, "mp3", userID) }
func TranscriptKey(episodeID, userID string) string { return artifactKey("transcripts", episodeID, "json", userID) }
func ChapterKey(episodeID, userID string) string    { return artifactKey("vtt", episodeID, "vtt", userID) }

func artifactKey(kind, episodeID, ext, userID string) string {
	if userID != "" {
		return fmt.Sprintf("users/%s/%s/%s.%s", userID, kind, episodeID, ext)
	}
	return fmt.Sprintf("%s/%s.%s", kind, episodeID, ext)
}

// S3Store uploads artifacts to a bucket via aws-sdk-go-v2's S3 client
// and returns the object's public HTTPS URL.
type S3Store struct {
	client   *s3.Client
	bucket   string
	endpoint string // base URL for constructing public links, e.g. "https://bucket.s3.amazonaws.com"
}

// NewS3Store builds an S3Store. endpoint is used to build the returned
// URL; pass "" to default to the virtual-hosted-style AWS URL.
func NewS3Store(client *s3.Client, bucket, endpoint string) *S3Store {
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.s3.amazonaws.com", bucket)
	}
	return &S3Store{client: client, bucket: bucket, endpoint: endpoint}
}

// Put implements ObjectStore.
func (s *S3Store) Put(ctx context.Context, key string, r io.Reader, contentType string) (string, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("objectstore: read artifact body: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("objectstore: put object %q: %w", key, err)
	}

	return fmt.Sprintf("%s/%s", s.endpoint, key), nil
}

// LocalStore writes artifacts under a root directory, mirroring
// storage_service.py's local-storage branch. Its "URL" is a
// baseURL-prefixed relative path, useful for tests and single-machine
// deployments.
type LocalStore struct {
	rootDir string
	baseURL string
}

// NewLocalStore builds a LocalStore rooted at rootDir.
func NewLocalStore(rootDir, baseURL string) *LocalStore {
	return &LocalStore{rootDir: rootDir, baseURL: baseURL}
}

// Put implements ObjectStore.
func (s *LocalStore) Put(ctx context.Context, key string, r io.Reader, contentType string) (string, error) {
	path := filepath.Join(s.rootDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("objectstore: create directory for %q: %w", key, err)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("objectstore: create file for %q: %w", key, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return "", fmt.Errorf("objectstore: write file for %q: %w", key, err)
	}

	return fmt.Sprintf("%s/%s", s.baseURL, key), nil
}
