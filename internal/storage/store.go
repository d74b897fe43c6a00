package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	// Bucket drivers selectable through STORAGE_BUCKET_URL.
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/spec-kit/complaint-service/internal/config"
)

// Folders used for complaint media.
const (
	FolderComplaints = "civic_issues"
	FolderProofs     = "civic_issues/proofs"
)

// ErrObjectNotFound is returned by Read for unknown keys.
var ErrObjectNotFound = errors.New("object not found")

// Object describes an uploaded blob.
type Object struct {
	Key         string
	URL         string
	ContentType string
	Size        int64
}

// Store uploads complaint media and hands back public URLs.
type Store interface {
	Upload(ctx context.Context, folder string, data []byte, allowed ...MediaKind) (*Object, error)
	Delete(ctx context.Context, key string) error
}

// BlobStore is a Store over a gocloud.dev bucket (mem://, file://, s3://).
type BlobStore struct {
	bucket  *blob.Bucket
	baseURL string
}

// OpenBlobStore opens the bucket named by cfg.BucketURL.
func OpenBlobStore(ctx context.Context, cfg config.StorageConfig) (*BlobStore, error) {
	bucket, err := blob.OpenBucket(ctx, cfg.BucketURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", cfg.BucketURL, err)
	}
	return NewBlobStore(bucket, cfg.PublicBaseURL), nil
}

// NewBlobStore wraps an already opened bucket.
func NewBlobStore(bucket *blob.Bucket, publicBaseURL string) *BlobStore {
	return &BlobStore{bucket: bucket, baseURL: strings.TrimRight(publicBaseURL, "/")}
}

// Upload sniffs data, rejects kinds outside allowed, and writes it under folder with a fresh key.
func (s *BlobStore) Upload(ctx context.Context, folder string, data []byte, allowed ...MediaKind) (*Object, error) {
	media, err := Sniff(data, allowed...)
	if err != nil {
		return nil, err
	}

	key := path.Join(sanitizeKey(folder), uuid.NewString()+media.Extension)
	if err := s.bucket.WriteAll(ctx, key, data, &blob.WriterOptions{ContentType: media.ContentType}); err != nil {
		return nil, fmt.Errorf("write %s: %w", key, err)
	}
	return &Object{
		Key:         key,
		URL:         s.URL(key),
		ContentType: media.ContentType,
		Size:        int64(len(data)),
	}, nil
}

// Delete removes key; deleting a missing key is not an error.
func (s *BlobStore) Delete(ctx context.Context, key string) error {
	err := s.bucket.Delete(ctx, sanitizeKey(key))
	if gcerrors.Code(err) == gcerrors.NotFound {
		return nil
	}
	return err
}

// Read returns the object bytes and content type.
func (s *BlobStore) Read(ctx context.Context, key string) ([]byte, string, error) {
	key = sanitizeKey(key)
	attrs, err := s.bucket.Attributes(ctx, key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, "", ErrObjectNotFound
		}
		return nil, "", err
	}
	data, err := s.bucket.ReadAll(ctx, key)
	if err != nil {
		return nil, "", err
	}
	return data, attrs.ContentType, nil
}

// URL builds the public URL of key.
func (s *BlobStore) URL(key string) string {
	return s.baseURL + "/" + key
}

// Ping checks that the bucket is reachable.
func (s *BlobStore) Ping(ctx context.Context) error {
	ok, err := s.bucket.IsAccessible(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("bucket not accessible")
	}
	return nil
}

// Close releases the bucket.
func (s *BlobStore) Close() error {
	return s.bucket.Close()
}

// sanitizeKey prevents path traversal.
func sanitizeKey(key string) string {
	key = strings.TrimLeft(strings.ReplaceAll(key, "\\", "/"), "/")
	parts := strings.Split(key, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" || p == "." || p == ".." {
			continue
		}
		out = append(out, p)
	}
	return strings.Join(out, "/")
}
