package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

const uploadTimeout = 2 * time.Minute

// GCSStore keeps snapshots as objects under a bucket prefix. It relies on
// Application Default Credentials.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSStore wraps an existing storage client. The caller owns the client.
func NewGCSStore(client *storage.Client, bucket, prefix string) *GCSStore {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &GCSStore{client: client, bucket: bucket, prefix: prefix}
}

func (s *GCSStore) objectName(name string) string {
	return s.prefix + name
}

// Save uploads the snapshot and returns its gs:// URI.
func (s *GCSStore) Save(ctx context.Context, name string, data []byte) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	obj := s.client.Bucket(s.bucket).Object(s.objectName(name))
	w := obj.NewWriter(ctx)
	w.ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("copy snapshot to GCS writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize upload: %w", err)
	}

	return fmt.Sprintf("gs://%s/%s", s.bucket, s.objectName(name)), nil
}

func (s *GCSStore) Open(ctx context.Context, name string) ([]byte, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	r, err := s.client.Bucket(s.bucket).Object(s.objectName(name)).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("open GCS object reader: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read GCS object: %w", err)
	}
	return data, nil
}

func (s *GCSStore) List(ctx context.Context) ([]Entry, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: s.prefix})

	var entries []Entry
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list GCS objects: %w", err)
		}

		name := path.Base(attrs.Name)
		if !isSnapshot(name) {
			continue
		}
		entries = append(entries, Entry{
			Name:      name,
			SizeBytes: attrs.Size,
			ModTime:   attrs.Updated,
		})
	}

	sortNewestFirst(entries)
	return entries, nil
}
