package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/benvon/checkin-insights/internal/models"
)

// maxArtifactBytes bounds how much of an object is read
const maxArtifactBytes = 8 << 20

// GCSStore reads artifacts from gs://<bucket>/<prefix>/<type>.json
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSStore creates a store over an existing client
func NewGCSStore(client *storage.Client, bucket, prefix string) *GCSStore {
	return &GCSStore{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

// ObjectName returns the object key for a prediction type
func (s *GCSStore) ObjectName(t models.PredictionType) string {
	if s.prefix == "" {
		return string(t) + ".json"
	}
	return path.Join(s.prefix, string(t)+".json")
}

// Load implements ArtifactStore
func (s *GCSStore) Load(ctx context.Context, t models.PredictionType) (Model, error) {
	obj := s.client.Bucket(s.bucket).Object(s.ObjectName(t))
	r, err := obj.NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
			return nil, ErrArtifactNotFound
		}
		return nil, fmt.Errorf("failed to open gs://%s/%s: %w", s.bucket, s.ObjectName(t), err)
	}
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(io.LimitReader(r, maxArtifactBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read gs://%s/%s: %w", s.bucket, s.ObjectName(t), err)
	}
	return ParseArtifact(data)
}
