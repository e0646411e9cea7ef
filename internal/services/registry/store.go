package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/benvon/checkin-insights/internal/models"
)

// ErrArtifactNotFound is returned by stores that have no artifact for a type.
// It is the expected steady state for most types and is not a fault.
var ErrArtifactNotFound = errors.New("model artifact not found")

// ArtifactStore loads model artifacts by prediction type
type ArtifactStore interface {
	Load(ctx context.Context, t models.PredictionType) (Model, error)
}

// FileStore reads artifacts from <dir>/<type>.json
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at dir
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Load implements ArtifactStore
func (s *FileStore) Load(ctx context.Context, t models.PredictionType) (Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := filepath.Join(s.dir, string(t)+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrArtifactNotFound
		}
		return nil, fmt.Errorf("failed to read model artifact %s: %w", path, err)
	}
	return ParseArtifact(data)
}

// NoopStore has no artifacts. Every type resolves to the heuristic path.
type NoopStore struct{}

// Load implements ArtifactStore
func (NoopStore) Load(context.Context, models.PredictionType) (Model, error) {
	return nil, ErrArtifactNotFound
}
