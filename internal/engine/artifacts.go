package engine

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/artisthq/exportd/constants"
	"github.com/artisthq/exportd/internal/common"
)

// ArtifactStore owns the directory of export artifacts: one file per
// completed job, named by export ID. In-flight jobs write to a .partial
// file that is promoted on success and removed on any failure, so a
// reachable artifact is always a complete one.
type ArtifactStore struct {
	dir string
}

func NewArtifactStore(dir string) (*ArtifactStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create artifact dir: %v", common.ErrSink, err)
	}
	return &ArtifactStore{dir: dir}, nil
}

func (s *ArtifactStore) finalPath(id uuid.UUID, format constants.Format) string {
	return filepath.Join(s.dir, id.String()+format.Extension())
}

func (s *ArtifactStore) partialPath(id uuid.UUID, format constants.Format) string {
	return s.finalPath(id, format) + ".partial"
}

// Create opens the partial file for writing.
func (s *ArtifactStore) Create(id uuid.UUID, format constants.Format) (*os.File, error) {
	f, err := os.Create(s.partialPath(id, format))
	if err != nil {
		return nil, fmt.Errorf("%w: create artifact: %v", common.ErrSink, err)
	}
	return f, nil
}

// Promote renames the partial file to its final name and returns the path.
func (s *ArtifactStore) Promote(id uuid.UUID, format constants.Format) (string, error) {
	final := s.finalPath(id, format)
	if err := os.Rename(s.partialPath(id, format), final); err != nil {
		return "", fmt.Errorf("%w: promote artifact: %v", common.ErrSink, err)
	}
	return final, nil
}

// Remove deletes both the partial and final files if present.
func (s *ArtifactStore) Remove(id uuid.UUID, format constants.Format) {
	os.Remove(s.partialPath(id, format))
	os.Remove(s.finalPath(id, format))
}

// Path returns the final artifact path without checking existence.
func (s *ArtifactStore) Path(id uuid.UUID, format constants.Format) string {
	return s.finalPath(id, format)
}
