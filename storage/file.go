package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/glaserf/opentitan/interfaces"
)

// FileBackend stores artifacts on the local filesystem, organized in a
// directory per artifact kind.
type FileBackend struct {
	baseDir     string
	log         *slog.Logger
	locationURI string
}

// NewFileBackend creates a file storage backend rooted at baseDir,
// creating it if necessary.
func NewFileBackend(baseDir string, log *slog.Logger) (*FileBackend, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FileBackend{
		baseDir:     baseDir,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", baseDir),
	}, nil
}

// Store writes the artifact to <baseDir>/<kind>/<deviceID> and returns
// the resulting path.
func (b *FileBackend) Store(ctx context.Context, deviceID string, kind interfaces.ArtifactKind, data []byte) (string, error) {
	filePath := filepath.Join(b.baseDir, kind.String(), deviceID)

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}

	b.log.Debug("Stored artifact",
		slog.String("path", filePath),
		slog.Int("size", len(data)))
	return filePath, nil
}

// Available checks that the base directory is accessible.
func (b *FileBackend) Available(ctx context.Context) bool {
	info, err := os.Stat(b.baseDir)
	return err == nil && info.IsDir()
}

// Name returns the backend identifier for logging.
func (b *FileBackend) Name() string {
	return "file"
}

// LocationURI returns the URI identifying this backend.
func (b *FileBackend) LocationURI() string {
	return b.locationURI
}
