package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/glaserf/opentitan/interfaces"
)

// MultiBackend fans every artifact out to all configured backends.
// Unlike a redundant read cache, provisioning artifacts must land in
// EVERY configured location: the wrapped RMA unlock token only exists
// in the received record, so a missed copy is a data loss.
type MultiBackend struct {
	backends []interfaces.ArtifactStorage
	log      *slog.Logger
}

// NewMultiBackend creates a fan-out backend over the given backends.
func NewMultiBackend(backends []interfaces.ArtifactStorage, log *slog.Logger) *MultiBackend {
	if log == nil {
		log = slog.Default()
	}
	return &MultiBackend{
		backends: backends,
		log:      log,
	}
}

// Store writes the artifact to every backend and fails if any write
// fails. The returned location is the first backend's.
func (m *MultiBackend) Store(ctx context.Context, deviceID string, kind interfaces.ArtifactKind, data []byte) (string, error) {
	var firstLocation string
	var errs []error

	for _, backend := range m.backends {
		location, err := backend.Store(ctx, deviceID, kind, data)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
			m.log.Error("Failed to store artifact",
				slog.String("backend_name", backend.Name()),
				slog.String("device_id", deviceID),
				slog.String("kind", kind.String()),
				"err", err)
			continue
		}
		if firstLocation == "" {
			firstLocation = location
		}
		m.log.Info("Stored artifact",
			slog.String("backend_name", backend.Name()),
			slog.String("device_id", deviceID),
			slog.String("kind", kind.String()),
			slog.String("location", location))
	}

	if len(errs) > 0 {
		return "", fmt.Errorf("%d of %d artifact backends failed: %v", len(errs), len(m.backends), errs)
	}
	if firstLocation == "" {
		return "", fmt.Errorf("no artifact backends configured")
	}
	return firstLocation, nil
}

// Available reports whether every backend is available. A run should
// not start if any configured artifact destination is unreachable.
func (m *MultiBackend) Available(ctx context.Context) bool {
	if len(m.backends) == 0 {
		return false
	}
	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			return false
		}
	}
	return true
}

// Name returns the backend identifier for logging.
func (m *MultiBackend) Name() string {
	return "multi-storage"
}

// LocationURI returns the combined URI of all backends.
func (m *MultiBackend) LocationURI() string {
	var locations []string
	for _, backend := range m.backends {
		locations = append(locations, backend.LocationURI())
	}
	return "multi:[" + strings.Join(locations, ",") + "]"
}
