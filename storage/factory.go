package storage

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/glaserf/opentitan/interfaces"
)

// Factory creates artifact storage backends from location URIs.
type Factory struct {
	log *slog.Logger
}

// NewFactory creates a storage backend factory.
func NewFactory(log *slog.Logger) *Factory {
	return &Factory{log: log}
}

// BackendFor creates a storage backend from a location URI.
//
// Supported schemes:
//   - file://<path> for the local filesystem
//   - s3://<bucket>/<prefix>?region=..&endpoint=..&access_key=..&secret_key=.. for S3 or compatible object storage
func (f *Factory) BackendFor(location interfaces.ArtifactLocation) (interfaces.ArtifactStorage, error) {
	switch strings.ToLower(location.Scheme) {
	case "file":
		// For file URIs the host part is the first path element.
		return NewFileBackend(location.Host+location.Path, f.log)
	case "s3":
		region := location.GetParam("region")
		if region == "" {
			region = "us-east-1"
		}
		return NewS3Backend(
			location.Host,
			strings.TrimPrefix(location.Path, "/"),
			region,
			location.GetParam("endpoint"),
			location.GetParam("access_key"),
			location.GetParam("secret_key"),
			f.log,
		)
	default:
		return nil, fmt.Errorf("%w: unsupported backend scheme %q", interfaces.ErrInvalidLocationURI, location.Scheme)
	}
}

// MultiBackendFor creates a fan-out backend from a list of URIs. All
// URIs must be valid; provisioning artifacts are not best-effort.
func (f *Factory) MultiBackendFor(locations []interfaces.ArtifactLocation) (interfaces.ArtifactStorage, error) {
	backends := make([]interfaces.ArtifactStorage, 0, len(locations))
	for _, location := range locations {
		backend, err := f.BackendFor(location)
		if err != nil {
			return nil, fmt.Errorf("artifact backend %s: %w", location, err)
		}
		backends = append(backends, backend)
	}

	if len(backends) == 0 {
		return nil, fmt.Errorf("no artifact storage locations configured")
	}
	return NewMultiBackend(backends, f.log), nil
}
