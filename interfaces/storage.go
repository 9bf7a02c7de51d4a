package interfaces

import (
	"context"
	"errors"
	"fmt"
	"net/url"
)

// ArtifactKind indicates the storage namespace for a provisioning
// artifact produced during personalization.
type ArtifactKind int

const (
	// PersoOutputArtifact is the full personalization output record.
	PersoOutputArtifact ArtifactKind = iota
	// WrappedTokenArtifact is the device-wrapped RMA unlock token.
	WrappedTokenArtifact
	// DeviceCertArtifact is a device-generated certificate.
	DeviceCertArtifact
)

// String returns the kind name used as a storage prefix.
func (k ArtifactKind) String() string {
	switch k {
	case PersoOutputArtifact:
		return "perso"
	case WrappedTokenArtifact:
		return "rma_token"
	case DeviceCertArtifact:
		return "certs"
	default:
		return "unknown"
	}
}

// ArtifactLocation represents a URI for an artifact storage backend.
type ArtifactLocation struct {
	Raw    string     // Original URI
	Scheme string     // Protocol
	Host   string     // Hostname (bucket for s3)
	Path   string     // Resource path
	Query  url.Values // Query parameters
}

// NewArtifactLocation creates a storage location from a URI string with
// validation. Supported schemes: file://, s3://.
func NewArtifactLocation(uri string) (ArtifactLocation, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return ArtifactLocation{}, fmt.Errorf("%w: %v", ErrInvalidLocationURI, err)
	}

	switch parsed.Scheme {
	case "file", "s3":
		// Valid scheme
	default:
		return ArtifactLocation{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidLocationURI, parsed.Scheme)
	}

	return ArtifactLocation{
		Raw:    uri,
		Scheme: parsed.Scheme,
		Host:   parsed.Host,
		Path:   parsed.Path,
		Query:  parsed.Query(),
	}, nil
}

// String returns the original URI string.
func (loc ArtifactLocation) String() string {
	return loc.Raw
}

// GetParam returns a query parameter value.
func (loc ArtifactLocation) GetParam(name string) string {
	return loc.Query.Get(name)
}

var (
	// ErrInvalidLocationURI is returned for malformed or unsupported
	// artifact storage URIs.
	ErrInvalidLocationURI = errors.New("invalid artifact storage URI")

	// ErrBackendUnavailable is returned when a storage backend is not
	// accessible.
	ErrBackendUnavailable = errors.New("artifact storage backend unavailable")
)

// ArtifactStorage persists per-device provisioning artifacts. Artifacts
// are keyed by device identifier and kind; Store returns the concrete
// location the artifact was written to.
type ArtifactStorage interface {
	// Store saves an artifact and returns its final location.
	Store(ctx context.Context, deviceID string, kind ArtifactKind, data []byte) (string, error)

	// Available checks if the backend is accessible.
	Available(ctx context.Context) bool

	// Name returns an identifier for logging.
	Name() string

	// LocationURI returns the URI identifying this backend.
	LocationURI() string
}
