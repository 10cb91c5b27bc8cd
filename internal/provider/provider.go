package provider

import (
	"context"
	"fmt"
	"time"
)

// Name uniquely identifies a catalog provider.
type Name string

// Known provider names.
const (
	NameMusicBrainz Name = "musicbrainz"
	NameDeezer      Name = "deezer"
	NameFanartTV    Name = "fanarttv"
)

// AllNames returns all known provider names in display order.
func AllNames() []Name {
	return []Name{NameMusicBrainz, NameDeezer, NameFanartTV}
}

// DisplayName returns a human-readable name for the provider.
func (n Name) DisplayName() string {
	switch n {
	case NameMusicBrainz:
		return "MusicBrainz"
	case NameDeezer:
		return "Deezer"
	case NameFanartTV:
		return "Fanart.tv"
	default:
		return string(n)
	}
}

// EntityKind classifies the kind of catalog entity a record describes.
type EntityKind string

// Known entity kinds.
const (
	KindArtist EntityKind = "artist"
	KindAlbum  EntityKind = "album"
	KindTrack  EntityKind = "track"
)

// CapabilitySet describes what a provider adapter can do.
type CapabilitySet struct {
	Metadata     bool `json:"metadata"`
	Images       bool `json:"images"`
	RequiresAuth bool `json:"requires_auth"`
}

// Record is the ephemeral, read-only result of a provider query. It exists
// only within a single resolution attempt and is never persisted.
type Record struct {
	Provider   Name       `json:"provider"`
	ProviderID string     `json:"provider_id"`
	Kind       EntityKind `json:"kind"`
	Name       string     `json:"name"`
	Artist     string     `json:"artist,omitempty"`
	// UniqueCode is a globally-unique identifier when the provider reports
	// one: an ISRC for tracks, a release-group ID for albums.
	UniqueCode string `json:"unique_code,omitempty"`
	Popularity int    `json:"popularity,omitempty"`
	Year       int    `json:"year,omitempty"`
	ImageURL   string `json:"image_url,omitempty"`
}

// Adapter is the interface every catalog or image source implements.
// Adapters must not retry or sleep; resilience is applied by the circuit
// breaker registry and the batch orchestrator.
type Adapter interface {
	// Name returns the unique provider identifier.
	Name() Name

	// Capabilities reports what this adapter supports.
	Capabilities() CapabilitySet

	// Available is a cheap auth/health check with no retry. Adapters that
	// require an API key report false until one is configured.
	Available(ctx context.Context) bool

	// LookupByID fetches a record by a globally-unique code (ISRC,
	// release-group ID). Returns ErrNotFound when the provider has no
	// match or does not support exact-ID lookup for the given kind.
	LookupByID(ctx context.Context, id string, kind EntityKind) (*Record, error)

	// Search queries the provider by name. hintYear is 0 when unknown.
	// Result counts are bounded by the adapter (at most 20).
	Search(ctx context.Context, name string, kind EntityKind, hintYear int) ([]Record, error)
}

// ImageSource is an optional interface for adapters that can resolve a
// representative image for an entity.
type ImageSource interface {
	Adapter

	// ImageKeyProvider names the provider whose external ID LookupImage
	// keys on. Most sources key on their own IDs; Fanart.tv keys on
	// MusicBrainz MBIDs.
	ImageKeyProvider() Name

	// LookupImage returns the URL of the best image the provider has for
	// the entity, or an empty string when none is available. providerID
	// is the entity's external ID for ImageKeyProvider, empty when the
	// entity has none.
	LookupImage(ctx context.Context, providerID, name string, kind EntityKind) (string, error)
}

// ErrUnavailable indicates a transient failure (rate-limited, timeout,
// server error). It counts against the provider's circuit.
type ErrUnavailable struct {
	Provider   Name
	Cause      error
	RetryAfter time.Duration
}

func (e *ErrUnavailable) Error() string {
	return fmt.Sprintf("provider %s unavailable: %v", e.Provider, e.Cause)
}

func (e *ErrUnavailable) Unwrap() error { return e.Cause }

// ErrNotFound indicates the provider has no data for the requested ID.
type ErrNotFound struct {
	Provider Name
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("provider %s: %s not found", e.Provider, e.ID)
}

// ErrAuthRequired indicates the provider needs an API key but none is
// configured. Treated as transient; Available reports false until the
// caller supplies credentials.
type ErrAuthRequired struct {
	Provider Name
}

func (e *ErrAuthRequired) Error() string {
	return fmt.Sprintf("provider %s: API key not configured", e.Provider)
}

// ErrMalformedResponse indicates a single record in a provider response
// could not be decoded. The record is discarded; the search continues.
type ErrMalformedResponse struct {
	Provider Name
	Cause    error
}

func (e *ErrMalformedResponse) Error() string {
	return fmt.Sprintf("provider %s: malformed response: %v", e.Provider, e.Cause)
}

func (e *ErrMalformedResponse) Unwrap() error { return e.Cause }
