// Package resolve implements the cross-provider resolution cascade, the
// image lookup cascade, and the enrichment batch orchestrator that drives
// both over a batch of pending library entities.
package resolve

import (
	"github.com/lumehart/cadenza/internal/match"
	"github.com/lumehart/cadenza/internal/provider"
)

// Entity is the engine's view of a canonical library record awaiting
// resolution. It carries only what matching needs; persistence stays with
// the caller.
type Entity struct {
	ID     string              `json:"id"`
	Kind   provider.EntityKind `json:"kind"`
	Name   string              `json:"name"`
	Artist string              `json:"artist,omitempty"`
	Year   int                 `json:"year,omitempty"`

	// UniqueCode is a globally-unique identifier when known: an ISRC for
	// tracks, a release-group ID for albums.
	UniqueCode string `json:"unique_code,omitempty"`

	// ExternalIDs maps provider names to provider-specific IDs already
	// associated with this entity.
	ExternalIDs map[provider.Name]string `json:"external_ids,omitempty"`

	// HasImage is true when the entity already has artwork; the image
	// cascade is skipped for it.
	HasImage bool `json:"has_image"`

	// Hint is a followed/known-relationship association from a prior
	// sync. When present the entity resolves at confidence 1.0 without a
	// network call.
	Hint *Hint `json:"hint,omitempty"`
}

// Hint is a known provider relationship carried over from a prior sync.
type Hint struct {
	Provider   provider.Name `json:"provider"`
	ProviderID string        `json:"provider_id"`
	Name       string        `json:"name,omitempty"`
}

// Candidate is a scored pairing of an entity and one external record.
type Candidate struct {
	Record     provider.Record    `json:"record"`
	Provider   provider.Name      `json:"provider"`
	Confidence float64            `json:"confidence"`
	Decision   match.Decision     `json:"decision"`
	Fields     map[string]float64 `json:"fields,omitempty"`
}

// OutcomeStatus classifies the result of a resolution attempt.
type OutcomeStatus string

// Outcome statuses.
const (
	// StatusResolved means the best candidate cleared the auto-apply
	// threshold (or an exact-ID/hint match was found).
	StatusResolved OutcomeStatus = "resolved"
	// StatusCandidate means the best candidate landed in the manual
	// review band.
	StatusCandidate OutcomeStatus = "candidate"
	// StatusUnresolved means no candidate scored above the rejection
	// threshold, or no provider returned anything.
	StatusUnresolved OutcomeStatus = "unresolved"
	// StatusError means every productive path failed: no candidate was
	// produced and at least one provider call errored.
	StatusError OutcomeStatus = "error"
)

// ProviderError records a single provider's failure during a cascade.
type ProviderError struct {
	Provider provider.Name `json:"provider"`
	Err      error         `json:"-"`
}

// Outcome is the side-effect-free result of resolving one entity. The
// caller applies it (persistence, notification) through its own callback.
type Outcome struct {
	Status OutcomeStatus `json:"status"`
	Best   *Candidate    `json:"best,omitempty"`

	// ImageURL is filled by the orchestrator when the image cascade finds
	// artwork for an entity that lacked it.
	ImageURL string `json:"image_url,omitempty"`

	Errors []ProviderError `json:"errors,omitempty"`
}

// ApplyFunc is the caller-supplied decision application callback, invoked
// once per processed entity.
type ApplyFunc func(entityID string, outcome Outcome) error
