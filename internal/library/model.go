// Package library persists the canonical entity catalog and the manual
// review queue backing the resolution engine.
package library

import (
	"time"

	"github.com/lumehart/cadenza/internal/provider"
	"github.com/lumehart/cadenza/internal/resolve"
)

// Status tracks where an entity sits in the resolution lifecycle.
type Status string

// Entity statuses.
const (
	StatusUnresolved  Status = "unresolved"
	StatusResolved    Status = "resolved"
	StatusNeedsReview Status = "needs_review"
	StatusError       Status = "error"
)

// Entity is a canonical catalog record.
type Entity struct {
	ID              string                   `json:"id"`
	Kind            provider.EntityKind      `json:"kind"`
	Name            string                   `json:"name"`
	Artist          string                   `json:"artist,omitempty"`
	Year            int                      `json:"year,omitempty"`
	UniqueCode      string                   `json:"unique_code,omitempty"`
	ExternalIDs     map[provider.Name]string `json:"external_ids,omitempty"`
	ImageURL        string                   `json:"image_url,omitempty"`
	Status          Status                   `json:"status"`
	Confidence      float64                  `json:"confidence,omitempty"`
	MatchedProvider provider.Name            `json:"matched_provider,omitempty"`
	CreatedAt       time.Time                `json:"created_at"`
	UpdatedAt       time.Time                `json:"updated_at"`
}

// ResolveEntity converts the catalog record into the engine's input shape.
func (e *Entity) ResolveEntity() resolve.Entity {
	return resolve.Entity{
		ID:          e.ID,
		Kind:        e.Kind,
		Name:        e.Name,
		Artist:      e.Artist,
		Year:        e.Year,
		UniqueCode:  e.UniqueCode,
		ExternalIDs: e.ExternalIDs,
		HasImage:    e.ImageURL != "",
	}
}

// ReviewCandidate is a manual-review-band match awaiting a human decision.
type ReviewCandidate struct {
	ID         string        `json:"id"`
	EntityID   string        `json:"entity_id"`
	Provider   provider.Name `json:"provider"`
	ProviderID string        `json:"provider_id"`
	Name       string        `json:"name"`
	Artist     string        `json:"artist,omitempty"`
	Year       int           `json:"year,omitempty"`
	ImageURL   string        `json:"image_url,omitempty"`
	Confidence float64       `json:"confidence"`
	CreatedAt  time.Time     `json:"created_at"`
}
