package library

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lumehart/cadenza/internal/provider"
	"github.com/lumehart/cadenza/internal/resolve"
)

const entityColumns = `id, kind, name, artist, year, unique_code, external_ids, image_url, status, confidence, matched_provider, created_at, updated_at`

// Service provides catalog data operations.
type Service struct {
	db *sql.DB
}

// NewService creates a catalog service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Create inserts a new entity. A missing status defaults to unresolved.
func (s *Service) Create(ctx context.Context, e *Entity) error {
	if e.Name == "" {
		return fmt.Errorf("entity name is required")
	}
	if !isValidKind(e.Kind) {
		return fmt.Errorf("entity kind must be one of %q, %q, %q",
			provider.KindArtist, provider.KindAlbum, provider.KindTrack)
	}
	if e.Status == "" {
		e.Status = StatusUnresolved
	}

	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now

	external, err := marshalExternalIDs(e.ExternalIDs)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entities (id, kind, name, artist, year, unique_code, external_ids, image_url, status, confidence, matched_provider, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID, string(e.Kind), e.Name, e.Artist, e.Year,
		e.UniqueCode, external, e.ImageURL,
		string(e.Status), e.Confidence, string(e.MatchedProvider),
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("creating entity: %w", err)
	}
	return nil
}

// GetByID retrieves an entity by primary key.
func (s *Service) GetByID(ctx context.Context, id string) (*Entity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE id = ?`, id)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("entity not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting entity by id: %w", err)
	}
	return e, nil
}

// ListByStatus returns entities in the given status ordered by name. A limit
// of zero means no limit.
func (s *Service) ListByStatus(ctx context.Context, status Status, limit int) ([]Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities WHERE status = ? ORDER BY name`
	args := []any{string(status)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing entities by status: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var entities []Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning entity: %w", err)
		}
		entities = append(entities, *e)
	}
	return entities, rows.Err()
}

// ListPending returns the next batch of entities awaiting enrichment in
// the engine's input shape. Errored entities stay in the pool: a transient
// provider failure must not remove an entity from future runs.
func (s *Service) ListPending(ctx context.Context, limit int) ([]resolve.Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities WHERE status IN (?, ?) ORDER BY name`
	args := []any{string(StatusUnresolved), string(StatusError)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing pending entities: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var pending []resolve.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning entity: %w", err)
		}
		pending = append(pending, e.ResolveEntity())
	}
	return pending, rows.Err()
}

// ApplyOutcome persists a resolution outcome for one entity. A resolved
// outcome copies the matched record onto the entity; a candidate outcome
// queues the match for manual review; unresolved and error outcomes only
// update the status.
func (s *Service) ApplyOutcome(ctx context.Context, entityID string, out resolve.Outcome) error {
	switch out.Status {
	case resolve.StatusResolved:
		return s.applyResolved(ctx, entityID, out)
	case resolve.StatusCandidate:
		return s.applyCandidate(ctx, entityID, out)
	case resolve.StatusUnresolved:
		return s.setStatus(ctx, entityID, StatusUnresolved, out.ImageURL)
	case resolve.StatusError:
		return s.setStatus(ctx, entityID, StatusError, out.ImageURL)
	default:
		return fmt.Errorf("unknown outcome status: %s", out.Status)
	}
}

func (s *Service) applyResolved(ctx context.Context, entityID string, out resolve.Outcome) error {
	if out.Best == nil {
		return fmt.Errorf("resolved outcome for %s has no candidate", entityID)
	}

	e, err := s.GetByID(ctx, entityID)
	if err != nil {
		return err
	}

	rec := out.Best.Record
	if e.ExternalIDs == nil {
		e.ExternalIDs = make(map[provider.Name]string)
	}
	e.ExternalIDs[out.Best.Provider] = rec.ProviderID
	external, err := marshalExternalIDs(e.ExternalIDs)
	if err != nil {
		return err
	}

	imageURL := e.ImageURL
	if imageURL == "" {
		imageURL = out.ImageURL
	}
	if imageURL == "" {
		imageURL = rec.ImageURL
	}

	year := e.Year
	if year == 0 {
		year = rec.Year
	}
	code := e.UniqueCode
	if code == "" {
		code = rec.UniqueCode
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE entities
		SET name = ?, artist = ?, year = ?, unique_code = ?, external_ids = ?,
		    image_url = ?, status = ?, confidence = ?, matched_provider = ?, updated_at = ?
		WHERE id = ?
	`,
		rec.Name, coalesce(rec.Artist, e.Artist), year, code, external,
		imageURL, string(StatusResolved), out.Best.Confidence, string(out.Best.Provider),
		time.Now().UTC().Format(time.RFC3339),
		entityID,
	)
	if err != nil {
		return fmt.Errorf("applying resolved outcome: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("entity not found: %s", entityID)
	}
	return nil
}

func (s *Service) applyCandidate(ctx context.Context, entityID string, out resolve.Outcome) error {
	if out.Best == nil {
		return fmt.Errorf("candidate outcome for %s has no candidate", entityID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC().Format(time.RFC3339)
	rec := out.Best.Record

	result, err := tx.ExecContext(ctx, `
		UPDATE entities SET status = ?, confidence = ?, updated_at = ? WHERE id = ?
	`, string(StatusNeedsReview), out.Best.Confidence, now, entityID)
	if err != nil {
		return fmt.Errorf("marking entity for review: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("entity not found: %s", entityID)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO review_candidates (id, entity_id, provider, provider_id, name, artist, year, image_url, confidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		uuid.New().String(), entityID, string(out.Best.Provider), rec.ProviderID,
		rec.Name, rec.Artist, rec.Year, rec.ImageURL, out.Best.Confidence, now,
	); err != nil {
		return fmt.Errorf("queueing review candidate: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing candidate outcome: %w", err)
	}
	return nil
}

func (s *Service) setStatus(ctx context.Context, entityID string, status Status, imageURL string) error {
	query := `UPDATE entities SET status = ?, updated_at = ? WHERE id = ?`
	args := []any{string(status), time.Now().UTC().Format(time.RFC3339), entityID}
	if imageURL != "" {
		query = `UPDATE entities SET status = ?, image_url = ?, updated_at = ? WHERE id = ?`
		args = []any{string(status), imageURL, time.Now().UTC().Format(time.RFC3339), entityID}
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating entity status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("entity not found: %s", entityID)
	}
	return nil
}

// ListReviewCandidates returns the queued candidates for an entity ordered
// by confidence, best first.
func (s *Service) ListReviewCandidates(ctx context.Context, entityID string) ([]ReviewCandidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entity_id, provider, provider_id, name, artist, year, image_url, confidence, created_at
		FROM review_candidates WHERE entity_id = ? ORDER BY confidence DESC
	`, entityID)
	if err != nil {
		return nil, fmt.Errorf("listing review candidates: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var candidates []ReviewCandidate
	for rows.Next() {
		var c ReviewCandidate
		var prov, createdAt string
		if err := rows.Scan(&c.ID, &c.EntityID, &prov, &c.ProviderID,
			&c.Name, &c.Artist, &c.Year, &c.ImageURL, &c.Confidence, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning review candidate: %w", err)
		}
		c.Provider = provider.Name(prov)
		c.CreatedAt = parseTime(createdAt)
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// ApproveCandidate applies a queued candidate to its entity, marks the
// entity resolved, and clears the entity's review queue.
func (s *Service) ApproveCandidate(ctx context.Context, candidateID string) error {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, entity_id, provider, provider_id, name, artist, year, image_url, confidence, created_at
		FROM review_candidates WHERE id = ?
	`, candidateID)

	var c ReviewCandidate
	var prov, createdAt string
	err := row.Scan(&c.ID, &c.EntityID, &prov, &c.ProviderID,
		&c.Name, &c.Artist, &c.Year, &c.ImageURL, &c.Confidence, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("review candidate not found: %s", candidateID)
	}
	if err != nil {
		return fmt.Errorf("getting review candidate: %w", err)
	}
	c.Provider = provider.Name(prov)

	e, err := s.GetByID(ctx, c.EntityID)
	if err != nil {
		return err
	}
	if e.ExternalIDs == nil {
		e.ExternalIDs = make(map[provider.Name]string)
	}
	e.ExternalIDs[c.Provider] = c.ProviderID
	external, err := marshalExternalIDs(e.ExternalIDs)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx, `
		UPDATE entities
		SET name = ?, artist = ?, year = ?, external_ids = ?, image_url = ?,
		    status = ?, confidence = ?, matched_provider = ?, updated_at = ?
		WHERE id = ?
	`,
		c.Name, coalesce(c.Artist, e.Artist), c.Year, external,
		coalesce(e.ImageURL, c.ImageURL),
		string(StatusResolved), c.Confidence, string(c.Provider), now,
		c.EntityID,
	); err != nil {
		return fmt.Errorf("applying approved candidate: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM review_candidates WHERE entity_id = ?`, c.EntityID); err != nil {
		return fmt.Errorf("clearing review queue: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing approval: %w", err)
	}
	return nil
}

// RejectCandidates removes all queued candidates for an entity and returns
// it to the unresolved pool.
func (s *Service) RejectCandidates(ctx context.Context, entityID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM review_candidates WHERE entity_id = ?`, entityID); err != nil {
		return fmt.Errorf("clearing review queue: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE entities SET status = ?, confidence = 0, updated_at = ? WHERE id = ?
	`, string(StatusUnresolved), time.Now().UTC().Format(time.RFC3339), entityID)
	if err != nil {
		return fmt.Errorf("resetting entity status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("entity not found: %s", entityID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing rejection: %w", err)
	}
	return nil
}

// CountByStatus returns entity counts keyed by status.
func (s *Service) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM entities GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counting entities by status: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	counts := make(map[Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scanning status count: %w", err)
		}
		counts[Status(status)] = count
	}
	return counts, rows.Err()
}

// scanEntity scans a database row into an Entity struct.
func scanEntity(row interface{ Scan(...any) error }) (*Entity, error) {
	var e Entity
	var kind, status, matched, external, createdAt, updatedAt string

	err := row.Scan(
		&e.ID, &kind, &e.Name, &e.Artist, &e.Year,
		&e.UniqueCode, &external, &e.ImageURL,
		&status, &e.Confidence, &matched,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Kind = provider.EntityKind(kind)
	e.Status = Status(status)
	e.MatchedProvider = provider.Name(matched)
	if external != "" && external != "{}" {
		if err := json.Unmarshal([]byte(external), &e.ExternalIDs); err != nil {
			return nil, fmt.Errorf("decoding external_ids: %w", err)
		}
	}
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)

	return &e, nil
}

func marshalExternalIDs(ids map[provider.Name]string) (string, error) {
	if len(ids) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("encoding external_ids: %w", err)
	}
	return string(data), nil
}

func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func isValidKind(k provider.EntityKind) bool {
	switch k {
	case provider.KindArtist, provider.KindAlbum, provider.KindTrack:
		return true
	default:
		return false
	}
}

// parseTime parses a time string, handling both RFC3339 and SQLite datetime formats.
func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	return time.Time{}
}
