package library

import (
	"context"
	"database/sql"
	"testing"

	"github.com/lumehart/cadenza/internal/database"
	"github.com/lumehart/cadenza/internal/match"
	"github.com/lumehart/cadenza/internal/provider"
	"github.com/lumehart/cadenza/internal/resolve"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestCreateAndGetByID(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	e := &Entity{
		Kind:   provider.KindArtist,
		Name:   "Radiohead",
		Artist: "",
	}
	if err := svc.Create(ctx, e); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if e.ID == "" {
		t.Fatal("expected ID to be set after Create")
	}
	if e.CreatedAt.IsZero() {
		t.Fatal("expected CreatedAt to be set")
	}

	got, err := svc.GetByID(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Name != "Radiohead" {
		t.Errorf("Name = %q, want Radiohead", got.Name)
	}
	if got.Kind != provider.KindArtist {
		t.Errorf("Kind = %q, want %q", got.Kind, provider.KindArtist)
	}
	if got.Status != StatusUnresolved {
		t.Errorf("Status = %q, want %q", got.Status, StatusUnresolved)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)

	_, err := svc.GetByID(context.Background(), "nonexistent")
	if err == nil {
		t.Fatal("expected error for nonexistent ID")
	}
}

func TestCreate_Validation(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	// Missing name
	err := svc.Create(ctx, &Entity{Kind: provider.KindArtist})
	if err == nil {
		t.Error("expected error for missing name")
	}

	// Invalid kind
	err = svc.Create(ctx, &Entity{Name: "Test", Kind: "playlist"})
	if err == nil {
		t.Error("expected error for invalid kind")
	}
}

func TestExternalIDsRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	e := &Entity{
		Kind: provider.KindAlbum,
		Name: "OK Computer",
		ExternalIDs: map[provider.Name]string{
			provider.NameMusicBrainz: "mbid-123",
		},
	}
	if err := svc.Create(ctx, e); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := svc.GetByID(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.ExternalIDs[provider.NameMusicBrainz] != "mbid-123" {
		t.Errorf("external IDs = %v, want musicbrainz mbid-123", got.ExternalIDs)
	}
}

func TestListPending(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	for _, name := range []string{"Charlie", "Alpha", "Bravo"} {
		e := &Entity{Kind: provider.KindArtist, Name: name}
		if err := svc.Create(ctx, e); err != nil {
			t.Fatalf("Create %s: %v", name, err)
		}
	}
	resolved := &Entity{Kind: provider.KindArtist, Name: "Done", Status: StatusResolved}
	if err := svc.Create(ctx, resolved); err != nil {
		t.Fatalf("Create resolved: %v", err)
	}

	pending, err := svc.ListPending(ctx, 0)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("pending count = %d, want 3", len(pending))
	}
	// Ordered by name
	if pending[0].Name != "Alpha" {
		t.Errorf("first pending = %q, want Alpha", pending[0].Name)
	}

	limited, err := svc.ListPending(ctx, 2)
	if err != nil {
		t.Fatalf("ListPending limited: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("limited count = %d, want 2", len(limited))
	}
}

func TestErroredEntityStaysPending(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	e := &Entity{Kind: provider.KindArtist, Name: "Portishead"}
	if err := svc.Create(ctx, e); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := svc.ApplyOutcome(ctx, e.ID, resolve.Outcome{Status: resolve.StatusError}); err != nil {
		t.Fatalf("ApplyOutcome: %v", err)
	}

	got, err := svc.GetByID(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != StatusError {
		t.Errorf("Status = %q, want %q", got.Status, StatusError)
	}

	// A transient provider failure must not remove the entity from
	// future enrichment runs.
	pending, err := svc.ListPending(ctx, 0)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != e.ID {
		t.Errorf("errored entity missing from pending pool: %+v", pending)
	}
}

func TestApplyOutcome_Resolved(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	e := &Entity{Kind: provider.KindArtist, Name: "radiohed"}
	if err := svc.Create(ctx, e); err != nil {
		t.Fatalf("Create: %v", err)
	}

	out := resolve.Outcome{
		Status: resolve.StatusResolved,
		Best: &resolve.Candidate{
			Provider:   provider.NameMusicBrainz,
			Confidence: 0.92,
			Decision:   match.DecisionAutoApply,
			Record: provider.Record{
				Provider:   provider.NameMusicBrainz,
				ProviderID: "mbid-rh",
				Kind:       provider.KindArtist,
				Name:       "Radiohead",
				Popularity: 95,
			},
		},
		ImageURL: "https://img.example/radiohead.jpg",
	}
	if err := svc.ApplyOutcome(ctx, e.ID, out); err != nil {
		t.Fatalf("ApplyOutcome: %v", err)
	}

	got, err := svc.GetByID(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != StatusResolved {
		t.Errorf("Status = %q, want resolved", got.Status)
	}
	if got.Name != "Radiohead" {
		t.Errorf("Name = %q, want Radiohead", got.Name)
	}
	if got.Confidence != 0.92 {
		t.Errorf("Confidence = %v, want 0.92", got.Confidence)
	}
	if got.MatchedProvider != provider.NameMusicBrainz {
		t.Errorf("MatchedProvider = %q, want musicbrainz", got.MatchedProvider)
	}
	if got.ExternalIDs[provider.NameMusicBrainz] != "mbid-rh" {
		t.Errorf("external IDs = %v, want musicbrainz mbid-rh", got.ExternalIDs)
	}
	if got.ImageURL != "https://img.example/radiohead.jpg" {
		t.Errorf("ImageURL = %q, want cascade image", got.ImageURL)
	}
}

func TestApplyOutcome_Candidate(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	e := &Entity{Kind: provider.KindAlbum, Name: "In Rainbow", Artist: "Radiohead"}
	if err := svc.Create(ctx, e); err != nil {
		t.Fatalf("Create: %v", err)
	}

	out := resolve.Outcome{
		Status: resolve.StatusCandidate,
		Best: &resolve.Candidate{
			Provider:   provider.NameDeezer,
			Confidence: 0.61,
			Decision:   match.DecisionManualReview,
			Record: provider.Record{
				Provider:   provider.NameDeezer,
				ProviderID: "dz-42",
				Kind:       provider.KindAlbum,
				Name:       "In Rainbows",
				Artist:     "Radiohead",
				Year:       2007,
			},
		},
	}
	if err := svc.ApplyOutcome(ctx, e.ID, out); err != nil {
		t.Fatalf("ApplyOutcome: %v", err)
	}

	got, err := svc.GetByID(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != StatusNeedsReview {
		t.Errorf("Status = %q, want needs_review", got.Status)
	}
	// Original metadata untouched until a human approves.
	if got.Name != "In Rainbow" {
		t.Errorf("Name = %q, want original In Rainbow", got.Name)
	}

	candidates, err := svc.ListReviewCandidates(ctx, e.ID)
	if err != nil {
		t.Fatalf("ListReviewCandidates: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("candidate count = %d, want 1", len(candidates))
	}
	if candidates[0].Name != "In Rainbows" {
		t.Errorf("candidate name = %q, want In Rainbows", candidates[0].Name)
	}
}

func TestApplyOutcome_Unresolved(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	e := &Entity{Kind: provider.KindArtist, Name: "Obscure Act"}
	if err := svc.Create(ctx, e); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := svc.ApplyOutcome(ctx, e.ID, resolve.Outcome{Status: resolve.StatusUnresolved}); err != nil {
		t.Fatalf("ApplyOutcome: %v", err)
	}

	got, err := svc.GetByID(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != StatusUnresolved {
		t.Errorf("Status = %q, want unresolved", got.Status)
	}
}

func TestApplyOutcome_NotFound(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)

	err := svc.ApplyOutcome(context.Background(), "nonexistent",
		resolve.Outcome{Status: resolve.StatusUnresolved})
	if err == nil {
		t.Fatal("expected error for nonexistent entity")
	}
}

func TestApproveCandidate(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	e := &Entity{Kind: provider.KindAlbum, Name: "In Rainbow", Artist: "Radiohead"}
	if err := svc.Create(ctx, e); err != nil {
		t.Fatalf("Create: %v", err)
	}

	out := resolve.Outcome{
		Status: resolve.StatusCandidate,
		Best: &resolve.Candidate{
			Provider:   provider.NameDeezer,
			Confidence: 0.61,
			Record: provider.Record{
				ProviderID: "dz-42",
				Name:       "In Rainbows",
				Artist:     "Radiohead",
				Year:       2007,
				ImageURL:   "https://img.example/ir.jpg",
			},
		},
	}
	if err := svc.ApplyOutcome(ctx, e.ID, out); err != nil {
		t.Fatalf("ApplyOutcome: %v", err)
	}

	candidates, err := svc.ListReviewCandidates(ctx, e.ID)
	if err != nil {
		t.Fatalf("ListReviewCandidates: %v", err)
	}
	if err := svc.ApproveCandidate(ctx, candidates[0].ID); err != nil {
		t.Fatalf("ApproveCandidate: %v", err)
	}

	got, err := svc.GetByID(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != StatusResolved {
		t.Errorf("Status = %q, want resolved", got.Status)
	}
	if got.Name != "In Rainbows" {
		t.Errorf("Name = %q, want In Rainbows", got.Name)
	}
	if got.Year != 2007 {
		t.Errorf("Year = %d, want 2007", got.Year)
	}
	if got.ExternalIDs[provider.NameDeezer] != "dz-42" {
		t.Errorf("external IDs = %v, want deezer dz-42", got.ExternalIDs)
	}

	// Queue is cleared.
	remaining, err := svc.ListReviewCandidates(ctx, e.ID)
	if err != nil {
		t.Fatalf("ListReviewCandidates after approve: %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("remaining candidates = %d, want 0", len(remaining))
	}
}

func TestRejectCandidates(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	e := &Entity{Kind: provider.KindArtist, Name: "Ambiguous"}
	if err := svc.Create(ctx, e); err != nil {
		t.Fatalf("Create: %v", err)
	}

	out := resolve.Outcome{
		Status: resolve.StatusCandidate,
		Best: &resolve.Candidate{
			Provider:   provider.NameDeezer,
			Confidence: 0.55,
			Record:     provider.Record{ProviderID: "dz-9", Name: "Ambiguous Band"},
		},
	}
	if err := svc.ApplyOutcome(ctx, e.ID, out); err != nil {
		t.Fatalf("ApplyOutcome: %v", err)
	}

	if err := svc.RejectCandidates(ctx, e.ID); err != nil {
		t.Fatalf("RejectCandidates: %v", err)
	}

	got, err := svc.GetByID(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != StatusUnresolved {
		t.Errorf("Status = %q, want unresolved", got.Status)
	}

	candidates, err := svc.ListReviewCandidates(ctx, e.ID)
	if err != nil {
		t.Fatalf("ListReviewCandidates: %v", err)
	}
	if len(candidates) != 0 {
		t.Errorf("candidates = %d, want 0", len(candidates))
	}
}

func TestCountByStatus(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		e := &Entity{Kind: provider.KindArtist, Name: "Pending"}
		if err := svc.Create(ctx, e); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	done := &Entity{Kind: provider.KindArtist, Name: "Done", Status: StatusResolved}
	if err := svc.Create(ctx, done); err != nil {
		t.Fatalf("Create resolved: %v", err)
	}

	counts, err := svc.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts[StatusUnresolved] != 2 {
		t.Errorf("unresolved = %d, want 2", counts[StatusUnresolved])
	}
	if counts[StatusResolved] != 1 {
		t.Errorf("resolved = %d, want 1", counts[StatusResolved])
	}
}

func TestResolveEntityConversion(t *testing.T) {
	e := Entity{
		ID:       "id-1",
		Kind:     provider.KindTrack,
		Name:     "Karma Police",
		Artist:   "Radiohead",
		Year:     1997,
		ImageURL: "https://img.example/kp.jpg",
		ExternalIDs: map[provider.Name]string{
			provider.NameDeezer: "dz-7",
		},
	}
	re := e.ResolveEntity()
	if re.ID != "id-1" || re.Kind != provider.KindTrack {
		t.Errorf("identity fields not carried: %+v", re)
	}
	if !re.HasImage {
		t.Error("HasImage should be true when ImageURL is set")
	}
	if re.ExternalIDs[provider.NameDeezer] != "dz-7" {
		t.Errorf("external IDs not carried: %v", re.ExternalIDs)
	}
}
