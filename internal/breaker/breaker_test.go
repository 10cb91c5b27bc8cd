package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/lumehart/cadenza/internal/provider"
)

func newTestRegistry(t *testing.T) (*Registry, *time.Time) {
	t.Helper()
	r := NewRegistry(3, 30*time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r.SetClock(func() time.Time { return now })
	return r, &now
}

func TestCircuitOpensAfterThreshold(t *testing.T) {
	r, _ := newTestRegistry(t)
	p := provider.NameDeezer

	for i := 0; i < 3; i++ {
		if err := r.Allow(p); err != nil {
			t.Fatalf("call %d rejected while closed: %v", i+1, err)
		}
		r.RecordFailure(p)
	}

	// Fourth call is rejected without a network attempt.
	err := r.Allow(p)
	if err == nil {
		t.Fatal("expected rejection after 3 consecutive failures")
	}
	var open *ErrCircuitOpen
	if !errors.As(err, &open) {
		t.Fatalf("expected ErrCircuitOpen, got %T", err)
	}
	if open.Provider != p {
		t.Errorf("error provider = %q, want %q", open.Provider, p)
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	r, _ := newTestRegistry(t)
	p := provider.NameMusicBrainz

	r.RecordFailure(p)
	r.RecordFailure(p)
	r.RecordSuccess(p)
	r.RecordFailure(p)
	r.RecordFailure(p)

	if err := r.Allow(p); err != nil {
		t.Errorf("circuit opened early: %v", err)
	}
}

func TestHalfOpenPermitsExactlyOneTrial(t *testing.T) {
	r, now := newTestRegistry(t)
	p := provider.NameDeezer

	for i := 0; i < 3; i++ {
		r.RecordFailure(p)
	}
	if err := r.Allow(p); err == nil {
		t.Fatal("expected open circuit")
	}

	*now = now.Add(31 * time.Minute)

	if err := r.Allow(p); err != nil {
		t.Fatalf("expected trial call after cooldown, got %v", err)
	}
	if err := r.Allow(p); err == nil {
		t.Fatal("expected second call during trial to be rejected")
	}
}

func TestTrialSuccessClosesCircuit(t *testing.T) {
	r, now := newTestRegistry(t)
	p := provider.NameDeezer

	for i := 0; i < 3; i++ {
		r.RecordFailure(p)
	}
	*now = now.Add(31 * time.Minute)

	if err := r.Allow(p); err != nil {
		t.Fatalf("trial not permitted: %v", err)
	}
	r.RecordSuccess(p)

	for i := 0; i < 3; i++ {
		if err := r.Allow(p); err != nil {
			t.Fatalf("call %d rejected after circuit closed: %v", i+1, err)
		}
		r.RecordSuccess(p)
	}
}

func TestReleaseFreesTrialSlot(t *testing.T) {
	r, now := newTestRegistry(t)
	p := provider.NameDeezer

	for i := 0; i < 3; i++ {
		r.RecordFailure(p)
	}
	*now = now.Add(31 * time.Minute)

	// A trial is admitted but the call is never attempted (the caller
	// was canceled between admission and the network call).
	if err := r.Allow(p); err != nil {
		t.Fatalf("trial not permitted: %v", err)
	}
	r.Release(p)

	// The freed slot must be granted again, not rejected forever.
	if err := r.Allow(p); err != nil {
		t.Fatalf("expected trial after Release, got %v", err)
	}
	r.RecordSuccess(p)

	if err := r.Allow(p); err != nil {
		t.Errorf("circuit should be closed after trial success: %v", err)
	}
}

func TestReleaseOnClosedCircuitIsNoOp(t *testing.T) {
	r, _ := newTestRegistry(t)
	p := provider.NameMusicBrainz

	r.Release(p)
	if err := r.Allow(p); err != nil {
		t.Errorf("closed circuit rejected after Release: %v", err)
	}
}

func TestTrialFailureReopensWithFreshCooldown(t *testing.T) {
	r, now := newTestRegistry(t)
	p := provider.NameDeezer

	for i := 0; i < 3; i++ {
		r.RecordFailure(p)
	}
	*now = now.Add(31 * time.Minute)

	if err := r.Allow(p); err != nil {
		t.Fatalf("trial not permitted: %v", err)
	}
	r.RecordFailure(p)

	// Cooldown restarted: still open 29 minutes later.
	*now = now.Add(29 * time.Minute)
	if err := r.Allow(p); err == nil {
		t.Fatal("expected circuit still open after failed trial")
	}

	// A full cooldown after the failed trial permits another trial.
	*now = now.Add(2 * time.Minute)
	if err := r.Allow(p); err != nil {
		t.Errorf("expected trial after restarted cooldown, got %v", err)
	}
}

func TestCircuitsAreIndependent(t *testing.T) {
	r, _ := newTestRegistry(t)

	for i := 0; i < 3; i++ {
		r.RecordFailure(provider.NameDeezer)
	}

	if err := r.Allow(provider.NameDeezer); err == nil {
		t.Fatal("expected deezer circuit open")
	}
	if err := r.Allow(provider.NameMusicBrainz); err != nil {
		t.Errorf("musicbrainz circuit affected by deezer failures: %v", err)
	}
}

func TestOnOpenHook(t *testing.T) {
	r, _ := newTestRegistry(t)
	var opened []Name
	r.OnOpen(func(n Name) { opened = append(opened, n) })

	for i := 0; i < 3; i++ {
		r.RecordFailure(provider.NameDeezer)
	}

	if len(opened) != 1 || opened[0] != provider.NameDeezer {
		t.Errorf("onOpen hook calls = %v, want one call for deezer", opened)
	}
}

func TestSnapshot(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.RecordFailure(provider.NameMusicBrainz)
	r.RecordFailure(provider.NameMusicBrainz)

	snap := r.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("snapshot length = %d, want 1", len(snap))
	}
	h := snap[0]
	if h.Provider != provider.NameMusicBrainz || h.State != StateClosed || h.ConsecutiveFailures != 2 {
		t.Errorf("unexpected health snapshot: %+v", h)
	}
}
