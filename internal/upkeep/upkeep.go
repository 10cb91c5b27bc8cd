// Package upkeep keeps the catalog database healthy during long-running
// watch deployments: periodic PRAGMA optimize with WAL checkpoints, and
// optional VACUUM INTO snapshots with count- and age-based retention.
package upkeep

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// snapshotPattern matches snapshot filenames: cadenza-YYYYMMDD-HHMMSS.db
var snapshotPattern = regexp.MustCompile(`^cadenza-\d{8}-\d{6}\.db$`)

// Snapshot describes a database snapshot file on disk.
type Snapshot struct {
	Filename  string
	Size      int64
	CreatedAt time.Time
}

// Options configures the upkeep service.
type Options struct {
	// SnapshotDir is where VACUUM INTO snapshots are written. Empty
	// disables snapshots entirely.
	SnapshotDir string
	// Retention is the number of snapshots kept by Prune.
	Retention int
	// MaxAgeDays prunes snapshots older than this many days. Zero
	// disables age-based pruning.
	MaxAgeDays int
}

// Service runs database upkeep against the catalog database.
type Service struct {
	db     *sql.DB
	dbPath string
	opts   Options
	logger *slog.Logger

	mu           sync.Mutex
	lastOptimize time.Time
}

// NewService creates an upkeep service for the database at dbPath.
func NewService(db *sql.DB, dbPath string, opts Options, logger *slog.Logger) *Service {
	return &Service{
		db:     db,
		dbPath: dbPath,
		opts:   opts,
		logger: logger.With(slog.String("component", "upkeep")),
	}
}

// Status holds a point-in-time view of database health.
type Status struct {
	DBFileSize   int64
	WALFileSize  int64
	PageCount    int64
	PageSize     int64
	LastOptimize time.Time
}

// Status reports file sizes and page statistics for the catalog database.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	st := &Status{}

	if info, err := os.Stat(s.dbPath); err == nil {
		st.DBFileSize = info.Size()
	}
	if info, err := os.Stat(s.dbPath + "-wal"); err == nil {
		st.WALFileSize = info.Size()
	}

	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&st.PageCount); err != nil {
		return nil, fmt.Errorf("reading page_count: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&st.PageSize); err != nil {
		return nil, fmt.Errorf("reading page_size: %w", err)
	}

	s.mu.Lock()
	st.LastOptimize = s.lastOptimize
	s.mu.Unlock()

	return st, nil
}

// Optimize runs PRAGMA optimize followed by a WAL checkpoint.
func (s *Service) Optimize(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA optimize"); err != nil {
		return fmt.Errorf("PRAGMA optimize: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("WAL checkpoint: %w", err)
	}

	s.mu.Lock()
	s.lastOptimize = time.Now().UTC()
	s.mu.Unlock()

	s.logger.Info("optimize complete")
	return nil
}

// Vacuum rebuilds the database file in place.
func (s *Service) Vacuum(ctx context.Context) error {
	s.logger.Info("running VACUUM")
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("VACUUM: %w", err)
	}
	return nil
}

// Snapshot writes a consistent copy of the database via VACUUM INTO.
func (s *Service) Snapshot(ctx context.Context) (*Snapshot, error) {
	if s.opts.SnapshotDir == "" {
		return nil, fmt.Errorf("snapshot directory not configured")
	}
	if err := os.MkdirAll(s.opts.SnapshotDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating snapshot directory: %w", err)
	}

	now := time.Now().UTC()
	filename := fmt.Sprintf("cadenza-%s.db", now.Format("20060102-150405"))
	dest := filepath.Join(s.opts.SnapshotDir, filename)

	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return nil, fmt.Errorf("VACUUM INTO: %w", err)
	}

	info, err := os.Stat(dest)
	if err != nil {
		return nil, fmt.Errorf("stat snapshot: %w", err)
	}

	s.logger.Info("snapshot written",
		slog.String("filename", filename),
		slog.Int64("size", info.Size()))

	return &Snapshot{Filename: filename, Size: info.Size(), CreatedAt: now}, nil
}

// ListSnapshots returns snapshot files sorted newest first.
func (s *Service) ListSnapshots() ([]Snapshot, error) {
	entries, err := os.ReadDir(s.opts.SnapshotDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading snapshot directory: %w", err)
	}

	var snaps []Snapshot
	for _, entry := range entries {
		if entry.IsDir() || !snapshotPattern.MatchString(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}

		stamp := strings.TrimSuffix(strings.TrimPrefix(entry.Name(), "cadenza-"), ".db")
		ts, err := time.Parse("20060102-150405", stamp)
		if err != nil {
			ts = info.ModTime()
		}

		snaps = append(snaps, Snapshot{
			Filename:  entry.Name(),
			Size:      info.Size(),
			CreatedAt: ts,
		})
	}

	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].CreatedAt.After(snaps[j].CreatedAt)
	})

	return snaps, nil
}

// Prune removes snapshots beyond the retention count, then any older
// than MaxAgeDays when that is set.
func (s *Service) Prune() error {
	snaps, err := s.ListSnapshots()
	if err != nil {
		return err
	}

	if s.opts.Retention > 0 && len(snaps) > s.opts.Retention {
		for _, snap := range snaps[s.opts.Retention:] {
			s.removeSnapshot(snap.Filename, "retention")
		}
		snaps = snaps[:s.opts.Retention]
	}

	if s.opts.MaxAgeDays > 0 {
		cutoff := time.Now().UTC().AddDate(0, 0, -s.opts.MaxAgeDays)
		for _, snap := range snaps {
			if snap.CreatedAt.Before(cutoff) {
				s.removeSnapshot(snap.Filename, "max age")
			}
		}
	}

	return nil
}

func (s *Service) removeSnapshot(filename, reason string) {
	if !snapshotPattern.MatchString(filename) {
		return
	}
	path := filepath.Join(s.opts.SnapshotDir, filename)
	if err := os.Remove(path); err != nil {
		s.logger.Warn("removing snapshot",
			slog.String("filename", filename),
			slog.Any("error", err))
		return
	}
	s.logger.Info("pruned snapshot",
		slog.String("filename", filename),
		slog.String("reason", reason))
}

// Run executes optimize and snapshot cycles on their intervals until the
// context is canceled. A zero snapshotEvery disables snapshots.
func (s *Service) Run(ctx context.Context, optimizeEvery, snapshotEvery time.Duration) {
	s.logger.Info("upkeep scheduler started",
		slog.String("optimize_interval", optimizeEvery.String()),
		slog.Bool("snapshots", snapshotEvery > 0))

	optimize := time.NewTicker(optimizeEvery)
	defer optimize.Stop()

	var snapshot <-chan time.Time
	if snapshotEvery > 0 {
		t := time.NewTicker(snapshotEvery)
		defer t.Stop()
		snapshot = t.C
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("upkeep scheduler stopped")
			return
		case <-optimize.C:
			if err := s.Optimize(ctx); err != nil {
				s.logger.Error("scheduled optimize failed", slog.Any("error", err))
			}
		case <-snapshot:
			if _, err := s.Snapshot(ctx); err != nil {
				s.logger.Error("scheduled snapshot failed", slog.Any("error", err))
				continue
			}
			if err := s.Prune(); err != nil {
				s.logger.Error("snapshot prune failed", slog.Any("error", err))
			}
		}
	}
}
