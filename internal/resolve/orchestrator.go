package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/lumehart/cadenza/internal/provider"
)

// Options configures a batch run. Validation failures are fatal before any
// provider call is made.
type Options struct {
	MaxConcurrency   int
	MetadataPriority []provider.Name
	ImagePriority    []provider.Name
}

func (o Options) validate() error {
	if o.MaxConcurrency < 1 {
		return fmt.Errorf("max concurrency must be at least 1, got %d", o.MaxConcurrency)
	}
	if len(o.MetadataPriority) == 0 {
		return fmt.Errorf("metadata provider priority list is empty")
	}
	return nil
}

// BatchStats aggregates the outcomes of one batch run.
type BatchStats struct {
	Processed       int64                   `json:"processed"`
	AutoApplied     int64                   `json:"auto_applied"`
	QueuedForReview int64                   `json:"queued_for_review"`
	Unresolved      int64                   `json:"unresolved"`
	Errors          int64                   `json:"errors"`
	ImagesFound     int64                   `json:"images_found"`
	ProviderHits    map[provider.Name]int64 `json:"provider_hits,omitempty"`
}

// counters accumulates statistics safely under concurrent workers.
type counters struct {
	processed       atomic.Int64
	autoApplied     atomic.Int64
	queuedForReview atomic.Int64
	unresolved      atomic.Int64
	errors          atomic.Int64
	imagesFound     atomic.Int64

	mu   sync.Mutex
	hits map[provider.Name]int64
}

func (c *counters) hit(name provider.Name) {
	if name == "" {
		return
	}
	c.mu.Lock()
	c.hits[name]++
	c.mu.Unlock()
}

func (c *counters) snapshot() *BatchStats {
	c.mu.Lock()
	hits := make(map[provider.Name]int64, len(c.hits))
	for k, v := range c.hits {
		hits[k] = v
	}
	c.mu.Unlock()

	return &BatchStats{
		Processed:       c.processed.Load(),
		AutoApplied:     c.autoApplied.Load(),
		QueuedForReview: c.queuedForReview.Load(),
		Unresolved:      c.unresolved.Load(),
		Errors:          c.errors.Load(),
		ImagesFound:     c.imagesFound.Load(),
		ProviderHits:    hits,
	}
}

// Orchestrator drives the resolution and image cascades over a batch of
// pending entities with bounded concurrency, per-provider rate limiting,
// in-flight deduplication and per-item failure tolerance.
type Orchestrator struct {
	cascade *Cascade
	images  *ImageRegistry
	logger  *slog.Logger
}

// NewOrchestrator creates a batch orchestrator.
func NewOrchestrator(cascade *Cascade, images *ImageRegistry, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		cascade: cascade,
		images:  images,
		logger:  logger.With(slog.String("component", "orchestrator")),
	}
}

// RunBatch processes the batch, invoking apply once per processed entity.
// A single entity's failure (including a panic in apply) is counted as an
// error and processing continues. Cancellation is cooperative: in-flight
// entities finish, no new entity is started, and the partial statistics
// are still returned.
func (o *Orchestrator) RunBatch(ctx context.Context, entities []Entity, opts Options, apply ApplyFunc) (*BatchStats, error) {
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("invalid batch options: %w", err)
	}
	if apply == nil {
		return nil, fmt.Errorf("invalid batch options: apply callback is required")
	}

	stats := &counters{hits: make(map[provider.Name]int64)}
	sem := semaphore.NewWeighted(int64(opts.MaxConcurrency))
	var wg sync.WaitGroup

	// Deduplicate: the same entity is never resolved twice concurrently
	// within one batch.
	inFlight := make(map[string]bool, len(entities))

	for i := range entities {
		if ctx.Err() != nil {
			o.logger.Info("batch canceled, not starting remaining entities",
				slog.Int("remaining", len(entities)-i))
			break
		}

		e := entities[i]
		if e.ID == "" || inFlight[e.ID] {
			continue
		}
		inFlight[e.ID] = true

		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			o.processOne(ctx, e, opts, apply, stats)
		}()
	}

	wg.Wait()

	result := stats.snapshot()
	o.logger.Info("batch completed",
		slog.Int64("processed", result.Processed),
		slog.Int64("auto_applied", result.AutoApplied),
		slog.Int64("queued_for_review", result.QueuedForReview),
		slog.Int64("unresolved", result.Unresolved),
		slog.Int64("errors", result.Errors))

	return result, nil
}

// processOne resolves a single entity and applies the outcome. Panics are
// recovered into the error tally so a bad entity never aborts the batch.
func (o *Orchestrator) processOne(ctx context.Context, e Entity, opts Options, apply ApplyFunc, stats *counters) {
	defer func() {
		if r := recover(); r != nil {
			stats.processed.Add(1)
			stats.errors.Add(1)
			o.logger.Error("panic while processing entity",
				slog.String("entity", e.ID),
				slog.Any("panic", r))
		}
	}()

	outcome := o.cascade.Resolve(ctx, e, opts.MetadataPriority)

	if !e.HasImage && len(opts.ImagePriority) > 0 {
		url, imgProvider, imgErrs := o.images.Resolve(ctx, e, opts.ImagePriority)
		outcome.Errors = append(outcome.Errors, imgErrs...)
		if url != "" {
			outcome.ImageURL = url
			stats.imagesFound.Add(1)
			stats.hit(imgProvider)
		}
	}

	if err := apply(e.ID, outcome); err != nil {
		stats.processed.Add(1)
		stats.errors.Add(1)
		o.logger.Warn("applying outcome failed",
			slog.String("entity", e.ID),
			slog.String("error", err.Error()))
		return
	}

	stats.processed.Add(1)
	switch outcome.Status {
	case StatusResolved:
		stats.autoApplied.Add(1)
	case StatusCandidate:
		stats.queuedForReview.Add(1)
	case StatusUnresolved:
		stats.unresolved.Add(1)
	case StatusError:
		stats.errors.Add(1)
	}
	if outcome.Best != nil {
		stats.hit(outcome.Best.Provider)
	}
}
