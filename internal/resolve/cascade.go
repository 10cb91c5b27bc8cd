package resolve

import (
	"context"
	"errors"
	"log/slog"

	"github.com/lumehart/cadenza/internal/breaker"
	"github.com/lumehart/cadenza/internal/match"
	"github.com/lumehart/cadenza/internal/provider"
)

// Cascade resolves a single entity against a prioritized list of metadata
// providers: exact-ID lookup first, then sync hints, then fuzzy search in
// priority order with weighted scoring.
type Cascade struct {
	registry   *provider.Registry
	limiter    *provider.RateLimiterMap
	breakers   *breaker.Registry
	thresholds match.Thresholds
	logger     *slog.Logger
}

// NewCascade creates a resolution cascade.
func NewCascade(registry *provider.Registry, limiter *provider.RateLimiterMap, breakers *breaker.Registry, thresholds match.Thresholds, logger *slog.Logger) *Cascade {
	return &Cascade{
		registry:   registry,
		limiter:    limiter,
		breakers:   breakers,
		thresholds: thresholds,
		logger:     logger.With(slog.String("component", "cascade")),
	}
}

// Resolve runs the full cascade for one entity. Provider failures are
// recorded against the circuit breaker and collected on the outcome; they
// never abort the cascade.
func (c *Cascade) Resolve(ctx context.Context, e Entity, priorities []provider.Name) Outcome {
	var outcome Outcome

	// Stage 1: exact-ID lookup short-circuits everything else.
	if e.UniqueCode != "" {
		if cand := c.lookupExact(ctx, e, priorities, &outcome); cand != nil {
			outcome.Status = StatusResolved
			outcome.Best = cand
			return outcome
		}
	}

	// Stage 2: a followed/known relationship from a prior sync counts as
	// certain without any network call.
	if e.Hint != nil && e.Hint.ProviderID != "" {
		outcome.Status = StatusResolved
		outcome.Best = &Candidate{
			Record: provider.Record{
				Provider:   e.Hint.Provider,
				ProviderID: e.Hint.ProviderID,
				Kind:       e.Kind,
				Name:       hintName(e),
			},
			Provider:   e.Hint.Provider,
			Confidence: 1.0,
			Decision:   match.DecisionAutoApply,
			Fields:     map[string]float64{"hint": 1.0},
		}
		return outcome
	}

	// Stage 3: fuzzy search across providers in priority order, keeping
	// the single best candidate seen so far. Ties keep the earlier
	// provider.
	var best *Candidate
	for _, name := range priorities {
		adapter := c.usableAdapter(ctx, name)
		if adapter == nil {
			continue
		}

		records, err := c.search(ctx, adapter, e)
		if err != nil {
			if ctx.Err() != nil {
				// Canceled between admission and the call; the provider
				// did not fail. Free the slot and stop the cascade.
				c.breakers.Release(name)
				return c.classify(best, outcome)
			}
			c.recordFailure(name, err, &outcome)
			continue
		}
		c.breakers.RecordSuccess(name)

		for _, rec := range records {
			cand := c.score(e, rec)
			if best == nil || cand.Confidence > best.Confidence {
				best = cand
			}
		}

		// Early exit once a candidate clears auto-apply.
		if best != nil && best.Confidence >= c.thresholds.AutoApply {
			break
		}
	}

	return c.classify(best, outcome)
}

// lookupExact tries exact-ID lookup on each provider in priority order.
// Hits yield confidence 1.0. Misses and unsupported lookups move on to
// the next provider; transient failures are recorded and skipped.
func (c *Cascade) lookupExact(ctx context.Context, e Entity, priorities []provider.Name, outcome *Outcome) *Candidate {
	for _, name := range priorities {
		adapter := c.usableAdapter(ctx, name)
		if adapter == nil {
			continue
		}

		if err := c.limiter.Wait(ctx, name); err != nil {
			c.breakers.Release(name)
			return nil
		}
		rec, err := adapter.LookupByID(ctx, e.UniqueCode, e.Kind)
		if err != nil {
			var notFound *provider.ErrNotFound
			if errors.As(err, &notFound) {
				c.breakers.RecordSuccess(name)
				continue
			}
			if ctx.Err() != nil {
				c.breakers.Release(name)
				return nil
			}
			c.recordFailure(name, err, outcome)
			continue
		}
		c.breakers.RecordSuccess(name)
		if rec == nil {
			continue
		}

		c.logger.Debug("exact-ID hit",
			slog.String("provider", string(name)),
			slog.String("entity", e.ID),
			slog.String("code", e.UniqueCode))

		return &Candidate{
			Record:     *rec,
			Provider:   name,
			Confidence: 1.0,
			Decision:   match.DecisionAutoApply,
			Fields:     map[string]float64{"exact_id": 1.0},
		}
	}
	return nil
}

// usableAdapter returns the adapter for name if it is registered, reports
// itself available, and its circuit permits a call. Allow is checked last:
// it may hand out a half-open trial slot, so it must only run when the
// call will actually be attempted.
func (c *Cascade) usableAdapter(ctx context.Context, name provider.Name) provider.Adapter {
	adapter := c.registry.Get(name)
	if adapter == nil || !adapter.Capabilities().Metadata {
		return nil
	}
	if !adapter.Available(ctx) {
		c.logger.Debug("skipping provider, unavailable", slog.String("provider", string(name)))
		return nil
	}
	if err := c.breakers.Allow(name); err != nil {
		c.logger.Debug("skipping provider, circuit open", slog.String("provider", string(name)))
		return nil
	}
	return adapter
}

func (c *Cascade) search(ctx context.Context, adapter provider.Adapter, e Entity) ([]provider.Record, error) {
	if err := c.limiter.Wait(ctx, adapter.Name()); err != nil {
		return nil, err
	}
	return adapter.Search(ctx, e.Name, e.Kind, e.Year)
}

// score builds a scored candidate from a single external record.
func (c *Cascade) score(e Entity, rec provider.Record) *Candidate {
	fields := make(map[string]float64, 2)
	var confidence float64

	switch e.Kind {
	case provider.KindArtist:
		nameSim := match.Similarity(match.Normalize(e.Name), match.Normalize(rec.Name))
		fields["name"] = nameSim
		confidence = match.ScoreArtist(e.Name, rec.Name, rec.Popularity)

	case provider.KindAlbum:
		compilation := match.IsCompilationMarker(e.Artist) || match.IsCompilationMarker(rec.Artist)
		titleSim := match.Similarity(match.Normalize(e.Name), match.Normalize(rec.Name))
		fields["title"] = titleSim
		if !compilation {
			fields["artist"] = match.Similarity(match.Normalize(e.Artist), match.Normalize(rec.Artist))
		}
		confidence = match.ScoreAlbum(e.Name, e.Artist, rec.Name, rec.Artist, e.Year, rec.Year, compilation)

	case provider.KindTrack:
		fields["title"] = match.Similarity(match.Normalize(e.Name), match.Normalize(rec.Name))
		fields["artist"] = match.Similarity(match.Normalize(e.Artist), match.Normalize(rec.Artist))
		confidence = match.ScoreTrack(e.Name, e.Artist, rec.Name, rec.Artist)
	}

	return &Candidate{
		Record:     rec,
		Provider:   rec.Provider,
		Confidence: confidence,
		Decision:   match.Classify(confidence, c.thresholds),
		Fields:     fields,
	}
}

// classify turns the running best candidate into the final outcome.
func (c *Cascade) classify(best *Candidate, outcome Outcome) Outcome {
	if best == nil {
		if len(outcome.Errors) > 0 {
			outcome.Status = StatusError
		} else {
			outcome.Status = StatusUnresolved
		}
		return outcome
	}

	switch best.Decision {
	case match.DecisionAutoApply:
		outcome.Status = StatusResolved
		outcome.Best = best
	case match.DecisionManualReview:
		outcome.Status = StatusCandidate
		outcome.Best = best
	default:
		outcome.Status = StatusUnresolved
	}
	return outcome
}

func (c *Cascade) recordFailure(name provider.Name, err error, outcome *Outcome) {
	c.breakers.RecordFailure(name)
	outcome.Errors = append(outcome.Errors, ProviderError{Provider: name, Err: err})
	c.logger.Warn("provider call failed",
		slog.String("provider", string(name)),
		slog.String("error", err.Error()))
}

func hintName(e Entity) string {
	if e.Hint.Name != "" {
		return e.Hint.Name
	}
	return e.Name
}
