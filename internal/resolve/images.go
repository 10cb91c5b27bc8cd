package resolve

import (
	"context"
	"log/slog"

	"github.com/lumehart/cadenza/internal/breaker"
	"github.com/lumehart/cadenza/internal/provider"
)

// ImageRegistry runs the image lookup cascade: a separate priority list
// restricted to image-capable providers, with no scoring. The first
// non-empty image reference wins. It shares the circuit breaker registry
// and rate limiters with the metadata cascade but may use a different
// provider order.
type ImageRegistry struct {
	registry *provider.Registry
	limiter  *provider.RateLimiterMap
	breakers *breaker.Registry
	logger   *slog.Logger
}

// NewImageRegistry creates an image lookup cascade.
func NewImageRegistry(registry *provider.Registry, limiter *provider.RateLimiterMap, breakers *breaker.Registry, logger *slog.Logger) *ImageRegistry {
	return &ImageRegistry{
		registry: registry,
		limiter:  limiter,
		breakers: breakers,
		logger:   logger.With(slog.String("component", "image-registry")),
	}
}

// Resolve returns the first image URL any prioritized provider has for the
// entity along with the provider that served it, or an empty URL when none
// do. Provider failures are recorded against the breaker and returned, and
// the next provider is tried.
func (r *ImageRegistry) Resolve(ctx context.Context, e Entity, priorities []provider.Name) (string, provider.Name, []ProviderError) {
	var errs []ProviderError

	for _, src := range r.registry.ImageSources(priorities) {
		name := src.Name()
		if !src.Available(ctx) {
			r.logger.Debug("skipping image provider, unavailable", slog.String("provider", string(name)))
			continue
		}
		// Allow last: it may hand out a half-open trial slot, which must
		// only happen when the call will actually be attempted.
		if err := r.breakers.Allow(name); err != nil {
			r.logger.Debug("skipping image provider, circuit open", slog.String("provider", string(name)))
			continue
		}
		if err := r.limiter.Wait(ctx, name); err != nil {
			r.breakers.Release(name)
			return "", "", errs
		}

		url, err := src.LookupImage(ctx, e.ExternalIDs[src.ImageKeyProvider()], e.Name, e.Kind)
		if err != nil {
			if ctx.Err() != nil {
				r.breakers.Release(name)
				return "", "", errs
			}
			r.breakers.RecordFailure(name)
			errs = append(errs, ProviderError{Provider: name, Err: err})
			r.logger.Warn("image lookup failed",
				slog.String("provider", string(name)),
				slog.String("error", err.Error()))
			continue
		}
		r.breakers.RecordSuccess(name)

		if url != "" {
			r.logger.Debug("image found",
				slog.String("provider", string(name)),
				slog.String("entity", e.ID))
			return url, name, errs
		}
	}

	return "", "", errs
}
