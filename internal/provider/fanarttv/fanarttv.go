// Package fanarttv implements an image-only adapter for Fanart.tv. It has
// no search and needs a personal API key; without one Available reports
// false and the image cascade skips it.
package fanarttv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lumehart/cadenza/internal/provider"
)

const defaultBaseURL = "https://webservice.fanart.tv/v3/music"

// Adapter implements provider.Adapter and provider.ImageSource for Fanart.tv.
type Adapter struct {
	client  *http.Client
	logger  *slog.Logger
	baseURL string
	apiKey  string
}

// New creates a Fanart.tv adapter with the default base URL.
func New(apiKey string, logger *slog.Logger) *Adapter {
	return NewWithBaseURL(apiKey, logger, defaultBaseURL)
}

// NewWithBaseURL creates a Fanart.tv adapter with a custom base URL (for testing).
func NewWithBaseURL(apiKey string, logger *slog.Logger, baseURL string) *Adapter {
	return &Adapter{
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger.With(slog.String("provider", "fanarttv")),
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

// Name returns the provider identifier.
func (a *Adapter) Name() provider.Name { return provider.NameFanartTV }

// Capabilities reports image-only support behind an API key.
func (a *Adapter) Capabilities() provider.CapabilitySet {
	return provider.CapabilitySet{Images: true, RequiresAuth: true}
}

// Available reports false until an API key is configured.
func (a *Adapter) Available(_ context.Context) bool { return a.apiKey != "" }

// LookupByID is unsupported; Fanart.tv serves images only.
func (a *Adapter) LookupByID(_ context.Context, id string, _ provider.EntityKind) (*provider.Record, error) {
	return nil, &provider.ErrNotFound{Provider: provider.NameFanartTV, ID: id}
}

// Search is unsupported; Fanart.tv has no search endpoint.
func (a *Adapter) Search(_ context.Context, _ string, _ provider.EntityKind, _ int) ([]provider.Record, error) {
	return nil, nil
}

// ImageKeyProvider reports that image lookups key on MusicBrainz IDs:
// artist MBID for artists, release-group MBID for albums.
func (a *Adapter) ImageKeyProvider() provider.Name { return provider.NameMusicBrainz }

// LookupImage returns the best-liked artwork for the entity. Tracks have
// no artwork on Fanart.tv.
func (a *Adapter) LookupImage(ctx context.Context, providerID, _ string, kind provider.EntityKind) (string, error) {
	if a.apiKey == "" {
		return "", &provider.ErrAuthRequired{Provider: provider.NameFanartTV}
	}
	if providerID == "" || kind == provider.KindTrack {
		return "", nil
	}

	body, err := a.doRequest(ctx, a.baseURL+"/"+url.PathEscape(providerID))
	if err != nil {
		var notFound *provider.ErrNotFound
		if errors.As(err, &notFound) {
			return "", nil
		}
		return "", err
	}

	switch kind {
	case provider.KindArtist:
		var resp artistResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", &provider.ErrMalformedResponse{Provider: provider.NameFanartTV, Cause: err}
		}
		return bestImage(resp.ArtistThumb, resp.ArtistBackground), nil

	case provider.KindAlbum:
		var resp albumResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", &provider.ErrMalformedResponse{Provider: provider.NameFanartTV, Cause: err}
		}
		arts, ok := resp.Albums[providerID]
		if !ok {
			return "", nil
		}
		return bestImage(arts.AlbumCover, arts.CDArt), nil
	}
	return "", nil
}

func (a *Adapter) doRequest(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("api-key", a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &provider.ErrUnavailable{Provider: provider.NameFanartTV, Cause: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	switch resp.StatusCode {
	case http.StatusOK:
		// continue
	case http.StatusNotFound:
		return nil, &provider.ErrNotFound{Provider: provider.NameFanartTV, ID: reqURL}
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, &provider.ErrAuthRequired{Provider: provider.NameFanartTV}
	default:
		return nil, &provider.ErrUnavailable{
			Provider: provider.NameFanartTV,
			Cause:    fmt.Errorf("HTTP %d", resp.StatusCode),
		}
	}

	return io.ReadAll(io.LimitReader(resp.Body, 512*1024))
}

// bestImage picks the most-liked image across the given groups, preferring
// earlier groups on a tie.
func bestImage(groups ...[]fanartImage) string {
	var best fanartImage
	bestLikes := -1
	for _, group := range groups {
		sorted := make([]fanartImage, len(group))
		copy(sorted, group)
		sort.SliceStable(sorted, func(i, j int) bool {
			return parseLikes(sorted[i].Likes) > parseLikes(sorted[j].Likes)
		})
		if len(sorted) > 0 && parseLikes(sorted[0].Likes) > bestLikes {
			best = sorted[0]
			bestLikes = parseLikes(sorted[0].Likes)
		}
	}
	return best.URL
}

func parseLikes(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
