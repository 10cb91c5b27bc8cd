// Package deezer implements a catalog adapter for Deezer's public API.
// No authentication is required. Deezer contributes fuzzy search with fan
// counts as a popularity signal, exact track lookup by ISRC, and artwork.
package deezer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lumehart/cadenza/internal/provider"
)

const (
	defaultBaseURL = "https://api.deezer.com"
	searchLimit    = 20
)

// Adapter implements provider.Adapter and provider.ImageSource for Deezer.
type Adapter struct {
	client  *http.Client
	logger  *slog.Logger
	baseURL string
}

// New creates a Deezer adapter with the default base URL.
func New(logger *slog.Logger) *Adapter {
	return NewWithBaseURL(logger, defaultBaseURL)
}

// NewWithBaseURL creates a Deezer adapter with a custom base URL (for testing).
func NewWithBaseURL(logger *slog.Logger, baseURL string) *Adapter {
	return &Adapter{
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger.With(slog.String("provider", "deezer")),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Name returns the provider identifier.
func (a *Adapter) Name() provider.Name { return provider.NameDeezer }

// Capabilities reports metadata and image support with no auth requirement.
func (a *Adapter) Capabilities() provider.CapabilitySet {
	return provider.CapabilitySet{Metadata: true, Images: true}
}

// Available always reports true; Deezer's public API needs no API key.
func (a *Adapter) Available(_ context.Context) bool { return true }

// LookupByID fetches a record by globally-unique code. Deezer supports
// exact lookup of tracks by ISRC and albums by UPC; artists have no
// global code and return ErrNotFound.
func (a *Adapter) LookupByID(ctx context.Context, id string, kind provider.EntityKind) (*provider.Record, error) {
	if id == "" {
		return nil, &provider.ErrNotFound{Provider: provider.NameDeezer, ID: id}
	}

	var reqURL string
	switch kind {
	case provider.KindTrack:
		reqURL = a.baseURL + "/track/isrc:" + url.PathEscape(id)
	case provider.KindAlbum:
		reqURL = a.baseURL + "/album/upc:" + url.PathEscape(id)
	default:
		return nil, &provider.ErrNotFound{Provider: provider.NameDeezer, ID: id}
	}

	body, err := a.doRequest(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	var result searchResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &provider.ErrMalformedResponse{Provider: provider.NameDeezer, Cause: err}
	}
	if result.ID == 0 {
		return nil, &provider.ErrNotFound{Provider: provider.NameDeezer, ID: id}
	}

	rec := recordFromResult(&result, kind)
	return &rec, nil
}

// Search queries Deezer by name for the given entity kind.
func (a *Adapter) Search(ctx context.Context, name string, kind provider.EntityKind, _ int) ([]provider.Record, error) {
	if name == "" {
		return nil, nil
	}

	var endpoint string
	switch kind {
	case provider.KindArtist:
		endpoint = "/search/artist"
	case provider.KindAlbum:
		endpoint = "/search/album"
	case provider.KindTrack:
		endpoint = "/search/track"
	default:
		return nil, nil
	}

	params := url.Values{
		"q":     {name},
		"limit": {strconv.Itoa(searchLimit)},
	}
	reqURL := a.baseURL + endpoint + "?" + params.Encode()

	body, err := a.doRequest(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &provider.ErrMalformedResponse{Provider: provider.NameDeezer, Cause: err}
	}

	records := make([]provider.Record, 0, len(resp.Data))
	for i := range resp.Data {
		records = append(records, recordFromResult(&resp.Data[i], kind))
	}

	a.logger.Debug("search completed",
		slog.String("query", name),
		slog.String("kind", string(kind)),
		slog.Int("results", len(records)))

	return records, nil
}

// ImageKeyProvider reports that image lookups key on Deezer's own IDs.
func (a *Adapter) ImageKeyProvider() provider.Name { return provider.NameDeezer }

// LookupImage returns the best artwork URL Deezer has for the entity.
func (a *Adapter) LookupImage(ctx context.Context, providerID, name string, kind provider.EntityKind) (string, error) {
	if providerID != "" && isDeezerID(providerID) {
		var reqURL string
		switch kind {
		case provider.KindArtist:
			reqURL = a.baseURL + "/artist/" + url.PathEscape(providerID)
		case provider.KindAlbum:
			reqURL = a.baseURL + "/album/" + url.PathEscape(providerID)
		case provider.KindTrack:
			reqURL = a.baseURL + "/track/" + url.PathEscape(providerID)
		}
		body, err := a.doRequest(ctx, reqURL)
		if err != nil {
			return "", err
		}
		var result searchResult
		if err := json.Unmarshal(body, &result); err != nil {
			return "", &provider.ErrMalformedResponse{Provider: provider.NameDeezer, Cause: err}
		}
		return imageFromResult(&result), nil
	}

	// No usable ID; fall back to a name search and take the best hit.
	records, err := a.Search(ctx, name, kind, 0)
	if err != nil {
		return "", err
	}
	for _, rec := range records {
		if rec.ImageURL != "" {
			return rec.ImageURL, nil
		}
	}
	return "", nil
}

// doRequest executes a GET request and returns the response body.
func (a *Adapter) doRequest(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &provider.ErrUnavailable{Provider: provider.NameDeezer, Cause: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	switch resp.StatusCode {
	case http.StatusOK:
		// continue
	case http.StatusNotFound:
		return nil, &provider.ErrNotFound{Provider: provider.NameDeezer, ID: reqURL}
	case http.StatusTooManyRequests:
		return nil, &provider.ErrUnavailable{
			Provider:   provider.NameDeezer,
			Cause:      fmt.Errorf("rate limited by server"),
			RetryAfter: retryAfter(resp),
		}
	default:
		return nil, &provider.ErrUnavailable{
			Provider: provider.NameDeezer,
			Cause:    fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1*1024*1024))
	if err != nil {
		return nil, &provider.ErrUnavailable{Provider: provider.NameDeezer, Cause: err}
	}

	// Deezer reports quota errors in-band with HTTP 200.
	var envelope errorResponse
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		if envelope.Error.Code == 4 { // quota exceeded
			return nil, &provider.ErrUnavailable{
				Provider: provider.NameDeezer,
				Cause:    fmt.Errorf("quota exceeded: %s", envelope.Error.Message),
			}
		}
		return nil, &provider.ErrNotFound{Provider: provider.NameDeezer, ID: reqURL}
	}

	return body, nil
}

func retryAfter(resp *http.Response) time.Duration {
	if s := resp.Header.Get("Retry-After"); s != "" {
		if secs, err := strconv.Atoi(s); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}

// recordFromResult converts a Deezer result into the normalized record shape.
func recordFromResult(r *searchResult, kind provider.EntityKind) provider.Record {
	rec := provider.Record{
		Provider:   provider.NameDeezer,
		ProviderID: strconv.Itoa(r.ID),
		Kind:       kind,
		ImageURL:   imageFromResult(r),
	}

	switch kind {
	case provider.KindArtist:
		rec.Name = r.Name
		rec.Popularity = popularityFromFans(r.NbFan)
	case provider.KindAlbum:
		rec.Name = r.Title
		rec.UniqueCode = r.UPC
		rec.Year = yearFromDate(r.ReleaseDate)
		if r.Artist != nil {
			rec.Artist = r.Artist.Name
		}
	case provider.KindTrack:
		rec.Name = r.Title
		rec.UniqueCode = r.ISRC
		if r.Artist != nil {
			rec.Artist = r.Artist.Name
		}
		if r.Album != nil {
			rec.Year = yearFromDate(r.Album.ReleaseDate)
		}
	}
	return rec
}

// popularityFromFans maps a raw fan count onto the 0-100 popularity scale
// using a log curve, so a million-fan act scores near the top without
// small acts flattening to zero.
func popularityFromFans(fans int) int {
	if fans <= 0 {
		return 0
	}
	p := int(math.Round(math.Log10(float64(fans)+1) * 100 / 7))
	if p > 100 {
		p = 100
	}
	return p
}

func yearFromDate(date string) int {
	if len(date) < 4 {
		return 0
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return year
}

// imageFromResult picks the largest artwork URL, skipping Deezer's generic
// placeholder (a URL with a double slash where the artist hash belongs).
func imageFromResult(r *searchResult) string {
	candidates := []string{r.PictureXL, r.CoverXL, r.Picture}
	if r.Album != nil {
		candidates = append(candidates, r.Album.CoverXL)
	}
	for _, u := range candidates {
		if u != "" && !isDefaultPicture(u) {
			return u
		}
	}
	return ""
}

// isDeezerID reports whether id is a numeric Deezer ID.
func isDeezerID(id string) bool {
	if id == "" {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isDefaultPicture(u string) bool {
	return strings.Contains(u, "/images/artist//") || strings.Contains(u, "/images/cover//")
}
