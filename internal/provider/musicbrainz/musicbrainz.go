// Package musicbrainz implements a catalog adapter for the MusicBrainz
// web service. It is the authoritative source for identifiers: ISRC
// lookup for tracks and release-group IDs for albums. MusicBrainz hosts
// no artwork.
package musicbrainz

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lumehart/cadenza/internal/provider"
	"github.com/lumehart/cadenza/internal/version"
)

const (
	defaultBaseURL = "https://musicbrainz.org/ws/2"
	searchLimit    = 20
)

var mbidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// Adapter implements provider.Adapter for MusicBrainz.
type Adapter struct {
	client  *http.Client
	logger  *slog.Logger
	baseURL string
}

// New creates a MusicBrainz adapter with the default base URL.
func New(logger *slog.Logger) *Adapter {
	return NewWithBaseURL(logger, defaultBaseURL)
}

// NewWithBaseURL creates a MusicBrainz adapter with a custom base URL (for testing).
func NewWithBaseURL(logger *slog.Logger, baseURL string) *Adapter {
	return &Adapter{
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger.With(slog.String("provider", "musicbrainz")),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Name returns the provider identifier.
func (a *Adapter) Name() provider.Name { return provider.NameMusicBrainz }

// Capabilities reports metadata-only support with no auth requirement.
func (a *Adapter) Capabilities() provider.CapabilitySet {
	return provider.CapabilitySet{Metadata: true}
}

// Available always reports true; the MusicBrainz API needs no API key.
func (a *Adapter) Available(_ context.Context) bool { return true }

// LookupByID fetches a record by globally-unique code: an ISRC for tracks,
// a release-group MBID for albums. Artists carry no global code and return
// ErrNotFound without a network call.
func (a *Adapter) LookupByID(ctx context.Context, id string, kind provider.EntityKind) (*provider.Record, error) {
	if id == "" {
		return nil, &provider.ErrNotFound{Provider: provider.NameMusicBrainz, ID: id}
	}

	switch kind {
	case provider.KindTrack:
		return a.lookupISRC(ctx, id)
	case provider.KindAlbum:
		return a.lookupReleaseGroup(ctx, id)
	default:
		return nil, &provider.ErrNotFound{Provider: provider.NameMusicBrainz, ID: id}
	}
}

func (a *Adapter) lookupISRC(ctx context.Context, isrc string) (*provider.Record, error) {
	reqURL := a.baseURL + "/isrc/" + url.PathEscape(isrc) + "?" + url.Values{
		"inc": {"artist-credits"},
		"fmt": {"json"},
	}.Encode()

	body, err := a.doRequest(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	var resp isrcResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &provider.ErrMalformedResponse{Provider: provider.NameMusicBrainz, Cause: err}
	}
	if len(resp.Recordings) == 0 {
		return nil, &provider.ErrNotFound{Provider: provider.NameMusicBrainz, ID: isrc}
	}

	rec := recordFromRecording(&resp.Recordings[0])
	rec.UniqueCode = isrc
	return &rec, nil
}

func (a *Adapter) lookupReleaseGroup(ctx context.Context, mbid string) (*provider.Record, error) {
	if !mbidPattern.MatchString(strings.ToLower(mbid)) {
		return nil, &provider.ErrNotFound{Provider: provider.NameMusicBrainz, ID: mbid}
	}

	reqURL := a.baseURL + "/release-group/" + url.PathEscape(mbid) + "?" + url.Values{
		"inc": {"artist-credits"},
		"fmt": {"json"},
	}.Encode()

	body, err := a.doRequest(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	var rg mbReleaseGroup
	if err := json.Unmarshal(body, &rg); err != nil {
		return nil, &provider.ErrMalformedResponse{Provider: provider.NameMusicBrainz, Cause: err}
	}

	rec := recordFromReleaseGroup(&rg)
	return &rec, nil
}

// Search queries MusicBrainz by name for the given entity kind.
func (a *Adapter) Search(ctx context.Context, name string, kind provider.EntityKind, hintYear int) ([]provider.Record, error) {
	if name == "" {
		return nil, nil
	}

	var endpoint, field string
	switch kind {
	case provider.KindArtist:
		endpoint, field = "/artist", "artist"
	case provider.KindAlbum:
		endpoint, field = "/release-group", "releasegroup"
	case provider.KindTrack:
		endpoint, field = "/recording", "recording"
	default:
		return nil, nil
	}

	query := fmt.Sprintf("%s:%s", field, luceneQuote(name))
	if hintYear > 0 && kind == provider.KindAlbum {
		query += fmt.Sprintf(" AND firstreleasedate:[%d TO %d]", hintYear-1, hintYear+1)
	}

	params := url.Values{
		"query": {query},
		"fmt":   {"json"},
		"limit": {strconv.Itoa(searchLimit)},
	}
	reqURL := a.baseURL + endpoint + "?" + params.Encode()

	body, err := a.doRequest(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &provider.ErrMalformedResponse{Provider: provider.NameMusicBrainz, Cause: err}
	}

	var records []provider.Record
	switch kind {
	case provider.KindArtist:
		records = make([]provider.Record, 0, len(resp.Artists))
		for i := range resp.Artists {
			records = append(records, recordFromArtist(&resp.Artists[i]))
		}
	case provider.KindAlbum:
		records = make([]provider.Record, 0, len(resp.ReleaseGroups))
		for i := range resp.ReleaseGroups {
			records = append(records, recordFromReleaseGroup(&resp.ReleaseGroups[i]))
		}
	case provider.KindTrack:
		records = make([]provider.Record, 0, len(resp.Recordings))
		for i := range resp.Recordings {
			records = append(records, recordFromRecording(&resp.Recordings[i]))
		}
	}

	a.logger.Debug("search completed",
		slog.String("query", name),
		slog.String("kind", string(kind)),
		slog.Int("results", len(records)))

	return records, nil
}

// doRequest executes an HTTP GET with standard headers.
func (a *Adapter) doRequest(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent())
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &provider.ErrUnavailable{Provider: provider.NameMusicBrainz, Cause: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	switch resp.StatusCode {
	case http.StatusOK:
		// continue
	case http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &provider.ErrNotFound{Provider: provider.NameMusicBrainz, ID: reqURL}
	case http.StatusServiceUnavailable, http.StatusTooManyRequests:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &provider.ErrUnavailable{
			Provider:   provider.NameMusicBrainz,
			Cause:      fmt.Errorf("HTTP %d", resp.StatusCode),
			RetryAfter: 2 * time.Second,
		}
	default:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &provider.ErrUnavailable{
			Provider: provider.NameMusicBrainz,
			Cause:    fmt.Errorf("unexpected HTTP %d", resp.StatusCode),
		}
	}

	return io.ReadAll(io.LimitReader(resp.Body, 512*1024))
}

func recordFromArtist(mb *mbArtist) provider.Record {
	return provider.Record{
		Provider:   provider.NameMusicBrainz,
		ProviderID: mb.ID,
		Kind:       provider.KindArtist,
		Name:       mb.Name,
	}
}

func recordFromReleaseGroup(rg *mbReleaseGroup) provider.Record {
	return provider.Record{
		Provider:   provider.NameMusicBrainz,
		ProviderID: rg.ID,
		Kind:       provider.KindAlbum,
		Name:       rg.Title,
		Artist:     creditName(rg.ArtistCredit),
		UniqueCode: rg.ID,
		Year:       yearFromDate(rg.FirstReleaseDate),
	}
}

func recordFromRecording(r *mbRecording) provider.Record {
	rec := provider.Record{
		Provider:   provider.NameMusicBrainz,
		ProviderID: r.ID,
		Kind:       provider.KindTrack,
		Name:       r.Title,
		Artist:     creditName(r.ArtistCredit),
		Year:       yearFromDate(r.FirstReleaseDate),
	}
	if len(r.ISRCs) > 0 {
		rec.UniqueCode = r.ISRCs[0]
	}
	return rec
}

// creditName joins an artist credit into a single display name. Credits
// for collaborations carry join phrases in MusicBrainz; the plain names
// are enough for matching.
func creditName(credits []artistCredit) string {
	names := make([]string, 0, len(credits))
	for _, c := range credits {
		if c.Name != "" {
			names = append(names, c.Name)
		} else if c.Artist != nil {
			names = append(names, c.Artist.Name)
		}
	}
	return strings.Join(names, " & ")
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

// luceneQuote escapes a search term for MusicBrainz's Lucene query syntax.
func luceneQuote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

func userAgent() string {
	return fmt.Sprintf("Cadenza/%s (https://github.com/lumehart/cadenza)", version.Version)
}
