package musicbrainz

// searchResponse covers the artist, release-group, and recording search
// endpoints; each populates only its own collection.
type searchResponse struct {
	Artists       []mbArtist       `json:"artists,omitempty"`
	ReleaseGroups []mbReleaseGroup `json:"release-groups,omitempty"`
	Recordings    []mbRecording    `json:"recordings,omitempty"`
	Count         int              `json:"count"`
}

// mbArtist is an artist entry from search or direct lookup.
type mbArtist struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	SortName       string `json:"sort-name"`
	Type           string `json:"type,omitempty"`
	Disambiguation string `json:"disambiguation,omitempty"`
	Country        string `json:"country,omitempty"`
	Score          int    `json:"score,omitempty"`
}

// mbReleaseGroup is a release group from search or direct lookup.
type mbReleaseGroup struct {
	ID               string         `json:"id"`
	Title            string         `json:"title"`
	PrimaryType      string         `json:"primary-type,omitempty"`
	SecondaryTypes   []string       `json:"secondary-types,omitempty"`
	FirstReleaseDate string         `json:"first-release-date,omitempty"`
	ArtistCredit     []artistCredit `json:"artist-credit,omitempty"`
	Score            int            `json:"score,omitempty"`
}

// mbRecording is a recording from search or ISRC lookup.
type mbRecording struct {
	ID               string         `json:"id"`
	Title            string         `json:"title"`
	FirstReleaseDate string         `json:"first-release-date,omitempty"`
	ISRCs            []string       `json:"isrcs,omitempty"`
	ArtistCredit     []artistCredit `json:"artist-credit,omitempty"`
	Score            int            `json:"score,omitempty"`
}

// isrcResponse is the /isrc/{code} lookup envelope.
type isrcResponse struct {
	ISRC       string        `json:"isrc"`
	Recordings []mbRecording `json:"recordings"`
}

type artistCredit struct {
	Name   string    `json:"name"`
	Artist *mbArtist `json:"artist,omitempty"`
}
