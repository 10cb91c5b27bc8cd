package deezer

// searchResponse is the envelope for all Deezer search endpoints.
type searchResponse struct {
	Data  []searchResult `json:"data"`
	Total int            `json:"total"`
	Next  string         `json:"next,omitempty"`
}

// searchResult is a single entry from a Deezer search or detail endpoint.
// Deezer uses one shape for artists, albums, and tracks; irrelevant fields
// are simply absent.
type searchResult struct {
	ID          int    `json:"id"`
	Name        string `json:"name,omitempty"`  // artists
	Title       string `json:"title,omitempty"` // albums, tracks
	Link        string `json:"link,omitempty"`
	ISRC        string `json:"isrc,omitempty"`
	UPC         string `json:"upc,omitempty"`
	ReleaseDate string `json:"release_date,omitempty"`
	RecordType  string `json:"record_type,omitempty"`
	NbFan       int    `json:"nb_fan,omitempty"`
	Rank        int    `json:"rank,omitempty"`

	Picture   string `json:"picture,omitempty"`
	PictureXL string `json:"picture_xl,omitempty"`
	CoverXL   string `json:"cover_xl,omitempty"`

	Artist *searchResult `json:"artist,omitempty"`
	Album  *searchResult `json:"album,omitempty"`
}

// errorResponse is Deezer's in-band error envelope, returned with HTTP 200.
type errorResponse struct {
	Error *deezerError `json:"error,omitempty"`
}

type deezerError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
