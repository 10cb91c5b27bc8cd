package fanarttv

// artistResponse is the top-level response for an artist lookup.
type artistResponse struct {
	Name             string        `json:"name"`
	MBID             string        `json:"mbid_id"`
	ArtistThumb      []fanartImage `json:"artistthumb"`
	ArtistBackground []fanartImage `json:"artistbackground"`
	HDMusicLogo      []fanartImage `json:"hdmusiclogo"`
}

// albumResponse is the top-level response for an album lookup, keyed by
// release-group MBID.
type albumResponse struct {
	Name   string               `json:"name"`
	MBID   string               `json:"mbid_id"`
	Albums map[string]albumArts `json:"albums"`
}

type albumArts struct {
	AlbumCover []fanartImage `json:"albumcover"`
	CDArt      []fanartImage `json:"cdart"`
}

// fanartImage is a single image entry.
type fanartImage struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Likes string `json:"likes"`
	Lang  string `json:"lang"`
}
