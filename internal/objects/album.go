package objects

// AlbumSong places a song (by key or inline preview) at a disc/track
// position within an album.
type AlbumSong struct {
	DiscNumber  int     `json:"discNumber,omitempty"`
	TrackNumber int     `json:"trackNumber,omitempty"`
	Song        SongRef `json:"song"`
}

// Album is a fully resolved album with ordered songs.
type Album struct {
	Type ServiceType `json:"type"`
	ID   string      `json:"id"`

	Title   string      `json:"title"`
	Artwork *LocalImage `json:"artwork,omitempty"`

	Artists []ArtistRef `json:"artists"`
	Songs   []AlbumSong `json:"songs"`
}

func (a *Album) Identity() (ServiceType, string, Kind) {
	return a.Type, a.ID, KindAlbum
}

// AlbumPreview carries only the display essentials of an album.
type AlbumPreview struct {
	Type ServiceType `json:"type"`
	ID   string      `json:"id"`

	Title   string      `json:"title"`
	Artwork *LocalImage `json:"artwork,omitempty"`
	Artists []ArtistRef `json:"artists"`
}

func (a *AlbumPreview) Identity() (ServiceType, string, Kind) {
	return a.Type, a.ID, KindAlbumPreview
}
