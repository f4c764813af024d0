package objects

// Playlist is an ordered collection of songs referenced by key.
type Playlist struct {
	Type ServiceType `json:"type"`
	ID   string      `json:"id"`

	Title   string      `json:"title"`
	Artwork *LocalImage `json:"artwork,omitempty"`

	Songs []Key `json:"songs"`
}

func (p *Playlist) Identity() (ServiceType, string, Kind) {
	return p.Type, p.ID, KindPlaylist
}

// PlaylistPreview carries only the display essentials of a playlist.
type PlaylistPreview struct {
	Type ServiceType `json:"type"`
	ID   string      `json:"id"`

	Title     string      `json:"title"`
	Artwork   *LocalImage `json:"artwork,omitempty"`
	SongCount int         `json:"songCount,omitempty"`
}

func (p *PlaylistPreview) Identity() (ServiceType, string, Kind) {
	return p.Type, p.ID, KindPlaylistPreview
}
