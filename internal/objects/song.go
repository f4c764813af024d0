package objects

// SongData is the provider-specific payload carried by songs. Providers
// only populate the fields they own; the rest stay zero.
type SongData struct {
	// local
	Path        string   `json:"path,omitempty"`
	DiscNumber  int      `json:"discNumber,omitempty"`
	TrackNumber int      `json:"trackNumber,omitempty"`
	ISRC        []string `json:"isrc,omitempty"`
	HasMetadata bool     `json:"hasMetadata,omitempty"`

	// catalog
	CatalogID  string `json:"catalogId,omitempty"`
	MusicVideo bool   `json:"musicVideo,omitempty"`

	// video
	AlbumID string `json:"albumId,omitempty"`
}

// Song is a fully resolved, playable song.
type Song struct {
	Type ServiceType `json:"type"`
	ID   string      `json:"id"`

	Available bool `json:"available"`
	Explicit  bool `json:"explicit"`

	Artists []ArtistRef `json:"artists"`
	Genres  []string    `json:"genres"`

	Title    string      `json:"title,omitempty"`
	Album    string      `json:"album,omitempty"`
	Duration float64     `json:"duration,omitempty"`
	Artwork  *LocalImage `json:"artwork,omitempty"`
	Style    *Style      `json:"style,omitempty"`

	Data SongData `json:"data"`
}

func (s *Song) Identity() (ServiceType, string, Kind) {
	return s.Type, s.ID, KindSong
}

// ArtistNames returns the display titles of the song's inline artist
// references, skipping by-key references.
func (s *Song) ArtistNames() []string {
	var names []string
	for _, artist := range s.Artists {
		if artist.Inline() && artist.Title != "" {
			names = append(names, artist.Title)
		}
	}
	return names
}

// SongPreview is a partial song usable before full resolution, e.g. a
// search hit. It may lack an id.
type SongPreview struct {
	Type ServiceType `json:"type"`
	ID   string      `json:"id,omitempty"`

	Available bool `json:"available"`
	Explicit  bool `json:"explicit"`

	Artists []ArtistRef `json:"artists"`
	Genres  []string    `json:"genres"`

	Title    string      `json:"title,omitempty"`
	Album    string      `json:"album,omitempty"`
	Duration float64     `json:"duration,omitempty"`
	Artwork  *LocalImage `json:"artwork,omitempty"`

	Data SongData `json:"data"`
}

func (s *SongPreview) Identity() (ServiceType, string, Kind) {
	return s.Type, s.ID, KindSongPreview
}

// Preview converts a full song into its preview form.
func (s *Song) Preview() *SongPreview {
	return &SongPreview{
		Type:      s.Type,
		ID:        s.ID,
		Available: s.Available,
		Explicit:  s.Explicit,
		Artists:   s.Artists,
		Genres:    s.Genres,
		Title:     s.Title,
		Album:     s.Album,
		Duration:  s.Duration,
		Artwork:   s.Artwork,
		Data:      s.Data,
	}
}
