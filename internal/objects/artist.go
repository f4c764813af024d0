package objects

// Artist is a fully resolved artist. Albums and songs are weak
// back-references into the item cache.
type Artist struct {
	Type ServiceType `json:"type"`
	ID   string      `json:"id"`

	Title   string      `json:"title"`
	Artwork *LocalImage `json:"artwork,omitempty"`

	Albums []Key `json:"albums"`
	Songs  []Key `json:"songs"`
}

func (a *Artist) Identity() (ServiceType, string, Kind) {
	return a.Type, a.ID, KindArtist
}

// ArtistPreview carries only the display essentials of an artist.
type ArtistPreview struct {
	Type ServiceType `json:"type"`
	ID   string      `json:"id,omitempty"`

	Title   string      `json:"title"`
	Artwork *LocalImage `json:"artwork,omitempty"`
}

func (a *ArtistPreview) Identity() (ServiceType, string, Kind) {
	return a.Type, a.ID, KindArtistPreview
}
