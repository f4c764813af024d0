package metadata

import (
	"github.com/UniMusic-app/unimusic/internal/state"
)

// lookupCache remembers provider results across sessions, keyed by song id
// or fingerprint so an expensive lookup never runs twice for the same
// recording.
type lookupCache struct {
	states *state.Store
	prefix string
}

func newLookupCache(states *state.Store, provider string) *lookupCache {
	return &lookupCache{states: states, prefix: "MetadataCache-" + provider + "-"}
}

func (c *lookupCache) get(id string) (*Metadata, bool) {
	if id == "" {
		return nil, false
	}

	var meta Metadata
	if err := c.states.Get(c.prefix+id, &meta); err != nil {
		return nil, false
	}
	return &meta, true
}

func (c *lookupCache) put(id string, meta *Metadata) {
	if id == "" || meta == nil {
		return
	}
	// Best effort, a failed write only costs a repeat lookup.
	_ = c.states.Set(c.prefix+id, meta)
}
