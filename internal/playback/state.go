// package playback holds the shared transport state: the ordered play
// queue, current position, and play/volume/time flags every music service
// reads and writes.
package playback

import (
	"sync"

	"github.com/UniMusic-app/unimusic/internal/objects"
	"github.com/UniMusic-app/unimusic/internal/shared"
)

// Autoplay controls whether changing the current song starts playback.
type Autoplay string

const (
	AutoplayAuto Autoplay = "auto"
	AutoplayOn   Autoplay = "on"
	AutoplayOff  Autoplay = "off"
)

// LoadingKind names an operation tracked by a loading counter.
type LoadingKind string

const (
	LoadingPlayPause   LoadingKind = "playPause"
	LoadingQueueChange LoadingKind = "queueChange"
)

// QueueSong pairs a song with a queue entry id, so the same song may sit
// in the queue more than once.
type QueueSong struct {
	EntryID string        `json:"id"`
	Song    *objects.Song `json:"song"`
}

// State is the playback state store.
type State struct {
	mu sync.RWMutex

	queue      []QueueSong
	queueIndex int

	playing  bool
	autoplay Autoplay
	volume   float64
	time     float64
	duration float64

	loading map[LoadingKind]int

	listeners []func()
}

// NewState creates an empty state: no queue, full volume, duration 1 so
// progress never divides by zero.
func NewState() *State {
	return &State{
		queueIndex: -1,
		autoplay:   AutoplayAuto,
		volume:     1,
		duration:   1,
		loading:    make(map[LoadingKind]int),
	}
}

// OnChange registers a listener invoked after every mutation.
func (s *State) OnChange(fn func()) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

func (s *State) notify() {
	s.mu.RLock()
	listeners := make([]func(), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.RUnlock()
	for _, fn := range listeners {
		fn()
	}
}

// #region Queue

// Queue returns a copy of the queue.
func (s *State) Queue() []QueueSong {
	s.mu.RLock()
	defer s.mu.RUnlock()
	queue := make([]QueueSong, len(s.queue))
	copy(queue, s.queue)
	return queue
}

// QueueIndex returns the current queue position, -1 when the queue is empty.
func (s *State) QueueIndex() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queueIndex
}

// CurrentSong returns the song at the queue index, or nil.
func (s *State) CurrentSong() *objects.Song {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.queueIndex < 0 || s.queueIndex >= len(s.queue) {
		return nil
	}
	return s.queue[s.queueIndex].Song
}

// CurrentEntry returns the queue entry at the index.
func (s *State) CurrentEntry() (QueueSong, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.queueIndex < 0 || s.queueIndex >= len(s.queue) {
		return QueueSong{}, false
	}
	return s.queue[s.queueIndex], true
}

// SetQueue replaces the queue, assigning fresh entry ids.
func (s *State) SetQueue(songs []*objects.Song) {
	s.mu.Lock()
	s.queue = make([]QueueSong, 0, len(songs))
	for _, song := range songs {
		s.queue = append(s.queue, QueueSong{EntryID: shared.GenerateID(), Song: song})
	}
	s.clampIndexLocked()
	s.mu.Unlock()
	s.notify()
}

// AddToQueue inserts a song at index; a negative index appends.
func (s *State) AddToQueue(song *objects.Song, index int) {
	s.mu.Lock()
	if index < 0 || index > len(s.queue) {
		index = len(s.queue)
	}
	entry := QueueSong{EntryID: shared.GenerateID(), Song: song}
	s.queue = append(s.queue[:index], append([]QueueSong{entry}, s.queue[index:]...)...)
	if s.queueIndex < 0 {
		s.queueIndex = 0
	} else if index <= s.queueIndex && len(s.queue) > 1 {
		// Inserting before the current song shifts it right.
		s.queueIndex++
	}
	s.mu.Unlock()
	s.notify()
}

// RemoveFromQueue removes the entry at index. Removing before the current
// position shifts the index left so the current song keeps playing;
// removing the last remaining entry empties the queue without error.
func (s *State) RemoveFromQueue(index int) {
	s.mu.Lock()
	if index < 0 || index >= len(s.queue) {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue[:index], s.queue[index+1:]...)
	if index < s.queueIndex {
		s.queueIndex--
	}
	s.clampIndexLocked()
	s.mu.Unlock()
	s.notify()
}

// MoveQueueItem moves an entry from one position to another, keeping the
// currently playing entry current.
func (s *State) MoveQueueItem(from, to int) error {
	s.mu.Lock()
	if from < 0 || from >= len(s.queue) || to < 0 || to >= len(s.queue) {
		s.mu.Unlock()
		return shared.Silentf("tried to move inexistent queue item %d", from)
	}

	item := s.queue[from]
	s.queue = append(s.queue[:from], s.queue[from+1:]...)
	s.queue = append(s.queue[:to], append([]QueueSong{item}, s.queue[to:]...)...)

	switch {
	case from > s.queueIndex && to <= s.queueIndex:
		s.queueIndex++
	case from < s.queueIndex && to >= s.queueIndex:
		s.queueIndex--
	case from == s.queueIndex:
		s.queueIndex = to
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

// HasPrevious reports whether the queue has an entry before the index.
func (s *State) HasPrevious() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queueIndex > 0
}

// HasNext reports whether the queue has an entry after the index.
func (s *State) HasNext() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queueIndex >= 0 && s.queueIndex+1 < len(s.queue)
}

// SkipNext advances the index. Reports whether it moved.
func (s *State) SkipNext() bool {
	s.mu.Lock()
	if s.queueIndex < 0 || s.queueIndex+1 >= len(s.queue) {
		s.mu.Unlock()
		return false
	}
	s.queueIndex++
	s.mu.Unlock()
	s.notify()
	return true
}

// SkipPrevious moves the index back. Reports whether it moved.
func (s *State) SkipPrevious() bool {
	s.mu.Lock()
	if s.queueIndex <= 0 {
		s.mu.Unlock()
		return false
	}
	s.queueIndex--
	s.mu.Unlock()
	s.notify()
	return true
}

// SetQueueIndex jumps directly to a queue position.
func (s *State) SetQueueIndex(index int) {
	s.mu.Lock()
	if index < 0 || index >= len(s.queue) {
		s.mu.Unlock()
		return
	}
	s.queueIndex = index
	s.mu.Unlock()
	s.notify()
}

func (s *State) clampIndexLocked() {
	if s.queueIndex >= len(s.queue) {
		s.queueIndex = len(s.queue) - 1
	}
	if s.queueIndex < 0 && len(s.queue) > 0 {
		s.queueIndex = 0
	}
}

// #endregion

// #region Transport

func (s *State) Playing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.playing
}

func (s *State) SetPlaying(playing bool) {
	s.mu.Lock()
	s.playing = playing
	s.mu.Unlock()
	s.notify()
}

func (s *State) Autoplay() Autoplay {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.autoplay
}

func (s *State) SetAutoplay(mode Autoplay) {
	s.mu.Lock()
	s.autoplay = mode
	s.mu.Unlock()
}

func (s *State) Volume() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.volume
}

// SetVolume clamps into [0,1].
func (s *State) SetVolume(volume float64) {
	s.mu.Lock()
	s.volume = min(max(volume, 0), 1)
	s.mu.Unlock()
	s.notify()
}

func (s *State) Time() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.time
}

// SetTime clamps into [0,duration].
func (s *State) SetTime(t float64) {
	s.mu.Lock()
	s.time = min(max(t, 0), s.duration)
	s.mu.Unlock()
	s.notify()
}

func (s *State) Duration() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.duration
}

// SetDuration keeps duration at least 1 so progress never divides by zero.
func (s *State) SetDuration(d float64) {
	s.mu.Lock()
	if d <= 0 {
		d = 1
	}
	s.duration = d
	if s.time > s.duration {
		s.time = s.duration
	}
	s.mu.Unlock()
	s.notify()
}

// Progress returns time/duration in [0,1].
func (s *State) Progress() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.time / s.duration
}

// #endregion

// #region Loading counters

// BeginLoading marks an operation of the given kind in flight.
func (s *State) BeginLoading(kind LoadingKind) {
	s.mu.Lock()
	s.loading[kind]++
	s.mu.Unlock()
}

// EndLoading unmarks an in-flight operation.
func (s *State) EndLoading(kind LoadingKind) {
	s.mu.Lock()
	if s.loading[kind] > 0 {
		s.loading[kind]--
	}
	s.mu.Unlock()
}

// Loading reports whether any operation of the kind is in flight.
func (s *State) Loading(kind LoadingKind) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading[kind] > 0
}

// #endregion
