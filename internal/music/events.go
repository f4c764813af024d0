package music

import "sync"

// Events is the bus a provider emits playback events on and its Service
// and Player listen to.
type Events struct {
	mu         sync.Mutex
	playing    []func()
	ended      []func()
	timeupdate []func(seconds float64)
}

func NewEvents() *Events {
	return &Events{}
}

// OnPlaying registers a listener for playback actually starting.
func (e *Events) OnPlaying(fn func()) {
	e.mu.Lock()
	e.playing = append(e.playing, fn)
	e.mu.Unlock()
}

// OnEnded registers a listener for the current song finishing.
func (e *Events) OnEnded(fn func()) {
	e.mu.Lock()
	e.ended = append(e.ended, fn)
	e.mu.Unlock()
}

// OnTimeUpdate registers a listener for playback position changes.
func (e *Events) OnTimeUpdate(fn func(seconds float64)) {
	e.mu.Lock()
	e.timeupdate = append(e.timeupdate, fn)
	e.mu.Unlock()
}

func (e *Events) EmitPlaying() {
	e.mu.Lock()
	listeners := append([]func(){}, e.playing...)
	e.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

func (e *Events) EmitEnded() {
	e.mu.Lock()
	listeners := append([]func(){}, e.ended...)
	e.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

func (e *Events) EmitTimeUpdate(seconds float64) {
	e.mu.Lock()
	listeners := append([]func(seconds float64){}, e.timeupdate...)
	e.mu.Unlock()
	for _, fn := range listeners {
		fn(seconds)
	}
}
