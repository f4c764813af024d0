// package testing contains shared testing utilities
package testing

import (
	"context"
	"net/http"
	"sync"

	"github.com/UniMusic-app/unimusic/internal/auth"
	"github.com/UniMusic-app/unimusic/internal/music"
	"github.com/UniMusic-app/unimusic/internal/objects"
	"github.com/UniMusic-app/unimusic/internal/platform"
)

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	Handler func(req *http.Request) (*http.Response, error)
}

func (m *MockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.Handler(req)
}

// ScriptedPrompter answers error prompts with a fixed script, then keeps
// repeating the final answer.
type ScriptedPrompter struct {
	mu      sync.Mutex
	Choices []music.PromptChoice
	Calls   int
}

func (p *ScriptedPrompter) PromptError(service string, unrecoverable bool, err error) music.PromptChoice {
	p.mu.Lock()
	defer p.mu.Unlock()

	choice := music.ChoiceIgnore
	if len(p.Choices) > 0 {
		choice = p.Choices[0]
		if len(p.Choices) > 1 {
			p.Choices = p.Choices[1:]
		}
	}
	p.Calls++
	return choice
}

// FakeProvider is a scriptable test double for [music.Provider]. Zero
// value hooks succeed; set an Err field to make a hook fail. Counters
// record how often each hook ran.
type FakeProvider struct {
	mu sync.Mutex

	ServiceType objects.ServiceType
	Unavailable bool
	Auth        *auth.Service
	Events      *music.Events

	InitializeErr   error
	DeinitializeErr error
	PlayErr         error
	SearchErr       error

	InitializeCalls   int
	DeinitializeCalls int
	PlayCalls         int
	ResumeCalls       int
	PauseCalls        int
	StopCalls         int

	Songs   []*objects.Song
	Results []music.SearchResult
	Hints   []string

	PlayedSong *objects.Song
	Volume     float64
	Position   float64
}

func NewFakeProvider(t objects.ServiceType) *FakeProvider {
	return &FakeProvider{ServiceType: t, Events: music.NewEvents()}
}

func (f *FakeProvider) Type() objects.ServiceType    { return f.ServiceType }
func (f *FakeProvider) Name() string                 { return "fake-" + string(f.ServiceType) }
func (f *FakeProvider) Available() bool              { return !f.Unavailable }
func (f *FakeProvider) Authorization() *auth.Service { return f.Auth }

func (f *FakeProvider) Initialize(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.InitializeCalls++
	return f.InitializeErr
}

func (f *FakeProvider) Deinitialize(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DeinitializeCalls++
	return f.DeinitializeErr
}

func (f *FakeProvider) Play(ctx context.Context, song *objects.Song) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PlayCalls++
	if f.PlayErr != nil {
		return f.PlayErr
	}
	f.PlayedSong = song
	return nil
}

func (f *FakeProvider) Resume(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ResumeCalls++
	return nil
}

func (f *FakeProvider) Pause(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PauseCalls++
	return nil
}

func (f *FakeProvider) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.StopCalls++
	f.PlayedSong = nil
	return nil
}

func (f *FakeProvider) SeekTo(ctx context.Context, seconds float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Position = seconds
	return nil
}

func (f *FakeProvider) SetVolume(ctx context.Context, volume float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Volume = volume
	return nil
}

func (f *FakeProvider) GetSong(ctx context.Context, id string) (*objects.Song, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, song := range f.Songs {
		if song.ID == id {
			return song, nil
		}
	}
	return nil, nil
}

func (f *FakeProvider) RefreshSong(ctx context.Context, song *objects.Song) (*objects.Song, error) {
	return f.GetSong(ctx, song.ID)
}

func (f *FakeProvider) LibrarySongs(ctx context.Context, offset int) ([]*objects.Song, error) {
	if offset > 0 {
		return nil, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Songs, nil
}

func (f *FakeProvider) RefreshLibrary(ctx context.Context) error { return nil }

func (f *FakeProvider) SearchSongs(ctx context.Context, term string, offset int) ([]music.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SearchErr != nil {
		return nil, f.SearchErr
	}
	if offset > 0 {
		return nil, nil
	}
	return f.Results, nil
}

func (f *FakeProvider) SearchHints(ctx context.Context, term string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Hints, nil
}

func (f *FakeProvider) SongFromSearchResult(ctx context.Context, result music.SearchResult) (*objects.Song, error) {
	return f.GetSong(ctx, result.ID)
}

// FakeOutput is an in-memory [platform.AudioOutput] recording transport
// calls; EmitEnded and EmitTime drive the registered callbacks.
type FakeOutput struct {
	mu sync.Mutex

	Loaded  bool
	Playing bool
	Paused  bool
	Volume  float64
	Pos     float64
	Len     float64

	onEnded func()
	onTime  func(seconds float64)
}

func (o *FakeOutput) Load(ctx context.Context, src platform.AudioSource) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Loaded = true
	if src.Reader != nil {
		src.Reader.Close()
	}
	return nil
}

func (o *FakeOutput) Play() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Playing = true
	o.Paused = false
	return nil
}

func (o *FakeOutput) Pause() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Paused = true
	return nil
}

func (o *FakeOutput) Resume() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Paused = false
	o.Playing = true
	return nil
}

func (o *FakeOutput) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Loaded = false
	o.Playing = false
	o.Paused = false
	return nil
}

func (o *FakeOutput) SeekTo(seconds float64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Pos = seconds
	return nil
}

func (o *FakeOutput) SetVolume(volume float64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Volume = volume
	return nil
}

func (o *FakeOutput) Duration() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.Len
}

func (o *FakeOutput) OnEnded(fn func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onEnded = fn
}

func (o *FakeOutput) OnTime(fn func(seconds float64)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onTime = fn
}

// EmitEnded fires the ended callback, as the real output does when a song
// finishes.
func (o *FakeOutput) EmitEnded() {
	o.mu.Lock()
	fn := o.onEnded
	o.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// EmitTime fires the time callback.
func (o *FakeOutput) EmitTime(seconds float64) {
	o.mu.Lock()
	fn := o.onTime
	o.mu.Unlock()
	if fn != nil {
		fn(seconds)
	}
}
