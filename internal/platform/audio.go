package platform

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/flac"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/vorbis"
	"github.com/faiface/beep/wav"
)

// BeepOutput plays audio through the speaker on desktop hosts.
type BeepOutput struct {
	mu sync.Mutex

	streamer beep.StreamSeekCloser
	format   beep.Format
	ctrl     *beep.Ctrl
	volume   *effects.Volume

	started bool
	ticker  *time.Ticker
	quit    chan struct{}

	onEnded func()
	onTime  func(seconds float64)
}

// NewBeepOutput creates an unloaded output.
func NewBeepOutput() *BeepOutput {
	return &BeepOutput{}
}

func (o *BeepOutput) OnEnded(fn func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onEnded = fn
}

func (o *BeepOutput) OnTime(fn func(seconds float64)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onTime = fn
}

// Load decodes the source and prepares the speaker. Any previously loaded
// song is released first.
func (o *BeepOutput) Load(ctx context.Context, src AudioSource) error {
	if err := o.Stop(); err != nil {
		return err
	}

	var streamer beep.StreamSeekCloser
	var format beep.Format
	var err error

	switch src.Format {
	case "mp3":
		streamer, format, err = mp3.Decode(src.Reader)
	case "wav":
		streamer, format, err = wav.Decode(src.Reader)
	case "flac":
		streamer, format, err = flac.Decode(src.Reader)
	case "ogg":
		streamer, format, err = vorbis.Decode(src.Reader)
	default:
		return fmt.Errorf("unsupported audio format: %s", src.Format)
	}
	if err != nil {
		return fmt.Errorf("failed to decode %s audio: %w", src.Format, err)
	}

	if err := speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10)); err != nil {
		streamer.Close()
		return fmt.Errorf("failed to initialize speaker: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.streamer = streamer
	o.format = format
	o.ctrl = &beep.Ctrl{Streamer: beep.Seq(streamer, beep.Callback(o.ended))}
	o.volume = &effects.Volume{Streamer: o.ctrl, Base: 2}
	o.started = false
	return nil
}

// ended runs inside the speaker's mixer goroutine, which holds the speaker
// lock; the listener is invoked from a fresh goroutine to avoid lock-order
// inversion with the time clock.
func (o *BeepOutput) ended() {
	go func() {
		o.mu.Lock()
		fn := o.onEnded
		o.mu.Unlock()
		if fn != nil {
			fn()
		}
	}()
}

// Play starts playback of the loaded song.
func (o *BeepOutput) Play() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.streamer == nil {
		return fmt.Errorf("no audio loaded")
	}
	if o.started {
		return o.resumeLocked()
	}

	speaker.Play(o.volume)
	o.started = true
	o.startClockLocked()
	return nil
}

// Pause suspends playback without releasing the decoder.
func (o *BeepOutput) Pause() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.ctrl == nil {
		return nil
	}
	speaker.Lock()
	o.ctrl.Paused = true
	speaker.Unlock()
	return nil
}

// Resume continues paused playback.
func (o *BeepOutput) Resume() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.resumeLocked()
}

func (o *BeepOutput) resumeLocked() error {
	if o.ctrl == nil {
		return fmt.Errorf("no audio loaded")
	}
	speaker.Lock()
	o.ctrl.Paused = false
	speaker.Unlock()
	return nil
}

// Stop releases the loaded song entirely.
func (o *BeepOutput) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.streamer == nil {
		return nil
	}

	speaker.Clear()
	o.stopClockLocked()
	err := o.streamer.Close()
	o.streamer = nil
	o.ctrl = nil
	o.volume = nil
	o.started = false
	return err
}

// SeekTo moves playback to the given position. Seeking with nothing
// loaded is a no-op, the next Load starts from the beginning anyway.
func (o *BeepOutput) SeekTo(seconds float64) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.streamer == nil {
		return nil
	}

	speaker.Lock()
	err := o.streamer.Seek(o.format.SampleRate.N(time.Duration(seconds * float64(time.Second))))
	speaker.Unlock()
	if err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}
	return nil
}

// SetVolume maps [0,1] onto the logarithmic volume effect.
func (o *BeepOutput) SetVolume(volume float64) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.volume == nil {
		return nil
	}

	speaker.Lock()
	if volume <= 0 {
		o.volume.Silent = true
	} else {
		o.volume.Silent = false
		o.volume.Volume = math.Log2(volume)
	}
	speaker.Unlock()
	return nil
}

// Duration returns the loaded song's length in seconds.
func (o *BeepOutput) Duration() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.streamer == nil {
		return 0
	}
	return o.format.SampleRate.D(o.streamer.Len()).Seconds()
}

// startClockLocked emits time updates while the song is loaded.
func (o *BeepOutput) startClockLocked() {
	o.stopClockLocked()
	o.ticker = time.NewTicker(250 * time.Millisecond)
	o.quit = make(chan struct{})

	go func(ticker *time.Ticker, quit chan struct{}) {
		for {
			select {
			case <-quit:
				return
			case <-ticker.C:
				o.mu.Lock()
				if o.streamer == nil {
					o.mu.Unlock()
					return
				}
				speaker.Lock()
				paused := o.ctrl != nil && o.ctrl.Paused
				seconds := o.format.SampleRate.D(o.streamer.Position()).Seconds()
				speaker.Unlock()
				fn := o.onTime
				o.mu.Unlock()

				if !paused && fn != nil {
					fn(seconds)
				}
			}
		}
	}(o.ticker, o.quit)
}

func (o *BeepOutput) stopClockLocked() {
	if o.ticker != nil {
		o.ticker.Stop()
		close(o.quit)
		o.ticker = nil
		o.quit = nil
	}
}
