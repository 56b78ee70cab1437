// Package audio provides the audio-output capability on top of beep.
package audio

import (
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/vibedeck/internal/app/playback"
	"github.com/osa030/vibedeck/internal/errdefs"
)

const outputSampleRate = beep.SampleRate(44100)

// Output owns the speaker. One playback handle is active at a time; starting
// a new one clears the previous.
type Output struct {
	mu sync.Mutex

	initialized bool
	level       int // current volume level 0-100
	current     *handle
}

// NewOutput creates an output with the given initial volume level.
func NewOutput(level int) *Output {
	return &Output{level: level}
}

// Start decodes the artifact at path and begins playback, returning the
// session handle. Decode and device failures are playback-device errors.
func (o *Output) Start(path string, total time.Duration) (playback.Handle, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to open artifact"), errdefs.ErrPlaybackDevice)
	}

	streamer, format, err := mp3.Decode(f)
	if err != nil {
		f.Close()
		return nil, errors.Mark(errors.Wrap(err, "failed to decode artifact"), errdefs.ErrPlaybackDevice)
	}

	if !o.initialized {
		if err := speaker.Init(outputSampleRate, outputSampleRate.N(time.Second/10)); err != nil {
			streamer.Close()
			return nil, errors.Mark(errors.Wrap(err, "failed to init speaker"), errdefs.ErrPlaybackDevice)
		}
		o.initialized = true
		zlog.Info().Msg("audio: speaker initialized")
	}

	if o.current != nil {
		o.current.stop()
		o.current = nil
	}

	if total <= 0 {
		total = format.SampleRate.D(streamer.Len())
	}

	resampled := beep.Resample(4, format.SampleRate, outputSampleRate, streamer)
	t := newTap(resampled)
	ctrl := &beep.Ctrl{Streamer: t}
	vol := &effects.Volume{Streamer: ctrl, Base: 2}
	applyLevel(vol, o.level)

	h := &handle{
		streamer: streamer,
		rate:     format.SampleRate,
		total:    total,
		tap:      t,
		ctrl:     ctrl,
		vol:      vol,
		done:     make(chan struct{}),
	}

	speaker.Play(beep.Seq(vol, beep.Callback(func() {
		h.finish(streamer.Err())
	})))

	o.current = h
	return h, nil
}

// SetVolume applies a clamped 0-100 level to the active handle and remembers
// it for future ones.
func (o *Output) SetVolume(level int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.level = level
	if o.current == nil || !o.initialized {
		return
	}
	speaker.Lock()
	applyLevel(o.current.volume(), level)
	speaker.Unlock()
}

// handle is one playback session.
type handle struct {
	streamer beep.StreamSeekCloser
	rate     beep.SampleRate
	total    time.Duration
	tap      *tap
	ctrl     *beep.Ctrl
	vol      *effects.Volume

	once sync.Once
	done chan struct{}

	errMu sync.Mutex
	err   error
}

func (h *handle) Position() (time.Duration, time.Duration) {
	speaker.Lock()
	pos := h.streamer.Position()
	speaker.Unlock()
	return h.rate.D(pos), h.total
}

func (h *handle) Pause() {
	speaker.Lock()
	h.ctrl.Paused = true
	speaker.Unlock()
}

func (h *handle) Resume() {
	speaker.Lock()
	h.ctrl.Paused = false
	speaker.Unlock()
}

func (h *handle) Stop() {
	h.stop()
}

func (h *handle) Amplitude() float64 {
	return h.tap.Amplitude()
}

func (h *handle) Done() <-chan struct{} {
	return h.done
}

func (h *handle) Err() error {
	h.errMu.Lock()
	defer h.errMu.Unlock()
	return h.err
}

func (h *handle) volume() *effects.Volume {
	return h.vol
}

// stop halts output without signalling completion as an error.
func (h *handle) stop() {
	speaker.Clear()
	h.finish(nil)
}

// finish records the terminal error and closes the done channel exactly once.
func (h *handle) finish(err error) {
	h.once.Do(func() {
		if err != nil {
			h.errMu.Lock()
			h.err = errors.Mark(err, errdefs.ErrPlaybackDevice)
			h.errMu.Unlock()
		}
		h.streamer.Close()
		close(h.done)
	})
}

// applyLevel maps a 0-100 level onto the exponential volume effect.
func applyLevel(v *effects.Volume, level int) {
	if level <= 0 {
		v.Silent = true
		return
	}
	if level > 100 {
		level = 100
	}
	v.Silent = false
	v.Volume = float64(level-100) / 25.0
}
