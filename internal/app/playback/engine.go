package playback

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/vibedeck/internal/app/store"
	"github.com/osa030/vibedeck/internal/domain/song"
)

// Errors
var (
	ErrNoTrack = errors.New("no song playing")
	ErrNoReady = errors.New("no ready song in queue")
)

// Handle is one playback session on the audio-output capability.
type Handle interface {
	Position() (elapsed, total time.Duration)
	Pause()
	Resume()
	Stop()
	Amplitude() float64
	Done() <-chan struct{}
	Err() error
}

// Output is the external audio-output capability.
type Output interface {
	Start(path string, total time.Duration) (Handle, error)
	SetVolume(level int)
}

// Prefetcher schedules fetches for upcoming songs.
type Prefetcher interface {
	Schedule(songID string)
}

// Config holds engine configuration.
type Config struct {
	Tick              time.Duration // Progress/poll interval
	PrefetchThreshold time.Duration // Remaining time below which prefetch fires
	PrefetchCount     int           // How many upcoming songs to prefetch
}

// Engine plays exactly the queue's earliest ready song, reports progress into
// the store on a fixed tick, and advances on completion. It discovers newly
// ready songs by polling the store, not by push notification.
type Engine struct {
	mu sync.Mutex

	store    *store.Store
	output   Output
	prefetch Prefetcher
	config   Config

	state  State
	handle Handle

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an engine. Call Start to launch the progress loop.
func New(st *store.Store, output Output, prefetch Prefetcher, cfg Config) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		store:    st,
		output:   output,
		prefetch: prefetch,
		config:   cfg,
		state:    StateStopped,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the tick loop.
func (e *Engine) Start() {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(e.config.Tick)
		defer ticker.Stop()
		for {
			select {
			case <-e.ctx.Done():
				return
			case <-ticker.C:
				e.tick()
			}
		}
	}()
}

// Close stops the loop and any active playback.
func (e *Engine) Close() {
	e.cancel()
	e.wg.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handle != nil {
		e.handle.Stop()
		e.handle = nil
	}
}

// GetState returns the engine state.
func (e *Engine) GetState() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// PlayNext starts the earliest ready song if nothing is playing.
func (e *Engine) PlayNext() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateStopped {
		return nil
	}
	return e.playNextLocked()
}

// Pause suspends playback, retaining position. No-op when already paused.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handle == nil {
		return ErrNoTrack
	}
	if e.state != StatePlaying {
		return nil
	}
	e.handle.Pause()
	e.state = StatePaused
	zlog.Info().Msg("playback: paused")
	return nil
}

// Resume resumes paused playback. No-op when already playing.
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handle == nil {
		return ErrNoTrack
	}
	if e.state != StatePaused {
		return nil
	}
	e.handle.Resume()
	e.state = StatePlaying
	zlog.Info().Msg("playback: resumed")
	return nil
}

// Skip stops the current song, marks it played and starts the next ready one.
// When no song is ready yet, the engine stays stopped and the tick loop picks
// up the next song as soon as it becomes ready.
func (e *Engine) Skip() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handle == nil {
		return ErrNoTrack
	}
	e.handle.Stop()
	e.finishCurrentLocked(song.StatusPlayed, "")
	zlog.Info().Msg("playback: skipped")

	if err := e.playNextLocked(); err != nil && !errors.Is(err, ErrNoReady) {
		return err
	}
	return nil
}

// SetVolume clamps level to [0,100], applies it to the output and records it
// in the store.
func (e *Engine) SetVolume(level int) {
	if level < 0 {
		level = 0
	}
	if level > 100 {
		level = 100
	}
	e.output.SetVolume(level)
	e.store.Update(func(st *store.State) {
		st.Volume = level
	})
	zlog.Debug().Msgf("playback: volume=%d", level)
}

// tick advances the engine: reports progress, samples amplitude, triggers
// prefetch, detects completion and starts the next ready song when stopped.
func (e *Engine) tick() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateStopped {
		// Waiting state: re-attempt whenever a queued song turns ready.
		_ = e.playNextLocked()
		return
	}

	select {
	case <-e.handle.Done():
		if err := e.handle.Err(); err != nil {
			zlog.Error().Msgf("playback: artifact failed mid-playback: %v", err)
			e.finishCurrentLocked(song.StatusFailed, "playback error")
		} else {
			e.finishCurrentLocked(song.StatusPlayed, "")
		}
		_ = e.playNextLocked()
		return
	default:
	}

	if e.state != StatePlaying {
		return
	}

	elapsed, total := e.handle.Position()
	amp := e.handle.Amplitude()

	var upcoming []string
	e.store.Update(func(st *store.State) {
		if st.Current != nil {
			st.Current.Elapsed = elapsed
			if total > 0 {
				st.Current.Total = total
			}
		}
		st.Visualizer.Push(amp)

		if total > 0 && total-elapsed < e.config.PrefetchThreshold {
			upcoming = upcomingQueued(st, e.config.PrefetchCount)
		}
	})

	for _, id := range upcoming {
		e.prefetch.Schedule(id)
	}
}

// playNextLocked pops the earliest ready song from the pending queue and
// starts it. Failed songs ahead of it stay visible in the queue; their skip
// is logged. Must be called with the engine lock held and no active handle.
func (e *Engine) playNextLocked() error {
	for {
		var next *song.Song
		var skipped []string
		e.store.Update(func(st *store.State) {
			for i := range st.Queue {
				switch st.Queue[i].Status {
				case song.StatusReady:
					s := st.Queue[i]
					st.Queue = append(st.Queue[:i], st.Queue[i+1:]...)
					next = &s
					return
				case song.StatusFailed:
					skipped = append(skipped, st.Queue[i].Title)
				}
			}
		})
		if next == nil {
			// No ready song; stay quiet so the poll loop does not re-log
			// the same failed entries every tick.
			e.state = StateStopped
			return ErrNoReady
		}

		handle, err := e.output.Start(next.LocalPath, next.Duration)
		if err != nil {
			// Device or artifact failure: record and try the next one.
			zlog.Error().Msgf("playback: failed to start: title=%s err=%v", next.Title, err)
			next.Status = song.StatusFailed
			next.FailCause = "unplayable artifact"
			e.store.Update(func(st *store.State) {
				st.History = append(st.History, *next)
			})
			continue
		}

		for _, title := range skipped {
			zlog.Debug().Msgf("playback: skipped over failed song: title=%s", title)
		}

		next.Status = song.StatusPlaying
		e.handle = handle
		e.state = StatePlaying
		e.store.Update(func(st *store.State) {
			st.Current = &store.NowPlaying{Song: *next, Total: next.Duration}
			st.Visualizer.Reset()
		})
		zlog.Info().Msgf("playback: started: title=%s artist=%s", next.Title, next.Artist)
		return nil
	}
}

// finishCurrentLocked clears the current song into history with the given
// terminal status. Must be called with the engine lock held.
func (e *Engine) finishCurrentLocked(status song.Status, cause string) {
	e.handle = nil
	e.state = StateStopped
	e.store.Update(func(st *store.State) {
		if st.Current == nil {
			return
		}
		s := st.Current.Song
		s.Status = status
		s.FailCause = cause
		st.History = append(st.History, s)
		st.Current = nil
		st.Visualizer.Reset()
	})
}

// upcomingQueued returns the IDs of the next n songs still waiting for fetch.
func upcomingQueued(st *store.State, n int) []string {
	ids := make([]string, 0, n)
	for i := range st.Queue {
		if len(ids) == n {
			break
		}
		if st.Queue[i].Status == song.StatusQueued {
			ids = append(ids, st.Queue[i].ID)
		}
	}
	return ids
}
