// Package store provides the shared state store. It is the single source of
// truth for the queue, the currently playing song, volume and dispatcher
// status. All mutation goes through Update; readers take Snapshot copies.
package store

import (
	"sync"
	"time"

	"github.com/osa030/vibedeck/internal/domain/song"
)

// DispatcherStatus represents the intent dispatcher lifecycle.
type DispatcherStatus int

const (
	DispatcherIdle     DispatcherStatus = iota // No dispatch in flight
	DispatcherThinking                         // Awaiting the language-model response
	DispatcherActing                           // Applying returned operations
)

// String returns the string representation of the dispatcher status.
func (d DispatcherStatus) String() string {
	switch d {
	case DispatcherIdle:
		return "idle"
	case DispatcherThinking:
		return "thinking"
	case DispatcherActing:
		return "acting"
	default:
		return "unknown"
	}
}

// VisualizerSize is the fixed capacity of the amplitude sample ring.
const VisualizerSize = 64

// VisualizerRing is a bounded ring of recent amplitude scalars in [0,1].
type VisualizerRing struct {
	samples [VisualizerSize]float64
	next    int
	count   int
}

// Push appends an amplitude sample, overwriting the oldest when full.
func (r *VisualizerRing) Push(v float64) {
	r.samples[r.next] = v
	r.next = (r.next + 1) % VisualizerSize
	if r.count < VisualizerSize {
		r.count++
	}
}

// Values returns the samples oldest first.
func (r *VisualizerRing) Values() []float64 {
	out := make([]float64, 0, r.count)
	start := (r.next - r.count + VisualizerSize) % VisualizerSize
	for i := 0; i < r.count; i++ {
		out = append(out, r.samples[(start+i)%VisualizerSize])
	}
	return out
}

// Reset clears all samples.
func (r *VisualizerRing) Reset() {
	r.next = 0
	r.count = 0
}

// NowPlaying holds the currently playing song and its position.
type NowPlaying struct {
	Song    song.Song
	Elapsed time.Duration
	Total   time.Duration
}

// State holds all shared mutable fields. The currently playing song lives in
// Current and is not a member of the pending Queue sequence.
type State struct {
	Queue      []song.Song // Pending songs, insertion order is playback order
	History    []song.Song // Played and failed songs, oldest first
	Current    *NowPlaying
	Volume     int // 0-100
	Dispatcher DispatcherStatus
	ActiveTool string // Operation name while Dispatcher is acting
	Notice     string // Transient user-visible message
	Visualizer VisualizerRing
}

// FindSong returns a pointer to the queued or currently playing song with the
// given ID, or nil if it no longer exists. Only valid inside an Update scope.
func (st *State) FindSong(id string) *song.Song {
	for i := range st.Queue {
		if st.Queue[i].ID == id {
			return &st.Queue[i]
		}
	}
	if st.Current != nil && st.Current.Song.ID == id {
		return &st.Current.Song
	}
	return nil
}

// RemoveFromQueue removes the song with the given ID from the pending queue.
// Returns false if it is not queued.
func (st *State) RemoveFromQueue(id string) bool {
	for i := range st.Queue {
		if st.Queue[i].ID == id {
			st.Queue = append(st.Queue[:i], st.Queue[i+1:]...)
			return true
		}
	}
	return false
}

// Store guards a State behind a mutex. Scoped mutations via Update are
// serialized and never interleave; Snapshot returns a consistent deep copy.
type Store struct {
	mu    sync.Mutex
	state State
}

// New creates a store with the given initial volume.
func New(volume int) *Store {
	return &Store{
		state: State{
			Queue:      make([]song.Song, 0),
			History:    make([]song.Song, 0),
			Volume:     volume,
			Dispatcher: DispatcherIdle,
		},
	}
}

// Update applies fn to the state under exclusive access. Mutation scopes must
// stay short: apply one change and return.
func (s *Store) Update(fn func(*State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.state)
}

// Snapshot returns an immutable consistent copy of the state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.state
	snap.Queue = make([]song.Song, len(s.state.Queue))
	copy(snap.Queue, s.state.Queue)
	snap.History = make([]song.Song, len(s.state.History))
	copy(snap.History, s.state.History)
	if s.state.Current != nil {
		cur := *s.state.Current
		snap.Current = &cur
	}
	return snap
}
