// Package song provides the Song domain entity.
package song

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the fetch/playback lifecycle of a song.
type Status int

const (
	StatusQueued   Status = iota // Waiting for fetch
	StatusFetching               // Fetch in flight
	StatusReady                  // Local artifact available
	StatusPlaying                // Currently playing
	StatusPlayed                 // Finished playing
	StatusFailed                 // Fetch or playback failed (terminal)
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusFetching:
		return "fetching"
	case StatusReady:
		return "ready"
	case StatusPlaying:
		return "playing"
	case StatusPlayed:
		return "played"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Song represents one queue entry.
// Title, Artist and SourceRef are immutable once set; LocalPath is set by the
// fetch pipeline when the artifact is materialized.
type Song struct {
	ID        string        // Unique song ID
	Title     string        // Track title
	Artist    string        // Artist / uploader name
	SourceRef string        // Opaque remote locator (e.g. a video URL)
	LocalPath string        // Path to the local audio artifact, empty until fetched
	Duration  time.Duration // Known track duration (zero if unknown)
	Status    Status        // Lifecycle status
	FailCause string        // Short failure reason, set when Status is StatusFailed
	AddedAt   time.Time     // Time when added to queue
}

// New creates a queued song for the given source reference.
func New(title, artist, sourceRef string) Song {
	return Song{
		ID:        uuid.New().String(),
		Title:     title,
		Artist:    artist,
		SourceRef: sourceRef,
		Status:    StatusQueued,
		AddedAt:   time.Now(),
	}
}

// IsPending reports whether the song is still waiting for its artifact.
func (s *Song) IsPending() bool {
	return s.Status == StatusQueued || s.Status == StatusFetching
}

// IsTerminal reports whether the song's lifecycle has ended.
func (s *Song) IsTerminal() bool {
	return s.Status == StatusPlayed || s.Status == StatusFailed
}
