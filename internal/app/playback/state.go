// Package playback provides the engine that plays ready songs in queue order.
package playback

// State represents the engine state.
type State int

const (
	StateStopped State = iota // Nothing playing; polling for a ready song
	StatePlaying              // A song is playing
	StatePaused               // Playing, suspended with position retained
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}
