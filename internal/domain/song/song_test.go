package song

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status   Status
		expected string
	}{
		{StatusQueued, "queued"},
		{StatusFetching, "fetching"},
		{StatusReady, "ready"},
		{StatusPlaying, "playing"},
		{StatusPlayed, "played"},
		{StatusFailed, "failed"},
		{Status(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.status.String())
		})
	}
}

func TestNew(t *testing.T) {
	s := New("Bohemian Rhapsody", "Queen", "https://example.com/watch?v=abc")

	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "Bohemian Rhapsody", s.Title)
	assert.Equal(t, "Queen", s.Artist)
	assert.Equal(t, "https://example.com/watch?v=abc", s.SourceRef)
	assert.Equal(t, StatusQueued, s.Status)
	assert.Empty(t, s.LocalPath)
	assert.False(t, s.AddedAt.IsZero())

	other := New("Bohemian Rhapsody", "Queen", "https://example.com/watch?v=abc")
	assert.NotEqual(t, s.ID, other.ID)
}

func TestSong_Lifecycle(t *testing.T) {
	tests := []struct {
		name     string
		status   Status
		pending  bool
		terminal bool
	}{
		{"queued", StatusQueued, true, false},
		{"fetching", StatusFetching, true, false},
		{"ready", StatusReady, false, false},
		{"playing", StatusPlaying, false, false},
		{"played", StatusPlayed, false, true},
		{"failed", StatusFailed, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New("t", "a", "ref")
			s.Status = tt.status
			assert.Equal(t, tt.pending, s.IsPending())
			assert.Equal(t, tt.terminal, s.IsTerminal())
		})
	}
}
