package ytdlp

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/vibedeck/internal/app/fetch"
)

func TestNew(t *testing.T) {
	t.Run("creates cache directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "cache")
		c, err := New(Config{CacheDir: dir})
		require.NoError(t, err)
		assert.Equal(t, "yt-dlp", c.binary)
		assert.DirExists(t, dir)
	})

	t.Run("requires cache directory", func(t *testing.T) {
		_, err := New(Config{})
		assert.Error(t, err)
	})

	t.Run("custom binary", func(t *testing.T) {
		c, err := New(Config{Binary: "/opt/yt-dlp", CacheDir: t.TempDir()})
		require.NoError(t, err)
		assert.Equal(t, "/opt/yt-dlp", c.binary)
	})
}

func TestParseCandidates(t *testing.T) {
	tests := []struct {
		name string
		out  string
		want []fetch.Candidate
	}{
		{
			name: "full lines",
			out: "Plastic Love\tMariya Takeuchi\thttps://example.com/1\t290\n" +
				"Stay With Me\tMiki Matsubara\thttps://example.com/2\t252.5\n",
			want: []fetch.Candidate{
				{Title: "Plastic Love", Artist: "Mariya Takeuchi", Locator: "https://example.com/1", Duration: 290 * time.Second},
				{Title: "Stay With Me", Artist: "Miki Matsubara", Locator: "https://example.com/2", Duration: 252500 * time.Millisecond},
			},
		},
		{
			name: "NA artist is cleared",
			out:  "Some Mix\tNA\thttps://example.com/3\t3600\n",
			want: []fetch.Candidate{
				{Title: "Some Mix", Artist: "", Locator: "https://example.com/3", Duration: time.Hour},
			},
		},
		{
			name: "missing duration",
			out:  "Untimed\tSomeone\thttps://example.com/4\n",
			want: []fetch.Candidate{
				{Title: "Untimed", Artist: "Someone", Locator: "https://example.com/4"},
			},
		},
		{
			name: "unparseable duration kept without duration",
			out:  "Odd\tSomeone\thttps://example.com/5\tNA\n",
			want: []fetch.Candidate{
				{Title: "Odd", Artist: "Someone", Locator: "https://example.com/5"},
			},
		},
		{
			name: "malformed lines are dropped",
			out:  "just a title\nGood\tArtist\thttps://example.com/6\t10\n\n",
			want: []fetch.Candidate{
				{Title: "Good", Artist: "Artist", Locator: "https://example.com/6", Duration: 10 * time.Second},
			},
		},
		{
			name: "empty output",
			out:  "",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseCandidates(tt.out))
		})
	}
}

func TestIsPermanentFailure(t *testing.T) {
	tests := []struct {
		stderr string
		want   bool
	}{
		{"ERROR: Video unavailable", true},
		{"ERROR: [youtube] xyz: Private video", true},
		{"ERROR: Unsupported URL: ftp://nope", true},
		{"HTTP Error 404: Not Found", true},
		{"ERROR: unable to download webpage: timed out", false},
		{"ConnectionResetError: [Errno 104]", false},
		{"", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, isPermanentFailure(tt.stderr), tt.stderr)
	}
}

func TestIsURL(t *testing.T) {
	assert.True(t, isURL("https://example.com/watch?v=x"))
	assert.True(t, isURL("http://example.com"))
	assert.False(t, isURL("plastic love mariya takeuchi"))
	assert.False(t, isURL("ftp://example.com"))
}

func TestCachePath(t *testing.T) {
	c, err := New(Config{CacheDir: t.TempDir()})
	require.NoError(t, err)

	p1 := c.cachePath("https://example.com/a")
	p2 := c.cachePath("https://example.com/a")
	p3 := c.cachePath("https://example.com/b")

	assert.Equal(t, p1, p2)
	assert.NotEqual(t, p1, p3)
	assert.True(t, strings.HasSuffix(p1, ".mp3"))
	assert.Equal(t, c.cacheDir, filepath.Dir(p1))
}

func TestMaterialize_CacheHit(t *testing.T) {
	c, err := New(Config{Binary: "/nonexistent/yt-dlp", CacheDir: t.TempDir()})
	require.NoError(t, err)

	locator := "https://example.com/cached"
	require.NoError(t, os.WriteFile(c.cachePath(locator), []byte("mp3"), 0o644))

	// The binary does not exist, so only a cache hit can succeed.
	path, err := c.Materialize(context.Background(), locator)
	require.NoError(t, err)
	assert.Equal(t, c.cachePath(locator), path)
}
