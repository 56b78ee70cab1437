// Package ytdlp provides the fetch capability over the yt-dlp subprocess:
// query/locator resolution and artifact materialization into a local
// content-addressed cache.
package ytdlp

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/vibedeck/internal/app/fetch"
	"github.com/osa030/vibedeck/internal/errdefs"
)

// Config represents client configuration.
type Config struct {
	Binary   string // yt-dlp executable, defaults to "yt-dlp"
	CacheDir string // directory for materialized artifacts
}

// Client shells out to yt-dlp. Artifacts are cached content-addressed by the
// SHA-1 of their locator, so re-requested songs materialize instantly.
type Client struct {
	binary   string
	cacheDir string
}

// New creates a client and ensures the cache directory exists.
func New(cfg Config) (*Client, error) {
	if cfg.Binary == "" {
		cfg.Binary = "yt-dlp"
	}
	if cfg.CacheDir == "" {
		return nil, errors.New("cache directory is required")
	}
	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create cache directory")
	}
	return &Client{binary: cfg.Binary, cacheDir: cfg.CacheDir}, nil
}

// Resolve maps a direct URL or a free-form query to candidate songs. URLs
// resolve to exactly one candidate via a metadata probe; queries run a
// flat-playlist search returning up to limit results.
func (c *Client) Resolve(ctx context.Context, queryOrLocator string, limit int) ([]fetch.Candidate, error) {
	if limit <= 0 {
		limit = 1
	}

	target := queryOrLocator
	args := []string{
		"--print", "%(title)s\t%(uploader)s\t%(webpage_url)s\t%(duration)s",
		"--no-download",
		"--no-playlist",
	}
	if !isURL(queryOrLocator) {
		target = fmt.Sprintf("ytsearch%d:%s", limit, queryOrLocator)
		args = append(args, "--flat-playlist")
	}
	args = append(args, target)

	out, err := c.runCommand(ctx, args)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve failed for %q", queryOrLocator)
	}

	candidates := parseCandidates(out)
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	zlog.Debug().Msgf("ytdlp: resolved %d candidates for %q", len(candidates), queryOrLocator)
	return candidates, nil
}

// Materialize downloads the locator's audio into the cache and returns the
// local path. A cache hit skips the subprocess entirely.
func (c *Client) Materialize(ctx context.Context, locator string) (string, error) {
	path := c.cachePath(locator)
	if _, err := os.Stat(path); err == nil {
		zlog.Debug().Msgf("ytdlp: cache hit: %s", path)
		return path, nil
	}

	args := []string{
		"-x",
		"--audio-format", "mp3",
		"--audio-quality", "5",
		"-o", strings.TrimSuffix(path, ".mp3") + ".%(ext)s",
		"--no-playlist",
		locator,
	}
	if _, err := c.runCommand(ctx, args); err != nil {
		return "", errors.Wrapf(err, "materialize failed for %q", locator)
	}

	if _, err := os.Stat(path); err != nil {
		return "", errdefs.Permanent(err, "artifact missing after download")
	}
	zlog.Info().Msgf("ytdlp: materialized: %s", path)
	return path, nil
}

// cachePath returns the content-addressed artifact path for a locator.
func (c *Client) cachePath(locator string) string {
	sum := sha1.Sum([]byte(locator))
	return filepath.Join(c.cacheDir, hex.EncodeToString(sum[:])+".mp3")
}

// runCommand executes yt-dlp and classifies failures into transient and
// permanent fetch error kinds.
func (c *Client) runCommand(ctx context.Context, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, c.binary, args...)
	out, err := cmd.Output()
	if err == nil {
		return string(out), nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", errdefs.Transient(ctx.Err(), "yt-dlp timed out")
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		stderr := string(exitErr.Stderr)
		zlog.Error().Msgf("ytdlp: command failed: %s", strings.TrimSpace(stderr))
		if isPermanentFailure(stderr) {
			return "", errdefs.Permanent(err, "source rejected by yt-dlp")
		}
		return "", errdefs.Transient(err, "yt-dlp exited with error")
	}
	// Binary missing or not executable; retrying will not help.
	return "", errdefs.Permanent(err, "failed to run yt-dlp")
}

// parseCandidates parses tab-separated --print output, one candidate per line.
func parseCandidates(out string) []fetch.Candidate {
	var candidates []fetch.Candidate
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 4)
		if len(parts) < 3 {
			zlog.Warn().Msgf("ytdlp: unparseable result line: %q", line)
			continue
		}
		cand := fetch.Candidate{
			Title:   parts[0],
			Artist:  parts[1],
			Locator: parts[2],
		}
		if cand.Artist == "NA" {
			cand.Artist = ""
		}
		if len(parts) == 4 {
			if secs, err := strconv.ParseFloat(parts[3], 64); err == nil {
				cand.Duration = time.Duration(secs * float64(time.Second))
			}
		}
		candidates = append(candidates, cand)
	}
	return candidates
}

// isPermanentFailure matches failure classes that no retry can fix.
func isPermanentFailure(stderr string) bool {
	s := strings.ToLower(stderr)
	for _, marker := range []string{
		"video unavailable",
		"not found",
		"unsupported url",
		"private video",
		"404",
	} {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
