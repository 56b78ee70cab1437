// Package fetch provides the pipeline that turns queued song references into
// locally playable artifacts.
package fetch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/vibedeck/internal/app/store"
	"github.com/osa030/vibedeck/internal/domain/song"
	"github.com/osa030/vibedeck/internal/errdefs"
)

// Candidate is one resolved song reference.
type Candidate struct {
	Title    string
	Artist   string
	Locator  string
	Duration time.Duration
}

// Source is the external fetch capability.
type Source interface {
	// Resolve maps a free-form query or a direct locator to an ordered
	// list of candidates.
	Resolve(ctx context.Context, queryOrLocator string, limit int) ([]Candidate, error)

	// Materialize produces a local audio artifact for the locator and
	// returns its path.
	Materialize(ctx context.Context, locator string) (string, error)
}

// Config holds pipeline configuration.
type Config struct {
	Concurrency int           // Max simultaneous fetches
	Backlog     int           // Max fetches admitted but not yet finished
	Timeout     time.Duration // Per-attempt materialize timeout
}

// Pipeline fetches artifacts for queued songs with bounded concurrency.
// Each song enters the pipeline at most once: scheduling transitions it to
// StatusFetching before the external call is launched.
type Pipeline struct {
	store  *store.Store
	source Source
	config Config

	sem     chan struct{} // counting admission gate
	pending atomic.Int64  // admitted fetches not yet finished

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a pipeline. Concurrency and Backlog must be positive.
func New(st *store.Store, source Source, cfg Config) *Pipeline {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		store:  st,
		source: source,
		config: cfg,
		sem:    make(chan struct{}, cfg.Concurrency),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Resolve delegates to the fetch capability with the pipeline timeout.
func (p *Pipeline) Resolve(ctx context.Context, queryOrLocator string, limit int) ([]Candidate, error) {
	ctx, cancelFn := context.WithTimeout(ctx, p.config.Timeout)
	defer cancelFn()
	return p.source.Resolve(ctx, queryOrLocator, limit)
}

// Schedule admits the song into the pipeline. It is a no-op unless the song
// exists and is in StatusQueued. Excess requests beyond the backlog bound are
// failed immediately rather than piling up.
func (p *Pipeline) Schedule(songID string) {
	var sourceRef string
	var admitted bool
	p.store.Update(func(st *store.State) {
		s := st.FindSong(songID)
		if s == nil || s.Status != song.StatusQueued {
			return
		}
		if s.SourceRef == "" {
			s.Status = song.StatusFailed
			s.FailCause = "missing source reference"
			zlog.Warn().Msgf("fetch: song has no source reference: title=%s", s.Title)
			return
		}
		if int(p.pending.Load()) >= p.config.Backlog {
			s.Status = song.StatusFailed
			s.FailCause = "fetch backlog full"
			zlog.Warn().Msgf("fetch: backlog full, rejecting song: title=%s", s.Title)
			return
		}
		s.Status = song.StatusFetching
		sourceRef = s.SourceRef
		admitted = true
		// Count against the backlog while still under the store lock, so
		// concurrent Schedule calls cannot all pass the check above.
		p.pending.Add(1)
	})
	if !admitted {
		return
	}

	p.wg.Add(1)
	go p.run(songID, sourceRef)
}

// Close stops accepting work and waits for in-flight fetches to finish.
func (p *Pipeline) Close() {
	p.cancel()
	p.wg.Wait()
}

func (p *Pipeline) run(songID, sourceRef string) {
	defer p.wg.Done()
	defer p.pending.Add(-1)

	select {
	case p.sem <- struct{}{}:
		defer func() { <-p.sem }()
	case <-p.ctx.Done():
		return
	}

	path, err := p.materialize(sourceRef)

	p.store.Update(func(st *store.State) {
		s := st.FindSong(songID)
		if s == nil {
			// Song was cleared or skipped away while the fetch was in
			// flight. The result is discarded.
			zlog.Debug().Msgf("fetch: song gone, discarding result: ref=%s", sourceRef)
			return
		}
		if s.Status != song.StatusFetching {
			return
		}
		if err != nil {
			s.Status = song.StatusFailed
			s.FailCause = shortCause(err)
			zlog.Error().Msgf("fetch: failed: title=%s ref=%s err=%v", s.Title, sourceRef, err)
			return
		}
		s.LocalPath = path
		s.Status = song.StatusReady
		zlog.Info().Msgf("fetch: ready: title=%s path=%s", s.Title, path)
	})
}

// materialize runs one fetch attempt with a timeout, retrying once on
// transient failure classes.
func (p *Pipeline) materialize(sourceRef string) (string, error) {
	path, err := p.attempt(sourceRef)
	if err == nil || !errdefs.IsTransient(err) {
		return path, err
	}

	zlog.Warn().Msgf("fetch: transient failure, retrying once: ref=%s err=%v", sourceRef, err)
	path, retryErr := p.attempt(sourceRef)
	if retryErr != nil {
		return "", errors.Wrap(retryErr, "retry failed")
	}
	return path, nil
}

func (p *Pipeline) attempt(sourceRef string) (string, error) {
	ctx, cancelFn := context.WithTimeout(p.ctx, p.config.Timeout)
	defer cancelFn()

	path, err := p.source.Materialize(ctx, sourceRef)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", errdefs.Transient(err, "materialize timed out")
		}
		return "", err
	}
	return path, nil
}

func shortCause(err error) string {
	switch {
	case errdefs.IsTransient(err):
		return "network error"
	case errors.Is(err, errdefs.ErrFetchPermanent):
		return "source unavailable"
	default:
		return "fetch error"
	}
}
