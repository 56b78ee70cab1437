// Package dispatch provides the intent dispatcher: it converts one free-form
// input into an ordered batch of validated queue/playback operations via the
// language-model capability and applies them to the store.
package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/osa030/vibedeck/internal/app/fetch"
	"github.com/osa030/vibedeck/internal/app/store"
	"github.com/osa030/vibedeck/internal/domain/song"
	"github.com/osa030/vibedeck/internal/errdefs"
	"github.com/osa030/vibedeck/internal/infra/anthropic"
)

const systemPrompt = `You are the brain of vibedeck, a terminal music player. Interpret the user's input and control the player using tools.

You receive the current player state (now playing, queue) with each message. Always respond with tool calls, never with plain text.

Guidelines:
- For direct media URLs, use play_url
- For song or artist names, use search_and_queue with precise queries
- For vibe or mood requests, translate the mood into several specific search queries
- When replacing the queue, pick 4-6 diverse but fitting queries
- Keep queries specific: artist names, song names, or descriptive terms like "chill lo-fi beats" rather than vague words`

// Truncation bounds for the context payload.
const (
	maxContextQueue = 15
	maxContextTitle = 60
)

// LLM is the language-model dispatch capability.
type LLM interface {
	Request(ctx context.Context, req anthropic.Request) ([]anthropic.ToolCall, error)
}

// Player is the subset of playback engine operations the dispatcher uses.
type Player interface {
	Skip() error
	Pause() error
	Resume() error
	SetVolume(level int)
}

// Catalog resolves queries into candidates and schedules their fetches.
type Catalog interface {
	Resolve(ctx context.Context, queryOrLocator string, limit int) ([]fetch.Candidate, error)
	Schedule(songID string)
}

// Dispatcher serializes intent handling: at most one dispatch is in flight,
// later inputs queue behind its completion.
type Dispatcher struct {
	store   *store.Store
	player  Player
	catalog Catalog
	llm     LLM

	inflight chan struct{} // capacity 1, serializes dispatches
}

// New creates a dispatcher.
func New(st *store.Store, player Player, catalog Catalog, llm LLM) *Dispatcher {
	return &Dispatcher{
		store:    st,
		player:   player,
		catalog:  catalog,
		llm:      llm,
		inflight: make(chan struct{}, 1),
	}
}

// HandleInput runs one full dispatch: snapshot, model call, sequential
// application of the returned operations. A failed model call leaves the
// queue untouched and surfaces a notice.
func (d *Dispatcher) HandleInput(ctx context.Context, input string) error {
	d.inflight <- struct{}{}
	defer func() { <-d.inflight }()

	zlog.Info().Msgf("dispatch: handling input: %q", input)

	payload := buildContext(d.store.Snapshot())
	d.store.Update(func(st *store.State) {
		st.Dispatcher = store.DispatcherThinking
		st.Notice = ""
	})

	calls, err := d.llm.Request(ctx, anthropic.Request{
		System: systemPrompt + "\n\nCurrent state:\n" + payload,
		Input:  input,
		Tools:  toolDefs(),
	})
	if err != nil {
		notice := "assistant unavailable"
		if errors.Is(err, errdefs.ErrDispatchTimeout) {
			notice = "assistant timed out"
		}
		d.store.Update(func(st *store.State) {
			st.Dispatcher = store.DispatcherIdle
			st.Notice = notice
		})
		return errors.Wrap(err, "dispatch failed")
	}

	zlog.Info().Msgf("dispatch: received %d tool calls", len(calls))
	d.store.Update(func(st *store.State) {
		st.Dispatcher = store.DispatcherActing
	})

	for _, call := range calls {
		op, err := decodeOperation(call)
		if err != nil {
			zlog.Warn().Msgf("dispatch: skipping operation: name=%s err=%v", call.Name, err)
			continue
		}
		d.store.Update(func(st *store.State) {
			st.ActiveTool = op.Name
		})
		if err := d.apply(ctx, op); err != nil {
			// Failures stay local to the operation; the batch continues.
			zlog.Warn().Msgf("dispatch: operation failed: name=%s err=%v", op.Name, err)
		}
	}

	d.store.Update(func(st *store.State) {
		st.Dispatcher = store.DispatcherIdle
		st.ActiveTool = ""
	})
	return nil
}

func (d *Dispatcher) apply(ctx context.Context, op Operation) error {
	zlog.Debug().Msgf("dispatch: applying %s", op.Name)

	switch args := op.Args.(type) {
	case PlayURLArgs:
		return d.playURL(ctx, args.URL)

	case SearchAndQueueArgs:
		return d.searchAndQueue(ctx, args.Query, args.Count)

	case QueueNextArgs:
		return d.queueNext(ctx, args.Query)

	case SetVolumeArgs:
		d.player.SetVolume(args.Level)
		return nil

	case ReplaceQueueArgs:
		d.clearQueue()
		for _, q := range args.Queries {
			if err := d.searchAndQueue(ctx, q, replaceCountPerQuery); err != nil {
				zlog.Warn().Msgf("dispatch: replace_queue query failed: query=%q err=%v", q, err)
			}
		}
		return nil
	}

	switch op.Name {
	case OpSkip:
		if err := d.player.Skip(); err != nil {
			return errors.Wrap(err, "skip")
		}
		return nil
	case OpPause:
		return d.player.Pause()
	case OpResume:
		return d.player.Resume()
	case OpClearQueue:
		d.clearQueue()
		return nil
	}
	return errors.Mark(errors.Newf("unhandled operation %q", op.Name), errdefs.ErrInvalidOperation)
}

// playURL resolves a direct locator and puts the song at the queue front with
// immediate fetch priority.
func (d *Dispatcher) playURL(ctx context.Context, url string) error {
	candidates, err := d.catalog.Resolve(ctx, url, 1)
	if err != nil {
		return errors.Wrap(err, "failed to resolve url")
	}
	if len(candidates) == 0 {
		return errors.Newf("no candidate for %q", url)
	}

	s := newSong(candidates[0])
	d.store.Update(func(st *store.State) {
		st.Queue = append([]song.Song{s}, st.Queue...)
	})
	d.catalog.Schedule(s.ID)
	return nil
}

// searchAndQueue appends up to count resolved candidates to the queue tail in
// resolve order and schedules their fetches.
func (d *Dispatcher) searchAndQueue(ctx context.Context, query string, count int) error {
	candidates, err := d.catalog.Resolve(ctx, query, count)
	if err != nil {
		return errors.Wrapf(err, "search failed for %q", query)
	}

	songs := lo.Map(candidates, func(c fetch.Candidate, _ int) song.Song {
		return newSong(c)
	})
	d.store.Update(func(st *store.State) {
		st.Queue = append(st.Queue, songs...)
	})
	for _, s := range songs {
		d.catalog.Schedule(s.ID)
	}
	zlog.Info().Msgf("dispatch: queued %d songs for %q", len(songs), query)
	return nil
}

// queueNext resolves exactly one song and inserts it immediately after the
// playing entry; when nothing is playing, it lands at position 1 so the song
// about to start keeps its slot.
func (d *Dispatcher) queueNext(ctx context.Context, query string) error {
	candidates, err := d.catalog.Resolve(ctx, query, 1)
	if err != nil {
		return errors.Wrapf(err, "queue_next failed for %q", query)
	}
	if len(candidates) == 0 {
		return errors.Newf("no candidate for %q", query)
	}

	s := newSong(candidates[0])
	d.store.Update(func(st *store.State) {
		pos := 0
		if st.Current == nil && len(st.Queue) > 0 {
			pos = 1
		}
		st.Queue = append(st.Queue[:pos], append([]song.Song{s}, st.Queue[pos:]...)...)
	})
	d.catalog.Schedule(s.ID)
	return nil
}

// clearQueue drops all pending entries. The playing song lives outside the
// pending sequence and is untouched; in-flight fetches for dropped songs are
// not cancelled, their results are discarded on completion.
func (d *Dispatcher) clearQueue() {
	d.store.Update(func(st *store.State) {
		zlog.Info().Msgf("dispatch: clearing %d queued songs", len(st.Queue))
		st.Queue = st.Queue[:0]
	})
}

func newSong(c fetch.Candidate) song.Song {
	s := song.New(c.Title, c.Artist, c.Locator)
	s.Duration = c.Duration
	return s
}

// buildContext renders the state snapshot into the bounded text payload sent
// with each dispatch.
func buildContext(snap store.State) string {
	var b strings.Builder

	if snap.Current != nil {
		fmt.Fprintf(&b, "Now playing: %s - %s\n", snap.Current.Song.Title, snap.Current.Song.Artist)
	} else {
		b.WriteString("Now playing: nothing\n")
	}

	if len(snap.Queue) == 0 {
		b.WriteString("Queue: empty\n")
	} else {
		b.WriteString("Queue:\n")
		titles := lo.Map(snap.Queue, func(s song.Song, _ int) string {
			return truncate(s.Title, maxContextTitle) + " (" + s.Status.String() + ")"
		})
		for i, t := range titles {
			if i == maxContextQueue {
				fmt.Fprintf(&b, "  ... and %d more\n", len(titles)-maxContextQueue)
				break
			}
			fmt.Fprintf(&b, "  %d. %s\n", i+1, t)
		}
	}

	fmt.Fprintf(&b, "Volume: %d\n", snap.Volume)
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
