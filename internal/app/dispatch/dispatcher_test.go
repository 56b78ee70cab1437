package dispatch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/vibedeck/internal/app/fetch"
	"github.com/osa030/vibedeck/internal/app/store"
	"github.com/osa030/vibedeck/internal/domain/song"
	"github.com/osa030/vibedeck/internal/errdefs"
	"github.com/osa030/vibedeck/internal/infra/anthropic"
)

type fakeLLM struct {
	calls []anthropic.ToolCall
	err   error

	gotRequest anthropic.Request
	onRequest  func() // runs while the model call is in flight
}

func (l *fakeLLM) Request(_ context.Context, req anthropic.Request) ([]anthropic.ToolCall, error) {
	l.gotRequest = req
	if l.onRequest != nil {
		l.onRequest()
	}
	return l.calls, l.err
}

type fakePlayer struct {
	mu      sync.Mutex
	actions []string
	volume  int
	skipErr error
}

func (p *fakePlayer) record(a string) {
	p.mu.Lock()
	p.actions = append(p.actions, a)
	p.mu.Unlock()
}

func (p *fakePlayer) Skip() error   { p.record("skip"); return p.skipErr }
func (p *fakePlayer) Pause() error  { p.record("pause"); return nil }
func (p *fakePlayer) Resume() error { p.record("resume"); return nil }

func (p *fakePlayer) SetVolume(level int) {
	p.record("set_volume")
	p.mu.Lock()
	p.volume = level
	p.mu.Unlock()
}

// fakeCatalog resolves every query into numbered candidates.
type fakeCatalog struct {
	mu        sync.Mutex
	resolves  []string
	scheduled []string
	empty     bool
}

func (c *fakeCatalog) Resolve(_ context.Context, query string, limit int) ([]fetch.Candidate, error) {
	c.mu.Lock()
	c.resolves = append(c.resolves, query)
	c.mu.Unlock()
	if c.empty {
		return nil, nil
	}
	out := make([]fetch.Candidate, 0, limit)
	for i := 0; i < limit; i++ {
		out = append(out, fetch.Candidate{
			Title:    fmt.Sprintf("%s #%d", query, i+1),
			Artist:   "artist",
			Locator:  fmt.Sprintf("ref:%s:%d", query, i+1),
			Duration: 3 * time.Minute,
		})
	}
	return out, nil
}

func (c *fakeCatalog) Schedule(songID string) {
	c.mu.Lock()
	c.scheduled = append(c.scheduled, songID)
	c.mu.Unlock()
}

func newTestDispatcher(llm *fakeLLM) (*store.Store, *fakePlayer, *fakeCatalog, *Dispatcher) {
	st := store.New(70)
	player := &fakePlayer{}
	catalog := &fakeCatalog{}
	return st, player, catalog, New(st, player, catalog, llm)
}

func queueTitles(st *store.Store) []string {
	snap := st.Snapshot()
	titles := make([]string, 0, len(snap.Queue))
	for _, s := range snap.Queue {
		titles = append(titles, s.Title)
	}
	return titles
}

func TestDispatcher_SearchAndQueue(t *testing.T) {
	llm := &fakeLLM{calls: []anthropic.ToolCall{
		{Name: OpSearchAndQueue, Args: map[string]any{"query": "city pop", "count": 3}},
	}}
	st, _, catalog, d := newTestDispatcher(llm)

	require.NoError(t, d.HandleInput(context.Background(), "play some city pop"))

	assert.Equal(t, []string{"city pop #1", "city pop #2", "city pop #3"}, queueTitles(st))
	assert.Len(t, catalog.scheduled, 3)

	snap := st.Snapshot()
	assert.Equal(t, store.DispatcherIdle, snap.Dispatcher)
	assert.Empty(t, snap.ActiveTool)
	for _, s := range snap.Queue {
		assert.Equal(t, song.StatusQueued, s.Status)
	}
}

func TestDispatcher_PlayURLInsertsAtFront(t *testing.T) {
	llm := &fakeLLM{calls: []anthropic.ToolCall{
		{Name: OpPlayURL, Args: map[string]any{"url": "https://example.com/v"}},
	}}
	st, _, catalog, d := newTestDispatcher(llm)
	st.Update(func(s *store.State) {
		s.Queue = append(s.Queue, song.New("existing", "a", "ref:existing"))
	})

	require.NoError(t, d.HandleInput(context.Background(), "play this https://example.com/v"))

	titles := queueTitles(st)
	require.Len(t, titles, 2)
	assert.Equal(t, "https://example.com/v #1", titles[0])
	assert.Equal(t, "existing", titles[1])
	assert.Len(t, catalog.scheduled, 1)
}

func TestDispatcher_QueueNextPosition(t *testing.T) {
	t.Run("nothing playing keeps head slot", func(t *testing.T) {
		llm := &fakeLLM{calls: []anthropic.ToolCall{
			{Name: OpQueueNext, Args: map[string]any{"query": "next"}},
		}}
		st, _, _, d := newTestDispatcher(llm)
		st.Update(func(s *store.State) {
			s.Queue = append(s.Queue, song.New("head", "a", "ref:head"), song.New("tail", "a", "ref:tail"))
		})

		require.NoError(t, d.HandleInput(context.Background(), "queue next"))

		assert.Equal(t, []string{"head", "next #1", "tail"}, queueTitles(st))
	})

	t.Run("playing song inserts at front", func(t *testing.T) {
		llm := &fakeLLM{calls: []anthropic.ToolCall{
			{Name: OpQueueNext, Args: map[string]any{"query": "next"}},
		}}
		st, _, _, d := newTestDispatcher(llm)
		st.Update(func(s *store.State) {
			s.Current = &store.NowPlaying{Song: song.New("playing", "a", "ref:playing")}
			s.Queue = append(s.Queue, song.New("tail", "a", "ref:tail"))
		})

		require.NoError(t, d.HandleInput(context.Background(), "queue next"))

		assert.Equal(t, []string{"next #1", "tail"}, queueTitles(st))
	})
}

func TestDispatcher_ReplaceQueue(t *testing.T) {
	llm := &fakeLLM{calls: []anthropic.ToolCall{
		{Name: OpReplaceQueue, Args: map[string]any{"queries": []any{"q1", "q2"}}},
	}}
	st, _, catalog, d := newTestDispatcher(llm)
	st.Update(func(s *store.State) {
		s.Queue = append(s.Queue, song.New("old", "a", "ref:old"))
	})

	require.NoError(t, d.HandleInput(context.Background(), "new vibe"))

	assert.Equal(t, []string{"q1 #1", "q1 #2", "q2 #1", "q2 #2"}, queueTitles(st))
	assert.Equal(t, []string{"q1", "q2"}, catalog.resolves)
}

func TestDispatcher_BatchAppliesInOrder(t *testing.T) {
	llm := &fakeLLM{calls: []anthropic.ToolCall{
		{Name: OpQueueNext, Args: map[string]any{"query": "fresh"}},
		{Name: OpSkip},
	}}
	st, player, _, d := newTestDispatcher(llm)

	require.NoError(t, d.HandleInput(context.Background(), "play fresh now"))

	// The skip runs after the insert, so the later operation observes the
	// earlier one's write.
	assert.Equal(t, []string{"fresh #1"}, queueTitles(st))
	assert.Equal(t, []string{"skip"}, player.actions)
}

func TestDispatcher_PlayerControls(t *testing.T) {
	llm := &fakeLLM{calls: []anthropic.ToolCall{
		{Name: OpPause},
		{Name: OpResume},
		{Name: OpSetVolume, Args: map[string]any{"level": 35}},
	}}
	_, player, _, d := newTestDispatcher(llm)

	require.NoError(t, d.HandleInput(context.Background(), "pause then resume quieter"))

	assert.Equal(t, []string{"pause", "resume", "set_volume"}, player.actions)
	assert.Equal(t, 35, player.volume)
}

func TestDispatcher_ClearQueueKeepsCurrent(t *testing.T) {
	llm := &fakeLLM{calls: []anthropic.ToolCall{{Name: OpClearQueue}}}
	st, _, _, d := newTestDispatcher(llm)
	st.Update(func(s *store.State) {
		s.Current = &store.NowPlaying{Song: song.New("playing", "a", "ref:playing")}
		s.Queue = append(s.Queue, song.New("one", "a", "ref:one"), song.New("two", "a", "ref:two"))
	})

	require.NoError(t, d.HandleInput(context.Background(), "clear the queue"))

	snap := st.Snapshot()
	assert.Empty(t, snap.Queue)
	require.NotNil(t, snap.Current)
	assert.Equal(t, "playing", snap.Current.Song.Title)
}

func TestDispatcher_LLMFailure(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantNotice string
	}{
		{
			name:       "timeout",
			err:        errors.Mark(errors.New("deadline"), errdefs.ErrDispatchTimeout),
			wantNotice: "assistant timed out",
		},
		{
			name:       "transport",
			err:        errors.Mark(errors.New("boom"), errdefs.ErrDispatchTransport),
			wantNotice: "assistant unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &fakeLLM{err: tt.err}
			st, _, _, d := newTestDispatcher(llm)
			st.Update(func(s *store.State) {
				s.Queue = append(s.Queue, song.New("keep", "a", "ref:keep"))
			})

			err := d.HandleInput(context.Background(), "anything")
			require.Error(t, err)

			snap := st.Snapshot()
			assert.Equal(t, store.DispatcherIdle, snap.Dispatcher)
			assert.Equal(t, tt.wantNotice, snap.Notice)
			assert.Equal(t, []string{"keep"}, queueTitles(st))
		})
	}
}

func TestDispatcher_InvalidOperationSkipped(t *testing.T) {
	llm := &fakeLLM{calls: []anthropic.ToolCall{
		{Name: "shuffle"}, // not in the vocabulary
		{Name: OpSearchAndQueue, Args: map[string]any{"query": "ok", "count": 1}},
	}}
	st, _, _, d := newTestDispatcher(llm)

	require.NoError(t, d.HandleInput(context.Background(), "shuffle and queue"))

	assert.Equal(t, []string{"ok #1"}, queueTitles(st))
}

func TestDispatcher_NoCandidateLeavesQueueUntouched(t *testing.T) {
	llm := &fakeLLM{calls: []anthropic.ToolCall{
		{Name: OpPlayURL, Args: map[string]any{"url": "https://example.com/gone"}},
	}}
	st, _, catalog, d := newTestDispatcher(llm)
	catalog.empty = true

	require.NoError(t, d.HandleInput(context.Background(), "play this"))

	assert.Empty(t, st.Snapshot().Queue)
	assert.Empty(t, catalog.scheduled)
}

func TestDispatcher_OperationFailureContinuesBatch(t *testing.T) {
	llm := &fakeLLM{calls: []anthropic.ToolCall{
		{Name: OpSkip},
		{Name: OpSetVolume, Args: map[string]any{"level": 20}},
	}}
	_, player, _, d := newTestDispatcher(llm)
	player.skipErr = errors.New("no song playing")

	require.NoError(t, d.HandleInput(context.Background(), "skip and turn it down"))

	assert.Equal(t, []string{"skip", "set_volume"}, player.actions)
	assert.Equal(t, 20, player.volume)
}

func TestDispatcher_ThinkingStatusDuringModelCall(t *testing.T) {
	llm := &fakeLLM{}
	st, _, _, d := newTestDispatcher(llm)

	var during store.DispatcherStatus
	llm.onRequest = func() {
		during = st.Snapshot().Dispatcher
	}

	require.NoError(t, d.HandleInput(context.Background(), "anything"))

	assert.Equal(t, store.DispatcherThinking, during)
	assert.Equal(t, store.DispatcherIdle, st.Snapshot().Dispatcher)
}

func TestDispatcher_ContextPayload(t *testing.T) {
	llm := &fakeLLM{}
	st, _, _, d := newTestDispatcher(llm)
	st.Update(func(s *store.State) {
		s.Current = &store.NowPlaying{Song: song.New("Plastic Love", "Mariya Takeuchi", "ref")}
		s.Queue = append(s.Queue, song.New("Stay With Me", "Miki Matsubara", "ref2"))
		s.Volume = 55
	})

	require.NoError(t, d.HandleInput(context.Background(), "what next"))

	assert.Contains(t, llm.gotRequest.System, "Now playing: Plastic Love - Mariya Takeuchi")
	assert.Contains(t, llm.gotRequest.System, "1. Stay With Me (queued)")
	assert.Contains(t, llm.gotRequest.System, "Volume: 55")
	assert.Equal(t, "what next", llm.gotRequest.Input)
	assert.Len(t, llm.gotRequest.Tools, 9)
}

func TestBuildContext_Truncation(t *testing.T) {
	st := store.New(70)
	st.Update(func(s *store.State) {
		for i := 0; i < maxContextQueue+5; i++ {
			s.Queue = append(s.Queue, song.New(fmt.Sprintf("song %02d", i), "a", "ref"))
		}
	})

	payload := buildContext(st.Snapshot())

	assert.Contains(t, payload, "Now playing: nothing")
	assert.Contains(t, payload, "15. song 14 (queued)")
	assert.NotContains(t, payload, "16. ")
	assert.Contains(t, payload, "... and 5 more")
}
