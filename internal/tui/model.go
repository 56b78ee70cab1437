// Package tui provides the terminal renderer. It consumes store snapshots on
// a fixed tick and maps key events onto engine, store and dispatcher
// operations; it never mutates shared state directly.
package tui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/vibedeck/internal/app/dispatch"
	"github.com/osa030/vibedeck/internal/app/playback"
	"github.com/osa030/vibedeck/internal/app/store"
)

const volumeStep = 5

// Model is the main TUI model.
type Model struct {
	store      *store.Store
	engine     *playback.Engine
	dispatcher *dispatch.Dispatcher
	refresh    time.Duration

	snap    store.State
	input   textinput.Model
	editing bool

	width  int
	height int
}

// NewModel creates the TUI model.
func NewModel(st *store.Store, engine *playback.Engine, dispatcher *dispatch.Dispatcher, refresh time.Duration) Model {
	ti := textinput.New()
	ti.Placeholder = "Tell the deck what to play..."
	ti.CharLimit = 200

	return Model{
		store:      st,
		engine:     engine,
		dispatcher: dispatcher,
		refresh:    refresh,
		snap:       st.Snapshot(),
		input:      ti,
	}
}

// Messages
type tickMsg time.Time
type dispatchDoneMsg struct{ err error }

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) submit(text string) tea.Cmd {
	return func() tea.Msg {
		return dispatchDoneMsg{err: m.dispatcher.HandleInput(context.Background(), text)}
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.tick(), textinput.Blink)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.snap = m.store.Snapshot()
		return m, m.tick()

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case dispatchDoneMsg:
		if msg.err != nil {
			zlog.Error().Msgf("tui: dispatch error: %v", msg.err)
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		return m, tea.Quit
	}

	if m.editing {
		switch msg.Type {
		case tea.KeyEnter:
			text := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if text == "" {
				return m, nil
			}
			zlog.Info().Msgf("tui: submitted input: %q", text)
			return m, m.submit(text)
		case tea.KeyEsc, tea.KeyTab:
			m.editing = false
			m.input.Blur()
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "i", "/", "tab":
		m.editing = true
		return m, m.input.Focus()
	case "p", " ":
		m.togglePause()
	case "n":
		if err := m.engine.Skip(); err != nil {
			zlog.Debug().Msgf("tui: skip: %v", err)
		}
	case "+", "=":
		m.engine.SetVolume(m.snap.Volume + volumeStep)
	case "-":
		m.engine.SetVolume(m.snap.Volume - volumeStep)
	}
	return m, nil
}

func (m Model) togglePause() {
	var err error
	if m.engine.GetState() == playback.StatePaused {
		err = m.engine.Resume()
	} else {
		err = m.engine.Pause()
	}
	if err != nil {
		zlog.Debug().Msgf("tui: pause toggle: %v", err)
	}
}
