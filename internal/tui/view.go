package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/osa030/vibedeck/internal/app/store"
	"github.com/osa030/vibedeck/internal/domain/song"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	panelStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	playingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	noticeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

var vizGlyphs = []rune("▁▂▃▄▅▆▇█")

// View implements tea.Model.
func (m Model) View() string {
	width := m.width
	if width < 40 {
		width = 80
	}
	inner := width - 4

	var sections []string
	sections = append(sections, titleStyle.Render(" vibedeck "))
	sections = append(sections, panelStyle.Width(inner).Render(m.nowPlayingView(inner)))
	sections = append(sections, panelStyle.Width(inner).Render(m.queueView()))
	sections = append(sections, m.statusLine())
	sections = append(sections, m.inputView())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) nowPlayingView(width int) string {
	var b strings.Builder

	if m.snap.Current == nil {
		b.WriteString(dimStyle.Render("Nothing playing"))
		return b.String()
	}

	cur := m.snap.Current
	fmt.Fprintf(&b, "%s", playingStyle.Render(cur.Song.Title))
	if cur.Song.Artist != "" {
		fmt.Fprintf(&b, " %s", dimStyle.Render("by "+cur.Song.Artist))
	}
	b.WriteString("\n")
	b.WriteString(progressBar(cur.Elapsed, cur.Total, width-16))
	fmt.Fprintf(&b, " %s/%s", fmtDuration(cur.Elapsed), fmtDuration(cur.Total))
	b.WriteString("\n")
	b.WriteString(visualizer(m.snap.Visualizer.Values()))
	return b.String()
}

func (m Model) queueView() string {
	if len(m.snap.Queue) == 0 {
		return dimStyle.Render("Queue is empty")
	}

	var b strings.Builder
	for i, s := range m.snap.Queue {
		line := fmt.Sprintf("%2d. %s %s", i+1, statusGlyph(s.Status), s.Title)
		if s.Status == song.StatusFailed && s.FailCause != "" {
			line += failStyle.Render(" (" + s.FailCause + ")")
		}
		b.WriteString(line)
		if i < len(m.snap.Queue)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (m Model) statusLine() string {
	parts := []string{fmt.Sprintf(" vol %d%%", m.snap.Volume)}

	switch m.snap.Dispatcher {
	case store.DispatcherThinking:
		parts = append(parts, noticeStyle.Render("thinking..."))
	case store.DispatcherActing:
		parts = append(parts, noticeStyle.Render("acting: "+m.snap.ActiveTool))
	}
	if m.snap.Notice != "" {
		parts = append(parts, failStyle.Render(m.snap.Notice))
	}
	return strings.Join(parts, "  ")
}

func (m Model) inputView() string {
	if m.editing {
		return " " + m.input.View()
	}
	return dimStyle.Render(" i: type a request  p: pause  n: skip  +/-: volume  q: quit")
}

func statusGlyph(s song.Status) string {
	switch s {
	case song.StatusQueued:
		return dimStyle.Render("·")
	case song.StatusFetching:
		return noticeStyle.Render("↓")
	case song.StatusReady:
		return playingStyle.Render("✓")
	case song.StatusFailed:
		return failStyle.Render("✗")
	default:
		return " "
	}
}

func progressBar(elapsed, total time.Duration, width int) string {
	if width < 10 {
		width = 10
	}
	filled := 0
	if total > 0 {
		filled = int(float64(width) * float64(elapsed) / float64(total))
		if filled > width {
			filled = width
		}
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("─", width-filled) + "]"
}

func visualizer(samples []float64) string {
	var b strings.Builder
	for _, v := range samples {
		idx := int(v * float64(len(vizGlyphs)-1))
		if idx < 0 {
			idx = 0
		}
		if idx >= len(vizGlyphs) {
			idx = len(vizGlyphs) - 1
		}
		b.WriteRune(vizGlyphs[idx])
	}
	return b.String()
}

func fmtDuration(d time.Duration) string {
	d = d.Round(time.Second)
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%d:%02d", m, s)
}
