// Package ui is the terminal front-end of the interactive preview.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ivlev/storyreel/internal/clock"
	"github.com/ivlev/storyreel/internal/preview"
	"github.com/ivlev/storyreel/internal/scene"
)

// Controller is the player surface the model drives. *preview.Player
// implements it.
type Controller interface {
	Toggle()
	Next()
	Prev()
	Reset()
	Snapshot() preview.Snapshot
}

type refreshMsg struct{}

const refreshInterval = 100 * time.Millisecond

type Model struct {
	ctrl     Controller
	title    string
	snap     preview.Snapshot
	keys     KeyMap
	help     help.Model
	progress progress.Model
	width    int
}

func New(ctrl Controller, title string) Model {
	bar := progress.New(progress.WithSolidFill(string(ColorPrimary)), progress.WithoutPercentage())
	bar.Width = 40
	return Model{
		ctrl:     ctrl,
		title:    title,
		snap:     ctrl.Snapshot(),
		keys:     DefaultKeyMap,
		help:     help.New(),
		progress: bar,
		width:    80,
	}
}

func (m Model) Init() tea.Cmd {
	return refresh()
}

func refresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg { return refreshMsg{} })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Toggle):
			m.ctrl.Toggle()
		case key.Matches(msg, m.keys.Next):
			m.ctrl.Next()
		case key.Matches(msg, m.keys.Prev):
			m.ctrl.Prev()
		case key.Matches(msg, m.keys.Reset):
			m.ctrl.Reset()
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		}

	case refreshMsg:
		m.snap = m.ctrl.Snapshot()
		return m, refresh()

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		m.progress.Width = max(10, msg.Width-24)
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(StyleHeader.Render(m.title))
	b.WriteString("\n\n")

	if len(m.snap.Scenes) == 0 {
		b.WriteString(StyleDim.Render("  No scenes to preview"))
		b.WriteString("\n\n")
		b.WriteString(m.help.View(m.keys))
		return b.String()
	}

	for i, sv := range m.snap.Scenes {
		b.WriteString(m.sceneLine(i, sv))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(" ")
	b.WriteString(m.progress.ViewAs(m.snap.Progress / 100))
	b.WriteString(fmt.Sprintf(" %3.0f%%\n", m.snap.Progress))
	b.WriteString(StyleStatusBar.Width(m.width).Render(m.statusLine()))
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m Model) sceneLine(i int, sv preview.SceneView) string {
	marker := "  "
	style := StyleItem
	if i == m.snap.Index {
		marker = "▶ "
		style = StyleActive
	}
	audio := " "
	if sv.HasAudio {
		audio = "♪"
	}

	text := sv.Narration
	if limit := m.width - 24; limit > 8 && len([]rune(text)) > limit {
		text = string([]rune(text)[:limit-1]) + "…"
	}
	line := fmt.Sprintf("%s%2d %s %s", marker, i+1, audio, style.Render(text))
	if status := statusLabel(sv); status != "" {
		line += "  " + status
	}
	return line
}

func statusLabel(sv preview.SceneView) string {
	if sv.Err != "" {
		return StyleError.Render("error: " + sv.Err)
	}
	switch sv.Status {
	case scene.StatusPending:
		return StyleDim.Render("pending")
	case scene.StatusLoading:
		return StyleWarning.Render("generating")
	case scene.StatusError:
		return StyleError.Render("failed")
	}
	if !sv.Loaded {
		return StyleDim.Render("loading")
	}
	return ""
}

func (m Model) statusLine() string {
	state := StyleSuccess.Render("playing")
	switch {
	case m.snap.Blocked:
		state = StyleWarning.Render("playback blocked, press space to retry")
	case !m.snap.Playing:
		state = StyleDim.Render("paused")
	}
	mode := "timer"
	if m.snap.Mode == clock.ModeAudio {
		mode = "narration"
	}
	sep := StyleDim.Render("  │  ")
	return lipgloss.JoinHorizontal(lipgloss.Top,
		StyleActive.Render(fmt.Sprintf("Scene %d/%d", m.snap.Index+1, len(m.snap.Scenes))),
		sep, state,
		sep, StyleDim.Render(mode),
		sep, StyleDim.Render(string(m.snap.Effect)),
	)
}
