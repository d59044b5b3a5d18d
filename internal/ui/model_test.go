package ui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ivlev/storyreel/internal/preview"
	"github.com/ivlev/storyreel/internal/scene"
)

type fakeController struct {
	calls []string
	snap  preview.Snapshot
}

func (c *fakeController) Toggle()                    { c.calls = append(c.calls, "toggle") }
func (c *fakeController) Next()                      { c.calls = append(c.calls, "next") }
func (c *fakeController) Prev()                      { c.calls = append(c.calls, "prev") }
func (c *fakeController) Reset()                     { c.calls = append(c.calls, "reset") }
func (c *fakeController) Snapshot() preview.Snapshot { return c.snap }

func TestKeysDriveController(t *testing.T) {
	tests := []struct {
		msg  tea.KeyMsg
		want string
	}{
		{tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}, "toggle"},
		{tea.KeyMsg{Type: tea.KeyRight}, "next"},
		{tea.KeyMsg{Type: tea.KeyLeft}, "prev"},
		{tea.KeyMsg{Type: tea.KeyHome}, "reset"},
		{tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("l")}, "next"},
	}
	for _, tt := range tests {
		ctrl := &fakeController{}
		m := New(ctrl, "test")
		m.Update(tt.msg)
		if len(ctrl.calls) != 1 || ctrl.calls[0] != tt.want {
			t.Errorf("key %q: calls %v, want [%s]", tt.msg.String(), ctrl.calls, tt.want)
		}
	}
}

func TestQuit(t *testing.T) {
	m := New(&fakeController{}, "test")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("Expected a quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("Expected tea.QuitMsg")
	}
}

func TestRefreshReadsSnapshot(t *testing.T) {
	ctrl := &fakeController{}
	m := New(ctrl, "test")
	ctrl.snap = preview.Snapshot{
		Index:    1,
		Progress: 50,
		Blocked:  true,
		Scenes: []preview.SceneView{
			{ID: "a", Narration: "First scene", Status: scene.StatusCompleted, Loaded: true},
			{ID: "b", Narration: "Second scene", Status: scene.StatusCompleted, Err: "load visual b.png: not found"},
		},
	}
	next, cmd := m.Update(refreshMsg{})
	if cmd == nil {
		t.Error("Refresh must schedule the next refresh")
	}

	view := next.View()
	for _, want := range []string{"First scene", "Second scene", "Scene 2/2", "not found", "playback blocked"} {
		if !strings.Contains(view, want) {
			t.Errorf("View missing %q:\n%s", want, view)
		}
	}
}

func TestEmptyView(t *testing.T) {
	m := New(&fakeController{}, "test")
	if !strings.Contains(m.View(), "No scenes") {
		t.Error("Expected empty timeline message")
	}
}
