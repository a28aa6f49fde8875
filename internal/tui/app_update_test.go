package tui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"tracker/internal/tracker"
)

func TestAppUpdate_StateTransitions(t *testing.T) {
	app := NewApp("qwen-plus", "s1", nil)
	app.width, app.height = 100, 30
	app.relayout()

	m, _ := app.Update(tea.KeyMsg{Type: tea.KeyTab})
	updated := m.(App)
	if updated.activePanel != PanelTracker {
		t.Fatalf("expected tracker panel, got %v", updated.activePanel)
	}

	updated.streaming = true
	m, _ = updated.Update(tea.KeyMsg{Type: tea.KeyEsc})
	updated = m.(App)
	if updated.streaming {
		t.Fatalf("expected streaming false after esc")
	}
	if !strings.Contains(updated.logContent.String(), "interrupted") {
		t.Fatalf("missing interruption log: %q", updated.logContent.String())
	}
}

func TestAppUpdate_StreamAndTurnDone(t *testing.T) {
	app := NewApp("qwen-plus", "s1", nil)
	app.width, app.height = 100, 30
	app.relayout()

	m, _ := app.Update(TextChunkMsg{Text: "hello"})
	updated := m.(App)
	if !updated.streaming || updated.streamBuffer.String() != "hello" {
		t.Fatalf("unexpected stream state")
	}

	m, _ = updated.Update(TurnDoneMsg{Content: "", Err: nil})
	updated = m.(App)
	if updated.streaming {
		t.Fatalf("expected streaming false")
	}
	if !strings.Contains(updated.chatContent.String(), "hello") {
		t.Fatalf("missing streamed content in chat: %q", updated.chatContent.String())
	}
}

func TestAppUpdate_TurnDoneWithParsedContent(t *testing.T) {
	app := NewApp("qwen-plus", "s1", nil)
	app.width, app.height = 100, 30
	app.relayout()

	m, _ := app.Update(TextChunkMsg{Text: "raw with ```json fences```"})
	updated := m.(App)
	m, _ = updated.Update(TurnDoneMsg{Content: "The clean narrative.", Err: nil})
	updated = m.(App)

	if !strings.Contains(updated.chatContent.String(), "clean narrative") {
		t.Fatalf("parsed narrative missing from chat: %q", updated.chatContent.String())
	}
	if strings.Contains(updated.chatContent.String(), "```json") {
		t.Fatalf("raw stream buffer leaked into chat: %q", updated.chatContent.String())
	}
}

func TestAppUpdate_TrackerAndErrors(t *testing.T) {
	app := NewApp("qwen-plus", "s1", nil)
	app.width, app.height = 100, 30
	app.relayout()

	m, _ := app.Update(TrackerUpdateMsg{Data: tracker.DefaultTemplate()})
	updated := m.(App)
	if updated.trackerContent == "" {
		t.Fatalf("tracker panel not populated")
	}
	if !updated.baselineCommitted {
		t.Fatalf("baseline flag not set after tracker update")
	}

	err := errors.New("boom")
	m, _ = updated.Update(TurnDoneMsg{Err: err})
	updated = m.(App)
	if updated.lastError != "boom" {
		t.Fatalf("unexpected last error: %q", updated.lastError)
	}
}

func TestAppUpdate_TrackerCollapseToggle(t *testing.T) {
	app := NewApp("qwen-plus", "s1", nil)
	app.width, app.height = 100, 30
	app.relayout()
	app.SetTracker(tracker.DefaultTemplate())

	m, _ := app.Update(tea.KeyMsg{Type: tea.KeyTab})
	updated := m.(App)
	if updated.activePanel != PanelTracker {
		t.Fatalf("expected tracker panel focus")
	}
	if !strings.Contains(updated.trackerContent, "▸") {
		t.Fatalf("missing cursor marker:\n%s", updated.trackerContent)
	}

	m, _ = updated.Update(tea.KeyMsg{Type: tea.KeySpace})
	updated = m.(App)
	if !updated.trackerData.Sections[0].Collapsed {
		t.Fatalf("first section should be collapsed after space")
	}
	if !strings.Contains(updated.trackerContent, "[+]") {
		t.Fatalf("collapsed marker missing:\n%s", updated.trackerContent)
	}

	m, _ = updated.Update(tea.KeyMsg{Type: tea.KeyDown})
	updated = m.(App)
	if updated.trackerCursor != 1 {
		t.Fatalf("cursor should advance, got %d", updated.trackerCursor)
	}

	m, _ = updated.Update(tea.KeyMsg{Type: tea.KeySpace})
	m, _ = m.(App).Update(tea.KeyMsg{Type: tea.KeySpace})
	updated = m.(App)
	if updated.trackerData.Sections[1].Collapsed {
		t.Fatalf("double toggle should restore expanded state")
	}
}

func TestAppUpdate_SubmitDispatches(t *testing.T) {
	var got string
	app := NewApp("qwen-plus", "s1", func(input string) tea.Msg {
		got = input
		return TurnDoneMsg{Content: "ok"}
	})
	app.width, app.height = 100, 30
	app.relayout()
	app.input.SetValue("hello there")

	m, cmd := app.Update(tea.KeyMsg{Type: tea.KeyEnter})
	updated := m.(App)
	if cmd == nil {
		t.Fatal("enter with input should produce a command")
	}
	if msg := cmd(); msg == nil {
		t.Fatal("submit command returned nil message")
	}
	if got != "hello there" {
		t.Fatalf("submit received %q", got)
	}
	if !updated.streaming {
		t.Fatal("app should enter streaming state on submit")
	}
	if !strings.Contains(updated.chatContent.String(), "hello there") {
		t.Fatalf("user message missing from chat: %q", updated.chatContent.String())
	}
}

func TestAppUpdate_SessionInfo(t *testing.T) {
	app := NewApp("qwen-plus", "s1", nil)
	m, _ := app.Update(SessionInfoMsg{ID: "s2", Model: "qwen-max"})
	updated := m.(App)
	if updated.sessionID != "s2" || updated.modelName != "qwen-max" {
		t.Fatalf("session info not applied: %s %s", updated.sessionID, updated.modelName)
	}
}
