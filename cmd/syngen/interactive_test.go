package main

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/wippyai/syngen/props"
)

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func explorerFixture(t *testing.T) *explorerModel {
	t.Helper()
	m, err := props.ParseJSON([]byte(`{
		"status": "ok",
		"timing": {"build": "0.5", "run": "2.25"},
		"callbacks": ["feed", "probe"],
		"empty": {}
	}`))
	if err != nil {
		t.Fatal(err)
	}
	return newExplorerModel(m, "test")
}

func send(m *explorerModel, keys ...string) {
	for _, k := range keys {
		m.Update(key(k))
	}
}

func TestExplorer_Navigate(t *testing.T) {
	m := explorerFixture(t)

	send(m, "down", "enter")
	if got := m.path(); got != "/timing" {
		t.Fatalf("path = %q, want /timing", got)
	}
	if len(m.visible()) != 2 {
		t.Errorf("timing has %d entries, want 2", len(m.visible()))
	}
	if !strings.Contains(m.View(), "2.25") {
		t.Error("view does not show nested scalar")
	}

	send(m, "esc", "down", "enter")
	if got := m.path(); got != "/callbacks" {
		t.Fatalf("path = %q, want /callbacks", got)
	}
	if e := m.visible()[1]; e.key != "[1]" {
		t.Errorf("sequence key = %q, want [1]", e.key)
	}

	send(m, "esc", "esc")
	if got := m.path(); got != "/" {
		t.Errorf("esc at root changed path to %q", got)
	}
}

func TestExplorer_ScalarsAndEmptyDoNotOpen(t *testing.T) {
	m := explorerFixture(t)

	send(m, "enter")
	if len(m.stack) != 1 {
		t.Error("scalar entry opened a level")
	}
	send(m, "down", "down", "down", "enter")
	if len(m.stack) != 1 {
		t.Error("empty mapping opened a level")
	}
	send(m, "down")
	if m.top().selected != 3 {
		t.Errorf("selection moved past the last entry: %d", m.top().selected)
	}
}

func TestExplorer_Filter(t *testing.T) {
	m := explorerFixture(t)

	send(m, "/", "t", "i")
	if !m.filtering {
		t.Fatal("expected filter mode")
	}
	vis := m.visible()
	if len(vis) != 1 || vis[0].key != "timing" {
		t.Fatalf("filtered entries = %v", vis)
	}
	send(m, "enter")
	if m.filtering {
		t.Error("enter should leave filter mode")
	}
	send(m, "enter")
	if got := m.path(); got != "/timing" {
		t.Errorf("path = %q, want /timing", got)
	}
	if m.filter.Value() != "" {
		t.Error("filter should reset when opening a level")
	}
}

func TestExplorer_Quit(t *testing.T) {
	m := explorerFixture(t)
	_, cmd := m.Update(key("q"))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not quit")
	}
}
