package cli

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/matzehuels/chainsat/pkg/graph"
	"github.com/matzehuels/chainsat/pkg/version"
)

func testFiles() []graph.RequirementFile {
	moment := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return []graph.RequirementFile{
		{ID: "f1", Name: "requirements.txt", Ecosystem: version.PyPI, Moment: moment},
		{ID: "f2", Name: "package.json", Ecosystem: version.NPM, Moment: moment},
		{ID: "f3", Name: "Cargo.toml", Ecosystem: version.Cargo, Moment: moment},
	}
}

func press(m tea.Model, keys ...tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	for _, k := range keys {
		m, cmd = m.Update(k)
	}
	return m, cmd
}

func TestFileListModelSelect(t *testing.T) {
	down := tea.KeyMsg{Type: tea.KeyDown}
	enter := tea.KeyMsg{Type: tea.KeyEnter}

	final, cmd := press(NewFileListModel(testFiles()), down, down, down, enter)
	m := final.(FileListModel)
	if m.Selected == nil || m.Selected.ID != "f3" {
		t.Fatalf("Selected = %+v, want f3 (cursor clamps at the last file)", m.Selected)
	}
	if cmd == nil {
		t.Error("enter should quit the program")
	}
}

func TestFileListModelNavigate(t *testing.T) {
	up := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("k")}
	down := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")}

	final, _ := press(NewFileListModel(testFiles()), up, down, down, up)
	if got := final.(FileListModel).Cursor; got != 1 {
		t.Errorf("Cursor = %d, want 1", got)
	}
}

func TestFileListModelQuit(t *testing.T) {
	final, cmd := press(NewFileListModel(testFiles()), tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if final.(FileListModel).Selected != nil {
		t.Error("quit should not select a file")
	}
	if cmd == nil {
		t.Error("q should quit the program")
	}
}

func TestFileListModelView(t *testing.T) {
	view := NewFileListModel(testFiles()).View()
	for _, want := range []string{"Select Requirement File", "requirements.txt", "package.json", "Cargo", "2024-03-01", "[1/3]"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q", want)
		}
	}
}
