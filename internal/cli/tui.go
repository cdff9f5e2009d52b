package cli

import (
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-isatty"

	"github.com/matzehuels/chainsat/pkg/graph"
)

// List styles
var (
	listSelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	listDimStyle      = lipgloss.NewStyle().Foreground(colorDim)
)

// =============================================================================
// FileListModel - Interactive requirement file selection
// =============================================================================

// FileListModel is the bubbletea model for picking one requirement file of
// a repository.
type FileListModel struct {
	Files    []graph.RequirementFile
	Cursor   int
	Selected *graph.RequirementFile
}

// NewFileListModel creates a new file list model.
func NewFileListModel(files []graph.RequirementFile) FileListModel {
	return FileListModel{Files: files}
}

func (m FileListModel) Init() tea.Cmd {
	return nil
}

func (m FileListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "up", "k":
		if m.Cursor > 0 {
			m.Cursor--
		}
	case "down", "j":
		if m.Cursor < len(m.Files)-1 {
			m.Cursor++
		}
	case "enter":
		f := m.Files[m.Cursor]
		m.Selected = &f
		return m, tea.Quit
	}
	return m, nil
}

func (m FileListModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Select Requirement File"))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("↑/↓ navigate  ⏎ select  q quit"))
	b.WriteString("\n\n")

	rows := make([][]string, len(m.Files))
	for i, f := range m.Files {
		cursor := " "
		if i == m.Cursor {
			cursor = "›"
		}
		rows[i] = []string{cursor, f.Name, string(f.Ecosystem), f.Moment.Format("2006-01-02")}
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("", "File", "Ecosystem", "Updated").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == -1:
				return styleHeader
			case row == m.Cursor:
				return listSelectedStyle
			case col == 3:
				return listDimStyle
			}
			return lipgloss.NewStyle()
		})

	b.WriteString(t.Render())
	b.WriteString("\n\n")
	b.WriteString(listDimStyle.Render(fmt.Sprintf("  [%d/%d]", m.Cursor+1, len(m.Files))))
	return b.String()
}

// interactive reports whether a picker can be shown.
func interactive() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stdout.Fd())
}

// selectFile lets the user choose among files.
func selectFile(files []graph.RequirementFile) (graph.Root, error) {
	final, err := tea.NewProgram(NewFileListModel(files)).Run()
	if err != nil {
		return graph.Root{}, err
	}
	m, ok := final.(FileListModel)
	if !ok || m.Selected == nil {
		return graph.Root{}, fmt.Errorf("no requirement file selected")
	}
	return graph.FileRoot(m.Selected.ID), nil
}
