// Package ui provides reusable UI components for the cartfold CLI.
// It includes a task spinner, tables, badges and banners.
package ui

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-isatty"

	"github.com/AshkanYarmoradi/go-fold/cli/styles"
)

// ErrCancelled is returned by RunSpinner when the user quits before the task finishes.
var ErrCancelled = errors.New("cancelled")

// SpinnerType defines different spinner animations
type SpinnerType int

const (
	SpinnerDots SpinnerType = iota
	SpinnerLine
	SpinnerMinidots
	SpinnerPoints
)

// Task is the work a spinner waits on. The returned string is shown once it finishes.
type Task func() (string, error)

// SpinnerModel is a spinner component that runs a task.
type SpinnerModel struct {
	spinner  spinner.Model
	message  string
	task     Task
	quitting bool
	done     bool
	result   string
	err      error
}

// NewSpinner creates a new spinner with the given message
func NewSpinner(message string, spinnerType SpinnerType, task Task) SpinnerModel {
	s := spinner.New()

	switch spinnerType {
	case SpinnerLine:
		s.Spinner = spinner.Line
	case SpinnerMinidots:
		s.Spinner = spinner.MiniDot
	case SpinnerPoints:
		s.Spinner = spinner.Points
	default:
		s.Spinner = spinner.Dot
	}

	s.Style = lipgloss.NewStyle().Foreground(styles.Primary)

	return SpinnerModel{
		spinner: s,
		message: message,
		task:    task,
	}
}

func (m SpinnerModel) Init() tea.Cmd {
	if m.task == nil {
		return m.spinner.Tick
	}
	task := m.task
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		result, err := task()
		return SpinnerDoneMsg{Result: result, Err: err}
	})
}

func (m SpinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case SpinnerDoneMsg:
		m.done = true
		m.result = msg.Result
		m.err = msg.Err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m SpinnerModel) View() string {
	if m.done {
		return formatOutcome(m.result, m.err) + "\n"
	}

	if m.quitting {
		return styles.FormatWarning("Cancelled") + "\n"
	}

	return m.spinner.View() + " " + styles.Normal.Render(m.message) + "\n"
}

// Err returns the task error, or ErrCancelled if the user quit first.
func (m SpinnerModel) Err() error {
	if m.quitting && !m.done {
		return ErrCancelled
	}
	return m.err
}

// SpinnerDoneMsg signals that the spinner operation is complete
type SpinnerDoneMsg struct {
	Result string
	Err    error
}

func formatOutcome(result string, err error) string {
	if err != nil {
		if result == "" {
			result = err.Error()
		}
		return styles.FormatError(result)
	}
	return styles.FormatSuccess(result)
}

// RunSpinner runs task behind a spinner when out is a terminal. Otherwise the
// task runs directly and only its outcome line is written.
func RunSpinner(out io.Writer, message string, task Task) error {
	if !IsTerminal(out) {
		result, err := task()
		fmt.Fprintln(out, formatOutcome(result, err))
		return err
	}

	final, err := tea.NewProgram(
		NewSpinner(message, SpinnerDots, task),
		tea.WithOutput(out),
		tea.WithInput(nil),
	).Run()
	if err != nil {
		return err
	}
	return final.(SpinnerModel).Err()
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Table renders rows under a header with rounded borders.
type Table struct {
	headers []string
	rows    [][]string
}

// NewTable creates a new table with headers
func NewTable(headers ...string) *Table {
	return &Table{
		headers: headers,
		rows:    make([][]string, 0),
	}
}

// AddRow adds a row to the table. Missing cells are left blank.
func (t *Table) AddRow(values ...string) {
	row := make([]string, len(t.headers))
	copy(row, values)
	t.rows = append(t.rows, row)
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Render returns the formatted table string
func (t *Table) Render() string {
	if len(t.headers) == 0 {
		return ""
	}

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(styles.Primary).
		Padding(0, 1)

	cellStyle := lipgloss.NewStyle().
		Foreground(styles.Text).
		Padding(0, 1)

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(styles.Border)).
		Headers(t.headers...).
		Rows(t.rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Render()
}

// StatusBadge returns a styled status badge
func StatusBadge(status string) string {
	base := lipgloss.NewStyle().Padding(0, 1)
	switch strings.ToLower(status) {
	case "opened", "ok", "live", "healthy":
		return base.Background(styles.Success).Foreground(lipgloss.Color("#000000")).Render(status)
	case "confirmed":
		return base.Background(styles.Info).Foreground(lipgloss.Color("#FFFFFF")).Render(status)
	case "tombstoned", "warning", "skipped":
		return base.Background(styles.Warning).Foreground(lipgloss.Color("#000000")).Render(status)
	case "cancelled", "error", "failed":
		return base.Background(styles.Error).Foreground(lipgloss.Color("#FFFFFF")).Render(status)
	default:
		return base.Background(styles.Surface).Foreground(styles.Text).Render(status)
	}
}

// SimpleBanner returns the one-line cartfold banner
func SimpleBanner() string {
	return styles.IconCart + " " + lipgloss.NewStyle().
		Bold(true).
		Foreground(styles.Primary).
		Render("cartfold") +
		" " +
		styles.Muted.Render("- shopping carts folded from their event log")
}

// Divider returns a horizontal divider line
func Divider(width int) string {
	return styles.Dim.Render(strings.Repeat("─", width))
}

// ListItems formats a list of items with bullets
func ListItems(items []string) string {
	var sb strings.Builder
	for _, item := range items {
		sb.WriteString(styles.ListItemBullet.Render(styles.IconDot))
		sb.WriteString(styles.ListItem.Render(item))
		sb.WriteString("\n")
	}
	return sb.String()
}

// NumberedList formats a numbered list
func NumberedList(items []string) string {
	var sb strings.Builder
	numStyle := lipgloss.NewStyle().
		Foreground(styles.Primary).
		Width(4)
	for i, item := range items {
		sb.WriteString(numStyle.Render(fmt.Sprintf("%d.", i+1)))
		sb.WriteString(styles.Normal.Render(item))
		sb.WriteString("\n")
	}
	return sb.String()
}
