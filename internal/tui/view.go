package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/mpataki/foreman/internal/event"
	"github.com/mpataki/foreman/internal/models"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	statusRunning  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	statusComplete = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	statusFailed   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	statusStuck    = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))

	lineRunning = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	lineStderr  = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	sidebarStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderRight(true).
			BorderForeground(lipgloss.Color("238")).
			PaddingRight(1)
)

const sidebarWidth = 32

// chromeLines is the header and footer height around the viewport.
const chromeLines = 5

func (a *App) View() string {
	switch a.view {
	case ViewFlow, ViewLedger:
		return a.viewFlow()
	case ViewRunList:
		return a.viewRunList()
	}
	return ""
}

func (a *App) resize() {
	if a.width == 0 {
		a.refreshViewport()
		return
	}
	w := a.width - sidebarWidth - 3
	if a.view == ViewLedger || w < 20 {
		w = a.width
	}
	a.viewport.Width = max(w, 20)
	a.viewport.Height = max(a.height-chromeLines, 3)
	a.refreshViewport()
}

func (a *App) refreshViewport() {
	atBottom := a.viewport.AtBottom()
	if a.view == ViewLedger {
		text := a.ledger
		if text == "" {
			text = dimStyle.Render("(no ledger yet)")
		}
		a.viewport.SetContent(text)
		return
	}

	var b strings.Builder
	for i, line := range a.lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(FormatLine(line))
	}
	a.viewport.SetContent(b.String())
	if atBottom {
		a.viewport.GotoBottom()
	}
}

func (a *App) viewFlow() string {
	s := a.header() + "\n"
	s += a.statusLine() + "\n\n"

	if a.view == ViewLedger {
		s += a.viewport.View() + "\n"
		s += helpStyle.Render("[l/esc] output  [↑/↓] scroll  [q] stop")
		return s
	}

	body := a.viewport.View()
	if a.width == 0 || a.width-sidebarWidth-3 >= 20 {
		body = lipgloss.JoinHorizontal(lipgloss.Top, sidebarStyle.Render(a.todoList()), " ", body)
	}
	s += body + "\n"
	s += helpStyle.Render(a.help())
	return s
}

func (a *App) header() string {
	title := titleStyle.Render("Foreman")
	if a.title != "" {
		title += "  " + dimStyle.Render(truncate(a.title, 50))
	}
	return title + "  " + a.formatPhase(a.phase)
}

func (a *App) statusLine() string {
	var parts []string
	if a.current != "" {
		parts = append(parts, labelStyle.Render("Current: ")+a.current)
	}
	if a.waiting() {
		left := time.Until(a.retryUntil).Round(time.Second)
		parts = append(parts, statusStuck.Render("Retrying in "+formatDuration(left)))
	}
	if a.stopping && !a.done {
		parts = append(parts, statusRunning.Render("Stopping..."))
	}
	if len(parts) == 0 {
		return dimStyle.Render(fmt.Sprintf("%d pending", len(a.todos)))
	}
	return strings.Join(parts, "  ")
}

func (a *App) todoList() string {
	s := labelStyle.Render(fmt.Sprintf("Pending (%d)", len(a.todos))) + "\n"
	if len(a.todos) == 0 {
		return s + dimStyle.Render("none")
	}
	for _, name := range a.todos {
		line := truncate(name, sidebarWidth-3)
		if name == a.current {
			s += selectedStyle.Render("▶ "+line) + "\n"
		} else {
			s += "  " + line + "\n"
		}
	}
	return strings.TrimSuffix(s, "\n")
}

func (a *App) help() string {
	if a.done {
		return "[l] ledger  [r] runs  [↑/↓] scroll  [q] quit"
	}
	if a.store == nil {
		return "[l] ledger  [↑/↓] scroll  [q] stop"
	}
	return "[l] ledger  [r] runs  [↑/↓] scroll  [q] stop"
}

func (a *App) formatPhase(p event.Phase) string {
	switch p := p.(type) {
	case event.Completed:
		return statusComplete.Render("✓ " + p.String())
	case event.NoTodoFiles:
		return statusComplete.Render("✓ " + p.String())
	case event.Failed:
		return statusFailed.Render("✗ " + p.String())
	case event.Idle:
		return dimStyle.Render(p.String())
	default:
		if a.done {
			return statusStuck.Render("⚠ stopped")
		}
		return a.spinner.View() + statusRunning.Render(p.String())
	}
}

func (a *App) viewRunList() string {
	s := titleStyle.Render("Foreman") + "\n\n"

	if a.err != nil {
		s += fmt.Sprintf("Error: %v\n", a.err)
	}

	if len(a.runs) == 0 {
		s += "No runs recorded yet.\n"
	} else {
		s += "Recent Runs\n"
		s += "───────────\n"

		for i, run := range a.runs {
			line := formatRunLine(run)
			if i == a.selectedIdx {
				line = selectedStyle.Render("▶ " + line)
			} else if run.Status.IsFinished() {
				line = "  " + dimStyle.Render(line)
			} else {
				line = "  " + line
			}
			s += line + "\n"
		}
	}

	s += "\n" + helpStyle.Render("[↑/↓] select  [d] delete  [r] refresh  [esc] back")

	return s
}

func formatRunLine(run *models.Run) string {
	input := run.InputFile
	if input == "" {
		input = strings.ReplaceAll(run.Input, "\n", " ")
	}
	return fmt.Sprintf("#%-3d %s  %-6s  %s", run.ID, FormatStatus(run.Status), formatAge(run.StartedAt), truncate(input, 40))
}

func formatAge(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		days := int(d.Hours() / 24)
		return fmt.Sprintf("%dd", days)
	}
}

// FormatStatus renders a run status with its glyph and colour.
func FormatStatus(status models.RunStatus) string {
	switch status {
	case models.RunStatusRunning:
		return statusRunning.Render("● running")
	case models.RunStatusCompleted:
		return statusComplete.Render("✓ completed")
	case models.RunStatusNoWork:
		return statusComplete.Render("✓ no work")
	case models.RunStatusFailed:
		return statusFailed.Render("✗ failed")
	case models.RunStatusCancelled:
		return statusStuck.Render("⚠ cancelled")
	default:
		return string(status)
	}
}

// FormatLine renders one output line in its category's colour. Process
// output is left unstyled.
func FormatLine(line event.Line) string {
	switch line.Category {
	case event.CategoryInfo:
		return dimStyle.Render(line.Text)
	case event.CategorySuccess:
		return statusComplete.Render(line.Text)
	case event.CategoryWarning:
		return statusRunning.Render(line.Text)
	case event.CategoryError:
		return statusFailed.Render(line.Text)
	case event.CategoryRunning:
		return lineRunning.Render(line.Text)
	case event.CategoryStderr:
		return lineStderr.Render(line.Text)
	default:
		return line.Text
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
