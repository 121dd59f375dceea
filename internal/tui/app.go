package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mpataki/foreman/internal/event"
	"github.com/mpataki/foreman/internal/models"
	"github.com/mpataki/foreman/internal/shutdown"
	"github.com/mpataki/foreman/internal/storage"
)

type View int

const (
	ViewFlow View = iota
	ViewLedger
	ViewRunList
)

// maxOutputLines caps the output buffer kept for the viewport.
const maxOutputLines = 2000

// App renders one flow from its event stream. It never touches the flow's
// state directly: everything it shows arrives as an event.
type App struct {
	events <-chan event.Event
	flag   *shutdown.Flag
	store  *storage.Storage
	title  string

	view       View
	phase      event.Phase
	lines      []event.Line
	todos      []string
	current    string
	retryUntil time.Time
	ledger     string
	done       bool
	stopping   bool

	runs        []*models.Run
	selectedIdx int

	viewport viewport.Model
	spinner  spinner.Model
	width    int
	height   int
	err      error
}

// NewApp returns an App reading events until Done. store may be nil, which
// disables the run list.
func NewApp(events <-chan event.Event, flag *shutdown.Flag, store *storage.Storage, title string) *App {
	return &App{
		events:   events,
		flag:     flag,
		store:    store,
		title:    title,
		view:     ViewFlow,
		phase:    event.Idle{},
		viewport: viewport.New(80, 20),
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(statusRunning)),
	}
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(a.waitForEvent(), a.spinner.Tick)
}

// Done reports whether the flow has finished.
func (a *App) Done() bool { return a.done }

func (a *App) tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

type tickMsg time.Time

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKey(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.resize()
		return a, nil

	case eventMsg:
		cmd := a.apply(msg.event)
		if a.done && a.stopping {
			return a, tea.Quit
		}
		return a, tea.Batch(cmd, a.waitForEvent())

	case eventsClosedMsg:
		a.done = true
		if a.stopping {
			return a, tea.Quit
		}
		return a, nil

	case tickMsg:
		if a.waiting() {
			return a, a.tickCmd()
		}
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case runsLoadedMsg:
		a.runs = msg.runs
		a.err = msg.err
		if a.selectedIdx >= len(a.runs) {
			a.selectedIdx = max(len(a.runs)-1, 0)
		}
		return a, nil

	case runDeletedMsg:
		a.err = msg.err
		return a, a.loadRuns
	}

	return a, nil
}

// apply folds one flow event into the model.
func (a *App) apply(ev event.Event) tea.Cmd {
	switch e := ev.(type) {
	case event.PhaseChanged:
		a.phase = e.Phase
	case event.Output:
		a.appendLine(e.Line)
	case event.TodoFilesUpdated:
		a.todos = e.Files
	case event.CurrentFile:
		a.current = e.Name
	case event.RetryWait:
		if e.Waiting {
			a.retryUntil = time.Now().Add(e.Remaining)
			return a.tickCmd()
		}
		a.retryUntil = time.Time{}
	case event.ClearOutput:
		a.lines = nil
		a.refreshViewport()
	case event.TaskTextUpdated:
		a.ledger = e.Text
		if a.view == ViewLedger {
			a.refreshViewport()
		}
	case event.Done:
		a.done = true
		a.current = ""
		a.retryUntil = time.Time{}
	}
	return nil
}

func (a *App) appendLine(line event.Line) {
	a.lines = append(a.lines, line)
	if over := len(a.lines) - maxOutputLines; over > 0 {
		a.lines = a.lines[over:]
	}
	a.refreshViewport()
}

func (a *App) waiting() bool {
	return !a.retryUntil.IsZero() && time.Now().Before(a.retryUntil)
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch a.view {
	case ViewFlow, ViewLedger:
		return a.handleFlowKey(msg)
	case ViewRunList:
		return a.handleRunListKey(msg)
	}
	return a, nil
}

func (a *App) handleFlowKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if a.done {
			return a, tea.Quit
		}
		if a.stopping && msg.String() == "ctrl+c" {
			// Second interrupt: leave without waiting. The flag is already
			// set, so the flow still kills its child process.
			return a, tea.Quit
		}
		a.stop()
		return a, nil

	case "l":
		if a.view == ViewLedger {
			a.view = ViewFlow
		} else {
			a.view = ViewLedger
		}
		a.resize()
		a.viewport.GotoTop()
		return a, nil

	case "r":
		if a.store != nil {
			a.view = ViewRunList
			return a, a.loadRuns
		}
		return a, nil

	case "esc":
		if a.view == ViewLedger {
			a.view = ViewFlow
			a.resize()
		}
		return a, nil
	}

	var cmd tea.Cmd
	a.viewport, cmd = a.viewport.Update(msg)
	return a, cmd
}

// stop raises the cancellation flag; the App quits once Done arrives.
func (a *App) stop() {
	if a.stopping {
		return
	}
	a.stopping = true
	a.flag.Set()
	a.appendLine(event.Line{Text: "Stopping: waiting for the current step to end...", Category: event.CategoryWarning})
}

func (a *App) handleRunListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		a.view = ViewFlow
		a.resize()

	case "ctrl+c":
		if a.done {
			return a, tea.Quit
		}
		a.view = ViewFlow
		a.stop()

	case "up", "k":
		if a.selectedIdx > 0 {
			a.selectedIdx--
		}

	case "down", "j":
		if a.selectedIdx < len(a.runs)-1 {
			a.selectedIdx++
		}

	case "r":
		return a, a.loadRuns

	case "d":
		if len(a.runs) > 0 && a.selectedIdx < len(a.runs) {
			run := a.runs[a.selectedIdx]
			if run.Status.IsFinished() {
				return a, a.deleteRun(run.ID)
			}
		}
	}

	return a, nil
}

// Messages

type eventMsg struct {
	event event.Event
}

type eventsClosedMsg struct{}

type runsLoadedMsg struct {
	runs []*models.Run
	err  error
}

type runDeletedMsg struct {
	runID int64
	err   error
}

// Commands

func (a *App) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-a.events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg{event: ev}
	}
}

func (a *App) loadRuns() tea.Msg {
	runs, err := a.store.ListRuns(20)
	return runsLoadedMsg{runs: runs, err: err}
}

func (a *App) deleteRun(id int64) tea.Cmd {
	return func() tea.Msg {
		if err := a.store.DeleteRun(id); err != nil {
			return runDeletedMsg{err: err}
		}
		return runDeletedMsg{runID: id}
	}
}
