// Package event defines the ordered event stream the flow runner publishes
// to its observers, and the phase state machine carried by that stream.
package event

import "time"

// Event is a single item on the flow's event stream.
type Event interface {
	event()
}

// Category classifies an output line for rendering.
type Category int

const (
	CategoryInfo Category = iota
	CategorySuccess
	CategoryWarning
	CategoryError
	CategoryRunning
	CategoryStdout
	CategoryStderr
)

func (c Category) String() string {
	switch c {
	case CategoryInfo:
		return "info"
	case CategorySuccess:
		return "success"
	case CategoryWarning:
		return "warning"
	case CategoryError:
		return "error"
	case CategoryRunning:
		return "running"
	case CategoryStdout:
		return "stdout"
	case CategoryStderr:
		return "stderr"
	default:
		return "unknown"
	}
}

// Line is one human-readable output line.
type Line struct {
	Text     string
	Category Category
}

// PhaseChanged announces a transition of the state machine.
type PhaseChanged struct {
	Phase Phase
}

// Output carries one categorized line.
type Output struct {
	Line Line
}

// TodoFilesUpdated carries the current list of pending file names.
type TodoFilesUpdated struct {
	Files []string
}

// CurrentFile names the pending file being executed; an empty Name clears it.
type CurrentFile struct {
	Name string
}

// RetryWait reports a backoff in progress. Waiting is false once it ends.
type RetryWait struct {
	Waiting   bool
	Remaining time.Duration
}

// ClearOutput asks the observer to drop buffered output lines.
type ClearOutput struct{}

// Done is emitted exactly once, when the flow runner returns.
type Done struct{}

// TaskTextUpdated carries a persisted copy of the full ledger text.
type TaskTextUpdated struct {
	Text string
}

func (PhaseChanged) event()     {}
func (Output) event()           {}
func (TodoFilesUpdated) event() {}
func (CurrentFile) event()      {}
func (RetryWait) event()        {}
func (ClearOutput) event()      {}
func (Done) event()             {}
func (TaskTextUpdated) event()  {}

func Info(text string) Output    { return Output{Line{Text: text, Category: CategoryInfo}} }
func Success(text string) Output { return Output{Line{Text: text, Category: CategorySuccess}} }
func Warning(text string) Output { return Output{Line{Text: text, Category: CategoryWarning}} }
func Error(text string) Output   { return Output{Line{Text: text, Category: CategoryError}} }
func Running(text string) Output { return Output{Line{Text: text, Category: CategoryRunning}} }
