package event

import "fmt"

// Phase is one state of the flow state machine. The concrete phase types
// below are the only implementations.
type Phase interface {
	fmt.Stringer
	phase()
}

type Idle struct{}

type ReadingInput struct{}

type CheckingDoneFiles struct{}

// RunningPlanning is the planning executor's attempt in progress.
type RunningPlanning struct {
	Model   string
	Attempt int
}

type CheckingTodoFiles struct{}

// NoTodoFiles means planning produced no pending work. It is terminal.
type NoTodoFiles struct{}

// ProcessingTodos reports which pending file (1-based) of how many is current.
type ProcessingTodos struct {
	Current int
	Total   int
}

// RunningExecution is the execution executor's attempt on one pending file.
type RunningExecution struct {
	Model     string
	FileIndex int
	Attempt   int
}

type CycleComplete struct {
	Iteration int
}

type MovingCompletedFiles struct{}

type Completed struct{}

type Failed struct {
	Reason string
}

func (Idle) phase()                 {}
func (ReadingInput) phase()         {}
func (CheckingDoneFiles) phase()    {}
func (RunningPlanning) phase()      {}
func (CheckingTodoFiles) phase()    {}
func (NoTodoFiles) phase()          {}
func (ProcessingTodos) phase()      {}
func (RunningExecution) phase()     {}
func (CycleComplete) phase()        {}
func (MovingCompletedFiles) phase() {}
func (Completed) phase()            {}
func (Failed) phase()               {}

func (Idle) String() string              { return "Idle" }
func (ReadingInput) String() string      { return "Reading input" }
func (CheckingDoneFiles) String() string { return "Checking completed tasks" }
func (p RunningPlanning) String() string {
	return fmt.Sprintf("Planning with %s (attempt %d)", p.Model, p.Attempt)
}
func (CheckingTodoFiles) String() string { return "Checking pending tasks" }
func (NoTodoFiles) String() string       { return "No pending tasks" }
func (p ProcessingTodos) String() string {
	return fmt.Sprintf("Processing tasks (%d/%d)", p.Current, p.Total)
}
func (p RunningExecution) String() string {
	return fmt.Sprintf("Executing task %d with %s (attempt %d)", p.FileIndex, p.Model, p.Attempt)
}
func (p CycleComplete) String() string      { return fmt.Sprintf("Cycle %d complete", p.Iteration) }
func (MovingCompletedFiles) String() string { return "Archiving completed task" }
func (Completed) String() string            { return "Completed" }
func (p Failed) String() string             { return "Failed: " + p.Reason }

// IsTerminal reports whether the flow stops in p. Completed, Failed and
// NoTodoFiles are the only terminal phases.
func IsTerminal(p Phase) bool {
	switch p.(type) {
	case Completed, Failed, NoTodoFiles:
		return true
	default:
		return false
	}
}

// Name returns a stable, lower-case identifier for p, used by the run journal.
func Name(p Phase) string {
	switch p.(type) {
	case Idle:
		return "idle"
	case ReadingInput:
		return "reading_input"
	case CheckingDoneFiles:
		return "checking_done_files"
	case RunningPlanning:
		return "running_planning"
	case CheckingTodoFiles:
		return "checking_todo_files"
	case NoTodoFiles:
		return "no_todo_files"
	case ProcessingTodos:
		return "processing_todos"
	case RunningExecution:
		return "running_execution"
	case CycleComplete:
		return "cycle_complete"
	case MovingCompletedFiles:
		return "moving_completed_files"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}
