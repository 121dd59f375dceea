package models

import "time"

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusNoWork    RunStatus = "no_work"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// IsFinished reports whether a run with this status has ended.
func (s RunStatus) IsFinished() bool {
	return s != RunStatusRunning
}

// Run is one invocation of the flow runner.
type Run struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt *time.Time
	ProjectDir string
	InputFile  string
	Input      string
	Planner    string
	Worker     string
	Status     RunStatus
	Error      string
	PID        int
}
