package storage

import (
	"github.com/mpataki/foreman/internal/event"
	"github.com/mpataki/foreman/internal/logging"
	"github.com/mpataki/foreman/internal/models"
)

// Recorder journals the event stream of one run while passing it through.
type Recorder struct {
	store  *Storage
	runID  int64
	logger *logging.Logger

	finished bool
}

// NewRecorder returns a Recorder for an existing run.
func (s *Storage) NewRecorder(runID int64, logger *logging.Logger) *Recorder {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Recorder{store: s, runID: runID, logger: logger.WithRun(runID)}
}

// Tee forwards every event from in to out, recording phase transitions and
// the final status on the way. It closes out once in is closed.
func (r *Recorder) Tee(in <-chan event.Event, out chan<- event.Event) {
	defer close(out)
	for ev := range in {
		r.Record(ev)
		out <- ev
	}
}

// Record journals a single event. Journal failures are logged and otherwise
// ignored.
func (r *Recorder) Record(ev event.Event) {
	switch e := ev.(type) {
	case event.PhaseChanged:
		if err := r.store.AppendPhase(r.runID, event.Name(e.Phase), e.Phase.String()); err != nil {
			r.logger.Warn("failed to journal phase", "error", err.Error())
		}
		if status, errMsg, ok := finalStatus(e.Phase); ok {
			r.finish(status, errMsg)
		}
	case event.Done:
		// Done without a terminal phase means the flow was cancelled.
		r.finish(models.RunStatusCancelled, "")
	}
}

func (r *Recorder) finish(status models.RunStatus, errMsg string) {
	if r.finished {
		return
	}
	r.finished = true
	if err := r.store.FinishRun(r.runID, status, errMsg); err != nil {
		r.logger.Warn("failed to journal run result", "error", err.Error())
	}
}

func finalStatus(p event.Phase) (models.RunStatus, string, bool) {
	switch p := p.(type) {
	case event.Completed:
		return models.RunStatusCompleted, "", true
	case event.NoTodoFiles:
		return models.RunStatusNoWork, "", true
	case event.Failed:
		return models.RunStatusFailed, p.Reason, true
	}
	return "", "", false
}
