// Package flow runs the plan-then-execute cycle: ask the planner for task
// files, execute each pending file with the worker, archive what succeeded
// and record it in the ledger, then plan again.
package flow

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mpataki/foreman/internal/event"
	"github.com/mpataki/foreman/internal/executor"
	"github.com/mpataki/foreman/internal/hooks"
	"github.com/mpataki/foreman/internal/ledger"
	"github.com/mpataki/foreman/internal/logging"
	"github.com/mpataki/foreman/internal/prompt"
	"github.com/mpataki/foreman/internal/retry"
	"github.com/mpataki/foreman/internal/shutdown"
	"github.com/mpataki/foreman/internal/workspace"
)

// ErrPlanningFailed is returned when the planner exhausted its retries.
var ErrPlanningFailed = errors.New("planning failed")

// Config wires a Runner to its collaborators.
type Config struct {
	Planner   executor.Executor
	Worker    executor.Executor
	Workspace *workspace.Workspace
	Retry     retry.Config

	// MaxIterations stops the flow as Completed after that many cycles.
	// Zero means no limit.
	MaxIterations int

	Prompt prompt.Builder
	Hooks  *hooks.Runtime
	Logger *logging.Logger
}

// Summary counts what a Run did.
type Summary struct {
	Cycles    int
	Completed int
	Failed    int
}

// Runner drives one flow. It owns the ledger text for the duration of Run;
// observers only ever see copies published as TaskTextUpdated events.
type Runner struct {
	cfg    Config
	events chan<- event.Event
	flag   *shutdown.Flag
	retry  *retry.Runner
	logger *logging.Logger

	plan    string
	ledger  string
	phase   event.Phase
	summary Summary
}

// New returns a Runner publishing to events and observing flag.
func New(cfg Config, events chan<- event.Event, flag *shutdown.Flag) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	if cfg.Workspace != nil && cfg.Prompt.PendingDir == "" {
		cfg.Prompt.PendingDir = cfg.Workspace.Rel(cfg.Workspace.PendingDir)
	}
	return &Runner{
		cfg:    cfg,
		events: events,
		flag:   flag,
		logger: logger,
		phase:  event.Idle{},
		retry: &retry.Runner{
			Config: cfg.Retry,
			Events: events,
			Flag:   flag,
			Logger: logger,
		},
	}
}

// Phase returns the last phase the runner entered.
func (r *Runner) Phase() event.Phase { return r.phase }

// Summary returns the counters of the last Run.
func (r *Runner) Summary() Summary { return r.summary }

// Ledger returns the current ledger text.
func (r *Runner) Ledger() string { return r.ledger }

// Run executes cycles until there is no pending work, the iteration limit
// or a hook stops it, planning fails, or the flag is set. Cancellation is not
// an error. Done is emitted exactly once, on every return path.
func (r *Runner) Run(input Input) error {
	defer r.emit(event.Done{})

	if r.cfg.Planner == nil || r.cfg.Worker == nil || r.cfg.Workspace == nil {
		return r.fail(errors.New("flow runner needs a planner, a worker and a workspace"))
	}
	if r.flag.IsSet() {
		r.logger.Info("cancelled before start")
		return nil
	}

	if err := r.start(input); err != nil {
		return err
	}

	for iteration := 1; ; iteration++ {
		if r.flag.IsSet() {
			r.emit(event.Warning("Cancelled"))
			r.logger.Info("flow cancelled", "iteration", iteration)
			return nil
		}
		if r.cfg.MaxIterations > 0 && iteration > r.cfg.MaxIterations {
			r.emit(event.Info(fmt.Sprintf("Reached the maximum of %d iterations", r.cfg.MaxIterations)))
			r.setPhase(event.Completed{})
			return nil
		}
		r.cfg.Hooks.SetIteration(iteration)

		stop, err := r.cycle(iteration)
		if stop || err != nil {
			return err
		}
	}
}

// start reads the input and seeds the ledger.
func (r *Runner) start(input Input) error {
	r.setPhase(event.ReadingInput{})
	text, err := input.Read()
	if err != nil {
		return r.fail(err)
	}
	r.plan = text
	r.emit(event.Success(fmt.Sprintf("Loaded plan from %s (%d bytes)", input.Describe(), len(text))))

	if err := r.cfg.Workspace.Ensure(); err != nil {
		return r.fail(err)
	}

	r.ledger = text
	r.resumeLedger()
	r.migrateDoneFiles()
	return nil
}

// resumeLedger carries completed lines over from an existing ledger file.
func (r *Runner) resumeLedger() {
	existing, ok, err := r.cfg.Workspace.Ledger().Load()
	if err != nil {
		r.warn("Could not read the existing ledger", err)
		return
	}
	if !ok {
		return
	}
	lines := ledger.CompletedLines(existing)
	for _, line := range lines {
		r.ledger = ledger.UpsertCompletedTaskSummary(r.ledger, line)
	}
	if len(lines) > 0 {
		r.emit(event.Info(fmt.Sprintf("Resuming with %d completed task(s) from %s", len(lines), r.cfg.Workspace.Rel(r.cfg.Workspace.LedgerPath))))
	}
}

// migrateDoneFiles records archived files that the ledger does not mention
// yet, as left behind by the older done-directory convention.
func (r *Runner) migrateDoneFiles() {
	r.setPhase(event.CheckingDoneFiles{})
	done, err := r.cfg.Workspace.ListDone()
	if err != nil {
		r.warn("Could not scan the done directory", err)
		return
	}
	if len(done) == 0 {
		return
	}

	before := r.ledger
	summary := ledger.SummarizeCompletedTasks(r.cfg.Workspace.ProjectDir, done)
	for _, line := range strings.Split(summary, "\n") {
		r.ledger = ledger.UpsertCompletedTaskSummary(r.ledger, line)
	}
	if r.ledger == before {
		return
	}
	r.emit(event.Info(fmt.Sprintf("Recorded %d archived task(s) in the ledger", len(ledger.CompletedLines(r.ledger))-len(ledger.CompletedLines(before)))))
	r.persistLedger()
}

// cycle runs one plan, check, execute pass. stop is true when the flow
// reached a terminal state or was cancelled.
func (r *Runner) cycle(iteration int) (stop bool, err error) {
	r.summary.Cycles = iteration
	log := r.logger.With("iteration", iteration)

	pending := r.scanPending()
	if err := r.runPlanning(pending); err != nil {
		if errors.Is(err, shutdown.ErrSignaled) {
			r.emit(event.Warning("Cancelled during planning"))
			return true, nil
		}
		log.Error("planning failed", "error", err.Error())
		return true, r.fail(fmt.Errorf("%w: %w", ErrPlanningFailed, err))
	}

	r.setPhase(event.CheckingTodoFiles{})
	todos := r.scanPending()
	if len(todos) == 0 {
		r.setPhase(event.NoTodoFiles{})
		r.emit(event.Success("No pending tasks: the plan is complete"))
		return true, nil
	}
	names := make([]string, len(todos))
	for i, p := range todos {
		names[i] = filepath.Base(p)
	}
	r.emit(event.TodoFilesUpdated{Files: names})
	r.emit(event.Info(fmt.Sprintf("Found %d pending task(s)", len(todos))))

	if cancelled, err := r.runExecution(todos); cancelled || err != nil {
		return true, err
	}

	r.setPhase(event.CycleComplete{Iteration: iteration})
	r.emit(event.Success(fmt.Sprintf("Cycle %d complete", iteration)))
	r.emit(event.CurrentFile{})

	cont, err := r.cfg.Hooks.AfterCycle(iteration, len(r.scanPending()))
	r.flushHookLogs()
	if errors.Is(err, hooks.ErrStuck) {
		return true, r.fail(err)
	}
	if err != nil {
		r.warn("after_cycle hook failed", err)
	}
	if !cont {
		r.emit(event.Info("Stopped by the after_cycle hook"))
		r.setPhase(event.Completed{})
		return true, nil
	}
	return false, nil
}

func (r *Runner) scanPending() []string {
	files, err := r.cfg.Workspace.ScanPending()
	if err != nil {
		r.warn("Could not scan pending tasks", err)
		return nil
	}
	return files
}

func (r *Runner) runPlanning(pending []string) error {
	completed := ledger.ExtractCompletedTasksSummary(r.ledger)
	input := r.cfg.Prompt.Planning(r.plan, ledger.SummarizeTaskFiles(pending), completed)
	planner := r.cfg.Planner

	return r.retry.Run(retry.Request{
		Executor: planner,
		Input:    input,
		OnAttempt: func(attempt int) {
			r.setPhase(event.RunningPlanning{Model: planner.Name(), Attempt: attempt})
			r.emit(event.Running(fmt.Sprintf("Planning with %s (attempt %d/%d)", planner.Name(), attempt, r.cfg.Retry.MaxAttempts)))
		},
	})
}

// runExecution executes todos in order. A failed file stays pending and
// does not stop the others. It reports whether the flag cut it short; an
// error means a hook declared the flow stuck.
func (r *Runner) runExecution(todos []string) (cancelled bool, err error) {
	worker := r.cfg.Worker
	for i, path := range todos {
		if r.flag.IsSet() {
			r.emit(event.Warning(fmt.Sprintf("Cancelled with %d task(s) left pending", len(todos)-i)))
			return true, nil
		}
		name := filepath.Base(path)
		log := r.logger.With("file", name)
		r.setPhase(event.ProcessingTodos{Current: i + 1, Total: len(todos)})
		r.emit(event.CurrentFile{Name: name})

		content, err := os.ReadFile(path)
		if err != nil {
			r.emit(event.Error(fmt.Sprintf("Could not read %s: %v", name, err)))
			log.Error("failed to read task file", "error", err.Error())
			r.summary.Failed++
			continue
		}

		extra, err := r.cfg.Hooks.TaskInstructions(name)
		r.flushHookLogs()
		if errors.Is(err, hooks.ErrStuck) {
			return false, r.fail(err)
		}
		if err != nil {
			r.warn("task_instructions hook failed", err)
		}

		input := r.cfg.Prompt.Execution(name, string(content), ledger.ExtractCompletedTasksSummary(r.ledger), extra)
		index := i + 1
		err = r.retry.Run(retry.Request{
			Executor: worker,
			Input:    input,
			OnAttempt: func(attempt int) {
				r.setPhase(event.RunningExecution{Model: worker.Name(), FileIndex: index, Attempt: attempt})
				r.emit(event.Running(fmt.Sprintf("Executing %s with %s (attempt %d/%d)", name, worker.Name(), attempt, r.cfg.Retry.MaxAttempts)))
			},
		})
		if errors.Is(err, shutdown.ErrSignaled) {
			r.emit(event.Warning(fmt.Sprintf("Cancelled while executing %s", name)))
			return true, nil
		}
		if err != nil {
			r.emit(event.Error(fmt.Sprintf("%s failed and stays pending: %v", name, err)))
			log.Error("task failed", "error", err.Error())
			r.summary.Failed++
			continue
		}

		r.complete(path)
	}
	return false, nil
}

// complete archives a finished task file and records it in the ledger.
func (r *Runner) complete(path string) {
	name := filepath.Base(path)
	r.setPhase(event.MovingCompletedFiles{})

	archived, err := r.cfg.Workspace.Archive(path)
	if err != nil {
		r.warn(fmt.Sprintf("Could not archive %s", name), err)
		archived = path
	}

	r.ledger = ledger.UpsertCompletedTaskSummary(r.ledger, ledger.ReferenceLine(r.cfg.Workspace.ProjectDir, archived))
	r.persistLedger()
	r.summary.Completed++
	r.emit(event.Success(fmt.Sprintf("Completed %s", name)))
	r.logger.Info("task completed", "file", name, "archived", r.cfg.Workspace.Rel(archived))
}

// persistLedger saves and publishes the ledger. A failed save is only a
// warning; the in-memory copy stays authoritative and is saved again on the
// next completion.
func (r *Runner) persistLedger() {
	if err := r.cfg.Workspace.Ledger().Save(r.ledger); err != nil {
		r.warn("Could not save the ledger", err)
	}
	r.emit(event.TaskTextUpdated{Text: r.ledger})
}

// fail moves to the Failed phase and returns err.
func (r *Runner) fail(err error) error {
	r.emit(event.Error(err.Error()))
	r.setPhase(event.Failed{Reason: err.Error()})
	r.logger.Error("flow failed", "error", err.Error())
	return err
}

func (r *Runner) warn(msg string, err error) {
	r.emit(event.Warning(fmt.Sprintf("%s: %v", msg, err)))
	r.logger.Warn(msg, "error", err.Error())
}

func (r *Runner) flushHookLogs() {
	for _, msg := range r.cfg.Hooks.DrainLogs() {
		r.emit(event.Info("hook: " + msg))
	}
}

func (r *Runner) setPhase(p event.Phase) {
	r.phase = p
	r.logger.Info("phase changed", "phase", event.Name(p), "detail", p.String())
	r.emit(event.PhaseChanged{Phase: p})
}

func (r *Runner) emit(ev event.Event) {
	r.events <- ev
}
