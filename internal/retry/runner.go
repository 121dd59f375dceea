package retry

import (
	"errors"
	"fmt"
	"time"

	"github.com/mpataki/foreman/internal/event"
	"github.com/mpataki/foreman/internal/executor"
	"github.com/mpataki/foreman/internal/logging"
	"github.com/mpataki/foreman/internal/shutdown"
)

// ErrMaxAttempts is returned when every allowed attempt failed.
var ErrMaxAttempts = errors.New("max attempts exceeded")

// outputBuffer is the per-attempt channel capacity between executor and forwarder.
const outputBuffer = 64

// Runner retries executor calls and forwards their output as events.
type Runner struct {
	Config Config
	Events chan<- event.Event
	Flag   *shutdown.Flag
	Logger *logging.Logger
}

// Request is one logical executor call.
type Request struct {
	Executor executor.Executor
	Input    string

	// OnAttempt is called with the 1-based attempt number before each attempt.
	OnAttempt func(attempt int)
}

// Run invokes req.Executor until it exits 0, attempts run out, or the
// shutdown flag is set. A backoff wait is also cut short by the flag.
func (r *Runner) Run(req Request) error {
	logger := r.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	logger = logger.With("executor", req.Executor.Name())

	var lastErr error
	for attempt := 1; attempt <= r.Config.MaxAttempts; attempt++ {
		if r.Flag.IsSet() {
			return shutdown.ErrSignaled
		}
		if req.OnAttempt != nil {
			req.OnAttempt(attempt)
		}

		code, err := r.attempt(req)
		if err == nil && code == 0 {
			logger.Debug("attempt succeeded", "attempt", attempt)
			return nil
		}
		if r.Flag.IsSet() {
			return shutdown.ErrSignaled
		}

		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("%s exited with code %d", req.Executor.Command(), code)
		}
		logger.Warn("attempt failed", "attempt", attempt, "error", lastErr.Error())

		if !r.Config.HasAttemptsRemaining(attempt) {
			break
		}

		wait := r.Config.WaitDuration(attempt - 1)
		r.Events <- event.Warning(fmt.Sprintf("%v; retrying in %ds (attempt %d/%d)",
			lastErr, int(wait.Round(time.Second)/time.Second), attempt+1, r.Config.MaxAttempts))
		r.Events <- event.RetryWait{Waiting: true, Remaining: wait}
		interrupted := r.sleep(wait)
		r.Events <- event.RetryWait{}
		if interrupted {
			return shutdown.ErrSignaled
		}
		r.Events <- event.ClearOutput{}
	}

	if lastErr == nil {
		return fmt.Errorf("%w: %s was allowed no attempts", ErrMaxAttempts, req.Executor.Name())
	}
	return fmt.Errorf("%w (%d): %w", ErrMaxAttempts, r.Config.MaxAttempts, lastErr)
}

// attempt runs the executor once with a fresh output channel and forwarder.
// The forwarder is always joined before returning, so no output of this
// attempt can be emitted after its result is known.
func (r *Runner) attempt(req Request) (int, error) {
	lines := make(chan executor.OutputLine, outputBuffer)
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		for line := range lines {
			category := event.CategoryStdout
			if line.Stream == executor.Stderr {
				category = event.CategoryStderr
			}
			r.Events <- event.Output{Line: event.Line{Text: line.Text, Category: category}}
		}
	}()

	code, err := req.Executor.Execute(r.Flag.Context(), req.Input, lines)
	close(lines)
	<-forwarded
	return code, err
}

// sleep waits for d and reports whether the shutdown flag cut it short.
func (r *Runner) sleep(d time.Duration) bool {
	if d <= 0 {
		return r.Flag.IsSet()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return false
	case <-r.Flag.Done():
		return true
	}
}
