package retry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mpataki/foreman/internal/event"
	"github.com/mpataki/foreman/internal/executor"
	"github.com/mpataki/foreman/internal/shutdown"
)

type fakeExecutor struct {
	calls atomic.Int32
	run   func(call int, sink chan<- executor.OutputLine) (int, error)
}

func (f *fakeExecutor) Name() string    { return "Fake" }
func (f *fakeExecutor) Command() string { return "fake" }
func (f *fakeExecutor) Execute(ctx context.Context, input string, sink chan<- executor.OutputLine) (int, error) {
	call := int(f.calls.Add(1))
	return f.run(call, sink)
}

// drain collects events until the channel is closed.
func drain(events chan event.Event) (*[]event.Event, *sync.WaitGroup) {
	var got []event.Event
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range events {
			got = append(got, ev)
		}
	}()
	return &got, &wg
}

func fastConfig(max int) Config {
	return Config{MaxAttempts: max, BaseInterval: time.Millisecond, IntervalIncrement: time.Millisecond}
}

func TestWaitDuration(t *testing.T) {
	c := Config{MaxAttempts: 5, BaseInterval: 10 * time.Second, IntervalIncrement: 5 * time.Second}

	if got := c.WaitDuration(0); got != 10*time.Second {
		t.Errorf("WaitDuration(0) = %v, want 10s", got)
	}
	if got := c.WaitDuration(3); got != 25*time.Second {
		t.Errorf("WaitDuration(3) = %v, want 25s", got)
	}
	prev := c.WaitDuration(0)
	for k := 1; k < 50; k++ {
		cur := c.WaitDuration(k)
		if cur < prev {
			t.Fatalf("WaitDuration(%d) = %v < WaitDuration(%d) = %v", k, cur, k-1, prev)
		}
		prev = cur
	}
}

func TestHasAttemptsRemaining(t *testing.T) {
	c := Config{MaxAttempts: 3}
	for attempts, want := range map[int]bool{0: true, 1: true, 2: true, 3: false, 4: false} {
		if got := c.HasAttemptsRemaining(attempts); got != want {
			t.Errorf("HasAttemptsRemaining(%d) = %v, want %v", attempts, got, want)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	if c.MaxAttempts != 100 || c.BaseInterval != 10*time.Second || c.IntervalIncrement != 10*time.Second {
		t.Errorf("DefaultConfig() = %+v", c)
	}
}

func TestRunnerRun(t *testing.T) {
	t.Run("always failing executor is called max attempts times", func(t *testing.T) {
		events := make(chan event.Event, 256)
		got, wg := drain(events)
		fake := &fakeExecutor{run: func(int, chan<- executor.OutputLine) (int, error) { return 1, nil }}
		r := &Runner{Config: fastConfig(4), Events: events, Flag: shutdown.New()}

		var reported []int
		err := r.Run(Request{Executor: fake, Input: "x", OnAttempt: func(a int) { reported = append(reported, a) }})
		close(events)
		wg.Wait()

		if !errors.Is(err, ErrMaxAttempts) {
			t.Fatalf("err = %v, want ErrMaxAttempts", err)
		}
		if n := fake.calls.Load(); n != 4 {
			t.Errorf("executor called %d times, want 4", n)
		}
		if len(reported) != 4 || reported[0] != 1 || reported[3] != 4 {
			t.Errorf("reported attempts = %v, want [1 2 3 4]", reported)
		}

		clears := 0
		for _, ev := range *got {
			if _, ok := ev.(event.ClearOutput); ok {
				clears++
			}
		}
		if clears != 3 {
			t.Errorf("ClearOutput emitted %d times, want 3", clears)
		}
	})

	t.Run("success on attempt k stops retrying", func(t *testing.T) {
		events := make(chan event.Event, 256)
		_, wg := drain(events)
		fake := &fakeExecutor{run: func(call int, _ chan<- executor.OutputLine) (int, error) {
			if call < 3 {
				return 0, errors.New("transient")
			}
			return 0, nil
		}}
		r := &Runner{Config: fastConfig(5), Events: events, Flag: shutdown.New()}

		err := r.Run(Request{Executor: fake})
		close(events)
		wg.Wait()

		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if n := fake.calls.Load(); n != 3 {
			t.Errorf("executor called %d times, want 3", n)
		}
	})

	t.Run("output is forwarded before the result", func(t *testing.T) {
		events := make(chan event.Event, 256)
		got, wg := drain(events)
		fake := &fakeExecutor{run: func(_ int, sink chan<- executor.OutputLine) (int, error) {
			sink <- executor.OutputLine{Stream: executor.Stdout, Text: "hello"}
			sink <- executor.OutputLine{Stream: executor.Stderr, Text: "oops"}
			return 0, nil
		}}
		r := &Runner{Config: fastConfig(1), Events: events, Flag: shutdown.New()}

		if err := r.Run(Request{Executor: fake}); err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		close(events)
		wg.Wait()

		if len(*got) != 2 {
			t.Fatalf("got %d events, want 2", len(*got))
		}
		first := (*got)[0].(event.Output)
		second := (*got)[1].(event.Output)
		if first.Line.Text != "hello" || first.Line.Category != event.CategoryStdout {
			t.Errorf("first = %+v", first)
		}
		if second.Line.Text != "oops" || second.Line.Category != event.CategoryStderr {
			t.Errorf("second = %+v", second)
		}
	})

	t.Run("cancellation before start makes no attempt", func(t *testing.T) {
		flag := shutdown.New()
		flag.Set()
		fake := &fakeExecutor{run: func(int, chan<- executor.OutputLine) (int, error) { return 0, nil }}
		r := &Runner{Config: fastConfig(3), Events: make(chan event.Event, 8), Flag: flag}

		if err := r.Run(Request{Executor: fake}); !errors.Is(err, shutdown.ErrSignaled) {
			t.Errorf("err = %v, want ErrSignaled", err)
		}
		if n := fake.calls.Load(); n != 0 {
			t.Errorf("executor called %d times, want 0", n)
		}
	})

	t.Run("cancellation interrupts backoff", func(t *testing.T) {
		flag := shutdown.New()
		events := make(chan event.Event, 256)
		_, wg := drain(events)
		fake := &fakeExecutor{run: func(int, chan<- executor.OutputLine) (int, error) {
			go func() {
				time.Sleep(50 * time.Millisecond)
				flag.Set()
			}()
			return 2, nil
		}}
		r := &Runner{
			Config: Config{MaxAttempts: 3, BaseInterval: time.Hour},
			Events: events,
			Flag:   flag,
		}

		start := time.Now()
		err := r.Run(Request{Executor: fake})
		close(events)
		wg.Wait()

		if !errors.Is(err, shutdown.ErrSignaled) {
			t.Fatalf("err = %v, want ErrSignaled", err)
		}
		if time.Since(start) > 10*time.Second {
			t.Error("backoff was not interrupted")
		}
		if n := fake.calls.Load(); n != 1 {
			t.Errorf("executor called %d times, want 1", n)
		}
	})
}
