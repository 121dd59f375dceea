package event

import "testing"

func TestIsTerminal(t *testing.T) {
	tests := []struct {
		phase    Phase
		terminal bool
	}{
		{Idle{}, false},
		{ReadingInput{}, false},
		{CheckingDoneFiles{}, false},
		{RunningPlanning{Model: "Claude", Attempt: 1}, false},
		{CheckingTodoFiles{}, false},
		{NoTodoFiles{}, true},
		{ProcessingTodos{Current: 1, Total: 2}, false},
		{RunningExecution{Model: "Codex", FileIndex: 1, Attempt: 2}, false},
		{CycleComplete{Iteration: 3}, false},
		{MovingCompletedFiles{}, false},
		{Completed{}, true},
		{Failed{Reason: "boom"}, true},
	}

	for _, tt := range tests {
		t.Run(Name(tt.phase), func(t *testing.T) {
			if got := IsTerminal(tt.phase); got != tt.terminal {
				t.Errorf("IsTerminal(%v) = %v, want %v", tt.phase, got, tt.terminal)
			}
		})
	}
}

func TestPhaseString(t *testing.T) {
	if got, want := (RunningPlanning{Model: "Claude", Attempt: 2}).String(), "Planning with Claude (attempt 2)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if got, want := (Failed{Reason: "planning failed"}).String(), "Failed: planning failed"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
